package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

func handleError(t *testing.T, err error, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	(&App{}).errorHandler(err, c)
	return rec
}

func TestErrorHandlerAPIUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	rec := handleError(t, apperror.NewUnauthorized("authentication required"), req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.Contains(ct, "json") {
		t.Fatalf("API errors are JSON, got %q", ct)
	}
}

func TestErrorHandlerFieldConflict(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/whatever", nil)
	rec := handleError(t, apperror.NewFieldConflict("email", "an account with this email already exists"), req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["field"] != "email" {
		t.Fatalf("conflict should carry the field, got %q", body["field"])
	}
}

func TestErrorHandlerBrowserUnauthorizedRedirects(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/settings/connections?tab=all", nil)
	rec := handleError(t, apperror.NewUnauthorized("authentication required"), req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?redirectTo=") || !strings.Contains(loc, "connections") {
		t.Fatalf("expected login redirect with continuation, got %q", loc)
	}
}

func TestErrorHandlerFailedLoginReturnsToForm(t *testing.T) {
	form := url.Values{"username": {"alice"}, "password": {"wrong"}, "redirectTo": {"/books/42"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := handleError(t, apperror.NewUnauthorized("Invalid username or password"), req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	// The failed form must land back on itself with the message, never
	// loop through the login redirect and lose it.
	if !strings.HasPrefix(loc, "/login?error=") {
		t.Fatalf("expected return to the login form, got %q", loc)
	}
	if !strings.Contains(loc, url.QueryEscape("Invalid username or password")) {
		t.Fatalf("message should survive the redirect, got %q", loc)
	}
	if !strings.Contains(loc, "redirectTo="+url.QueryEscape("/books/42")) {
		t.Fatalf("continuation should survive the redirect, got %q", loc)
	}
}

func TestErrorHandlerFailedVerifyReturnsToForm(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	rec := handleError(t, apperror.NewUnauthorized("Invalid verification code"), req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/verify?error=") {
		t.Fatalf("expected return to the verify form, got %q", loc)
	}
}

func TestErrorHandlerRejectsExternalContinuation(t *testing.T) {
	form := url.Values{"redirectTo": {"//evil.example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := handleError(t, apperror.NewUnauthorized("Invalid username or password"), req)

	if loc := rec.Header().Get("Location"); strings.Contains(loc, "evil.example.com") {
		t.Fatalf("external continuation must be dropped, got %q", loc)
	}
}
