package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// stubSessions resolves a single fixed session, enough to drive the
// session middleware in front of the guards under test.
type stubSessions struct {
	s *session.Session
}

func (m *stubSessions) Create(ctx context.Context, userID string, remember bool) (*session.Session, error) {
	return m.s, nil
}

func (m *stubSessions) Resolve(ctx context.Context, id string) (*session.Session, error) {
	if m.s != nil && id == m.s.ID {
		return m.s, nil
	}
	return nil, apperror.NewUnauthorized("authentication required")
}

func (m *stubSessions) Destroy(ctx context.Context, id string) error            { return nil }
func (m *stubSessions) DestroyAllForUser(ctx context.Context, id string) error  { return nil }
func (m *stubSessions) ExpirationDate(remember bool) time.Time                  { return time.Now().Add(time.Hour) }

type stubUsers struct{}

func (stubUsers) FindUserByID(ctx context.Context, id string) (*session.Viewer, error) {
	return &session.Viewer{ID: id, Username: "alice"}, nil
}

// guardFixture builds the real middleware chain: session resolution in
// front, the guard under test behind it.
func guardFixture(t *testing.T, guard echo.MiddlewareFunc) (echo.HandlerFunc, *cookies.Signer, *session.Session) {
	t.Helper()
	signer := cookies.NewSigner([]string{"test-secret"})
	live := &session.Session{
		ID:        "sess-1",
		UserID:    "alice",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	chain := session.RequireUser(&stubSessions{s: live}, signer, stubUsers{})(
		guard(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		}),
	)
	return chain, signer, live
}

func guardRequest(signer *cookies.Signer, s *session.Session) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/books", nil)
	if s != nil {
		req.AddCookie(&http.Cookie{Name: cookies.SessionCookieName, Value: signer.Sign(s.ID)})
	}
	return req, httptest.NewRecorder()
}

func TestRequirePermissionMiddlewareAllowsGrant(t *testing.T) {
	repo := newMockRoleRepo()
	repo.perms["alice"] = []Permission{{ActionCreate, "book", AccessOwn}}
	guard := RequirePermission(NewService(repo, nil), Permission{ActionCreate, "book", AccessOwn})
	chain, signer, live := guardFixture(t, guard)

	req, rec := guardRequest(signer, live)
	if err := chain(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("granted user should pass: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequirePermissionMiddlewareDenies(t *testing.T) {
	repo := newMockRoleRepo()
	guard := RequirePermission(NewService(repo, nil), Permission{ActionCreate, "book", AccessOwn})
	chain, signer, live := guardFixture(t, guard)

	req, rec := guardRequest(signer, live)
	err := chain(echo.New().NewContext(req, rec))
	assertAppError(t, err, 403)
}

func TestRequirePermissionMiddlewareNeedsSession(t *testing.T) {
	repo := newMockRoleRepo()
	repo.perms["alice"] = []Permission{{ActionCreate, "book", AccessOwn}}
	guard := RequirePermission(NewService(repo, nil), Permission{ActionCreate, "book", AccessOwn})
	chain, signer, _ := guardFixture(t, guard)

	req, rec := guardRequest(signer, nil)
	if err := chain(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("session middleware writes the response itself: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	repo := newMockRoleRepo()
	repo.roles["alice"] = []string{RoleAdmin}
	guard := RequireRole(NewService(repo, nil), RoleAdmin)
	chain, signer, live := guardFixture(t, guard)

	req, rec := guardRequest(signer, live)
	if err := chain(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}

	repo.roles["alice"] = nil
	req, rec = guardRequest(signer, live)
	err := chain(echo.New().NewContext(req, rec))
	assertAppError(t, err, 403)
}
