package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/config"
	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// Handler processes HTTP requests for authentication.
type Handler struct {
	service  Service
	sessions session.Manager
	signer   *cookies.Signer
	cfg      config.SessionConfig
}

// NewHandler creates a new auth handler.
func NewHandler(service Service, sessions session.Manager, signer *cookies.Signer, cfg config.SessionConfig) *Handler {
	return &Handler{service: service, sessions: sessions, signer: signer, cfg: cfg}
}

// Signup handles POST /signup.
func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}
	if req.Password != req.Confirm {
		return apperror.NewValidation("passwords do not match")
	}

	result, err := h.service.Signup(c.Request().Context(), SignupInput{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Remember: req.Remember,
	})
	if err != nil {
		return err
	}

	h.setSessionCookie(c, result.Session.ID, result.Remember)
	return h.respondAuthenticated(c, result.User)
}

// Login handles POST /login. A user with a second factor enabled gets a
// short-lived verification cookie instead of a session; the session is
// only issued once the code checks out.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Username: req.Username,
		Password: req.Password,
		Remember: req.Remember,
	})
	if err != nil {
		return err
	}

	if result.TwoFactorToken != "" {
		h.signer.Set(c, cookies.VerifyCookieName, result.TwoFactorToken, h.cfg.VerifyTTL)
		if wantsJSON(c) {
			return c.JSON(http.StatusOK, map[string]any{"two_factor_required": true})
		}
		return c.Redirect(http.StatusSeeOther, "/verify"+preserveRedirect(c))
	}

	h.setSessionCookie(c, result.Session.ID, result.Remember)
	return h.respondAuthenticated(c, result.User)
}

// Logout handles POST /logout. Destroying an already-destroyed session is
// fine; the client ends up logged out either way.
func (h *Handler) Logout(c echo.Context) error {
	sid := h.signer.Get(c, cookies.SessionCookieName)
	if err := h.sessions.Destroy(c.Request().Context(), sid); err != nil {
		return err
	}
	cookies.Clear(c, cookies.SessionCookieName)

	if wantsJSON(c) {
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// ForgotPassword handles POST /forgot-password. The response is the same
// whether or not the account exists.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	if err := h.service.InitiatePasswordReset(c.Request().Context(), req.Username); err != nil {
		return err
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{
			"message": "if that account exists, a reset code has been sent",
		})
	}
	return c.Redirect(http.StatusSeeOther, "/reset-password")
}

// ResetPassword handles POST /reset-password.
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}
	if req.Password != req.Confirm {
		return apperror.NewValidation("passwords do not match")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.Username, req.Code, req.Password); err != nil {
		return err
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"message": "password updated, please log in"})
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

// Me handles GET /api/me: the authenticated user's own profile.
func (h *Handler) Me(c echo.Context) error {
	user, err := h.service.FindUserByID(c.Request().Context(), session.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// setSessionCookie writes the signed session cookie with a max-age matching
// the session's own lifetime.
func (h *Handler) setSessionCookie(c echo.Context, sessionID string, remember bool) {
	ttl := h.cfg.TTL
	if remember {
		ttl = h.cfg.RememberTTL
	}
	h.signer.Set(c, cookies.SessionCookieName, sessionID, ttl)
}

// respondAuthenticated finishes a successful signup or login: JSON for API
// clients, otherwise a redirect honoring a safe redirectTo continuation.
func (h *Handler) respondAuthenticated(c echo.Context, user *User) error {
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, user)
	}
	return c.Redirect(http.StatusSeeOther, safeRedirect(c))
}

// safeRedirect returns the redirectTo query/form value when it is a local
// path, and "/" otherwise. Absolute URLs and scheme-relative ("//...")
// values are rejected to keep the login flow from becoming an open redirect.
func safeRedirect(c echo.Context) string {
	target := c.QueryParam("redirectTo")
	if target == "" {
		target = c.FormValue("redirectTo")
	}
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

// preserveRedirect carries the redirectTo value forward to the next step of
// a multi-step flow, as a query string (including the leading "?"), or ""
// when there is nothing to carry.
func preserveRedirect(c echo.Context) string {
	target := safeRedirect(c)
	if target == "/" {
		return ""
	}
	return "?redirectTo=" + url.QueryEscape(target)
}

// wantsJSON mirrors the session middleware's content negotiation.
func wantsJSON(c echo.Context) bool {
	if strings.HasPrefix(c.Request().URL.Path, "/api") {
		return true
	}
	return strings.Contains(c.Request().Header.Get("Accept"), "application/json")
}
