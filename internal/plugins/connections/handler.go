package connections

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/config"
	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// Handler processes HTTP requests for federated login and connection
// management.
type Handler struct {
	service  Service
	sessions session.Manager
	signer   *cookies.Signer
	cfg      config.SessionConfig
}

// NewHandler creates a new connections handler.
func NewHandler(service Service, sessions session.Manager, signer *cookies.Signer, cfg config.SessionConfig) *Handler {
	return &Handler{service: service, sessions: sessions, signer: signer, cfg: cfg}
}

// Begin handles GET /auth/github: starts the authorization redirect.
func (h *Handler) Begin(c echo.Context) error {
	authURL, _, err := h.service.BeginAuth(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, authURL)
}

// Callback handles GET /auth/github/callback. The route carries no auth
// middleware: both anonymous and logged-in users land here, and the
// branches differ on which they are.
func (h *Handler) Callback(c echo.Context) error {
	currentUserID := h.optionalUserID(c)

	result, err := h.service.HandleCallback(
		c.Request().Context(),
		currentUserID,
		c.QueryParam("state"),
		c.QueryParam("code"),
	)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case OutcomeLogin:
		h.signer.Set(c, cookies.SessionCookieName, result.Session.ID, h.cfg.TTL)
		return c.Redirect(http.StatusSeeOther, "/")
	case OutcomeLinked:
		return c.Redirect(http.StatusSeeOther, "/settings/connections")
	case OutcomeOnboarding:
		h.signer.Set(c, cookies.VerifyCookieName, result.OnboardingToken, h.cfg.VerifyTTL)
		return c.Redirect(http.StatusSeeOther, "/onboarding/github")
	default:
		return apperror.NewInternal(nil)
	}
}

// CompleteOnboarding handles POST /onboarding/github: the username form
// that finishes signup from a staged provider profile.
func (h *Handler) CompleteOnboarding(c echo.Context) error {
	var req OnboardingRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	token := h.signer.Get(c, cookies.VerifyCookieName)
	sess, err := h.service.CompleteOnboarding(c.Request().Context(), token, req)
	if err != nil {
		return err
	}

	cookies.Clear(c, cookies.VerifyCookieName)
	ttl := h.cfg.TTL
	if req.Remember {
		ttl = h.cfg.RememberTTL
	}
	h.signer.Set(c, cookies.SessionCookieName, sess.ID, ttl)

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// List handles GET /api/connections.
func (h *Handler) List(c echo.Context) error {
	conns, err := h.service.List(c.Request().Context(), session.GetUserID(c))
	if err != nil {
		return err
	}
	if conns == nil {
		conns = []*Connection{}
	}
	return c.JSON(http.StatusOK, conns)
}

// Delete handles DELETE /api/connections/:id.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), session.GetUserID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// optionalUserID resolves the session cookie without requiring one. The
// callback route serves both signed-in linking and anonymous login, so the
// usual RequireUser guard does not fit.
func (h *Handler) optionalUserID(c echo.Context) string {
	sid := h.signer.Get(c, cookies.SessionCookieName)
	if sid == "" {
		return ""
	}
	sess, err := h.sessions.Resolve(c.Request().Context(), sid)
	if err != nil {
		return ""
	}
	return sess.UserID
}

func wantsJSON(c echo.Context) bool {
	if strings.HasPrefix(c.Request().URL.Path, "/api") {
		return true
	}
	return strings.Contains(c.Request().Header.Get("Accept"), "application/json")
}
