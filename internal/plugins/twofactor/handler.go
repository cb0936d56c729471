package twofactor

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/config"
	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// Handler processes HTTP requests for two-factor verification.
type Handler struct {
	service Service
	signer  *cookies.Signer
	cfg     config.SessionConfig
}

// NewHandler creates a new two-factor handler.
func NewHandler(service Service, signer *cookies.Signer, cfg config.SessionConfig) *Handler {
	return &Handler{service: service, signer: signer, cfg: cfg}
}

// Verify handles POST /verify: the code prompt after a staged login. On
// success the verification cookie is swapped for the real session cookie,
// carrying the remember choice made at the password prompt.
func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	token := h.signer.Get(c, cookies.VerifyCookieName)
	sess, remember, err := h.service.CompleteLogin(c.Request().Context(), token, req.Code)
	if err != nil {
		return err
	}

	cookies.Clear(c, cookies.VerifyCookieName)
	ttl := h.cfg.TTL
	if remember {
		ttl = h.cfg.RememberTTL
	}
	h.signer.Set(c, cookies.SessionCookieName, sess.ID, ttl)

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
	}
	return c.Redirect(http.StatusSeeOther, safeRedirect(c))
}

// Setup handles POST /api/2fa/setup: begins enrollment for the
// authenticated user.
func (h *Handler) Setup(c echo.Context) error {
	viewer := session.GetViewer(c)
	resp, err := h.service.BeginSetup(c.Request().Context(), viewer.ID, viewer.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Confirm handles POST /api/2fa/confirm: promotes a pending enrollment.
func (h *Handler) Confirm(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	sess := session.Get(c)
	if err := h.service.ConfirmSetup(c.Request().Context(), sess.ID, sess.UserID, req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "enabled"})
}

// Recheck handles POST /api/2fa/verify: a code check before a sensitive
// action, refreshing the session's recent-verification mark.
func (h *Handler) Recheck(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	sess := session.Get(c)
	if err := h.service.VerifyCode(c.Request().Context(), sess.ID, sess.UserID, req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
}

// Disable handles DELETE /api/2fa.
func (h *Handler) Disable(c echo.Context) error {
	sess := session.Get(c)
	if err := h.service.Disable(c.Request().Context(), sess.ID, sess.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func wantsJSON(c echo.Context) bool {
	if strings.HasPrefix(c.Request().URL.Path, "/api") {
		return true
	}
	return strings.Contains(c.Request().Header.Get("Accept"), "application/json")
}

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
