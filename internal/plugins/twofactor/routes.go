package twofactor

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/middleware"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// RegisterRoutes mounts the two-factor endpoints. The code prompt after a
// staged login is deliberately unauthenticated: no session exists yet, the
// verification cookie is the only credential.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.Manager, signer *cookies.Signer, users session.UserFinder) {
	e.POST("/verify", h.Verify, middleware.RateLimit(10, time.Minute))

	authed := session.RequireUser(sessions, signer, users)
	g := e.Group("/api/2fa", authed)
	g.POST("/setup", h.Setup)
	g.POST("/confirm", h.Confirm)
	g.POST("/verify", h.Recheck, middleware.RateLimit(10, time.Minute))
	g.DELETE("", h.Disable)
}
