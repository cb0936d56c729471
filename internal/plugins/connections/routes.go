package connections

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/middleware"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// RegisterRoutes mounts the federated login endpoints.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.Manager, signer *cookies.Signer, users session.UserFinder) {
	e.GET("/auth/github", h.Begin, middleware.RateLimit(10, time.Minute))
	e.GET("/auth/github/callback", h.Callback, middleware.RateLimit(10, time.Minute))
	e.POST("/onboarding/github", h.CompleteOnboarding, middleware.RateLimit(5, time.Minute), middleware.Honeypot())

	authed := session.RequireUser(sessions, signer, users)
	g := e.Group("/api/connections", authed)
	g.GET("", h.List)
	g.DELETE("/:id", h.Delete)
}
