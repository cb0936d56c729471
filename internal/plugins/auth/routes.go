package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/middleware"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// RegisterRoutes mounts the authentication endpoints. Login and signup are
// rate limited per IP and refused for already-authenticated sessions.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.Manager, signer *cookies.Signer, users session.UserFinder) {
	anonymous := session.RequireAnonymous(sessions, signer)

	e.POST("/login", h.Login, anonymous, middleware.RateLimit(10, time.Minute), middleware.Honeypot())
	e.POST("/signup", h.Signup, anonymous, middleware.RateLimit(5, time.Minute), middleware.Honeypot())
	e.POST("/logout", h.Logout)

	e.POST("/forgot-password", h.ForgotPassword, anonymous, middleware.RateLimit(5, time.Minute))
	e.POST("/reset-password", h.ResetPassword, anonymous, middleware.RateLimit(5, time.Minute))

	authed := session.RequireUser(sessions, signer, users)
	e.GET("/api/me", h.Me, authed)
}
