package rbac

import (
	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// RegisterRoutes mounts the role administration endpoints. The whole group
// sits behind the admin role; fine-grained checks are unnecessary here
// because role management is an admin-only concern.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.Manager, signer *cookies.Signer, users session.UserFinder) {
	admin := e.Group("/api/admin",
		session.RequireUser(sessions, signer, users),
		RequireRole(h.svc, RoleAdmin),
	)

	admin.GET("/users/:id/roles", h.ListRoles)
	admin.POST("/users/:id/roles", h.AssignRole)
	admin.DELETE("/users/:id/roles/:role", h.RevokeRole)
}
