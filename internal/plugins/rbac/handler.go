package rbac

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// Handler processes role administration HTTP requests.
type Handler struct {
	svc Service
}

// NewHandler creates a new rbac handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// roleRequest is the body for role assignment.
type roleRequest struct {
	Role string `json:"role" form:"role"`
}

// ListRoles handles GET /api/admin/users/:id/roles.
func (h *Handler) ListRoles(c echo.Context) error {
	roles, err := h.svc.RolesForUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"roles": roles})
}

// AssignRole handles POST /api/admin/users/:id/roles.
func (h *Handler) AssignRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Role == "" {
		return apperror.NewBadRequest("role is required")
	}

	if err := h.svc.AssignRole(c.Request().Context(), c.Param("id"), req.Role); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RevokeRole handles DELETE /api/admin/users/:id/roles/:role.
func (h *Handler) RevokeRole(c echo.Context) error {
	if err := h.svc.RevokeRole(c.Request().Context(), c.Param("id"), c.Param("role")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
