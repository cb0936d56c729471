package books

import (
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// RegisterRoutes mounts the book endpoints. Everything requires a session.
// Creation carries a fixed own-scoped permission at the route level; the
// per-book operations authorize in the service's policy guard, which needs
// the resource loaded before it can pick the own/any scope.
func RegisterRoutes(e *echo.Echo, h *Handler, perms rbac.Service, sessions session.Manager, signer *cookies.Signer, users session.UserFinder, maxUploadSize int64) {
	authed := session.RequireUser(sessions, signer, users)
	canCreate := rbac.RequirePermission(perms, rbac.Permission{
		Action: rbac.ActionCreate,
		Entity: EntityBook,
		Access: rbac.AccessOwn,
	})

	g := e.Group("/api/books", authed)
	g.GET("", h.List)
	g.POST("", h.Create, canCreate)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)

	// Margin over maxUploadSize covers multipart encoding overhead.
	bodyLimit := echomw.BodyLimit(humanByteSize(maxUploadSize + maxUploadSize/10))
	g.POST("/:id/image", h.UploadImage, bodyLimit)

	e.GET("/api/images/:id", h.ServeImage, authed)
}

// humanByteSize renders a byte count in the "NK"/"NM" form BodyLimit wants.
func humanByteSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return strconv.FormatInt(n/mb+1, 10) + "M"
	}
	return strconv.FormatInt(n/1024+1, 10) + "K"
}
