// Package account exposes account-level operations that cut across the
// other plugins, currently the data download: everything Geek Console
// stores about the requesting user, as a single JSON document.
package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/plugins/auth"
	"github.com/geekconsole/geekconsole/internal/plugins/books"
	"github.com/geekconsole/geekconsole/internal/plugins/connections"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// Export is the full account record returned by the download endpoint.
type Export struct {
	User        *auth.User                `json:"user"`
	Books       []*books.Book             `json:"books"`
	Connections []*connections.Connection `json:"connections"`
}

// Handler processes account-level HTTP requests.
type Handler struct {
	users       auth.Service
	books       books.Service
	connections connections.Service
}

// NewHandler creates a new account handler.
func NewHandler(users auth.Service, booksSvc books.Service, conns connections.Service) *Handler {
	return &Handler{users: users, books: booksSvc, connections: conns}
}

// Download handles GET /me/download. Every lookup goes through the owning
// plugin's service, so the export carries exactly what the user could read
// endpoint by endpoint.
func (h *Handler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	userID := session.GetUserID(c)

	user, err := h.users.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ownBooks, err := h.books.List(ctx, userID)
	if err != nil {
		return err
	}

	conns, err := h.connections.List(ctx, userID)
	if err != nil {
		return err
	}

	export := &Export{User: user, Books: ownBooks, Connections: conns}
	if export.Books == nil {
		export.Books = []*books.Book{}
	}
	if export.Connections == nil {
		export.Connections = []*connections.Connection{}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="geekconsole-data.json"`)
	return c.JSONPretty(http.StatusOK, export, "  ")
}

// RegisterRoutes mounts the account endpoints.
func RegisterRoutes(e *echo.Echo, h *Handler, authed echo.MiddlewareFunc) {
	e.GET("/me/download", h.Download, authed)
}
