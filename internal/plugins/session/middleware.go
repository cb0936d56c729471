package session

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/cookies"
)

// Context keys for storing session data in Echo context. Other plugins use
// these keys (via the exported getter functions below) to access the
// authenticated user's information.
const (
	contextKeySession = "session"
	contextKeyUserID  = "session_user_id"
	contextKeyViewer  = "session_viewer"
)

// RequireUser returns middleware that verifies the signed session cookie,
// resolves the session against the database, and confirms the user behind
// it still exists. On success the session and user are injected into the
// request context. Failures redirect browsers to /login with a redirectTo
// continuation, or return 401 JSON for API requests.
//
// A session whose user has been deleted is not an error the client should
// see: the stale session is destroyed, the cookie cleared, and the request
// redirected home as if logged out.
func RequireUser(mgr Manager, signer *cookies.Signer, users UserFinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := signer.Get(c, cookies.SessionCookieName)
			if sid == "" {
				return handleUnauthenticated(c)
			}

			s, err := mgr.Resolve(c.Request().Context(), sid)
			if err != nil {
				// Invalid or expired session -- clear the stale cookie.
				cookies.Clear(c, cookies.SessionCookieName)
				return handleUnauthenticated(c)
			}

			viewer, err := users.FindUserByID(c.Request().Context(), s.UserID)
			if err != nil {
				// Session points at a deleted user: force logout rather than
				// proceeding with a stale id.
				_ = mgr.Destroy(c.Request().Context(), s.ID)
				cookies.Clear(c, cookies.SessionCookieName)
				return c.Redirect(http.StatusSeeOther, "/")
			}

			c.Set(contextKeySession, s)
			c.Set(contextKeyUserID, s.UserID)
			c.Set(contextKeyViewer, viewer)

			return next(c)
		}
	}
}

// RequireAnonymous returns the inverse guard used on login and signup
// routes: an already-authenticated request is redirected home instead of
// being allowed to re-authenticate.
func RequireAnonymous(mgr Manager, signer *cookies.Signer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := signer.Get(c, cookies.SessionCookieName)
			if sid != "" {
				if _, err := mgr.Resolve(c.Request().Context(), sid); err == nil {
					return c.Redirect(http.StatusSeeOther, "/")
				}
			}
			return next(c)
		}
	}
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: 401 JSON for API clients, redirect to login with a redirectTo
// continuation for browsers.
func handleUnauthenticated(c echo.Context) error {
	if wantsJSON(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}

	// Preserve where the user was headed so login can send them back.
	target := c.Request().URL.Path
	if q := c.Request().URL.RawQuery; q != "" {
		target += "?" + q
	}
	return c.Redirect(http.StatusSeeOther, "/login?redirectTo="+url.QueryEscape(target))
}

// wantsJSON returns true for API requests: either targeting the /api/ path
// or explicitly asking for a JSON response.
func wantsJSON(c echo.Context) bool {
	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api") {
		return true
	}
	return strings.Contains(c.Request().Header.Get("Accept"), "application/json")
}

// --- Exported getters for other plugins ---

// Get retrieves the resolved session from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func Get(c echo.Context) *Session {
	s, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return s
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetViewer retrieves the authenticated user from the Echo context.
// Returns nil if the request is not authenticated.
func GetViewer(c echo.Context) *Viewer {
	v, ok := c.Get(contextKeyViewer).(*Viewer)
	if !ok {
		return nil
	}
	return v
}
