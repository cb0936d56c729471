package rbac

import (
	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// RequirePermission returns middleware that rejects the request with 403
// unless the authenticated user holds the given permission. Suitable for
// routes where the required access scope is fixed up front (e.g. creating
// a book always requires create:book:own). Ownership-dependent checks
// cannot use route middleware -- they go through the service-level guard
// after the target resource is loaded.
//
// Must be applied AFTER session.RequireUser.
func RequirePermission(svc Service, perm Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := session.GetUserID(c)
			if userID == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			if err := svc.RequirePermission(c.Request().Context(), userID, perm); err != nil {
				return err
			}

			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects the request with 403 unless
// the authenticated user holds the named role. Used for coarse gates like
// the admin area.
//
// Must be applied AFTER session.RequireUser.
func RequireRole(svc Service, roleName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := session.GetUserID(c)
			if userID == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			if err := svc.RequireRole(c.Request().Context(), userID, roleName); err != nil {
				return err
			}

			return next(c)
		}
	}
}
