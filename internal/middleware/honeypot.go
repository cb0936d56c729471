package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// honeypotFormField is a hidden form field rendered on signup and login
// forms. Browsers leave it empty; naive form-filling bots populate it.
const honeypotFormField = "name__confirm"

// Honeypot returns middleware that rejects mutating form submissions where
// the hidden honeypot field was filled in. Tripping the honeypot is treated
// as a fatal request-integrity failure, same as a bad CSRF token.
func Honeypot() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isSafeMethod(c.Request().Method) {
				return next(c)
			}

			if c.Request().FormValue(honeypotFormField) != "" {
				// Deliberately vague message; bots get no hint about what tripped.
				return echo.NewHTTPError(http.StatusBadRequest, "form submission rejected")
			}

			return next(c)
		}
	}
}
