package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireDevelopment rejects requests with 403 unless enabled is true.  It
// guards maintenance endpoints that must never run in production.
func RequireDevelopment(enabled bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !enabled {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Not available in production"})
			}
			return next(c)
		}
	}
}
