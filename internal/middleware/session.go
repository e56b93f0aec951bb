package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/designer-bridge/internal/model"
)

// Context keys set by SessionAuth.
const (
	principalKey   = "principal"
	accessTokenKey = "access_token"
)

// Authenticator verifies a session token and returns its principal along
// with the principal's stored platform credential.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*model.Principal, string, bool)
}

// SessionAuth returns an Echo middleware that requires a Bearer session
// token.  Every failure (missing header, bad token, expired token, no
// stored credential) answers the same 401 body so callers cannot tell the
// causes apart.  On success the principal and its access credential are
// stored in the context for Principal and AccessToken.
func SessionAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return Unauthorized(c)
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			p, credential, ok := auth.Authenticate(c.Request().Context(), raw)
			if !ok {
				return Unauthorized(c)
			}
			c.Set(principalKey, p)
			c.Set(accessTokenKey, credential)
			return next(c)
		}
	}
}

// Unauthorized writes the uniform 401 answer.
func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
}
