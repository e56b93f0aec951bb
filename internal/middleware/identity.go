package middleware

// identity.go holds the getters for what SessionAuth stored in the Echo
// context.  Handlers use them instead of reading context keys directly.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/designer-bridge/internal/model"
)

// Principal returns the authenticated principal, or nil on routes without
// SessionAuth.
func Principal(c echo.Context) *model.Principal {
	p, _ := c.Get(principalKey).(*model.Principal)
	return p
}

// AccessToken returns the platform credential of the authenticated
// principal.
func AccessToken(c echo.Context) string {
	s, _ := c.Get(accessTokenKey).(string)
	return s
}

// principalID returns the principal id, or "anon" when no one is
// authenticated.
func principalID(c echo.Context) string {
	if p := Principal(c); p != nil && p.ID != "" {
		return p.ID
	}
	return "anon"
}
