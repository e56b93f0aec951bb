package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/designer-bridge/internal/handler"
	"github.com/iliyamo/designer-bridge/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers the authorization flow and the session token
// exchange under /api/auth.  None of them require an existing session;
// tokenLimit guards the token exchange.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokenLimit echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.GET("/authorize", a.Authorize)
	g.GET("/callback", a.Callback)
	g.POST("/token", a.Token, tokenLimit)
}

// Protected builds the /api group for bearer-authenticated routes.  The
// session check runs first so the rate limiter can key on the principal.
func Protected(e *echo.Echo, auth middleware.Authenticator, extra ...echo.MiddlewareFunc) *echo.Group {
	mw := append([]echo.MiddlewareFunc{middleware.SessionAuth(auth)}, extra...)
	return e.Group("/api", mw...)
}

// RegisterCustomCode registers the custom code routes on the protected group.
func RegisterCustomCode(g *echo.Group, h *handler.CustomCodeHandler) {
	cc := g.Group("/custom-code")
	cc.GET("/status", h.Status)
	cc.POST("/apply", h.Apply)
	cc.POST("/remove", h.Remove)
	cc.GET("/register", h.ListRegistered)
	cc.POST("/register", h.Register)
	cc.DELETE("/:targetType/:targetId", h.Clear)
}

// RegisterSites registers the site and page listings.  cache may be nil.
func RegisterSites(g *echo.Group, h *handler.SitesHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	g.GET("/sites", h.ListSites, mw...)
	g.GET("/sites/:siteId/pages", h.ListPages, mw...)
}

// RegisterDev registers development-only maintenance routes.  They answer
// 403 outside development.
func RegisterDev(e *echo.Echo, h *handler.AdminHandler, development bool) {
	g := e.Group("/api/dev", middleware.RequireDevelopment(development))
	g.POST("/clear", h.Clear)
}
