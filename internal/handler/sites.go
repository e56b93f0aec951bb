package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/middleware"
	"github.com/iliyamo/designer-bridge/internal/model"
)

// SiteLister lists sites and pages visible to a credential.
type SiteLister interface {
	ListSites(ctx context.Context, token string) ([]model.Site, error)
	ListPages(ctx context.Context, token, siteID string) ([]model.Page, error)
}

// SitesHandler proxies the platform's site and page listings.
type SitesHandler struct {
	Platform SiteLister
	Log      *zap.Logger
}

func NewSitesHandler(p SiteLister, log *zap.Logger) *SitesHandler {
	return &SitesHandler{Platform: p, Log: log}
}

// ListSites: GET /api/sites
func (h *SitesHandler) ListSites(c echo.Context) error {
	sites, err := h.Platform.ListSites(c.Request().Context(), middleware.AccessToken(c))
	if err != nil {
		return internalError(c, h.Log, "list sites failed", err)
	}
	if sites == nil {
		sites = []model.Site{}
	}
	return c.JSON(http.StatusOK, echo.Map{"sites": sites})
}

// ListPages: GET /api/sites/:siteId/pages
func (h *SitesHandler) ListPages(c echo.Context) error {
	pages, err := h.Platform.ListPages(c.Request().Context(), middleware.AccessToken(c), c.Param("siteId"))
	if err != nil {
		return internalError(c, h.Log, "list pages failed", err)
	}
	if pages == nil {
		pages = []model.Page{}
	}
	return c.JSON(http.StatusOK, echo.Map{"pages": pages})
}
