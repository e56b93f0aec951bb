package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/customcode"
	"github.com/iliyamo/designer-bridge/internal/middleware"
	"github.com/iliyamo/designer-bridge/internal/model"
	"github.com/iliyamo/designer-bridge/internal/status"
)

// StatusEngine answers application status queries.
type StatusEngine interface {
	GetStatus(ctx context.Context, f status.Fetcher, scriptID, siteID string, pageIDs []string) (map[string]model.StatusEntry, error)
	Refresh(ctx context.Context, f status.Fetcher, scriptID, siteID string, pageIDs []string) (map[string]model.StatusEntry, error)
}

// CodeService mutates code lists and the script registry.
type CodeService interface {
	Upsert(ctx context.Context, token string, app model.CodeApplication) (model.CodeList, error)
	Remove(ctx context.Context, token string, target model.Target, scriptID string) (model.CodeList, error)
	Clear(ctx context.Context, token string, target model.Target) error
	ListRegistered(ctx context.Context, token, siteID string) ([]model.RegisteredScript, error)
	Register(ctx context.Context, token, siteID string, s model.RegisteredScript) (model.RegisteredScript, error)
}

// CustomCodeHandler serves the custom code routes.  All of them run behind
// SessionAuth, which provides the caller's platform credential.
type CustomCodeHandler struct {
	Engine StatusEngine
	Code   CodeService
	Reader status.CodeReader
	Log    *zap.Logger
}

func NewCustomCodeHandler(engine StatusEngine, code CodeService, reader status.CodeReader, log *zap.Logger) *CustomCodeHandler {
	return &CustomCodeHandler{Engine: engine, Code: code, Reader: reader, Log: log}
}

type removeReq struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	ScriptID   string `json:"scriptId"`
}

type registerReq struct {
	SiteID         string `json:"siteId"`
	DisplayName    string `json:"displayName"`
	Version        string `json:"version"`
	SourceCode     string `json:"sourceCode"`
	HostedLocation string `json:"hostedLocation"`
	CanCopy        *bool  `json:"canCopy"`
}

// Status reports where a script is applied.
//
//	GET /api/custom-code/status?scriptId=&targetType=site&targetId=
//	GET /api/custom-code/status?scriptId=&targetType=page&targetIds=a,b[&siteId=]
//
// refresh=true bypasses cached entries.
func (h *CustomCodeHandler) Status(c echo.Context) error {
	scriptID := strings.TrimSpace(c.QueryParam("scriptId"))
	targetType := c.QueryParam("targetType")
	targetID := strings.TrimSpace(c.QueryParam("targetId"))
	targetIDs := splitIDs(c.QueryParam("targetIds"))
	if scriptID == "" || targetType == "" || (targetID == "" && len(targetIDs) == 0) {
		return badRequest(c, "Missing required fields")
	}
	tt, err := model.ParseTargetType(targetType)
	if err != nil {
		return badRequest(c, "Invalid target type")
	}

	var siteID string
	var pageIDs []string
	switch tt {
	case model.TargetSite:
		siteID = firstNonEmpty(targetID, firstOf(targetIDs))
	case model.TargetPage:
		siteID = strings.TrimSpace(c.QueryParam("siteId"))
		pageIDs = targetIDs
		if targetID != "" {
			pageIDs = append(pageIDs, targetID)
		}
	}

	fetcher := status.NewPlatformFetcher(h.Reader, middleware.AccessToken(c), h.Log)
	lookup := h.Engine.GetStatus
	if c.QueryParam("refresh") == "true" {
		lookup = h.Engine.Refresh
	}
	result, err := lookup(c.Request().Context(), fetcher, scriptID, siteID, pageIDs)
	if err != nil {
		return internalError(c, h.Log, "status lookup failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"result": result})
}

// Apply adds or replaces one script on one target.
func (h *CustomCodeHandler) Apply(c echo.Context) error {
	var app model.CodeApplication
	if err := c.Bind(&app); err != nil {
		return badRequest(c, "invalid body")
	}
	out, err := h.Code.Upsert(c.Request().Context(), middleware.AccessToken(c), app)
	if err != nil {
		return h.mutationError(c, "apply failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"result": out})
}

// Remove drops one script from one target.
func (h *CustomCodeHandler) Remove(c echo.Context) error {
	var req removeReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	target := model.Target{Type: model.TargetType(strings.ToLower(req.TargetType)), ID: req.TargetID}
	out, err := h.Code.Remove(c.Request().Context(), middleware.AccessToken(c), target, req.ScriptID)
	if err != nil {
		return h.mutationError(c, "remove failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"result": out})
}

// Clear removes every script from a target.
func (h *CustomCodeHandler) Clear(c echo.Context) error {
	target := model.Target{Type: model.TargetType(strings.ToLower(c.Param("targetType"))), ID: c.Param("targetId")}
	if err := h.Code.Clear(c.Request().Context(), middleware.AccessToken(c), target); err != nil {
		return h.mutationError(c, "clear failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListRegistered lists the scripts registered on ?siteId.
func (h *CustomCodeHandler) ListRegistered(c echo.Context) error {
	siteID := strings.TrimSpace(c.QueryParam("siteId"))
	if siteID == "" {
		return badRequest(c, "Missing required fields")
	}
	scripts, err := h.Code.ListRegistered(c.Request().Context(), middleware.AccessToken(c), siteID)
	if err != nil {
		return internalError(c, h.Log, "list registered scripts failed", err)
	}
	if scripts == nil {
		scripts = []model.RegisteredScript{}
	}
	return c.JSON(http.StatusOK, echo.Map{"registeredScripts": scripts})
}

// Register adds an inline or hosted script to a site.
func (h *CustomCodeHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	script := model.RegisteredScript{
		DisplayName:    req.DisplayName,
		Version:        req.Version,
		SourceCode:     req.SourceCode,
		HostedLocation: req.HostedLocation,
		CanCopy:        req.CanCopy == nil || *req.CanCopy,
	}
	out, err := h.Code.Register(c.Request().Context(), middleware.AccessToken(c), req.SiteID, script)
	if err != nil {
		return h.mutationError(c, "register script failed", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"result": out})
}

func (h *CustomCodeHandler) mutationError(c echo.Context, msg string, err error) error {
	if errors.Is(err, customcode.ErrInvalidRequest) {
		return badRequest(c, "Invalid request")
	}
	return internalError(c, h.Log, msg, err)
}

func splitIDs(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstOf(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
