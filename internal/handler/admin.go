package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Clearer empties one credential table.
type Clearer interface {
	Clear(ctx context.Context) error
}

// AdminHandler serves development-only maintenance routes.
type AdminHandler struct {
	Stores    []Clearer
	OnCleared func() // e.g. drop the local status cache
	Log       *zap.Logger
}

func NewAdminHandler(log *zap.Logger, onCleared func(), stores ...Clearer) *AdminHandler {
	return &AdminHandler{Stores: stores, OnCleared: onCleared, Log: log}
}

// Clear wipes every stored credential: POST /api/dev/clear
func (h *AdminHandler) Clear(c echo.Context) error {
	for _, s := range h.Stores {
		if err := s.Clear(c.Request().Context()); err != nil {
			return internalError(c, h.Log, "clear credentials failed", err)
		}
	}
	if h.OnCleared != nil {
		h.OnCleared()
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Database cleared"})
}
