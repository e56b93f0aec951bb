package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
)

// Every error answer is {"error": message}.  Internal causes are logged
// and never sent to the client.

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
}

func internalError(c echo.Context, log *zap.Logger, msg string, err error) error {
	logging.OrNop(log).Error(msg,
		zap.Error(err),
		logging.Method(c.Request().Method),
		logging.Path(c.Path()),
		logging.RequestID(c.Response().Header().Get(echo.HeaderXRequestID)))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
}
