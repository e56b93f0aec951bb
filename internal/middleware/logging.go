package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/designer-bridge/internal/logging"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestLogger stamps every request with a correlation id (reusing an
// incoming one) and logs one line per request once it completes.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	log := logging.OrNop(logger).With(logging.Component("http"))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				logging.RequestID(id),
				logging.Method(req.Method),
				logging.Path(c.Path()),
				logging.Status(c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			}
			if p := Principal(c); p != nil {
				fields = append(fields, logging.PrincipalID(p.ID))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			if c.Response().Status >= 500 {
				log.Error("request", fields...)
			} else {
				log.Info("request", fields...)
			}
			return nil
		}
	}
}
