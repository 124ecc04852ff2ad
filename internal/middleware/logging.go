package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggerKey = "logger"

// RequestLogger stores a request-scoped logger in the fiber context and
// writes one access line per request. It expects the requestid middleware to
// run first.
func RequestLogger(base *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID, _ := c.Locals("requestid").(string)

		lg := base.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
		)
		c.Locals(loggerKey, lg)

		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := zapcore.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zapcore.WarnLevel
		}

		// Re-read: auth may have enriched the logger with the caller id.
		if scoped, ok := c.Locals(loggerKey).(*zap.Logger); ok {
			lg = scoped
		}
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
			zap.Int("bytes_out", len(c.Response().Body())),
		}
		if chainErr != nil {
			fields = append(fields, zap.Error(chainErr))
		}
		lg.Check(level, "request").Write(fields...)
		return nil
	}
}

// LoggerFrom returns the request-scoped logger, or the global zap logger when
// RequestLogger did not run.
func LoggerFrom(c *fiber.Ctx) *zap.Logger {
	if lg, ok := c.Locals(loggerKey).(*zap.Logger); ok && lg != nil {
		return lg
	}
	return zap.L()
}
