package middleware

import (
	"time"

	"github.com/filedepot/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		details := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status_code": c.Response().StatusCode(),
			"latency_ms":  time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}

		user := GetCurrentUser(c)
		switch {
		case user != nil && c.Response().StatusCode() >= 400:
			logger.ErrorWithUser(user.ID.String(), "http_request", err, details)
		case user != nil:
			logger.InfoWithUser(user.ID.String(), "http_request", details)
		case c.Response().StatusCode() >= 400:
			logger.Error("http_request", err, details)
		default:
			logger.Info("http_request", details)
		}

		return err
	}
}
