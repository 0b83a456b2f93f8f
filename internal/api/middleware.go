package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "requestID"
)

// RequestIDMiddleware tags every request with an X-Request-ID, reusing the client's if present.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")

		requestID := c.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(headerRequestID, requestID)
		c.Locals(requestIDKey, requestID)

		return c.Next()
	}
}
