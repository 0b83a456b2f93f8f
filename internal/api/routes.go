package api

import (
	"github.com/ahrdadan/snapd/internal/config"
	"github.com/ahrdadan/snapd/internal/events"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NewApp creates the Fiber app with the shared configuration
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      config.AppName,
		ErrorHandler: ErrorHandler,
		BodyLimit:    config.MaxBodySize,
	})
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	app.Use(RequestIDMiddleware())

	app.Get("/", handler.Home)
	app.Get("/ping", handler.Ping)
	app.Get("/status", handler.Status)
	app.Post("/screenshot", handler.Screenshot)
}

// SetupEventRoutes registers the WebSocket capture event stream
func SetupEventRoutes(app *fiber.App, hub *events.Hub) {
	handler := NewEventsHandler(hub)

	app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/events", websocket.New(handler.HandleWebSocket))
}
