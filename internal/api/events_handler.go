package api

import (
	"github.com/ahrdadan/snapd/internal/events"
	"github.com/gofiber/websocket/v2"
)

// EventsHandler streams capture events to WebSocket clients
type EventsHandler struct {
	hub *events.Hub
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// HandleWebSocket sends every capture event as JSON until the client goes away
func (h *EventsHandler) HandleWebSocket(c *websocket.Conn) {
	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	// Reads only detect the close; clients never send anything meaningful.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-ch:
			if !ok {
				_ = c.Close()
				return
			}
			if err := c.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
