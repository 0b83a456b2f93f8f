package events

import (
	"sync"
	"time"
)

// Status is the outcome of a capture attempt
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Event describes one finished capture attempt
type Event struct {
	ID         string    `json:"capture_id"`
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	Size       int       `json:"size,omitempty"`
	SavedPath  string    `json:"saved_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Time       time.Time `json:"time"`
}

// Notifier receives capture events. Implementations must not block the caller.
type Notifier interface {
	Notify(event Event)
}

// Multi fans an event out to several notifiers
type Multi []Notifier

// Notify forwards the event to every notifier
func (m Multi) Notify(event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(event)
		}
	}
}

// Hub manages event subscriptions
type Hub struct {
	subscribers []chan Event
	mu          sync.RWMutex
}

// NewHub creates a new event hub
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe creates a subscription for capture events
func (h *Hub) Subscribe() <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 10)
	h.subscribers = append(h.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subscribers {
		if sub == ch {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Notify sends an event to all subscribers
func (h *Hub) Notify(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Subscribers returns the number of active subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes all subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}
