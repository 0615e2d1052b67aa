package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	SeatAssigned = "seat.assigned"
	SeatRenamed  = "seat.renamed"
	SeatCleared  = "seat.cleared"
	SeatPresence = "seat.presence"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// SeatChange is the payload of every seat event.
type SeatChange struct {
	TableID   string `json:"table_id"`
	TableName string `json:"table_label"`
	SeatID    string `json:"seat_id"`
	SeatNo    string `json:"seat_no"`
	GuestName string `json:"guest_name,omitempty"`
	Present   bool   `json:"is_present"`
	Actor     string `json:"actor,omitempty"`
}

// NewSeatEvent encodes change as the payload of an event of type eventType.
func NewSeatEvent(eventType string, change SeatChange) Event {
	payload, _ := json.Marshal(change)
	return Event{Type: eventType, Payload: payload, CreatedAt: time.Now().UTC()}
}

// SeatChange decodes the payload of a seat event.
func (e Event) SeatChange() (SeatChange, error) {
	var c SeatChange
	err := json.Unmarshal(e.Payload, &c)
	return c, err
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher is what producers of events depend on.
type Publisher interface {
	Publish(event Event)
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
	onError     func(event Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// OnError sets the callback for handler failures.
func (b *EventBus) OnError(fn func(event Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}
