package events

import (
	"sync"
	"time"
)

// Mutation event types. Every event names the business whose queue display it affects.
const (
	QueueJoined              = "queue.joined"
	QueueStatusChanged       = "queue.status_changed"
	AppointmentCreated       = "appointment.created"
	AppointmentStatusChanged = "appointment.status_changed"
	OverrideCreated          = "override.created"
	EmployeeStatusChanged    = "employee.status_changed"
	ConfigReloaded           = "config.reloaded"

	// All subscribes a handler to every event type.
	All = "*"
)

// Event is a committed state change.
type Event struct {
	Type       string
	BusinessID int64
	EntityID   int64
	Status     string
	CreatedAt  time.Time
}

type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for mutation events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(Event, error)
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Failures never reach the publisher.
func (b *EventBus) OnError(fn func(Event, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers of event.Type and then the wildcard handlers, synchronously.
// Handlers are expected to hand off anything slow.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[All]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}
