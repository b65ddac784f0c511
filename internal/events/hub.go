package events

import (
	"context"
	"sync"
	"time"
)

// Topic names for error pipeline events.
const (
	TopicErrorLogged         = "error.logged"
	TopicErrorReported       = "error.reported"
	TopicErrorIngested       = "error.ingested"
	TopicNotificationAdded   = "notification.added"
	TopicConnectivityOnline  = "connectivity.online"
	TopicConnectivityOffline = "connectivity.offline"
	TopicConfigUpdated       = "config.updated"
)

// Event represents a published message on the event bus.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Publisher exposes the ability to publish events to the hub.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

// Subscriber exposes subscription capabilities.
type Subscriber interface {
	Subscribe(topic string, handler Handler) func()
}

// Bus is both sides of the hub.
type Bus interface {
	Publisher
	Subscriber
}

// Hub is a lightweight in-process pub/sub event bus.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Handler
	order  map[string][]int64
	nextID int64
}

// NewHub constructs a new empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:  make(map[string]map[int64]Handler),
		order: make(map[string][]int64),
	}
}

// Subscribe registers a handler for the given topic.
// It returns a function that, when invoked, unsubscribes the handler.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[int64]Handler)
	}
	h.subs[topic][id] = handler
	h.order[topic] = append(h.order[topic], id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			listeners, ok := h.subs[topic]
			if !ok {
				return
			}
			delete(listeners, id)
			ids := h.order[topic]
			for i, v := range ids {
				if v == id {
					h.order[topic] = append(ids[:i:i], ids[i+1:]...)
					break
				}
			}
			if len(listeners) == 0 {
				delete(h.subs, topic)
				delete(h.order, topic)
			}
		})
	}
}

// Publish dispatches an event to all subscribers of the topic synchronously,
// in subscription order.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	if h == nil {
		return
	}
	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}

	handlers := h.snapshotHandlers(topic)
	for _, handler := range handlers {
		handler(ctx, event)
	}
}

// Subscribers returns the number of handlers registered for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) snapshotHandlers(topic string) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := h.order[topic]
	if len(ids) == 0 {
		return nil
	}

	listeners := h.subs[topic]
	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		if handler, ok := listeners[id]; ok {
			out = append(out, handler)
		}
	}
	return out
}
