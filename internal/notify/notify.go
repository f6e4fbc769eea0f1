package notify

// Package notify is the user-visible side channel: login/logout confirmations,
// role-change announcements, and connectivity status. Consumers (a UI shell,
// the demo binary) subscribe to a Center; producers never block on slow
// subscribers.

import (
	"context"
	"sync"
	"time"
)

// Level classifies how an event should be presented.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Kind identifies the lifecycle event behind a notification.
type Kind string

const (
	KindLogin               Kind = "login"
	KindLogout              Kind = "logout"
	KindRoleChanged         Kind = "role_changed"
	KindConnectivityLost    Kind = "connectivity_lost"
	KindConnectivityRestored Kind = "connectivity_restored"
)

// Event is a single user-facing notification.
type Event struct {
	Kind       Kind
	Level      Level
	Message    string
	OccurredAt time.Time
}

// Sink consumes notification events.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, ev Event)

// Notify implements the Sink interface.
func (f SinkFunc) Notify(ctx context.Context, ev Event) {
	if f == nil {
		return
	}
	f(ctx, ev)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Center fans events out to registered subscriber channels. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// stalling producers.
type Center struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

var _ Sink = (*Center)(nil)

// NewCenter creates an empty notification center.
func NewCenter() *Center {
	return &Center{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber channel and returns it with an
// unsubscribe function. The channel is closed on unsubscribe.
func (c *Center) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	ch := make(chan Event, 16)
	c.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
	return ch, unsubscribe
}

// Notify delivers the event to every subscriber without blocking.
func (c *Center) Notify(_ context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			// Subscriber buffer full; drop rather than block the producer.
		}
	}
}
