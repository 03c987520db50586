// Package notify carries session events between the contexts that share one
// profile's local store, such as several server instances or handlers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a session event
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

// Event is published when a profile's session changes
type Event struct {
	Type    EventType `json:"type"`
	Subject string    `json:"subject"`
	// Origin identifies the publishing instance
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Handler receives events. It must not block for long.
type Handler func(Event)

// Bus publishes session events to every subscriber, including those of other
// instances when the implementation spans processes.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers h and returns a function removing it
	Subscribe(h Handler) (unsubscribe func())
	Close() error
}

// NewInstanceID returns a random identifier for Event.Origin
func NewInstanceID() string {
	return uuid.NewString()
}

// Handlers is a concurrency-safe subscriber list shared by Bus implementations
type Handlers struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
}

// Add registers h and returns its removal function
func (hs *Handlers) Add(h Handler) func() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.subs == nil {
		hs.subs = map[int]Handler{}
	}
	id := hs.nextID
	hs.nextID++
	hs.subs[id] = h

	return func() {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		delete(hs.subs, id)
	}
}

// Dispatch calls every registered handler with e
func (hs *Handlers) Dispatch(e Event) {
	hs.mu.RLock()
	handlers := make([]Handler, 0, len(hs.subs))
	for _, h := range hs.subs {
		handlers = append(handlers, h)
	}
	hs.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// LocalBus delivers events within the process
type LocalBus struct {
	handlers Handlers
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.handlers.Dispatch(event)
	return nil
}

func (b *LocalBus) Subscribe(h Handler) func() {
	return b.handlers.Add(h)
}

func (b *LocalBus) Close() error {
	return nil
}
