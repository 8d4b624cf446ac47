// Package memory is an in-process stream backend. It keeps the most recent
// messages in a ring buffer, useful for tests and for headless rigs where no
// console server is reachable but recent history should stay inspectable.
package memory

import (
	"sync"

	"github.com/openrover/drived/pkg/drive"
	"github.com/openrover/drived/pkg/streaming"
)

const defaultCapacity = 1024

// Event is one recorded stream message.
type Event struct {
	Type    string
	Payload any
}

// Backend buffers stream messages in memory.
type Backend struct {
	mu       sync.RWMutex
	capacity int
	session  *streaming.StartSessionPayload
	events   []Event
	dropped  uint64
}

// New creates a memory backend holding at most capacity recent messages.
func New(capacity int) *Backend {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Backend{capacity: capacity}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// StartSession begins buffering a new session.
func (b *Backend) StartSession(p streaming.StartSessionPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = &p
	b.events = nil
	b.dropped = 0
	return nil
}

// EndSession clears the active session but keeps buffered events readable.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = nil
	return nil
}

// SendTick buffers a tick snapshot.
func (b *Backend) SendTick(s drive.Snapshot) error {
	b.append(Event{Type: streaming.TypeTick, Payload: s})
	return nil
}

// SendEvent buffers an arbitrary stream message.
func (b *Backend) SendEvent(msgType string, payload any) error {
	b.append(Event{Type: msgType, Payload: payload})
	return nil
}

func (b *Backend) append(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.capacity {
		// Drop the oldest; recent history matters more than old.
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = ev
		b.dropped++
		return
	}
	b.events = append(b.events, ev)
}

// Session returns the active session announcement, or nil.
func (b *Backend) Session() *streaming.StartSessionPayload {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Events returns a copy of the buffered messages, oldest first.
func (b *Backend) Events() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make([]Event, len(b.events))
	copy(cp, b.events)
	return cp
}

// Dropped reports how many messages were evicted to make room.
func (b *Backend) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
