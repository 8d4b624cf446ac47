// Package telemetry is the write-only observability surface of the drive
// loop. Publishing is fire-and-forget: a slow or dead sink loses points, it
// never delays a control tick.
package telemetry

import (
	"sync"
	"time"

	"github.com/openrover/drived/internal/channel"
)

// Sink accepts named scalar snapshots. Implementations decide where the
// points go; callers never learn about delivery failures.
type Sink interface {
	Publish(measurement string, tags map[string]string, fields map[string]any)
}

// point is one queued publication.
type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	time        time.Time
}

// Async decouples publishers from a possibly slow sink with a buffered
// channel. When the buffer is full the oldest queued point is dropped so the
// stream stays current rather than falling behind.
type Async struct {
	sink    Sink
	ch      channel.Channel[point]
	mu      sync.Mutex
	dropped uint64
	done    chan struct{}
	once    sync.Once
}

// NewAsync wraps sink with a buffer of the given size and starts the drain
// goroutine.
func NewAsync(sink Sink, size int) *Async {
	if size <= 0 {
		size = 1024
	}
	a := &Async{
		sink: sink,
		ch:   channel.New[point](size),
		done: make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	for p := range a.ch.Receive() {
		a.sink.Publish(p.measurement, p.tags, p.fields)
	}
	close(a.done)
}

// Publish queues a point without blocking.
func (a *Async) Publish(measurement string, tags map[string]string, fields map[string]any) {
	p := point{measurement: measurement, tags: tags, fields: fields, time: time.Now()}
	if a.ch.TrySend(p) {
		return
	}
	// full: discard the oldest queued point to make room, then retry once
	if _, ok := a.ch.TryReceive(); ok {
		a.noteDropped()
	}
	if !a.ch.TrySend(p) {
		// raced with another publisher, lose the new point instead
		a.noteDropped()
	}
}

func (a *Async) noteDropped() {
	a.mu.Lock()
	a.dropped++
	a.mu.Unlock()
}

// Dropped reports how many points were discarded due to backpressure.
func (a *Async) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops the drain goroutine after flushing queued points.
func (a *Async) Close() {
	a.once.Do(func() {
		a.ch.Close()
		<-a.done
	})
}

// Multi fans every point out to several sinks.
type Multi []Sink

func (m Multi) Publish(measurement string, tags map[string]string, fields map[string]any) {
	for _, s := range m {
		s.Publish(measurement, tags, fields)
	}
}

// Discard drops every point. Used when telemetry is disabled.
type Discard struct{}

func (Discard) Publish(string, map[string]string, map[string]any) {}

var (
	_ Sink = (*Async)(nil)
	_ Sink = (Multi)(nil)
	_ Sink = Discard{}
)
