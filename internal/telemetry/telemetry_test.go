package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrover/drived/pkg/drive"
)

// captureSink records every published point.
type captureSink struct {
	mu     sync.Mutex
	points []point
}

func (s *captureSink) Publish(measurement string, tags map[string]string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, point{measurement: measurement, tags: tags, fields: fields})
}

func (s *captureSink) measurements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.points))
	for i, p := range s.points {
		out[i] = p.measurement
	}
	return out
}

// blockingSink blocks every Publish until released.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	capture captureSink
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Publish(measurement string, tags map[string]string, fields map[string]any) {
	s.entered <- struct{}{}
	<-s.release
	s.capture.Publish(measurement, tags, fields)
}

func TestAsyncDeliversAllPointsOnClose(t *testing.T) {
	sink := &captureSink{}
	a := NewAsync(sink, 8)

	a.Publish("a", nil, map[string]any{"v": 1})
	a.Publish("b", nil, map[string]any{"v": 2})
	a.Publish("c", nil, map[string]any{"v": 3})
	a.Close()

	assert.Equal(t, []string{"a", "b", "c"}, sink.measurements())
	assert.Zero(t, a.Dropped())
}

func TestAsyncDropsOldestUnderBackpressure(t *testing.T) {
	sink := newBlockingSink()
	a := NewAsync(sink, 2)

	// first point is taken by the drain goroutine and blocks in the sink
	a.Publish("p1", nil, nil)
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("drain goroutine never reached the sink")
	}

	// fill the buffer, then overflow it
	a.Publish("p2", nil, nil)
	a.Publish("p3", nil, nil)
	a.Publish("p4", nil, nil)

	assert.Equal(t, uint64(1), a.Dropped(), "overflow must drop exactly one point")

	close(sink.release)
	a.Close()

	// p2 was the oldest queued point and got sacrificed for p4
	assert.Equal(t, []string{"p1", "p3", "p4"}, sink.capture.measurements())
}

func TestAsyncCloseIsIdempotent(t *testing.T) {
	a := NewAsync(&captureSink{}, 4)
	a.Close()
	assert.NotPanics(t, func() { a.Close() })
}

func TestMultiFansOut(t *testing.T) {
	s1, s2 := &captureSink{}, &captureSink{}
	m := Multi{s1, s2}
	m.Publish("x", nil, nil)
	assert.Equal(t, []string{"x"}, s1.measurements())
	assert.Equal(t, []string{"x"}, s2.measurements())
}

func TestRecorderTickFields(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink)

	r.RecordTick(drive.Snapshot{
		Tick:      42,
		Mode:      drive.ModeVelocity,
		Intent:    drive.Velocity(1.2, -0.4),
		Modifiers: drive.Modifiers{Reverse: true},
		Output:    drive.Output{Left: 0.9, Right: 1.5},
		Saturated: false,
		Feedback:  drive.Feedback{LeftVelocity: 0.8, RightVelocity: 1.4, HeadingDeg: 33},
		Duration:  300 * time.Microsecond,
	})

	require.Len(t, sink.points, 1)
	p := sink.points[0]
	assert.Equal(t, "drive_tick", p.measurement)
	assert.Equal(t, "velocity", p.tags["mode"])
	assert.Equal(t, int64(42), p.fields["tick"])
	assert.Equal(t, 1.2, p.fields["intentForward"])
	assert.Equal(t, true, p.fields["reverse"])
	assert.Equal(t, 0.9, p.fields["outputLeft"])
	assert.Equal(t, int64(300), p.fields["durationUs"])
}

func TestRecorderModeChangeAndFault(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink)

	r.RecordModeChange(drive.ModeManual, drive.ModeVelocity, "intent")
	r.RecordFault("actuator", "bus write timeout", 4)

	require.Len(t, sink.points, 2)
	assert.Equal(t, "mode_change", sink.points[0].measurement)
	assert.Equal(t, "manual", sink.points[0].tags["from"])
	assert.Equal(t, "velocity", sink.points[0].tags["to"])
	assert.Equal(t, "fault", sink.points[1].measurement)
	assert.Equal(t, 4, sink.points[1].fields["streak"])
}

func TestDiscardAcceptsAnything(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard{}.Publish("anything", map[string]string{"a": "b"}, nil)
	})
}
