// Package sim is the in-memory actuator backend used by tests and the bench
// verb. It records the last command and integrates a first-order wheel model
// so the odometry and heading interfaces return plausible values without
// hardware on the bus.
package sim

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/internal/sensors"
)

var errClosed = errors.New("sim actuator: closed")

// Command kinds recorded by the backend.
const (
	KindOpenLoop = "openloop"
	KindVelocity = "velocity"
	KindStop     = "stop"
)

// Command is the last write the backend received.
type Command struct {
	Kind  string
	Left  float64
	Right float64
	Time  time.Time
}

// Backend simulates a differential drivetrain. Wheel speeds approach the
// commanded target with a first-order lag; open-loop duty maps linearly to
// speed via sim.maxSpeedMps.
type Backend struct {
	mu     sync.Mutex
	store  params.Store
	logger *slog.Logger
	now    func() time.Time

	closed bool
	last   Command
	writes int

	// model state, integrated lazily on access
	velLeft, velRight float64
	posLeft, posRight float64
	headingDeg        float64
	lastStep          time.Time
}

// New creates a simulated actuator pair.
func New(store params.Store, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	b.lastStep = b.now()
	return b
}

// SetClock replaces the time source, for deterministic model stepping in
// tests.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.lastStep = now()
}

// step advances the wheel model to the current time. Callers hold b.mu.
func (b *Backend) step() {
	now := b.now()
	dt := now.Sub(b.lastStep).Seconds()
	b.lastStep = now
	if dt <= 0 {
		return
	}

	maxSpeed := b.store.Float("sim.maxSpeedMps", 3.0)
	tau := b.store.Float("sim.timeConstantSeconds", 0.3)

	var targetLeft, targetRight float64
	switch b.last.Kind {
	case KindOpenLoop:
		targetLeft = b.last.Left * maxSpeed
		targetRight = b.last.Right * maxSpeed
	case KindVelocity:
		targetLeft = b.last.Left
		targetRight = b.last.Right
	}

	alpha := 1.0
	if tau > 0 && dt < tau {
		alpha = dt / tau
	}
	b.velLeft += (targetLeft - b.velLeft) * alpha
	b.velRight += (targetRight - b.velRight) * alpha

	b.posLeft += b.velLeft * dt
	b.posRight += b.velRight * dt

	track := b.store.Float("drive.trackWidthMeters", 0.55)
	if track > 0 {
		// positive turn (left faster) is clockwise
		omega := (b.velLeft - b.velRight) / track
		b.headingDeg += omega * dt * 180.0 / 3.141592653589793
	}
}

func (b *Backend) record(kind string, left, right float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	b.step()
	b.last = Command{Kind: kind, Left: left, Right: right, Time: b.lastStep}
	b.writes++
	return nil
}

func (b *Backend) SetOpenLoop(left, right float64) error {
	return b.record(KindOpenLoop, left, right)
}

func (b *Backend) SetVelocity(left, right float64) error {
	return b.record(KindVelocity, left, right)
}

func (b *Backend) Stop() error {
	return b.record(KindStop, 0, 0)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// LastCommand returns the most recent write and the total write count.
func (b *Backend) LastCommand() (Command, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.writes
}

// Wheels returns the simulated odometry for both sides.
func (b *Backend) Wheels() (left, right sensors.Wheel) {
	return &wheel{b: b, right: false}, &wheel{b: b, right: true}
}

// Gyro returns the simulated heading sensor.
func (b *Backend) Gyro() sensors.Gyro {
	return &gyro{b: b}
}

type wheel struct {
	b      *Backend
	right  bool
	offset float64
}

func (w *wheel) Position() float64 {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	w.b.step()
	if w.right {
		return w.b.posRight - w.offset
	}
	return w.b.posLeft - w.offset
}

func (w *wheel) Velocity() float64 {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	w.b.step()
	if w.right {
		return w.b.velRight
	}
	return w.b.velLeft
}

func (w *wheel) ResetPosition() {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	w.b.step()
	if w.right {
		w.offset = w.b.posRight
	} else {
		w.offset = w.b.posLeft
	}
}

type gyro struct {
	b *Backend
}

func (g *gyro) AngleDegrees() float64 {
	g.b.mu.Lock()
	defer g.b.mu.Unlock()
	g.b.step()
	return g.b.headingDeg
}
