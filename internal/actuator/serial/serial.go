// Package serial drives the wheel pair over a serial motor bridge with a
// plain ASCII line protocol: `D <left> <right>` for duty, `S` for stop, with
// the bridge reporting `E <leftRate> <rightRate> <heading>` feedback lines.
// The bridge has no onboard velocity loop, so velocity setpoints are closed
// host-side with one PID per wheel.
package serial

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	bugst "go.bug.st/serial"

	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/control"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/internal/sensors"
)

var errClosed = errors.New("serial actuator: closed")

// feedback is resynchronized from this long without an E line; the velocity
// loop resets rather than integrating against stale rates.
const staleFeedback = 500 * time.Millisecond

// Backend is the serial-bridge actuator pair.
type Backend struct {
	store  params.Store
	logger *slog.Logger
	port   bugst.Port

	mu     sync.Mutex
	closed bool

	// feedback state maintained by the read loop
	leftRate, rightRate float64 // m/s
	headingDeg          float64
	leftPos, rightPos   float64 // integrated m
	lastFeedback        time.Time

	// host-side velocity loop
	leftPID, rightPID *control.PID
	lastVelocity      time.Time
}

// New opens the serial port and starts the feedback reader.
func New(cfg config.SerialConfig, store params.Store, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	port, err := bugst.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}

	b := &Backend{
		store:    store,
		logger:   logger,
		port:     port,
		leftPID:  control.NewPID(store),
		rightPID: control.NewPID(store),
	}

	go b.readLoop()

	logger.Info("Serial actuator initialized", "port", cfg.Port, "baudRate", cfg.BaudRate)
	return b, nil
}

// readLoop parses feedback lines and integrates wheel travel.
func (b *Backend) readLoop() {
	scanner := bufio.NewScanner(b.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] != "E" {
			continue
		}
		left, err1 := strconv.ParseFloat(fields[1], 64)
		right, err2 := strconv.ParseFloat(fields[2], 64)
		heading, err3 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			b.logger.Debug("Discarding malformed feedback line", "line", line)
			continue
		}

		now := time.Now()
		b.mu.Lock()
		if !b.lastFeedback.IsZero() {
			dt := now.Sub(b.lastFeedback).Seconds()
			b.leftPos += b.leftRate * dt
			b.rightPos += b.rightRate * dt
		}
		b.leftRate = left
		b.rightRate = right
		b.headingDeg = heading
		b.lastFeedback = now
		b.mu.Unlock()
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if !closed {
		if err := scanner.Err(); err != nil {
			b.logger.Error("Serial read loop ended", "error", err)
		}
	}
}

// writeLine sends one protocol line. The bridge treats each line atomically.
func (b *Backend) writeLine(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	_, err := b.port.Write([]byte(line + "\n"))
	return err
}

// SetOpenLoop commands duty cycle on both sides.
func (b *Backend) SetOpenLoop(left, right float64) error {
	return b.writeLine(fmt.Sprintf("D %.4f %.4f", left, right))
}

// SetVelocity closes the wheel-speed loop host-side and commands the
// resulting duty. Each call is one loop iteration; dt is the time since the
// previous setpoint.
func (b *Backend) SetVelocity(left, right float64) error {
	now := time.Now()

	b.mu.Lock()
	measuredLeft := b.leftRate
	measuredRight := b.rightRate
	stale := b.lastFeedback.IsZero() || now.Sub(b.lastFeedback) > staleFeedback
	var dt float64
	if !b.lastVelocity.IsZero() {
		dt = now.Sub(b.lastVelocity).Seconds()
	}
	b.lastVelocity = now
	b.mu.Unlock()

	if stale {
		// no usable feedback; restart the loops so old integral cannot kick
		b.leftPID.Reset()
		b.rightPID.Reset()
		measuredLeft, measuredRight = 0, 0
	}

	dutyLeft := b.leftPID.Update(left, measuredLeft, dt)
	dutyRight := b.rightPID.Update(right, measuredRight, dt)
	return b.SetOpenLoop(dutyLeft, dutyRight)
}

// Stop commands an immediate stop and resets the velocity loops.
func (b *Backend) Stop() error {
	b.leftPID.Reset()
	b.rightPID.Reset()
	b.mu.Lock()
	b.lastVelocity = time.Time{}
	b.mu.Unlock()
	return b.writeLine("S")
}

// Close stops the bridge and closes the port.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.port.Close()
}

// Wheels returns odometry views over the integrated feedback.
func (b *Backend) Wheels() (left, right sensors.Wheel) {
	return &wheel{b: b, right: false}, &wheel{b: b, right: true}
}

// Gyro returns the bridge-reported heading.
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
	if w.right {
		return w.b.rightPos - w.offset
	}
	return w.b.leftPos - w.offset
}

func (w *wheel) Velocity() float64 {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	if w.right {
		return w.b.rightRate
	}
	return w.b.leftRate
}

func (w *wheel) ResetPosition() {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	if w.right {
		w.offset = w.b.rightPos
	} else {
		w.offset = w.b.leftPos
	}
}

type gyro struct {
	b *Backend
}

func (g *gyro) AngleDegrees() float64 {
	g.b.mu.Lock()
	defer g.b.mu.Unlock()
	return g.b.headingDeg
}
