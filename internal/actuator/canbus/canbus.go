// Package canbus drives the wheel pair over SocketCAN. Each side has a front
// (leader) and rear (follower) motor controller; followers are paired once at
// init and mirror their leader, so per-tick commands only address the two
// front nodes. The velocity loop runs onboard the controllers, with gains
// pushed from the parameter store.
package canbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/internal/sensors"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 20 * time.Millisecond
)

var errClosed = errors.New("canbus actuator: closed")

// Backend is the SocketCAN actuator pair.
type Backend struct {
	cfg    config.CanbusConfig
	store  params.Store
	logger *slog.Logger
	conv   *sensors.Conversion

	conn net.Conn
	tx   *socketcan.Transmitter
	recv *socketcan.Receiver

	mu       sync.Mutex
	closed   bool
	statuses map[uint32]status
}

// New dials the CAN interface, pairs the followers and pushes the initial
// drive profile and velocity gains.
func New(cfg config.CanbusConfig, store params.Store, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := socketcan.DialContext(ctx, "can", cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", cfg.Interface, err)
	}

	b := &Backend{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		conv:     sensors.NewConversion(store),
		conn:     conn,
		tx:       socketcan.NewTransmitter(conn),
		recv:     socketcan.NewReceiver(conn),
		statuses: make(map[uint32]status),
	}

	if err := b.initControllers(); err != nil {
		conn.Close()
		return nil, err
	}

	go b.readLoop()

	logger.Info("CAN actuator initialized",
		"interface", cfg.Interface,
		"leftId", cfg.LeftID, "rightId", cfg.RightID)
	return b, nil
}

// initControllers pairs followers, applies the profile and gains, and zeroes
// the encoders.
func (b *Backend) initControllers() error {
	frames := []can.Frame{
		followFrame(b.cfg.LeftFollowerID, b.cfg.LeftID),
		followFrame(b.cfg.RightFollowerID, b.cfg.RightID),
	}
	for _, f := range frames {
		if err := b.transmit(f); err != nil {
			return fmt.Errorf("follower pairing: %w", err)
		}
	}

	limit := b.store.Float("drive.currentLimitAmps", 60)
	ramp := b.store.Float("drive.rampRateSeconds", 0.25)
	brake := b.store.Bool("drive.idleBrake", true)
	if err := b.ApplyProfile(limit, ramp, brake); err != nil {
		return err
	}

	p := b.store.Float("velocity.p", 0)
	i := b.store.Float("velocity.i", 0)
	d := b.store.Float("velocity.d", 0)
	ff := b.store.Float("velocity.ff", 0)
	for _, node := range b.nodes() {
		if err := b.transmit(gainsFrame(node, p, i, d, ff)); err != nil {
			return fmt.Errorf("pushing gains: %w", err)
		}
	}

	for _, node := range []uint32{b.cfg.LeftID, b.cfg.RightID} {
		if err := b.transmit(zeroFrame(node)); err != nil {
			return fmt.Errorf("zeroing encoders: %w", err)
		}
	}
	return nil
}

func (b *Backend) nodes() []uint32 {
	return []uint32{b.cfg.LeftID, b.cfg.RightID, b.cfg.LeftFollowerID, b.cfg.RightFollowerID}
}

// transmit sends one frame with a bounded deadline so a stalled bus cannot
// block the control tick.
func (b *Backend) transmit(f can.Frame) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return b.tx.TransmitFrame(ctx, f)
}

// readLoop decodes periodic status frames into the feedback map.
func (b *Backend) readLoop() {
	for b.recv.Receive() {
		node, s, ok := decodeStatus(b.recv.Frame())
		if !ok {
			continue
		}
		b.mu.Lock()
		b.statuses[node] = s
		b.mu.Unlock()
	}
	if err := b.recv.Err(); err != nil {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if !closed {
			b.logger.Error("CAN receive loop ended", "error", err)
		}
	}
}

// SetOpenLoop commands duty cycle on both front controllers.
func (b *Backend) SetOpenLoop(left, right float64) error {
	if err := b.transmit(dutyFrame(b.cfg.LeftID, left)); err != nil {
		return fmt.Errorf("left duty: %w", err)
	}
	if err := b.transmit(dutyFrame(b.cfg.RightID, right)); err != nil {
		return fmt.Errorf("right duty: %w", err)
	}
	return nil
}

// SetVelocity commands wheel-speed setpoints closed onboard the controllers.
func (b *Backend) SetVelocity(left, right float64) error {
	if err := b.transmit(velocityFrame(b.cfg.LeftID, left)); err != nil {
		return fmt.Errorf("left velocity: %w", err)
	}
	if err := b.transmit(velocityFrame(b.cfg.RightID, right)); err != nil {
		return fmt.Errorf("right velocity: %w", err)
	}
	return nil
}

// Stop commands zero duty on both sides.
func (b *Backend) Stop() error {
	return b.SetOpenLoop(0, 0)
}

// Close stops the receiver and closes the bus connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.recv.Close()
	return b.conn.Close()
}

// ApplyProfile pushes current limit, ramp rate and idle mode to all four
// controllers.
func (b *Backend) ApplyProfile(currentLimitAmps, rampRateSeconds float64, idleBrake bool) error {
	for _, node := range b.nodes() {
		if err := b.transmit(profileFrame(node, currentLimitAmps, rampRateSeconds, idleBrake)); err != nil {
			return fmt.Errorf("profile for node %d: %w", node, err)
		}
	}
	return nil
}

// Wheels returns ground-unit odometry views over the status feedback.
func (b *Backend) Wheels() (left, right sensors.Wheel) {
	return &wheel{b: b, node: b.cfg.LeftID}, &wheel{b: b, node: b.cfg.RightID}
}

type wheel struct {
	b      *Backend
	node   uint32
	offset float64
}

func (w *wheel) status() status {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.b.statuses[w.node]
}

func (w *wheel) Position() float64 {
	return w.b.conv.PositionMeters(w.status().Rotations) - w.offset
}

func (w *wheel) Velocity() float64 {
	return w.b.conv.VelocityMetersPerSecond(w.status().RPM)
}

func (w *wheel) ResetPosition() {
	// best effort: zero onboard too, the local offset covers the gap until
	// the controller acknowledges with a fresh status frame
	if err := w.b.transmit(zeroFrame(w.node)); err != nil {
		w.b.logger.Warn("Encoder zero command failed", "node", w.node, "error", err)
	}
	w.offset = w.b.conv.PositionMeters(w.status().Rotations)
}
