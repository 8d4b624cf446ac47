// Package drive implements the drivetrain control state machine. The
// controller holds the pending operator intent and modifier toggles, and on
// every scheduler tick converts them into one actuator command: arcade-mixed
// duty cycle in manual mode, per-wheel speed setpoints in velocity mode.
//
// Setters are called from dispatcher goroutines concurrently with Tick; the
// shared fields are mutex-guarded and snapshotted at the top of each tick, so
// a half-written intent is never observed. One tick consumes whatever intent
// was last written (last write wins, stale by at most one period).
package drive

import (
	"log/slog"
	"sync"
	"time"

	"github.com/openrover/drived/internal/actuator"
	"github.com/openrover/drived/internal/cache"
	"github.com/openrover/drived/internal/mixer"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/internal/sensors"
	"github.com/openrover/drived/pkg/drive"
)

// faultSource names the actuator write path in fault records.
const faultSource = "actuator"

// Recorder receives tick snapshots and lifecycle events. Implementations
// must not block: the controller calls them from the loop goroutine.
type Recorder interface {
	RecordTick(s drive.Snapshot)
	RecordModeChange(from, to drive.Mode, reason string)
	RecordFault(source, message string, streak int)
}

// Odometer consumes every feedback sample, undecimated, to integrate a pose.
type Odometer interface {
	Update(now time.Time, fb drive.Feedback)
}

// Dependencies holds all dependencies for the drive controller
type Dependencies struct {
	Store     params.Store
	Actuator  actuator.Pair
	Logger    *slog.Logger
	Faults    *cache.FaultCache
	Snapshots *cache.SnapshotCache
	Recorders []Recorder
	Odometer  Odometer
}

// Controller is the drivetrain state machine.
type Controller struct {
	deps Dependencies

	// optional feedback, nil when the backend has no sensors
	leftWheel, rightWheel sensors.Wheel
	gyro                  sensors.Gyro

	mu        sync.Mutex
	intent    drive.Intent
	modifiers drive.Modifiers

	tick      uint64
	decimator *cache.SafeCounter
}

// NewController creates the controller and discovers the actuator's optional
// sensor interfaces.
func NewController(deps Dependencies) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Faults == nil {
		deps.Faults = cache.NewFaultCache()
	}
	if deps.Snapshots == nil {
		deps.Snapshots = cache.NewSnapshotCache()
	}

	c := &Controller{
		deps:      deps,
		decimator: &cache.SafeCounter{},
	}
	if ws, ok := deps.Actuator.(actuator.WheelSensors); ok {
		c.leftWheel, c.rightWheel = ws.Wheels()
	}
	if hs, ok := deps.Actuator.(actuator.HeadingSensor); ok {
		c.gyro = hs.Gyro()
	}
	return c
}

// Mode returns the active control mode.
func (c *Controller) Mode() drive.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent.Mode
}

// Modifiers returns the current modifier toggles.
func (c *Controller) Modifiers() drive.Modifiers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modifiers
}

// SetIntent stores the pending intent. The intent's mode tag is authoritative:
// a manual intent ends velocity mode and vice versa. The new intent is
// consumed by the next tick.
func (c *Controller) SetIntent(intent drive.Intent) {
	c.mu.Lock()
	from := c.intent.Mode
	c.intent = intent
	c.mu.Unlock()

	if from != intent.Mode {
		c.noteModeChange(from, intent.Mode, "intent")
	}
}

// ToggleReverse flips the reverse modifier. It does not change mode.
func (c *Controller) ToggleReverse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modifiers.Reverse = !c.modifiers.Reverse
	return c.modifiers.Reverse
}

// ToggleSlowTurn flips the slow-turn modifier. It does not change mode.
func (c *Controller) ToggleSlowTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modifiers.SlowTurn = !c.modifiers.SlowTurn
	return c.modifiers.SlowTurn
}

// SetModifiers replaces both toggles at once.
func (c *Controller) SetModifiers(m drive.Modifiers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modifiers = m
}

// Reset restores the default state: manual mode, both modifiers off, zero
// intent. A single stop command is issued immediately rather than waiting
// for the next tick.
func (c *Controller) Reset() {
	c.mu.Lock()
	from := c.intent.Mode
	c.intent = drive.Intent{}
	c.modifiers = drive.Modifiers{}
	c.mu.Unlock()

	if err := c.deps.Actuator.Stop(); err != nil {
		c.noteFault(err)
	}
	if c.leftWheel != nil {
		c.leftWheel.ResetPosition()
	}
	if c.rightWheel != nil {
		c.rightWheel.ResetPosition()
	}

	if from != drive.ModeManual {
		c.noteModeChange(from, drive.ModeManual, "reset")
	}
	c.deps.Logger.Info("Drive controller reset")
}

// Tick runs one control update. Called only from the scheduler goroutine;
// it never blocks and never returns an error, faults are recorded and the
// next tick proceeds unconditionally.
func (c *Controller) Tick(now time.Time) {
	start := time.Now()

	c.mu.Lock()
	intent := c.intent
	modifiers := c.modifiers
	c.mu.Unlock()

	forward, turn := intent.Forward, intent.Turn
	if modifiers.Reverse {
		forward = -forward
	}
	if modifiers.SlowTurn {
		turn *= c.deps.Store.Float("drive.slowTurnFactor", 0.5)
	}

	var output drive.Output
	var saturated bool
	var err error

	switch intent.Mode {
	case drive.ModeVelocity:
		// chassis targets to wheel setpoints via track geometry; the
		// actuator's own limits bound them, no saturation here
		halfTrack := c.deps.Store.Float("drive.trackWidthMeters", 0.55) / 2
		output = drive.Output{
			Mode:  drive.ModeVelocity,
			Left:  forward - turn*halfTrack,
			Right: forward + turn*halfTrack,
		}
		err = c.deps.Actuator.SetVelocity(output.Left, output.Right)
	default:
		left, right := mixer.Mix(forward, turn)
		saturated = mixer.Saturates(forward, turn)
		output = drive.Output{Mode: drive.ModeManual, Left: left, Right: right}
		err = c.deps.Actuator.SetOpenLoop(output.Left, output.Right)
	}

	if err != nil {
		c.noteFault(err)
	} else {
		c.deps.Faults.Clear(faultSource)
	}

	fb := c.readFeedback()
	if c.deps.Odometer != nil {
		c.deps.Odometer.Update(now, fb)
	}

	c.tick++
	snapshot := drive.Snapshot{
		Tick:      c.tick,
		Time:      now,
		Mode:      intent.Mode,
		Intent:    intent,
		Modifiers: modifiers,
		Output:    output,
		Saturated: saturated,
		Feedback:  fb,
		Duration:  time.Since(start),
	}
	c.deps.Snapshots.Put(snapshot)
	c.publish(snapshot)
}

// readFeedback polls the optional sensors. All reads are non-blocking cache
// lookups in the backends.
func (c *Controller) readFeedback() drive.Feedback {
	var fb drive.Feedback
	if c.leftWheel != nil {
		fb.LeftVelocity = c.leftWheel.Velocity()
	}
	if c.rightWheel != nil {
		fb.RightVelocity = c.rightWheel.Velocity()
	}
	if c.gyro != nil {
		fb.HeadingDeg = c.gyro.AngleDegrees()
	}
	return fb
}

// publish forwards every Nth snapshot to the recorders. Testing mode
// publishes every tick for loop debugging.
func (c *Controller) publish(s drive.Snapshot) {
	decimation := c.deps.Store.Int("telemetry.decimation", 3)
	if c.deps.Store.Bool("drive.testingMode", false) {
		decimation = 1
	}
	c.decimator.Inc()
	if decimation > 1 && c.decimator.Value()%decimation != 0 {
		return
	}
	for _, r := range c.deps.Recorders {
		r.RecordTick(s)
	}
}

// noteFault logs a failed actuator write and extends the fault streak.
func (c *Controller) noteFault(err error) {
	streak := c.deps.Faults.Inc(faultSource)
	c.deps.Logger.Error("Actuator write failed", "error", err, "streak", streak)
	for _, r := range c.deps.Recorders {
		r.RecordFault(faultSource, err.Error(), streak)
	}
}

// noteModeChange records a state transition.
func (c *Controller) noteModeChange(from, to drive.Mode, reason string) {
	c.deps.Logger.Info("Control mode changed",
		"from", from.String(), "to", to.String(), "reason", reason)
	for _, r := range c.deps.Recorders {
		r.RecordModeChange(from, to, reason)
	}
}
