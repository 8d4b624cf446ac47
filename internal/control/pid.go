// Package control implements the host-side wheel velocity loop used by
// actuator backends without an onboard controller. Gains live in the
// parameter store and are re-read every update, so tuning changes apply on
// the next control tick without restarting the loop.
package control

import (
	"github.com/openrover/drived/internal/params"
)

// Gain parameter keys. The same keys are pushed to smart controllers at init
// by the canbus backend, so one tuning surface covers both loop locations.
const (
	KeyP  = "velocity.p"
	KeyI  = "velocity.i"
	KeyD  = "velocity.d"
	KeyFF = "velocity.ff"
)

// PID is a discrete PID with velocity feedforward producing duty cycle in
// [-1, 1]. Derivative acts on the error difference, integral carries
// anti-windup by back-calculation when the output saturates.
type PID struct {
	store params.Store

	integral    float64
	prevErr     float64
	initialized bool
}

// NewPID creates a velocity loop reading its gains from store.
func NewPID(store params.Store) *PID {
	return &PID{store: store}
}

// Reset clears the accumulated loop state. Call on mode changes so stale
// integral from a previous engagement cannot kick the wheels.
func (c *PID) Reset() {
	c.integral = 0
	c.prevErr = 0
	c.initialized = false
}

// Update computes the duty cycle for one wheel given its velocity target and
// measurement in m/s. dt is the loop period in seconds.
func (c *PID) Update(target, measured, dt float64) float64 {
	kp := c.store.Float(KeyP, 0)
	ki := c.store.Float(KeyI, 0)
	kd := c.store.Float(KeyD, 0)
	kff := c.store.Float(KeyFF, 0)

	err := target - measured

	if !c.initialized {
		c.prevErr = err
		c.initialized = true
	}

	if dt > 0 {
		c.integral += err * dt
	}

	p := kp * err
	i := ki * c.integral
	var d float64
	if dt > 0 {
		d = kd * (err - c.prevErr) / dt
	}
	ff := kff * target

	out := ff + p + i + d

	// saturate, back-calculating the integral so it cannot wind up while
	// the output is pinned
	if out > 1 {
		out = 1
		if ki != 0 {
			c.integral = (out - ff - p - d) / ki
		}
	} else if out < -1 {
		out = -1
		if ki != 0 {
			c.integral = (out - ff - p - d) / ki
		}
	}

	c.prevErr = err
	return out
}

// Diagnostics exposes loop internals for telemetry.
type Diagnostics struct {
	Error    float64
	Integral float64
}

// Diagnostics returns the most recent loop state.
func (c *PID) Diagnostics() Diagnostics {
	return Diagnostics{
		Error:    c.prevErr,
		Integral: c.integral,
	}
}
