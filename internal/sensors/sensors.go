// Package sensors defines the feedback interfaces consumed by the velocity
// loop and odometry, plus the unit conversion from motor rotations to ground
// travel. Backends report raw rotations and RPM; everything downstream works
// in meters and meters per second.
package sensors

import (
	"math"

	"github.com/openrover/drived/internal/params"
)

// Wheel reports ground-referenced travel for one side of the drivetrain.
type Wheel interface {
	// Position returns cumulative travel in meters since the last reset.
	Position() float64
	// Velocity returns ground speed in meters per second.
	Velocity() float64
	// ResetPosition zeroes the travel reference, called at session start.
	ResetPosition()
}

// Gyro reports vehicle heading.
type Gyro interface {
	// AngleDegrees returns the accumulated heading in degrees, positive
	// clockwise, unwrapped (not modulo 360).
	AngleDegrees() float64
}

// Conversion scales raw motor-shaft measurements to ground units using the
// wheel diameter and gear reduction from the parameter store, so a tuning
// change (swapped wheels, different gearbox) applies without a restart.
type Conversion struct {
	store params.Store
}

// NewConversion creates a conversion reading geometry from store.
func NewConversion(store params.Store) *Conversion {
	return &Conversion{store: store}
}

// MetersPerRotation returns ground travel per motor rotation.
func (c *Conversion) MetersPerRotation() float64 {
	diameter := c.store.Float("drive.wheelDiameterMeters", 0.1524)
	ratio := c.store.Float("drive.gearRatio", 10.71)
	if ratio <= 0 {
		ratio = 1
	}
	return math.Pi * diameter / ratio
}

// MetersPerSecondPerRPM returns ground speed per motor RPM.
func (c *Conversion) MetersPerSecondPerRPM() float64 {
	return c.MetersPerRotation() / 60.0
}

// PositionMeters converts cumulative motor rotations to meters.
func (c *Conversion) PositionMeters(rotations float64) float64 {
	return rotations * c.MetersPerRotation()
}

// VelocityMetersPerSecond converts motor RPM to meters per second.
func (c *Conversion) VelocityMetersPerSecond(rpm float64) float64 {
	return rpm * c.MetersPerSecondPerRPM()
}
