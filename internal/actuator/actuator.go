// Package actuator abstracts the left/right drivetrain output pair. The
// controller commands a Pair once per tick and never retries: a failed write
// is logged and counted, and the next tick issues a fresh command.
package actuator

import (
	"github.com/openrover/drived/internal/sensors"
)

// Pair is the two-channel drive output. SetOpenLoop takes duty cycle in
// [-1, 1]; SetVelocity takes wheel ground-speed setpoints in m/s, closed
// either onboard the motor controller or host-side by the backend.
type Pair interface {
	SetOpenLoop(left, right float64) error
	SetVelocity(left, right float64) error
	Stop() error
	Close() error
}

// Configurer is an optional interface for backends whose motor controllers
// accept a drive profile: phase current limit, open-loop ramp rate and
// brake/coast idle behavior. Pushed at init and when the tunables change.
type Configurer interface {
	ApplyProfile(currentLimitAmps, rampRateSeconds float64, idleBrake bool) error
}

// WheelSensors is an optional interface for backends that report per-side
// odometry.
type WheelSensors interface {
	Wheels() (left, right sensors.Wheel)
}

// HeadingSensor is an optional interface for backends with a gyro.
type HeadingSensor interface {
	Gyro() sensors.Gyro
}
