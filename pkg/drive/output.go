package drive

import "time"

// Output is one actuator command for the wheel pair. In manual mode Left and
// Right are duty cycles in [-1, 1]; in velocity mode they are wheel speed
// setpoints in m/s.
type Output struct {
	Mode  Mode
	Left  float64
	Right float64
}

// Feedback carries the sensor readings taken during a tick. All fields are
// zero when the actuator backend reports no sensors.
type Feedback struct {
	LeftVelocity  float64 `json:"leftVelocity"`
	RightVelocity float64 `json:"rightVelocity"`
	HeadingDeg    float64 `json:"headingDeg"`
}

// Snapshot is an immutable copy of controller state taken after a tick,
// published to telemetry and the live stream.
type Snapshot struct {
	Tick      uint64        `json:"tick"`
	Time      time.Time     `json:"time"`
	Mode      Mode          `json:"mode"`
	Intent    Intent        `json:"intent"`
	Modifiers Modifiers     `json:"modifiers"`
	Output    Output        `json:"output"`
	Saturated bool          `json:"saturated"`
	Feedback  Feedback      `json:"feedback"`
	Duration  time.Duration `json:"durationNs"`
}
