// Package drive defines the domain types shared between the daemon and host
// tooling: control modes, operator intent, modifier flags and actuator outputs.
// It has no dependencies so consoles and test rigs can import it freely.
package drive

// Mode selects how operator intent is interpreted on each control tick.
type Mode uint8

const (
	// ModeManual maps intent directly to open-loop duty cycle via arcade mixing.
	ModeManual Mode = iota
	// ModeVelocity treats intent as chassis velocity targets and produces
	// per-wheel speed setpoints for a closed velocity loop.
	ModeVelocity
)

// String returns a human-readable mode name for logs and telemetry.
func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeVelocity:
		return "velocity"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a defined control mode.
func (m Mode) Valid() bool {
	return m == ModeManual || m == ModeVelocity
}
