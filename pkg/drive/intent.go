package drive

// Intent is a tagged drive request. The Mode tag decides how the two axes are
// read: in manual mode Forward and Turn are normalized commands in [-1, 1], in
// velocity mode Forward is a linear target in m/s and Turn an angular target in
// rad/s. The zero value is a stopped manual intent.
type Intent struct {
	Mode    Mode
	Forward float64
	Turn    float64
}

// Manual builds a manual-mode intent from normalized forward and turn axes.
func Manual(forward, turn float64) Intent {
	return Intent{Mode: ModeManual, Forward: forward, Turn: turn}
}

// Velocity builds a velocity-mode intent from chassis velocity targets.
func Velocity(linear, angular float64) Intent {
	return Intent{Mode: ModeVelocity, Forward: linear, Turn: angular}
}

// Modifiers are operator toggles applied to intent before mixing. Reverse
// negates the forward axis, SlowTurn scales the turn axis by a tunable factor.
type Modifiers struct {
	Reverse  bool
	SlowTurn bool
}
