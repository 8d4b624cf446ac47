// Package mixer implements arcade-style mixing for a differential drivetrain:
// one forward axis and one turn axis become a left/right wheel pair.
package mixer

import "math"

// Mix combines normalized forward and turn commands into left and right wheel
// commands. Positive turn steers clockwise (left wheel forward, right wheel
// back). When either raw output would exceed unit magnitude, both sides are
// divided by the larger magnitude so the left/right ratio is preserved while
// the pair fits in [-1, 1]. Inputs are expected to be finite and in [-1, 1];
// range checks belong to the command intake, not here.
func Mix(forward, turn float64) (left, right float64) {
	left = forward + turn
	right = forward - turn

	if m := math.Max(math.Abs(left), math.Abs(right)); m > 1.0 {
		left /= m
		right /= m
	}
	return left, right
}

// Saturates reports whether Mix would rescale the given command pair. The
// rescale itself is deterministic and not an error; this flag only feeds
// telemetry.
func Saturates(forward, turn float64) bool {
	return math.Max(math.Abs(forward+turn), math.Abs(forward-turn)) > 1.0
}
