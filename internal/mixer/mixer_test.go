package mixer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMix(t *testing.T) {
	tests := []struct {
		name      string
		forward   float64
		turn      float64
		wantLeft  float64
		wantRight float64
	}{
		{"rest", 0, 0, 0, 0},
		{"half forward", 0.5, 0, 0.5, 0.5},
		{"full forward", 1, 0, 1, 1},
		{"full reverse", -1, 0, -1, -1},
		{"spin in place", 0, 1, 1, -1},
		{"spin opposite", 0, -1, -1, 1},
		{"forward with turn", 0.5, 0.2, 0.7, 0.3},
		{"saturating mix", 0.8, 0.6, 1.0, 0.2 / 1.4},
		{"saturating reverse", -0.8, -0.6, -1.0, -0.2 / 1.4},
		{"boundary sum", 0.5, 0.5, 1.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := Mix(tt.forward, tt.turn)
			assert.InDelta(t, tt.wantLeft, left, 1e-12)
			assert.InDelta(t, tt.wantRight, right, 1e-12)
		})
	}
}

func TestMixOutputsBounded(t *testing.T) {
	for f := -1.0; f <= 1.0; f += 0.05 {
		for tr := -1.0; tr <= 1.0; tr += 0.05 {
			left, right := Mix(f, tr)
			assert.LessOrEqual(t, math.Abs(left), 1.0, "forward=%v turn=%v", f, tr)
			assert.LessOrEqual(t, math.Abs(right), 1.0, "forward=%v turn=%v", f, tr)
		}
	}
}

func TestMixExactWhenUnsaturated(t *testing.T) {
	// whenever |forward|+|turn| <= 1 no rescale may occur
	for f := -0.5; f <= 0.5; f += 0.1 {
		for tr := -0.5; tr <= 0.5; tr += 0.1 {
			left, right := Mix(f, tr)
			assert.InDelta(t, f+tr, left, 1e-12)
			assert.InDelta(t, f-tr, right, 1e-12)
		}
	}
}

func TestMixPreservesRatio(t *testing.T) {
	tests := []struct {
		name    string
		forward float64
		turn    float64
	}{
		{"mild saturation", 0.8, 0.6},
		{"heavy saturation", 1.0, 1.0},
		{"reverse saturation", -0.9, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rawLeft := tt.forward + tt.turn
			rawRight := tt.forward - tt.turn
			left, right := Mix(tt.forward, tt.turn)

			// cross-multiplied ratio check avoids dividing by zero
			assert.InDelta(t, rawLeft*right, rawRight*left, 1e-12)
			assert.InDelta(t, 1.0, math.Max(math.Abs(left), math.Abs(right)), 1e-12)
		})
	}
}

func TestSaturates(t *testing.T) {
	assert.False(t, Saturates(0.5, 0.2))
	assert.False(t, Saturates(0.5, 0.5))
	assert.True(t, Saturates(0.8, 0.6))
	assert.True(t, Saturates(-1, -0.1))
}
