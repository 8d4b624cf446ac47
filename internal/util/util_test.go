package util

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		lo, hi   float64
		expected float64
	}{
		{"inside range", 0.5, -1, 1, 0.5},
		{"at low edge", -1, -1, 1, -1},
		{"at high edge", 1, -1, 1, 1},
		{"below range", -1.5, -1, 1, -1},
		{"above range", 2.3, -1, 1, 1},
		{"zero", 0, -1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clamp(tt.v, tt.lo, tt.hi)
			if result != tt.expected {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, result, tt.expected)
			}
		})
	}
}

func TestDeadband(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		band     float64
		expected float64
	}{
		{"zero band passes through", 0.3, 0, 0.3},
		{"inside band", 0.05, 0.1, 0},
		{"negative inside band", -0.09, 0.1, 0},
		{"at band edge", 0.1, 0.1, 0},
		{"full deflection", 1, 0.1, 1},
		{"negative full deflection", -1, 0.1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Deadband(tt.v, tt.band)
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("Deadband(%v, %v) = %v, want %v", tt.v, tt.band, result, tt.expected)
			}
		})
	}
}

func TestDeadbandContinuous(t *testing.T) {
	// just above the band the output should be barely positive, not jump
	got := Deadband(0.1001, 0.1)
	if got <= 0 || got > 0.001 {
		t.Errorf("Deadband(0.1001, 0.1) = %v, want small positive value", got)
	}
}

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		expected bool
	}{
		{"zero", 0, true},
		{"normal", 0.5, true},
		{"nan", math.NaN(), false},
		{"positive inf", math.Inf(1), false},
		{"negative inf", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsFinite(tt.v)
			if result != tt.expected {
				t.Errorf("IsFinite(%v) = %v, want %v", tt.v, result, tt.expected)
			}
		})
	}
}
