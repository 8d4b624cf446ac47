package sensors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openrover/drived/internal/params"
)

func TestConversionDefaults(t *testing.T) {
	store := params.NewViperStore(nil)
	c := NewConversion(store)

	// 0.1524 m wheel through a 10.71:1 reduction
	want := math.Pi * 0.1524 / 10.71
	assert.InDelta(t, want, c.MetersPerRotation(), 1e-12)
	assert.InDelta(t, want/60.0, c.MetersPerSecondPerRPM(), 1e-12)
}

func TestConversionFollowsTunables(t *testing.T) {
	store := params.NewViperStore(nil)
	c := NewConversion(store)

	store.Set("drive.wheelDiameterMeters", 0.2)
	store.Set("drive.gearRatio", 5.0)

	want := math.Pi * 0.2 / 5.0
	assert.InDelta(t, want, c.MetersPerRotation(), 1e-12)
	assert.InDelta(t, 10*want, c.PositionMeters(10), 1e-12)
	assert.InDelta(t, 600*want/60.0, c.VelocityMetersPerSecond(600), 1e-12)
}

func TestConversionGuardsBadRatio(t *testing.T) {
	store := params.NewViperStore(nil)
	store.Set("drive.gearRatio", 0.0)
	c := NewConversion(store)

	// a zero ratio falls back to direct drive instead of dividing by zero
	assert.InDelta(t, math.Pi*0.1524, c.MetersPerRotation(), 1e-12)
}
