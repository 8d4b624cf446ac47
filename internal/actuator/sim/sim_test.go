package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrover/drived/internal/params"
)

func newClockedBackend(t *testing.T) (*Backend, *time.Time) {
	t.Helper()
	store := params.NewViperStore(nil)
	b := New(store, nil)
	now := time.Now()
	b.SetClock(func() time.Time { return now })
	return b, &now
}

func TestRecordsLastCommand(t *testing.T) {
	b, _ := newClockedBackend(t)

	require.NoError(t, b.SetOpenLoop(0.5, -0.5))
	last, writes := b.LastCommand()
	assert.Equal(t, KindOpenLoop, last.Kind)
	assert.Equal(t, 0.5, last.Left)
	assert.Equal(t, -0.5, last.Right)
	assert.Equal(t, 1, writes)

	require.NoError(t, b.Stop())
	last, writes = b.LastCommand()
	assert.Equal(t, KindStop, last.Kind)
	assert.Equal(t, 2, writes)
}

func TestClosedBackendRejectsWrites(t *testing.T) {
	b, _ := newClockedBackend(t)
	require.NoError(t, b.Close())
	assert.Error(t, b.SetOpenLoop(1, 1))
	assert.Error(t, b.SetVelocity(1, 1))
	assert.Error(t, b.Stop())
}

func TestWheelModelSettlesToVelocityTarget(t *testing.T) {
	b, now := newClockedBackend(t)
	left, right := b.Wheels()

	require.NoError(t, b.SetVelocity(2.0, 1.0))
	// well past the 0.3s time constant
	*now = now.Add(5 * time.Second)

	assert.InDelta(t, 2.0, left.Velocity(), 0.01)
	assert.InDelta(t, 1.0, right.Velocity(), 0.01)
}

func TestOpenLoopScalesByMaxSpeed(t *testing.T) {
	b, now := newClockedBackend(t)
	left, _ := b.Wheels()

	// full duty maps to sim.maxSpeedMps, default 3.0
	require.NoError(t, b.SetOpenLoop(1.0, 1.0))
	*now = now.Add(5 * time.Second)
	assert.InDelta(t, 3.0, left.Velocity(), 0.01)
}

func TestPositionIntegratesAndResets(t *testing.T) {
	b, now := newClockedBackend(t)
	left, _ := b.Wheels()

	require.NoError(t, b.SetVelocity(1.0, 1.0))
	*now = now.Add(10 * time.Second)

	pos := left.Position()
	assert.Greater(t, pos, 5.0, "ten seconds near 1 m/s must travel several meters")

	left.ResetPosition()
	assert.InDelta(t, 0, left.Position(), 1e-9)

	*now = now.Add(1 * time.Second)
	assert.Greater(t, left.Position(), 0.5, "travel resumes from the new reference")
}

func TestDifferentialCommandTurnsHeading(t *testing.T) {
	b, now := newClockedBackend(t)
	g := b.Gyro()

	// left faster than right turns clockwise, heading grows
	require.NoError(t, b.SetVelocity(1.0, -1.0))
	*now = now.Add(5 * time.Second)
	assert.Greater(t, g.AngleDegrees(), 45.0)

	// straight driving holds heading
	heading := g.AngleDegrees()
	require.NoError(t, b.SetVelocity(1.0, 1.0))
	*now = now.Add(5 * time.Second)
	assert.InDelta(t, heading, g.AngleDegrees(), 2.0)
}
