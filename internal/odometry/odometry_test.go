package odometry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/pkg/drive"
)

func newStore(t *testing.T) *params.ViperStore {
	t.Helper()
	return params.NewViperStore(nil)
}

// feed advances the tracker with constant feedback at a fixed rate.
func feed(tr *Tracker, fb drive.Feedback, steps int, dt time.Duration) {
	now := time.Unix(0, 0)
	tr.Update(now, fb) // primes lastTime
	for i := 0; i < steps; i++ {
		now = now.Add(dt)
		tr.Update(now, fb)
	}
}

func TestStraightLine(t *testing.T) {
	tr := New(newStore(t), config.GeoConfig{}, false)

	// 1 m/s on both wheels for 2 seconds
	feed(tr, drive.Feedback{LeftVelocity: 1, RightVelocity: 1}, 200, 10*time.Millisecond)

	pose := tr.Pose()
	assert.InDelta(t, 2.0, pose.X, 1e-9)
	assert.InDelta(t, 0.0, pose.Y, 1e-9)
	assert.InDelta(t, 0.0, pose.HeadingDeg, 1e-9)
	assert.InDelta(t, 2.0, pose.Distance, 1e-9)
}

func TestReverseAccumulatesDistance(t *testing.T) {
	tr := New(newStore(t), config.GeoConfig{}, false)

	feed(tr, drive.Feedback{LeftVelocity: -1, RightVelocity: -1}, 100, 10*time.Millisecond)

	pose := tr.Pose()
	assert.InDelta(t, -1.0, pose.X, 1e-9)
	assert.InDelta(t, 1.0, pose.Distance, 1e-9, "distance is odometer-style, unsigned")
}

func TestDifferentialTurnIntegratesHeading(t *testing.T) {
	store := newStore(t)
	track := store.Float("drive.trackWidthMeters", 0)
	require.Greater(t, track, 0.0)

	tr := New(store, config.GeoConfig{}, false)

	// Spin in place: omega = (r - l) / track
	fb := drive.Feedback{LeftVelocity: -track / 2, RightVelocity: track / 2}
	feed(tr, fb, 100, 10*time.Millisecond) // 1 rad/s for 1 s

	pose := tr.Pose()
	assert.InDelta(t, 180/math.Pi, pose.HeadingDeg, 1e-6)
	assert.InDelta(t, 0.0, pose.X, 1e-2)
	assert.InDelta(t, 0.0, pose.Y, 1e-2)
}

func TestGyroHeadingPreferred(t *testing.T) {
	tr := New(newStore(t), config.GeoConfig{}, true)

	// Wheel differential says turning, gyro says 90 degrees fixed.
	fb := drive.Feedback{LeftVelocity: 0.5, RightVelocity: 1.5, HeadingDeg: 90}
	feed(tr, fb, 100, 10*time.Millisecond)

	pose := tr.Pose()
	assert.InDelta(t, 90.0, pose.HeadingDeg, 1e-9)
	// Moving at 1 m/s along +90deg for 1 s: all displacement in Y.
	assert.InDelta(t, 0.0, pose.X, 1e-9)
	assert.InDelta(t, 1.0, pose.Y, 1e-9)
}

func TestTrackGeometry(t *testing.T) {
	tr := New(newStore(t), config.GeoConfig{}, false)

	feed(tr, drive.Feedback{LeftVelocity: 1, RightVelocity: 1}, 100, 10*time.Millisecond)

	ls, err := tr.Track()
	require.NoError(t, err)
	seq := ls.Coordinates()
	require.GreaterOrEqual(t, seq.Length(), 2)

	first := seq.GetXY(0)
	last := seq.GetXY(seq.Length() - 1)
	assert.InDelta(t, 0.0, first.X, 1e-9)
	assert.InDelta(t, 1.0, last.X, minTrackStep)
}

func TestWorldTrackRequiresOrigin(t *testing.T) {
	tr := New(newStore(t), config.GeoConfig{}, false)
	if _, ok := tr.WorldPoint(); ok {
		t.Error("expected no world point without a geo origin")
	}
	if _, ok := tr.WorldTrack(); ok {
		t.Error("expected no world track without a geo origin")
	}

	geo := config.GeoConfig{Enabled: true, OriginLat: 48.2, OriginLon: 16.3}
	tr = New(newStore(t), geo, false)
	feed(tr, drive.Feedback{LeftVelocity: 1, RightVelocity: 1}, 10, 10*time.Millisecond)

	pt, ok := tr.WorldPoint()
	require.True(t, ok)
	xy, ok := pt.XY()
	require.True(t, ok)
	// Web Mercator easting for 16.3E is about 1.8e6 meters.
	assert.Greater(t, xy.X, 1e6)
}

func TestReset(t *testing.T) {
	tr := New(newStore(t), config.GeoConfig{}, false)
	feed(tr, drive.Feedback{LeftVelocity: 1, RightVelocity: 1}, 50, 10*time.Millisecond)
	require.NotZero(t, tr.Pose().Distance)

	tr.Reset()
	assert.Zero(t, tr.Pose())

	ls, err := tr.Track()
	require.NoError(t, err)
	assert.LessOrEqual(t, ls.Coordinates().Length(), 1)
}
