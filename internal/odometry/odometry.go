// Package odometry integrates wheel feedback into a planar pose estimate and
// keeps the driven track as a geometry. Positions are kept in a local frame
// with the session start at the origin; when a geographic origin is
// configured the pose and track can also be expressed in Web Mercator
// (EPSG 3857), the frame the fleet tooling stores geometry in.
package odometry

import (
	"math"
	"sync"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/pkg/drive"
)

// minTrackStep is the distance in meters the vehicle must move before another
// vertex is appended to the track geometry.
const minTrackStep = 0.05

// Pose is the integrated vehicle state in the local frame. X is meters along
// the initial heading, Y meters to its left, HeadingDeg counterclockwise.
type Pose struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	HeadingDeg float64 `json:"headingDeg"`
	Distance   float64 `json:"distance"`
}

// Tracker integrates feedback samples into a pose and track.
type Tracker struct {
	store   params.Store
	geo     config.GeoConfig
	useGyro bool

	mu       sync.Mutex
	pose     Pose
	lastTime time.Time
	points   []float64 // flat XY sequence for the track line
	lastPt   geom.XY
}

// New creates a tracker. useGyro selects the heading source: the gyro reading
// when the actuator backend has one, otherwise heading is integrated from the
// wheel speed differential.
func New(store params.Store, geo config.GeoConfig, useGyro bool) *Tracker {
	t := &Tracker{store: store, geo: geo, useGyro: useGyro}
	t.points = append(t.points, 0, 0)
	return t
}

// Update advances the pose by one feedback sample. Called from the loop
// goroutine every tick; it must stay cheap.
func (t *Tracker) Update(now time.Time, fb drive.Feedback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastTime.IsZero() {
		t.lastTime = now
		return
	}
	dt := now.Sub(t.lastTime).Seconds()
	t.lastTime = now
	if dt <= 0 {
		return
	}

	v := (fb.LeftVelocity + fb.RightVelocity) / 2

	if t.useGyro {
		t.pose.HeadingDeg = fb.HeadingDeg
	} else {
		track := t.store.Float("drive.trackWidthMeters", 0.55)
		omega := (fb.RightVelocity - fb.LeftVelocity) / track
		t.pose.HeadingDeg += omega * dt * 180 / math.Pi
	}

	theta := t.pose.HeadingDeg * math.Pi / 180
	t.pose.X += v * math.Cos(theta) * dt
	t.pose.Y += v * math.Sin(theta) * dt
	t.pose.Distance += math.Abs(v) * dt

	dx := t.pose.X - t.lastPt.X
	dy := t.pose.Y - t.lastPt.Y
	if dx*dx+dy*dy >= minTrackStep*minTrackStep {
		t.lastPt = geom.XY{X: t.pose.X, Y: t.pose.Y}
		t.points = append(t.points, t.pose.X, t.pose.Y)
	}
}

// Pose returns the current pose estimate.
func (t *Tracker) Pose() Pose {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pose
}

// Track returns the driven path as a line string in the local frame.
func (t *Tracker) Track() (geom.LineString, error) {
	t.mu.Lock()
	pts := make([]float64, len(t.points))
	copy(pts, t.points)
	t.mu.Unlock()

	if len(pts) < 4 {
		return geom.LineString{}, nil
	}
	seq := geom.NewSequence(pts, geom.DimXY)
	return geom.NewLineString(seq)
}

// WorldPoint returns the current position as an EPSG 3857 point. ok is false
// when no geographic origin is configured.
func (t *Tracker) WorldPoint() (geom.Point, bool) {
	if !t.geo.Enabled {
		return geom.Point{}, false
	}
	pose := t.Pose()

	ox, oy := origin3857(t.geo.OriginLon, t.geo.OriginLat)
	point, _ := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{X: ox + pose.X, Y: oy + pose.Y},
	})
	return point, true
}

// WorldTrack returns the driven path translated to EPSG 3857. ok is false
// when no geographic origin is configured.
func (t *Tracker) WorldTrack() (geom.LineString, bool) {
	if !t.geo.Enabled {
		return geom.LineString{}, false
	}

	t.mu.Lock()
	pts := make([]float64, len(t.points))
	copy(pts, t.points)
	t.mu.Unlock()

	if len(pts) < 4 {
		return geom.LineString{}, false
	}
	ox, oy := origin3857(t.geo.OriginLon, t.geo.OriginLat)
	for i := 0; i < len(pts); i += 2 {
		pts[i] += ox
		pts[i+1] += oy
	}
	ls, err := geom.NewLineString(geom.NewSequence(pts, geom.DimXY))
	if err != nil {
		return geom.LineString{}, false
	}
	return ls, true
}

// Reset zeroes the pose and starts a new track, used on session start.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pose = Pose{}
	t.lastTime = time.Time{}
	t.points = []float64{0, 0}
	t.lastPt = geom.XY{}
}

// origin3857 converts a WGS 84 origin to Web Mercator.
func origin3857(lon, lat float64) (x, y float64) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(lon, lat, 0)
	return x, y
}
