package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openrover/drived/internal/blackbox"
	"github.com/openrover/drived/internal/cache"
	"github.com/openrover/drived/internal/model"
	"github.com/openrover/drived/internal/scheduler"
	"github.com/openrover/drived/internal/session"
)

func newTestMonitor(t *testing.T) (*Service, *scheduler.Service, *cache.FaultCache, *session.Context) {
	t.Helper()

	loop, err := scheduler.NewService(scheduler.Dependencies{
		Period:   5 * time.Millisecond,
		Callback: func(time.Time) {},
	})
	require.NoError(t, err)

	faults := cache.NewFaultCache()
	ctx := session.NewContext()
	bb := blackbox.NewManager(blackbox.Dependencies{SessionContext: ctx})

	s := NewService(Dependencies{
		SessionContext: ctx,
		Scheduler:      loop,
		Blackbox:       bb,
		Faults:         faults,
	})
	return s, loop, faults, ctx
}

func TestHealthyRequiresRunningLoop(t *testing.T) {
	s, loop, _, _ := newTestMonitor(t)

	assert.False(t, s.Healthy(), "stopped loop is unhealthy")

	loop.Start()
	defer loop.Stop()
	assert.True(t, s.Healthy())
}

func TestHealthyTripsOnFaultStreak(t *testing.T) {
	s, loop, faults, _ := newTestMonitor(t)
	loop.Start()
	defer loop.Stop()

	for i := 0; i < faultUnhealthyStreak-1; i++ {
		faults.Inc("actuator")
	}
	assert.True(t, s.Healthy(), "streak below threshold stays healthy")

	faults.Inc("actuator")
	assert.False(t, s.Healthy())

	faults.Clear("actuator")
	assert.True(t, s.Healthy())
}

func TestGetProgramStatus(t *testing.T) {
	s, loop, _, ctx := newTestMonitor(t)
	ctx.SetSession(&model.Session{Model: gorm.Model{ID: 9}, SessionName: "test"})

	loop.Start()
	time.Sleep(30 * time.Millisecond)
	loop.Stop()

	output, perf := s.GetProgramStatus(true, true, true)
	assert.Len(t, output, 3)
	assert.Equal(t, uint(9), perf.SessionID)
	assert.Greater(t, perf.TickCount, uint64(0))
	assert.Equal(t, model.WriteQueueLengths{}, perf.WriteQueueLengths)
}
