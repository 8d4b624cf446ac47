// Package scheduler runs the drive update callback at a fixed wall-clock
// period on its own goroutine, decoupled from the dispatcher and any host
// loop. Ticks never overlap: the loop goroutine is the only caller, and an
// overrunning tick simply delays the next one to the following ticker
// boundary (missed boundaries are dropped, not queued).
package scheduler

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// warnInterval rate-limits overrun warnings so a persistently slow callback
// cannot flood the log at loop frequency.
const warnInterval = 5 * time.Second

// Callback is one control tick. now is the tick's start timestamp.
type Callback func(now time.Time)

// Dependencies holds all dependencies for the scheduler service
type Dependencies struct {
	Period   time.Duration
	Callback Callback
	Logger   *slog.Logger
}

// Service owns the fixed-period loop goroutine.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.Mutex
	stopChan  chan struct{}
	doneChan  chan struct{}

	ticks    atomic.Uint64
	overruns atomic.Uint64
	panics   atomic.Uint64

	lastDurationNs atomic.Int64
	maxDurationNs  atomic.Int64
	sumDurationNs  atomic.Int64

	lastWarn time.Time
}

// NewService creates a new scheduler service. The period must already be
// validated by config loading.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Callback == nil {
		return nil, fmt.Errorf("scheduler requires a callback")
	}
	if deps.Period <= 0 {
		return nil, fmt.Errorf("scheduler period must be positive, got %s", deps.Period)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Service{deps: deps}
	if err := s.registerMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

// IsRunning returns whether the loop goroutine is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Period returns the configured tick period.
func (s *Service) Period() time.Duration {
	return s.deps.Period
}

// Start launches the loop goroutine. Calling Start while running is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	s.deps.Logger.Info("Starting drive loop", "period", s.deps.Period)

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		ticker := time.NewTicker(s.deps.Period)
		defer ticker.Stop()

		for {
			// check stop first so a close raced with a ready tick can
			// never start another invocation
			select {
			case <-stop:
				return
			default:
			}

			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.runTick(now)
			}
		}
	}()
}

// Stop ends periodic execution. It blocks until the in-flight tick, if any,
// has returned; no invocation starts after Stop returns. The service can be
// started again afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	close(stop)
	<-done

	s.deps.Logger.Info("Drive loop stopped",
		"ticks", s.ticks.Load(),
		"overruns", s.overruns.Load())
}

// runTick invokes the callback once, tracking duration and overruns. A panic
// in the callback is recovered and counted; the loop keeps running.
func (s *Service) runTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.deps.Logger.Error("Drive tick panicked",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	s.deps.Callback(now)
	elapsed := time.Since(start)

	s.ticks.Add(1)
	s.lastDurationNs.Store(int64(elapsed))
	s.sumDurationNs.Add(int64(elapsed))
	for {
		max := s.maxDurationNs.Load()
		if int64(elapsed) <= max || s.maxDurationNs.CompareAndSwap(max, int64(elapsed)) {
			break
		}
	}

	if elapsed > s.deps.Period {
		s.overruns.Add(1)
		s.noteOverrun(elapsed)
	}
}

// noteOverrun emits a rate-limited warning for a tick that exceeded the
// period.
func (s *Service) noteOverrun(elapsed time.Duration) {
	s.mu.Lock()
	shouldWarn := time.Since(s.lastWarn) >= warnInterval
	if shouldWarn {
		s.lastWarn = time.Now()
	}
	s.mu.Unlock()

	if shouldWarn {
		s.deps.Logger.Warn("Drive tick overran its period",
			"duration", elapsed,
			"period", s.deps.Period,
			"overruns", s.overruns.Load())
	}
}

// Stats is a point-in-time view of loop health for telemetry and the bench
// verb.
type Stats struct {
	Ticks        uint64
	Overruns     uint64
	Panics       uint64
	LastDuration time.Duration
	MaxDuration  time.Duration
	MeanDuration time.Duration
}

// Stats returns the current loop counters.
func (s *Service) Stats() Stats {
	ticks := s.ticks.Load()
	st := Stats{
		Ticks:        ticks,
		Overruns:     s.overruns.Load(),
		Panics:       s.panics.Load(),
		LastDuration: time.Duration(s.lastDurationNs.Load()),
		MaxDuration:  time.Duration(s.maxDurationNs.Load()),
	}
	if ticks > 0 {
		st.MeanDuration = time.Duration(s.sumDurationNs.Load() / int64(ticks))
	}
	return st
}
