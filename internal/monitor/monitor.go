// Package monitor periodically samples loop health (tick stats, write queue
// depths, fault streaks) into the database and telemetry sink, and mirrors a
// human-readable status file next to the logs.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/openrover/drived/internal/blackbox"
	"github.com/openrover/drived/internal/cache"
	"github.com/openrover/drived/internal/logging"
	"github.com/openrover/drived/internal/model"
	"github.com/openrover/drived/internal/scheduler"
	"github.com/openrover/drived/internal/session"
	"github.com/openrover/drived/internal/telemetry"
)

// faultUnhealthyStreak is the consecutive actuator failure count past which
// the vehicle is reported unhealthy.
const faultUnhealthyStreak = 10

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB              *gorm.DB
	LogManager      *logging.SlogManager
	SessionContext  *session.Context
	Scheduler       *scheduler.Service
	Blackbox        *blackbox.Manager
	Faults          *cache.FaultCache
	Telemetry       telemetry.Sink
	LogsDir         string
	IsDatabaseValid func() bool
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Healthy reports whether the loop is alive and the actuator fault streak is
// below the unhealthy threshold.
func (s *Service) Healthy() bool {
	if !s.deps.Scheduler.IsRunning() {
		return false
	}
	return s.deps.Faults.Get("actuator") < faultUnhealthyStreak
}

// GetProgramStatus returns the current loop health, both as printable JSON
// lines and as the row written to the database.
func (s *Service) GetProgramStatus(
	loopStats bool,
	writeQueues bool,
	lastWrite bool,
) (output []string, perfModel model.LoopPerformance) {
	sess := s.deps.SessionContext.GetSession()
	stats := s.deps.Scheduler.Stats()
	queues := s.deps.Blackbox.Queues().Lengths()

	perf := model.LoopPerformance{
		Time:                time.Now(),
		SessionID:           sess.ID,
		TickCount:           stats.Ticks,
		OverrunCount:        stats.Overruns,
		AvgTickMicros:       float64(stats.MeanDuration.Nanoseconds()) / 1000.0,
		MaxTickMicros:       float64(stats.MaxDuration.Nanoseconds()) / 1000.0,
		WriteQueueLengths:   queues,
		LastWriteDurationMs: float32(s.deps.Blackbox.GetLastDBWriteDuration().Milliseconds()),
	}

	if loopStats {
		statsStr, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			statsStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(statsStr))
	}
	if writeQueues {
		writeQueuesStr, err := json.MarshalIndent(queues, "", "  ")
		if err != nil {
			writeQueuesStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(writeQueuesStr))
	}
	if lastWrite {
		lastWriteStr, err := json.MarshalIndent(perf.LastWriteDurationMs, "", "  ")
		if err != nil {
			lastWriteStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(lastWriteStr))
	}

	return output, perf
}

// publish sends the health sample to the telemetry sink.
func (s *Service) publish(perf model.LoopPerformance) {
	if s.deps.Telemetry == nil {
		return
	}
	s.deps.Telemetry.Publish("loop_performance",
		map[string]string{
			"sessionId": fmt.Sprint(perf.SessionID),
		},
		map[string]any{
			"tickCount":           perf.TickCount,
			"overrunCount":        perf.OverrunCount,
			"avgTickMicros":       perf.AvgTickMicros,
			"maxTickMicros":       perf.MaxTickMicros,
			"queueTicks":          int(perf.WriteQueueLengths.Ticks),
			"queueModeChanges":    int(perf.WriteQueueLengths.ModeChanges),
			"queueFaults":         int(perf.WriteQueueLengths.Faults),
			"queueParamChanges":   int(perf.WriteQueueLengths.ParamChanges),
			"lastWriteDurationMs": float64(perf.LastWriteDurationMs),
			"actuatorFaultStreak": s.deps.Faults.Get("actuator"),
			"healthy":             s.Healthy(),
		},
	)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(s.deps.LogsDir + "/status.txt")
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(1000 * time.Millisecond)

				if !s.deps.SessionContext.Active() {
					continue
				}

				statusStr, perfModel := s.GetProgramStatus(true, true, true)

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range statusStr {
						statusFile.WriteString(line + "\n")
					}
				}

				s.publish(perfModel)

				if s.deps.IsDatabaseValid() {
					err = s.deps.DB.Create(&perfModel).Error
					if err != nil {
						logger.Error("Error writing loop performance row", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
