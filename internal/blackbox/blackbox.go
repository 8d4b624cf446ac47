// Package blackbox records what the drive loop did: decimated tick
// snapshots, mode changes, faults and parameter writes, buffered in memory
// and batch-inserted into the database by a writer goroutine. Recording
// never blocks the control tick; if the database is down the queues are
// dropped on flush rather than growing without bound.
package blackbox

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openrover/drived/internal/model"
	"github.com/openrover/drived/internal/queue"
	"github.com/openrover/drived/internal/session"
	"github.com/openrover/drived/pkg/drive"
)

// maxQueueLen caps each queue so a dead database cannot exhaust memory.
const maxQueueLen = 100_000

// Queues holds the write buffers between the loop and the database.
type Queues struct {
	Ticks        *queue.Queue[model.DriveTick]
	ModeChanges  *queue.Queue[model.ModeChange]
	Faults       *queue.Queue[model.Fault]
	ParamChanges *queue.Queue[model.ParamChange]
}

// NewQueues creates empty write queues.
func NewQueues() *Queues {
	return &Queues{
		Ticks:        queue.New[model.DriveTick](),
		ModeChanges:  queue.New[model.ModeChange](),
		Faults:       queue.New[model.Fault](),
		ParamChanges: queue.New[model.ParamChange](),
	}
}

// Lengths returns the current queue depths for the health monitor.
func (q *Queues) Lengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Ticks:        uint16(min(q.Ticks.Len(), 0xFFFF)),
		ModeChanges:  uint16(min(q.ModeChanges.Len(), 0xFFFF)),
		Faults:       uint16(min(q.Faults.Len(), 0xFFFF)),
		ParamChanges: uint16(min(q.ParamChanges.Len(), 0xFFFF)),
	}
}

// Dependencies holds all dependencies for the blackbox manager
type Dependencies struct {
	DB              *gorm.DB
	SessionContext  *session.Context
	Logger          *slog.Logger
	IsDatabaseValid func() bool
	BatchSize       int
	FlushInterval   time.Duration
}

// Manager owns the write queues and the flush goroutine.
type Manager struct {
	deps   Dependencies
	queues *Queues

	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	doneChan  chan struct{}

	paused            bool
	lastWriteDuration time.Duration
}

// NewManager creates a new blackbox manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 128
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = 500 * time.Millisecond
	}
	return &Manager{
		deps:   deps,
		queues: NewQueues(),
	}
}

// Queues exposes the write buffers for the health monitor.
func (m *Manager) Queues() *Queues {
	return m.queues
}

func (m *Manager) sessionID() uint {
	if m.deps.SessionContext == nil {
		return 0
	}
	return m.deps.SessionContext.GetSession().ID
}

// RecordTick buffers one decimated tick snapshot.
func (m *Manager) RecordTick(s drive.Snapshot) {
	if m.queues.Ticks.Len() >= maxQueueLen {
		return
	}
	m.queues.Ticks.Push(model.DriveTick{
		Time:          s.Time,
		SessionID:     m.sessionID(),
		Tick:          s.Tick,
		Mode:          s.Mode.String(),
		IntentForward: s.Intent.Forward,
		IntentTurn:    s.Intent.Turn,
		Reverse:       s.Modifiers.Reverse,
		SlowTurn:      s.Modifiers.SlowTurn,
		OutputLeft:    s.Output.Left,
		OutputRight:   s.Output.Right,
		Saturated:     s.Saturated,
		LeftVelocity:  s.Feedback.LeftVelocity,
		RightVelocity: s.Feedback.RightVelocity,
		HeadingDeg:    s.Feedback.HeadingDeg,
		DurationUs:    s.Duration.Microseconds(),
	})
}

// RecordModeChange buffers a state transition.
func (m *Manager) RecordModeChange(from, to drive.Mode, reason string) {
	m.queues.ModeChanges.Push(model.ModeChange{
		Time:      time.Now(),
		SessionID: m.sessionID(),
		FromMode:  from.String(),
		ToMode:    to.String(),
		Reason:    reason,
	})
}

// RecordFault buffers a failed actuator write.
func (m *Manager) RecordFault(source, message string, streak int) {
	if m.queues.Faults.Len() >= maxQueueLen {
		return
	}
	m.queues.Faults.Push(model.Fault{
		Time:      time.Now(),
		SessionID: m.sessionID(),
		Source:    source,
		Message:   message,
		Streak:    streak,
	})
}

// RecordParamChange buffers a tunable write.
func (m *Manager) RecordParamChange(key string, oldValue, newValue any) {
	oldJSON, err := json.Marshal(oldValue)
	if err != nil {
		oldJSON = []byte("null")
	}
	newJSON, err := json.Marshal(newValue)
	if err != nil {
		newJSON = []byte("null")
	}
	m.queues.ParamChanges.Push(model.ParamChange{
		Time:      time.Now(),
		SessionID: m.sessionID(),
		Key:       key,
		OldValue:  datatypes.JSON(oldJSON),
		NewValue:  datatypes.JSON(newJSON),
	})
}

// Pause suspends database inserts, used while the in-memory SQLite database
// is being dumped to disk. Queues keep filling while paused.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume re-enables database inserts.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// GetLastDBWriteDuration returns the duration of the last flush cycle.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastWriteDuration
}

// IsRunning returns whether the flush goroutine is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Start launches the flush goroutine.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	stop, done := m.stopChan, m.doneChan
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.isRunning = false
			m.mu.Unlock()
			close(done)
		}()

		ticker := time.NewTicker(m.deps.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				// final flush so shutdown loses nothing
				m.Flush()
				return
			case <-ticker.C:
				m.Flush()
			}
		}
	}()
}

// Stop flushes outstanding records and ends the goroutine.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	stop, done := m.stopChan, m.doneChan
	m.mu.Unlock()

	close(stop)
	<-done
}

// Flush drains all queues into the database in batches. Safe to call
// directly, for tests and the session end path.
func (m *Manager) Flush() {
	m.mu.RLock()
	paused := m.paused
	m.mu.RUnlock()
	if paused {
		return
	}

	valid := m.deps.IsDatabaseValid == nil || m.deps.IsDatabaseValid()
	start := time.Now()

	flush(m, m.queues.Ticks, valid)
	flush(m, m.queues.ModeChanges, valid)
	flush(m, m.queues.Faults, valid)
	flush(m, m.queues.ParamChanges, valid)

	m.mu.Lock()
	m.lastWriteDuration = time.Since(start)
	m.mu.Unlock()
}

// flush empties one queue. When the database is invalid the records are
// discarded so the queues cannot grow unbounded.
func flush[T any](m *Manager, q *queue.Queue[T], valid bool) {
	items := q.GetAndEmpty()
	if len(items) == 0 || !valid || m.deps.DB == nil {
		return
	}
	if err := m.deps.DB.CreateInBatches(items, m.deps.BatchSize).Error; err != nil {
		m.deps.Logger.Error("Blackbox batch insert failed",
			"error", err, "count", len(items))
	}
}
