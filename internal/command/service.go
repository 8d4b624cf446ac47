package command

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/openrover/drived/internal/blackbox"
	"github.com/openrover/drived/internal/cache"
	"github.com/openrover/drived/internal/dispatcher"
	drivectl "github.com/openrover/drived/internal/drive"
	"github.com/openrover/drived/internal/model"
	"github.com/openrover/drived/internal/odometry"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/internal/scheduler"
	"github.com/openrover/drived/internal/session"
	"github.com/openrover/drived/pkg/drive"
	"github.com/openrover/drived/pkg/streaming"
)

// Announcer mirrors session boundaries to the live stream.
type Announcer interface {
	StartSession(p streaming.StartSessionPayload) error
	EndSession() error
}

// Dependencies holds all dependencies for the command service
type Dependencies struct {
	Controller      *drivectl.Controller
	Store           *params.ViperStore
	Blackbox        *blackbox.Manager
	SessionContext  *session.Context
	Snapshots       *cache.SnapshotCache
	Scheduler       *scheduler.Service
	Odometry        *odometry.Tracker
	DB              *gorm.DB
	IsDatabaseValid func() bool
	Stream          Announcer
	Logger          *slog.Logger

	VehicleName     string
	ActuatorBackend string
	Version         string
	BuildDate       string
}

// Service wires operator commands to the controller and session lifecycle.
type Service struct {
	deps Dependencies
}

// NewService creates a new command service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// RegisterHandlers registers all command handlers with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// session lifecycle - sync, infrequent
	d.Register(CmdSessionStart, s.handleSessionStart, dispatcher.Logged())
	d.Register(CmdSessionEnd, s.handleSessionEnd, dispatcher.Logged())

	// drive intent - high rate, kept sync: SetIntent is a cheap
	// last-write-wins store and queueing would only add staleness
	d.Register(CmdIntent, s.handleIntent)

	// mode and modifier commands
	d.Register(CmdModeManual, s.handleModeManual, dispatcher.Logged())
	d.Register(CmdModeVelocity, s.handleModeVelocity, dispatcher.Logged())
	d.Register(CmdToggleReverse, s.handleToggleReverse, dispatcher.Logged())
	d.Register(CmdToggleSlowTurn, s.handleToggleSlowTurn, dispatcher.Logged())
	d.Register(CmdReset, s.handleReset, dispatcher.Logged())

	// tunable parameters
	d.Register(CmdParamSet, s.handleParamSet, dispatcher.Logged())
	d.Register(CmdParamGet, s.handleParamGet)
	d.Register(CmdParamList, s.handleParamList)

	// queries
	d.Register(CmdStatus, s.handleStatus)
	d.Register(CmdOdom, s.handleOdom)
	d.Register(CmdVersion, s.handleVersion)
}

func (s *Service) dbValid() bool {
	return s.deps.DB != nil && (s.deps.IsDatabaseValid == nil || s.deps.IsDatabaseValid())
}

func (s *Service) handleSessionStart(e dispatcher.Event) (any, error) {
	if s.deps.SessionContext.Active() {
		return nil, fmt.Errorf("session %q still active", s.deps.SessionContext.GetSession().SessionName)
	}

	name := ParseSessionStart(e.Args)
	if name == "" {
		name = "session_" + time.Now().Format("20060102_150405")
	}

	sess := &model.Session{
		SessionName:     name,
		VehicleName:     s.deps.VehicleName,
		ActuatorBackend: s.deps.ActuatorBackend,
		LoopPeriodMs:    float64(s.deps.Scheduler.Period()) / float64(time.Millisecond),
		StartTime:       time.Now(),
		DaemonVersion:   s.deps.Version,
		BuildDate:       s.deps.BuildDate,
	}
	if s.dbValid() {
		if err := s.deps.DB.Create(sess).Error; err != nil {
			return nil, fmt.Errorf("creating session row: %w", err)
		}
	}
	s.deps.SessionContext.SetSession(sess)

	// fresh position reference and default state for every session
	s.deps.Controller.Reset()
	s.deps.Snapshots.Reset()
	if s.deps.Odometry != nil {
		s.deps.Odometry.Reset()
	}

	// fire-and-forget: the stream acks on its own time and a dead console
	// must not delay session handling
	if s.deps.Stream != nil {
		go func() {
			err := s.deps.Stream.StartSession(streaming.StartSessionPayload{
				SessionName:     sess.SessionName,
				VehicleName:     sess.VehicleName,
				ActuatorBackend: sess.ActuatorBackend,
				LoopPeriodMs:    sess.LoopPeriodMs,
				StartTime:       sess.StartTime,
				DaemonVersion:   sess.DaemonVersion,
			})
			if err != nil {
				s.deps.Logger.Warn("Stream session announce failed", "error", err)
			}
		}()
	}

	s.deps.Logger.Info("Session started", "session", name, "id", sess.ID)
	return sess.ID, nil
}

func (s *Service) handleSessionEnd(e dispatcher.Event) (any, error) {
	if !s.deps.SessionContext.Active() && !s.dbValid() {
		s.deps.SessionContext.Clear()
		return "ok", nil
	}

	sess := s.deps.SessionContext.GetSession()
	sess.EndTime = sql.NullTime{Time: time.Now(), Valid: true}

	// drain outstanding records before the row is finalized
	s.deps.Blackbox.Flush()

	if s.dbValid() && sess.ID != 0 {
		if err := s.deps.DB.Save(sess).Error; err != nil {
			s.deps.Logger.Error("Failed to finalize session row", "error", err)
		}
	}

	s.deps.Controller.Reset()
	s.deps.SessionContext.Clear()

	if s.deps.Stream != nil {
		go func() {
			if err := s.deps.Stream.EndSession(); err != nil {
				s.deps.Logger.Warn("Stream session end failed", "error", err)
			}
		}()
	}

	s.deps.Logger.Info("Session ended", "session", sess.SessionName, "id", sess.ID)
	return sess.ID, nil
}

func (s *Service) handleIntent(e dispatcher.Event) (any, error) {
	intent, clamped, err := ParseIntent(e.Args)
	if err != nil {
		return nil, err
	}
	if clamped {
		s.deps.Logger.Warn("Manual intent out of range, clamped",
			"forward", intent.Forward, "turn", intent.Turn)
	}
	s.deps.Controller.SetIntent(intent)
	return "ok", nil
}

func (s *Service) handleModeManual(e dispatcher.Event) (any, error) {
	// entering a mode by command starts from a stop; axes follow by intent
	s.deps.Controller.SetIntent(drive.Manual(0, 0))
	return "ok", nil
}

func (s *Service) handleModeVelocity(e dispatcher.Event) (any, error) {
	s.deps.Controller.SetIntent(drive.Velocity(0, 0))
	return "ok", nil
}

func (s *Service) handleToggleReverse(e dispatcher.Event) (any, error) {
	return s.deps.Controller.ToggleReverse(), nil
}

func (s *Service) handleToggleSlowTurn(e dispatcher.Event) (any, error) {
	return s.deps.Controller.ToggleSlowTurn(), nil
}

func (s *Service) handleReset(e dispatcher.Event) (any, error) {
	s.deps.Controller.Reset()
	return "ok", nil
}

func (s *Service) handleParamSet(e dispatcher.Event) (any, error) {
	key, value, err := ParseParamSet(e.Args)
	if err != nil {
		return nil, err
	}

	oldValue, _ := s.deps.Store.Get(key)
	s.deps.Store.Set(key, value)
	s.deps.Blackbox.RecordParamChange(key, oldValue, value)

	s.deps.Logger.Info("Tunable updated", "key", key, "old", oldValue, "new", value)
	return "ok", nil
}

func (s *Service) handleParamGet(e dispatcher.Event) (any, error) {
	key, err := ParseParamGet(e.Args)
	if err != nil {
		return nil, err
	}
	value, ok := s.deps.Store.Get(key)
	if !ok {
		return nil, fmt.Errorf("unknown tunable %q", key)
	}
	return value, nil
}

func (s *Service) handleParamList(e dispatcher.Event) (any, error) {
	keys := s.deps.Store.Keys()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.deps.Store.Get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// Status is the :STATUS: response payload.
type Status struct {
	Session     string          `json:"session"`
	Mode        string          `json:"mode"`
	Modifiers   drive.Modifiers `json:"modifiers"`
	LoopRunning bool            `json:"loopRunning"`
	Snapshot    *drive.Snapshot `json:"snapshot,omitempty"`
	Stats       scheduler.Stats `json:"stats"`
	WriteQueues any             `json:"writeQueues"`
}

func (s *Service) handleStatus(e dispatcher.Event) (any, error) {
	st := Status{
		Session:     s.deps.SessionContext.GetSession().SessionName,
		Mode:        s.deps.Controller.Mode().String(),
		Modifiers:   s.deps.Controller.Modifiers(),
		LoopRunning: s.deps.Scheduler.IsRunning(),
		Stats:       s.deps.Scheduler.Stats(),
		WriteQueues: s.deps.Blackbox.Queues().Lengths(),
	}
	if snap, ok := s.deps.Snapshots.Get(); ok {
		st.Snapshot = &snap
	}
	return st, nil
}

// Odom is the :ODOM: response payload. TrackWKT is the driven path in the
// local frame; WorldWKT is the same in EPSG 3857 when a geo origin is set.
type Odom struct {
	Pose     odometry.Pose `json:"pose"`
	TrackWKT string        `json:"trackWkt"`
	WorldWKT string        `json:"worldWkt,omitempty"`
}

func (s *Service) handleOdom(e dispatcher.Event) (any, error) {
	if s.deps.Odometry == nil {
		return nil, fmt.Errorf("odometry not available")
	}
	out := Odom{Pose: s.deps.Odometry.Pose()}
	if track, err := s.deps.Odometry.Track(); err == nil {
		out.TrackWKT = track.AsText()
	}
	if world, ok := s.deps.Odometry.WorldTrack(); ok {
		out.WorldWKT = world.AsText()
	}
	return out, nil
}

func (s *Service) handleVersion(e dispatcher.Event) (any, error) {
	return []string{s.deps.Version, s.deps.BuildDate}, nil
}
