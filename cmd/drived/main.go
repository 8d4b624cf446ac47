// drived is the drive-control daemon for a differential-drive ground vehicle.
// It runs a fixed-period control loop converting operator intent into per-side
// actuator commands, records every session to a blackbox database and streams
// live state to a remote console.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/openrover/drived/internal/actuator"
	"github.com/openrover/drived/internal/blackbox"
	"github.com/openrover/drived/internal/cache"
	"github.com/openrover/drived/internal/command"
	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/database"
	"github.com/openrover/drived/internal/dispatcher"
	drivectl "github.com/openrover/drived/internal/drive"
	"github.com/openrover/drived/internal/logging"
	"github.com/openrover/drived/internal/monitor"
	"github.com/openrover/drived/internal/odometry"
	intotel "github.com/openrover/drived/internal/otel"
	"github.com/openrover/drived/internal/params"
	"github.com/openrover/drived/internal/scheduler"
	"github.com/openrover/drived/internal/session"
	"github.com/openrover/drived/internal/stream"
	"github.com/openrover/drived/internal/telemetry"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version    string = "0.1.0"
	BuildDate  string = "unknown"
	DaemonName string = "drived"
)

// file paths
var (
	// ConfigDir is where drived.cfg.json lives, DRIVED_CONFIG_DIR or cwd.
	ConfigDir string

	// LogsDir holds log files, sqlite dumps and the status file.
	LogsDir string

	DrivedLogFilePath string
	DrivedLogFile     *os.File

	// SqliteDBFilePath refers to the sqlite fallback database dump file
	SqliteDBFilePath string
)

// global state
var (
	StartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger feeds the zerolog-based packages (database, influx, dispatcher)
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intotel.Provider

	// DBManager owns the gorm connection with sqlite fallback
	DBManager *database.Manager

	// Store holds the runtime tunables
	Store *params.ViperStore

	SessionContext *session.Context     = session.NewContext()
	Snapshots      *cache.SnapshotCache = cache.NewSnapshotCache()
	Faults         *cache.FaultCache    = cache.NewFaultCache()

	// Services
	actuatorPair    actuator.Pair
	controller      *drivectl.Controller
	loop            *scheduler.Service
	blackboxManager *blackbox.Manager
	monitorService  *monitor.Service
	commandService  *command.Service
	eventDispatcher *dispatcher.Dispatcher
	streamBackend   stream.Backend
	influxManager   *telemetry.InfluxManager
	telemetrySink   telemetry.Sink
	tracker         *odometry.Tracker
)

// initDaemon loads config and brings up logging, OTel and the tunable store.
// Everything later assumes these exist.
func initDaemon() error {
	var err error

	ConfigDir = os.Getenv("DRIVED_CONFIG_DIR")
	if ConfigDir == "" {
		ConfigDir = "."
	}

	// bootstrap logging to stderr until the log file is open
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if err = config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}

	LogsDir = viper.GetString("logsDir")
	if _, err := os.Stat(LogsDir); os.IsNotExist(err) {
		os.MkdirAll(LogsDir, 0755)
	}

	DrivedLogFilePath = filepath.Join(LogsDir,
		fmt.Sprintf("%s.%s.log", DaemonName, StartTime.Format("20060102_150405")))
	DrivedLogFile, err = os.OpenFile(DrivedLogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to create log file %s: %w", DrivedLogFilePath, err)
	}

	// OTel provider wants the log file as its exporter target
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intotel.New(intotel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    DrivedLogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(DrivedLogFile, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", DrivedLogFilePath)

	if viper.GetBool("graylog.enabled") {
		if err := SlogManager.EnableGelf(viper.GetString("graylog.address")); err != nil {
			Logger.Warn("Failed to enable GELF output", "error", err)
		}
	}

	ZLogger = zerolog.New(DrivedLogFile).With().Timestamp().Logger()

	// dynamic state callbacks enrich every log record
	SlogManager.GetSessionName = func() string {
		return SessionContext.GetSession().SessionName
	}
	SlogManager.GetMode = func() string {
		if controller != nil {
			return controller.Mode().String()
		}
		return ""
	}
	SlogManager.IsUsingLocalDB = func() bool {
		return DBManager != nil && DBManager.ShouldSaveLocal
	}
	SlogManager.IsLoopRunning = func() bool {
		return loop != nil && loop.IsRunning()
	}

	Store = params.NewViperStore(Logger)
	Store.Seed(config.GetTuning())

	SqliteDBFilePath = filepath.Join(LogsDir,
		fmt.Sprintf("%s_%s.db", DaemonName, StartTime.Format("20060102_150405")))

	return nil
}

// startServices wires and starts everything in dependency order: database,
// blackbox, telemetry, stream, actuator, controller, scheduler, dispatcher,
// monitor.
func startServices() error {
	var err error

	DBManager = database.NewManager(ZLogger)
	DBManager.SqliteFilePath = SqliteDBFilePath
	if err = DBManager.Connect(); err != nil {
		Logger.Error("No usable database, blackbox recording disabled", "error", err)
	} else if err = DBManager.Setup(Version, BuildDate); err != nil {
		Logger.Error("Database setup failed, blackbox recording disabled", "error", err)
	}
	isDBValid := func() bool { return DBManager.IsValid }

	bbCfg := config.GetBlackboxConfig()
	blackboxManager = blackbox.NewManager(blackbox.Dependencies{
		DB:              DBManager.DB,
		SessionContext:  SessionContext,
		Logger:          Logger,
		IsDatabaseValid: isDBValid,
		BatchSize:       bbCfg.BatchSize,
		FlushInterval:   bbCfg.FlushInterval,
	})
	if bbCfg.Enabled {
		blackboxManager.Start()
	}

	if viper.GetBool("influx.enabled") {
		influxManager = telemetry.NewInfluxManager(ZLogger, LogsDir)
		influxManager.SetGlobalTags(map[string]string{
			"vehicle": viper.GetString("vehicleName"),
		})
		if err = influxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unreachable, points go to the backup file", "error", err)
		}
		influxManager.CreateWriters()
		telemetrySink = telemetry.NewAsync(influxManager, 4096)
	} else {
		telemetrySink = telemetry.Discard{}
	}

	actCfg := config.GetActuatorConfig()
	actuatorPair, err = actuator.New(actCfg, Store, Logger)
	if err != nil {
		return fmt.Errorf("actuator backend %q: %w", actCfg.Backend, err)
	}
	Logger.Info("Actuator backend ready", "backend", actCfg.Backend)

	_, hasGyro := actuatorPair.(actuator.HeadingSensor)
	tracker = odometry.New(Store, config.GetGeoConfig(), hasGyro)

	recorders := []drivectl.Recorder{blackboxManager}
	if _, ok := telemetrySink.(telemetry.Discard); !ok {
		recorders = append(recorders, telemetry.NewRecorder(telemetrySink))
	}

	streamCfg := config.GetStreamConfig()
	if streamCfg.Enabled {
		streamBackend, err = stream.NewBackend(streamCfg, dispatchRemoteCommand, Logger)
		if err != nil {
			Logger.Warn("Stream backend unavailable", "error", err)
			streamBackend = nil
		} else if err = streamBackend.Init(); err != nil {
			Logger.Warn("Stream init failed, continuing without live stream", "error", err)
			streamBackend = nil
		} else {
			recorders = append(recorders, stream.NewRecorder(streamBackend))
			Logger.Info("Live stream connected", "backend", streamCfg.Backend)
		}
	}

	controller = drivectl.NewController(drivectl.Dependencies{
		Store:     Store,
		Actuator:  actuatorPair,
		Logger:    Logger,
		Faults:    Faults,
		Snapshots: Snapshots,
		Recorders: recorders,
		Odometer:  tracker,
	})

	loopCfg := config.GetLoopConfig()
	loop, err = scheduler.NewService(scheduler.Dependencies{
		Period:   loopCfg.Period,
		Callback: controller.Tick,
		Logger:   Logger,
	})
	if err != nil {
		return err
	}

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(ZLogger))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	commandService = command.NewService(command.Dependencies{
		Controller:      controller,
		Store:           Store,
		Blackbox:        blackboxManager,
		SessionContext:  SessionContext,
		Snapshots:       Snapshots,
		Scheduler:       loop,
		Odometry:        tracker,
		DB:              DBManager.DB,
		IsDatabaseValid: isDBValid,
		Stream:          streamBackend,
		Logger:          Logger,
		VehicleName:     viper.GetString("vehicleName"),
		ActuatorBackend: actCfg.Backend,
		Version:         Version,
		BuildDate:       BuildDate,
	})
	commandService.RegisterHandlers(eventDispatcher)
	registerLifecycleHandlers(eventDispatcher)

	monitorService = monitor.NewService(monitor.Dependencies{
		DB:              DBManager.DB,
		LogManager:      SlogManager,
		SessionContext:  SessionContext,
		Scheduler:       loop,
		Blackbox:        blackboxManager,
		Faults:          Faults,
		Telemetry:       telemetrySink,
		LogsDir:         LogsDir,
		IsDatabaseValid: isDBValid,
	})
	monitorService.Start()

	go sqliteDumpLoop(bbCfg.DumpInterval)

	loop.Start()
	return nil
}

// sqliteDumpLoop periodically pauses blackbox inserts and dumps the in-memory
// sqlite fallback to disk so a crash loses at most one interval.
func sqliteDumpLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	for {
		time.Sleep(interval)
		if DBManager == nil || !DBManager.ShouldSaveLocal {
			continue
		}

		blackboxManager.Pause()
		if err := DBManager.DumpMemoryToDisk(); err != nil {
			Logger.Error("Error dumping memory DB to disk", "error", err)
		}
		blackboxManager.Resume()
	}
}

// remoteCommands maps console verb names to dispatcher wire constants.
var remoteCommands = map[string]string{
	"set_intent":       command.CmdIntent,
	"toggle_reverse":   command.CmdToggleReverse,
	"toggle_slow_turn": command.CmdToggleSlowTurn,
	"reset":            command.CmdReset,
	"param_set":        command.CmdParamSet,
	"session_start":    command.CmdSessionStart,
	"session_end":      command.CmdSessionEnd,
	"status":           command.CmdStatus,
}

// dispatchRemoteCommand routes a command arriving on the live stream into the
// dispatcher. Unknown verbs are passed through so raw wire constants work too.
func dispatchRemoteCommand(cmd string, args []string) {
	if eventDispatcher == nil {
		return
	}
	if cmd == "set_mode" {
		cmd = command.CmdModeManual
		if len(args) > 0 && args[0] == "velocity" {
			cmd = command.CmdModeVelocity
		}
		args = nil
	} else if wire, ok := remoteCommands[cmd]; ok {
		cmd = wire
	}

	if _, err := eventDispatcher.Dispatch(dispatcher.Event{
		Command:   cmd,
		Args:      args,
		Timestamp: time.Now(),
	}); err != nil {
		Logger.Warn("Remote command failed", "command", cmd, "error", err)
	}
}

// registerLifecycleHandlers adds daemon-level commands that sit outside the
// drive command surface.
func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":FLUSH:", func(e dispatcher.Event) (any, error) {
		blackboxManager.Flush()
		if OTelProvider != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := OTelProvider.Flush(ctx); err != nil {
				Logger.Warn("Failed to flush OTel data", "error", err)
			}
		}
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(":HEALTH:", func(e dispatcher.Event) (any, error) {
		return monitorService.Healthy(), nil
	})

	d.Register(":GETDIR:LOGS:", func(e dispatcher.Event) (any, error) {
		return LogsDir, nil
	})
}

// shutdown stops everything in the reverse of start order. The actuator is
// zeroed before anything else so the vehicle never keeps driving while the
// daemon unwinds.
func shutdown() {
	Logger.Info("Shutting down")

	if loop != nil {
		loop.Stop()
	}
	if controller != nil {
		controller.Reset()
	}
	if actuatorPair != nil {
		_ = actuatorPair.Stop()
		_ = actuatorPair.Close()
	}

	if SessionContext.Active() && eventDispatcher != nil {
		if _, err := eventDispatcher.Dispatch(dispatcher.Event{
			Command:   command.CmdSessionEnd,
			Timestamp: time.Now(),
		}); err != nil {
			Logger.Error("Failed to end session on shutdown", "error", err)
		}
	}

	if monitorService != nil {
		monitorService.Stop()
	}
	if blackboxManager != nil {
		blackboxManager.Stop()
	}
	if DBManager != nil && DBManager.ShouldSaveLocal && DBManager.IsValid {
		if err := DBManager.DumpMemoryToDisk(); err != nil {
			Logger.Error("Final sqlite dump failed", "error", err)
		}
	}

	if streamBackend != nil {
		_ = streamBackend.Close()
	}
	if async, ok := telemetrySink.(*telemetry.Async); ok {
		async.Close()
	}
	if influxManager != nil {
		influxManager.Close()
	}

	if OTelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("OTel shutdown failed", "error", err)
		}
	}

	Logger.Info("Shutdown complete")
	if DrivedLogFile != nil {
		DrivedLogFile.Close()
	}
}

// runDaemon is the default verb: start everything and wait for a signal.
func runDaemon() error {
	if err := startServices(); err != nil {
		return err
	}
	Logger.Info("drived running",
		"version", Version,
		"pid", os.Getpid(),
		"period", loop.Period(),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	Logger.Info("Signal received", "signal", s.String())

	shutdown()
	return nil
}
