package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openrover/drived/internal/api"
	"github.com/openrover/drived/internal/blackbox"
	"github.com/openrover/drived/internal/command"
	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/database"
	"github.com/openrover/drived/internal/dispatcher"
	"github.com/openrover/drived/internal/model"
)

func main() {
	verb := ""
	args := os.Args[1:]
	if len(args) > 0 {
		verb = strings.ToLower(args[0])
		args = args[1:]
	}

	var err error
	switch verb {
	case "", "run":
		if err = initDaemon(); err != nil {
			fmt.Fprintln(os.Stderr, "init failed:", err)
			os.Exit(1)
		}
		err = runDaemon()
	case "bench":
		err = runBench(args)
	case "setupdb":
		err = runSetupDB()
	case "migratebackups":
		err = runMigrateBackups()
	case "dump":
		err = runDump(args)
	case "upload":
		err = runUpload(args)
	case "version":
		fmt.Printf("%s %s (built %s)\n", DaemonName, Version, BuildDate)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintln(os.Stderr, "usage: drived [run|bench|setupdb|migratebackups|dump <sessionID>|upload <file>|version]")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runBench runs the control loop against the sim backend for a fixed duration
// and prints the scheduler statistics. External sinks are disabled so the
// numbers reflect the loop itself.
func runBench(args []string) error {
	duration := 10 * time.Second
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid bench duration %q: %w", args[0], err)
		}
		duration = d
	}

	if err := initDaemon(); err != nil {
		return err
	}
	viper.Set("actuator.backend", "sim")
	viper.Set("stream.enabled", false)
	viper.Set("influx.enabled", false)
	viper.Set("blackbox.enabled", false)
	viper.Set("otel.enabled", false)

	if err := startServices(); err != nil {
		return err
	}

	// exercise the full tick path, not just an idle loop
	if _, err := eventDispatcher.Dispatch(dispatcher.Event{
		Command:   command.CmdIntent,
		Args:      []string{"0.5", "0.2"},
		Timestamp: time.Now(),
	}); err != nil {
		return err
	}

	fmt.Printf("benchmarking sim loop for %s at period %s\n", duration, loop.Period())
	time.Sleep(duration)

	stats := loop.Stats()
	shutdown()

	fmt.Printf("ticks:         %d\n", stats.Ticks)
	fmt.Printf("overruns:      %d\n", stats.Overruns)
	fmt.Printf("panics:        %d\n", stats.Panics)
	fmt.Printf("last duration: %s\n", stats.LastDuration)
	fmt.Printf("max duration:  %s\n", stats.MaxDuration)
	fmt.Printf("mean duration: %s\n", stats.MeanDuration)
	return nil
}

// initUtility loads config and console logging for the offline verbs.
func initUtility() error {
	ConfigDir = os.Getenv("DRIVED_CONFIG_DIR")
	if ConfigDir == "" {
		ConfigDir = "."
	}
	if err := config.Load(ConfigDir); err != nil {
		fmt.Fprintln(os.Stderr, "warning: no config file, using defaults:", err)
	}
	LogsDir = viper.GetString("logsDir")
	return nil
}

// runSetupDB migrates the central Postgres schema and seeds the daemon info
// row, so a fresh fleet database is ready before the first drive.
func runSetupDB() error {
	if err := initUtility(); err != nil {
		return err
	}

	db, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("accessing sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("validating connection: %w", err)
	}

	fmt.Println("migrating schema...")
	if err = db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	var count int64
	db.Model(&model.DaemonInfo{}).Count(&count)
	if count == 0 {
		err = db.Create(&model.DaemonInfo{
			VehicleName:   viper.GetString("vehicleName"),
			DaemonVersion: Version,
			BuildDate:     BuildDate,
		}).Error
		if err != nil {
			return fmt.Errorf("seeding daemon info: %w", err)
		}
	}

	fmt.Println("database setup complete")
	return nil
}

// runMigrateBackups pushes every local sqlite dump in the logs directory into
// the central Postgres database, then marks the file migrated.
func runMigrateBackups() error {
	if err := initUtility(); err != nil {
		return err
	}

	sqlitePaths, err := database.GetBackupDBPaths(LogsDir)
	if err != nil {
		return fmt.Errorf("listing backup databases: %w", err)
	}
	if len(sqlitePaths) == 0 {
		fmt.Println("no backup databases found in", LogsDir)
		return nil
	}

	postgresDB, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	if err = postgresDB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	successfulMigrations := make([]string, 0)
	for _, sqlitePath := range sqlitePaths {
		sqliteDB, err := database.GetSqliteDBStandalone(sqlitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite backup %s: %w", sqlitePath, err)
		}

		// transaction for Postgres so we can rollback on errors
		tx := postgresDB.Begin()

		err = migrateTable(sqliteDB, tx, model.DaemonInfo{}, "daemon_infos")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating daemon_infos: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.Session{}, "sessions")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating sessions: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.DriveTick{}, "drive_ticks")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating drive_ticks: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.ModeChange{}, "mode_changes")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating mode_changes: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.Fault{}, "faults")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating faults: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.ParamChange{}, "param_changes")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating param_changes: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.LoopPerformance{}, "loop_performances")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating loop_performances: %w", err)
		}

		tx.Commit()

		sqlConnection, err := sqliteDB.DB()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error getting sqlite connection:", err)
			continue
		}
		if err = sqlConnection.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "error closing sqlite connection:", err)
		}
		if err = os.Rename(sqlitePath, sqlitePath+".migrated"); err != nil {
			fmt.Fprintln(os.Stderr, "error renaming sqlite file:", err)
		}
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	fmt.Printf("migrated %d backups, delete the .migrated files to avoid future duplication:\n", len(successfulMigrations))
	for _, p := range successfulMigrations {
		fmt.Println("  ", p)
	}
	return nil
}

// migrateTable copies one table from a sqlite backup into Postgres. IDs are
// dropped so the central database assigns fresh ones, and conflicts are
// skipped rather than failing the whole batch.
func migrateTable[M any](
	sqliteDB *gorm.DB,
	postgresDB *gorm.DB,
	tableModel M,
	tableName string,
) (err error) {
	var data = &map[string]any{}
	sqliteDB.Model(&tableModel).
		Assign("id", gorm.Expr("NULL")).
		Find(data)
	fmt.Printf("found %d records in %s\n", len(*data), tableName)

	if len(*data) == 0 {
		return nil
	}

	postgresDB.Model(&tableModel).Clauses(
		clause.OnConflict{
			DoNothing: true,
		}).Create(data)
	if postgresDB.Error != nil {
		return fmt.Errorf("inserting into %s: %w", tableName, postgresDB.Error)
	}

	return nil
}

// runDump exports one recorded session from the central database as gzip JSON.
func runDump(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("dump expects a session ID")
	}
	sessionID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	if err := initUtility(); err != nil {
		return err
	}
	db, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	path := fmt.Sprintf("session_%d.json.gz", sessionID)
	dump, err := blackbox.ExportSession(db, uint(sessionID), path)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s: session %q, %d ticks, %d mode changes, %d faults, %d param changes\n",
		path, dump.Session.SessionName,
		len(dump.Ticks), len(dump.ModeChanges), len(dump.Faults), len(dump.ParamChanges))
	return nil
}

// runUpload sends a session dump to the fleet server.
func runUpload(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("upload expects a file path")
	}
	filePath := args[0]

	if err := initUtility(); err != nil {
		return err
	}

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(); err != nil {
		return fmt.Errorf("fleet server unreachable: %w", err)
	}

	name := filepath.Base(filePath)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".json")

	err := client.Upload(filePath, api.UploadMetadata{
		SessionName:     name,
		VehicleName:     viper.GetString("vehicleName"),
		ActuatorBackend: viper.GetString("actuator.backend"),
	})
	if err != nil {
		return err
	}

	fmt.Println("uploaded", filePath)
	return nil
}
