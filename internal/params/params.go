// Package params provides the runtime-tunable parameter store for the drive
// loop. The store is injected into every consumer; nothing reads tuning values
// through package globals. Lookups never fail: a missing key yields the caller
// default, so the control loop keeps producing output with a partially
// populated store.
package params

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/spf13/viper"
)

// Store is the read/write surface handed to the controller, the velocity
// loops and the actuator backends. Writes become visible to the next read;
// with the 5 ms control period that means the next tick at the latest.
type Store interface {
	Float(key string, def float64) float64
	Int(key string, def int) int
	Bool(key string, def bool) bool
	String(key string, def string) string
	Set(key string, value any)
	Keys() []string
}

// Defaults returns the seed values for every tunable the daemon knows about.
// The bootstrap config's tuning section overlays these at startup.
func Defaults() map[string]any {
	return map[string]any{
		"drive.slowTurnFactor":      0.5,
		"drive.trackWidthMeters":    0.55,
		"drive.wheelDiameterMeters": 0.1524,
		"drive.gearRatio":           10.71,
		"drive.rampRateSeconds":     0.25,
		"drive.currentLimitAmps":    60,
		"drive.idleBrake":           true,
		"drive.testingMode":         false,
		"velocity.p":                0.0002,
		"velocity.i":                0.0,
		"velocity.d":                0.0,
		"velocity.ff":               0.00017,
		"telemetry.decimation":      3,
	}
}

// ViperStore implements Store on a private viper instance. Defaults sit in
// viper's default layer, runtime writes in its override layer, so Set always
// wins over seeds without erasing them.
type ViperStore struct {
	mu       sync.RWMutex
	v        *viper.Viper
	logger   *slog.Logger
	missing  map[string]struct{}
	onChange []func(key string)
}

// NewViperStore creates a store seeded with Defaults.
func NewViperStore(logger *slog.Logger) *ViperStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ViperStore{
		v:       viper.New(),
		logger:  logger,
		missing: make(map[string]struct{}),
	}
	for k, val := range Defaults() {
		s.v.SetDefault(k, val)
	}
	return s
}

// Seed installs additional defaults, typically the tuning section of the
// daemon config file. Existing runtime overrides are preserved.
func (s *ViperStore) Seed(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, val := range values {
		s.v.SetDefault(k, val)
	}
}

// noteMissing logs the first lookup of an unknown key. Later lookups stay
// silent so a hot loop cannot flood the log.
func (s *ViperStore) noteMissing(key string) {
	if _, seen := s.missing[key]; seen {
		return
	}
	s.missing[key] = struct{}{}
	s.logger.Debug("Tunable not configured, using caller default", "key", key)
}

// Float returns the tunable for key, or def when the key was never seeded.
func (s *ViperStore) Float(key string, def float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		s.noteMissing(key)
		return def
	}
	return s.v.GetFloat64(key)
}

// Int returns the tunable for key, or def when the key was never seeded.
func (s *ViperStore) Int(key string, def int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		s.noteMissing(key)
		return def
	}
	return s.v.GetInt(key)
}

// Bool returns the tunable for key, or def when the key was never seeded.
func (s *ViperStore) Bool(key string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		s.noteMissing(key)
		return def
	}
	return s.v.GetBool(key)
}

// String returns the tunable for key, or def when the key was never seeded.
func (s *ViperStore) String(key string, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		s.noteMissing(key)
		return def
	}
	return s.v.GetString(key)
}

// Get returns the raw stored value and whether the key is known. Used by the
// parameter command handlers; the typed getters are the loop-facing surface.
func (s *ViperStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return nil, false
	}
	return s.v.Get(key), true
}

// Set stores a runtime override and fires change callbacks.
func (s *ViperStore) Set(key string, value any) {
	s.mu.Lock()
	s.v.Set(key, value)
	callbacks := make([]func(string), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(key)
	}
}

// OnChange registers fn to run after every Set. Callbacks run on the caller's
// goroutine and must not call back into the store under their own locks.
func (s *ViperStore) OnChange(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Keys returns all seeded and overridden keys, sorted.
func (s *ViperStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.v.AllKeys()
	sort.Strings(keys)
	return keys
}

// MissingCount reports how many distinct unknown keys have been requested,
// for the health monitor and telemetry.
func (s *ViperStore) MissingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.missing)
}

var _ Store = (*ViperStore)(nil)
