package actuator

import (
	"fmt"
	"log/slog"

	"github.com/openrover/drived/internal/actuator/canbus"
	"github.com/openrover/drived/internal/actuator/serial"
	"github.com/openrover/drived/internal/actuator/sim"
	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/params"
)

// New creates an actuator backend based on configuration
func New(cfg config.ActuatorConfig, store params.Store, logger *slog.Logger) (Pair, error) {
	switch cfg.Backend {
	case "canbus":
		return canbus.New(cfg.Canbus, store, logger)
	case "serial":
		return serial.New(cfg.Serial, store, logger)
	case "sim":
		return sim.New(store, logger), nil
	default:
		return nil, fmt.Errorf("unknown actuator backend: %s", cfg.Backend)
	}
}

// compile-time checks that every backend satisfies the Pair contract
var (
	_ Pair = (*canbus.Backend)(nil)
	_ Pair = (*serial.Backend)(nil)
	_ Pair = (*sim.Backend)(nil)

	_ Configurer    = (*canbus.Backend)(nil)
	_ WheelSensors  = (*canbus.Backend)(nil)
	_ WheelSensors  = (*serial.Backend)(nil)
	_ WheelSensors  = (*sim.Backend)(nil)
	_ HeadingSensor = (*serial.Backend)(nil)
	_ HeadingSensor = (*sim.Backend)(nil)
)
