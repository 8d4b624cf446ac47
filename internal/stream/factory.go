package stream

import (
	"fmt"
	"log/slog"

	"github.com/openrover/drived/internal/config"
	"github.com/openrover/drived/internal/stream/memory"
	"github.com/openrover/drived/internal/stream/websocket"
)

// NewBackend creates a stream backend based on configuration. onCommand
// receives inbound remote commands; it may be nil for send-only streams.
func NewBackend(cfg config.StreamConfig, onCommand CommandFunc, logger *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "websocket":
		return websocket.New(websocket.Config{
			URL:       cfg.Websocket.URL,
			Secret:    cfg.Websocket.Secret,
			OnCommand: websocket.CommandFunc(onCommand),
		}, logger), nil
	case "memory":
		return memory.New(cfg.Memory.Capacity), nil
	default:
		return nil, fmt.Errorf("unknown stream backend: %s", cfg.Backend)
	}
}

var (
	_ Backend = (*websocket.Backend)(nil)
	_ Backend = (*memory.Backend)(nil)
)
