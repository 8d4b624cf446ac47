// Package websocket streams live drive data to a remote console over a
// WebSocket connection and routes operator commands sent back on the same
// socket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openrover/drived/pkg/drive"
	"github.com/openrover/drived/pkg/streaming"
)

// CommandFunc handles an inbound remote command.
type CommandFunc func(command string, args []string)

// Config holds WebSocket backend configuration.
type Config struct {
	URL       string
	Secret    string
	OnCommand CommandFunc
}

// Backend streams session data over WebSocket to a remote console server.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket stream backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(cfg.OnCommand, logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// SendEvent marshals the payload into an Envelope and pushes it to the write
// loop (fire-and-forget).
func (b *Backend) SendEvent(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// SendTick streams a decimated tick snapshot.
func (b *Backend) SendTick(s drive.Snapshot) error {
	return b.SendEvent(streaming.TypeTick, s)
}

// StartSession announces the session and waits for server ack.
func (b *Backend) StartSession(p streaming.StartSessionPayload) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, p)
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedSessionMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedSessionMsg = nil
	b.conn.mu.Unlock()

	return err
}
