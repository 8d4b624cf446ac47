package streaming

import (
	"encoding/json"
	"time"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTick         = "tick"
	TypeModeChange   = "mode_change"
	TypeFault        = "fault"
	TypeParamChange  = "param_change"

	// TypeCommand is the inbound direction: a remote console sending an
	// operator command to the daemon.
	TypeCommand = "command"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a new drive session to the stream server.
type StartSessionPayload struct {
	SessionName     string    `json:"sessionName"`
	VehicleName     string    `json:"vehicleName"`
	ActuatorBackend string    `json:"actuatorBackend"`
	LoopPeriodMs    float64   `json:"loopPeriodMs"`
	StartTime       time.Time `json:"startTime"`
	DaemonVersion   string    `json:"daemonVersion"`
}

// ModeChangePayload carries a control mode transition.
type ModeChangePayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// FaultPayload carries a non-fatal loop fault.
type FaultPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Streak  int    `json:"streak"`
}

// ParamChangePayload carries a runtime tunable write.
type ParamChangePayload struct {
	Key      string `json:"key"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// CommandPayload is an inbound operator command from a remote console.
type CommandPayload struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}
