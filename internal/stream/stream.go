// Package stream publishes live drive data to an external observer (a
// dashboard or remote console) and accepts operator commands back over the
// same channel. Delivery is best effort: a dead stream never affects the
// control loop.
package stream

import (
	"github.com/openrover/drived/pkg/drive"
	"github.com/openrover/drived/pkg/streaming"
)

// CommandFunc handles an inbound remote command.
type CommandFunc func(command string, args []string)

// Backend is the interface all stream implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(p streaming.StartSessionPayload) error
	EndSession() error

	// Live data, fire-and-forget
	SendTick(s drive.Snapshot) error
	SendEvent(msgType string, payload any) error
}

// Recorder adapts a Backend to the controller's recorder contract.
type Recorder struct {
	backend Backend
}

// NewRecorder creates a stream recorder over backend.
func NewRecorder(backend Backend) *Recorder {
	return &Recorder{backend: backend}
}

// RecordTick forwards a decimated tick snapshot.
func (r *Recorder) RecordTick(s drive.Snapshot) {
	_ = r.backend.SendTick(s)
}

// RecordModeChange forwards a state transition.
func (r *Recorder) RecordModeChange(from, to drive.Mode, reason string) {
	_ = r.backend.SendEvent(streaming.TypeModeChange, streaming.ModeChangePayload{
		From:   from.String(),
		To:     to.String(),
		Reason: reason,
	})
}

// RecordFault forwards a failed actuator write.
func (r *Recorder) RecordFault(source, message string, streak int) {
	_ = r.backend.SendEvent(streaming.TypeFault, streaming.FaultPayload{
		Source:  source,
		Message: message,
		Streak:  streak,
	})
}
