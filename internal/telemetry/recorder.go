package telemetry

import (
	"github.com/openrover/drived/pkg/drive"
)

// Recorder publishes controller snapshots and lifecycle events to a Sink.
// It satisfies the controller's Recorder contract.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a telemetry recorder over sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// RecordTick publishes one decimated tick snapshot.
func (r *Recorder) RecordTick(s drive.Snapshot) {
	r.sink.Publish("drive_tick",
		map[string]string{
			"mode": s.Mode.String(),
		},
		map[string]any{
			"tick":          int64(s.Tick),
			"intentForward": s.Intent.Forward,
			"intentTurn":    s.Intent.Turn,
			"reverse":       s.Modifiers.Reverse,
			"slowTurn":      s.Modifiers.SlowTurn,
			"outputLeft":    s.Output.Left,
			"outputRight":   s.Output.Right,
			"saturated":     s.Saturated,
			"leftVelocity":  s.Feedback.LeftVelocity,
			"rightVelocity": s.Feedback.RightVelocity,
			"headingDeg":    s.Feedback.HeadingDeg,
			"durationUs":    s.Duration.Microseconds(),
		})
}

// RecordModeChange publishes a state transition.
func (r *Recorder) RecordModeChange(from, to drive.Mode, reason string) {
	r.sink.Publish("mode_change",
		map[string]string{
			"from": from.String(),
			"to":   to.String(),
		},
		map[string]any{
			"reason": reason,
		})
}

// RecordFault publishes a failed actuator write.
func (r *Recorder) RecordFault(source, message string, streak int) {
	r.sink.Publish("fault",
		map[string]string{
			"source": source,
		},
		map[string]any{
			"message": message,
			"streak":  streak,
		})
}
