package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&DaemonInfo{},
	&Session{},
	&DriveTick{},
	&ModeChange{},
	&Fault{},
	&ParamChange{},
	&LoopPerformance{},
}

// DatabaseModelsSQLite mirrors DatabaseModels for the local fallback schema.
var DatabaseModelsSQLite = []interface{}{
	&DaemonInfo{},
	&Session{},
	&DriveTick{},
	&ModeChange{},
	&Fault{},
	&ParamChange{},
	&LoopPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// DaemonInfo contains information about the daemon instance
type DaemonInfo struct {
	gorm.Model
	VehicleName   string `json:"vehicleName" gorm:"size:127"`
	DaemonVersion string `json:"daemonVersion" gorm:"size:63"`
	BuildDate     string `json:"buildDate" gorm:"size:63"`
}

func (*DaemonInfo) TableName() string {
	return "daemon_infos"
}

// Session is one continuous run of the drive loop, from :SESSION:START: to
// :SESSION:END: or daemon shutdown.
type Session struct {
	gorm.Model
	SessionName     string       `json:"sessionName" gorm:"size:191"`
	VehicleName     string       `json:"vehicleName" gorm:"size:127"`
	ActuatorBackend string       `json:"actuatorBackend" gorm:"size:31"`
	LoopPeriodMs    float64      `json:"loopPeriodMs"`
	StartTime       time.Time    `json:"startTime" gorm:"type:timestamptz;index:idx_session_start_time"`
	EndTime         sql.NullTime `json:"endTime" gorm:"type:timestamptz"`
	DaemonVersion   string       `json:"daemonVersion" gorm:"size:63"`
	BuildDate       string       `json:"buildDate" gorm:"size:63"`
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// DRIVE RECORDS
////////////////////////

// DriveTick is one decimated snapshot of the control loop: the intent that
// was consumed, the modifiers in force and the output that was commanded.
type DriveTick struct {
	Time          time.Time `json:"time" gorm:"type:timestamptz;index:idx_drivetick_time"`
	SessionID     uint      `json:"sessionId" gorm:"index:idx_drivetick_session_id"`
	Session       Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick          uint64    `json:"tick"`
	Mode          string    `json:"mode" gorm:"size:15"`
	IntentForward float64   `json:"intentForward"`
	IntentTurn    float64   `json:"intentTurn"`
	Reverse       bool      `json:"reverse"`
	SlowTurn      bool      `json:"slowTurn"`
	OutputLeft    float64   `json:"outputLeft"`
	OutputRight   float64   `json:"outputRight"`
	Saturated     bool      `json:"saturated"`
	LeftVelocity  float64   `json:"leftVelocity"`
	RightVelocity float64   `json:"rightVelocity"`
	HeadingDeg    float64   `json:"headingDeg"`
	DurationUs    int64     `json:"durationUs"`
}

func (*DriveTick) TableName() string {
	return "drive_ticks"
}

// ModeChange records a control mode transition, including resets back to the
// default manual mode.
type ModeChange struct {
	gorm.Model
	Time      time.Time `json:"time" gorm:"type:timestamptz;index:idx_modechange_time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_modechange_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	FromMode  string    `json:"fromMode" gorm:"size:15"`
	ToMode    string    `json:"toMode" gorm:"size:15"`
	Reason    string    `json:"reason" gorm:"size:63"`
}

func (*ModeChange) TableName() string {
	return "mode_changes"
}

// Fault records a failed actuator write or other non-fatal loop error.
type Fault struct {
	gorm.Model
	Time      time.Time      `json:"time" gorm:"type:timestamptz;index:idx_fault_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_fault_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Source    string         `json:"source" gorm:"size:63"`
	Message   string         `json:"message" gorm:"size:255"`
	Streak    int            `json:"streak"`
	Payload   datatypes.JSON `json:"payload"`
}

func (*Fault) TableName() string {
	return "faults"
}

// ParamChange records a runtime tunable write, with the value before and
// after as JSON so non-numeric tunables survive round-tripping.
type ParamChange struct {
	gorm.Model
	Time      time.Time      `json:"time" gorm:"type:timestamptz;index:idx_paramchange_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_paramchange_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Key       string         `json:"key" gorm:"size:127"`
	OldValue  datatypes.JSON `json:"oldValue"`
	NewValue  datatypes.JSON `json:"newValue"`
}

func (*ParamChange) TableName() string {
	return "param_changes"
}

////////////////////////
// PERFORMANCE MODELS
////////////////////////

// LoopPerformance is the model for periodic loop health metrics
type LoopPerformance struct {
	Time                time.Time         `json:"time" gorm:"type:timestamptz;index:idx_loopperf_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_loopperformance_session_id"`
	Session             Session           `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	TickCount           uint64            `json:"tickCount"`
	OverrunCount        uint64            `json:"overrunCount"`
	AvgTickMicros       float64           `json:"avgTickMicros"`
	MaxTickMicros       float64           `json:"maxTickMicros"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*LoopPerformance) TableName() string {
	return "loop_performances"
}

// WriteQueueLengths is the model for the blackbox write queue lengths
type WriteQueueLengths struct {
	Ticks        uint16 `json:"ticks"`
	ModeChanges  uint16 `json:"modeChanges"`
	Faults       uint16 `json:"faults"`
	ParamChanges uint16 `json:"paramChanges"`
}
