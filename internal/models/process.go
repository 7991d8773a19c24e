package models

import "time"

// ProcessState is a state of the reflow process orchestrator.
type ProcessState int

const (
	StateIdle ProcessState = iota
	StatePrecheck
	StateRunning
	StateComplete
	StateError
)

func (s ProcessState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePrecheck:
		return "PRECHECK"
	case StateRunning:
		return "RUNNING"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (s ProcessState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProcessStatus is the orchestrator snapshot exposed to the UI.
type ProcessStatus struct {
	State       ProcessState  `json:"state"`
	CurveName   string        `json:"curve_name,omitempty"`
	StepIndex   int           `json:"step_index"`
	StepLabel   string        `json:"step_label,omitempty"`
	StepElapsed time.Duration `json:"step_elapsed"`
	TargetTempC float64       `json:"target_temp_c"`
	LastError   string        `json:"last_error,omitempty"`
	RunID       string        `json:"run_id,omitempty"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
}

// RunRecord is one row of reflow run history.
type RunRecord struct {
	ID         string    `json:"id"`
	CurveName  string    `json:"curve_name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Outcome    string    `json:"outcome"` // RUNNING | COMPLETE | CANCELLED | ERROR
	PeakTempC  float64   `json:"peak_temp_c"`
	Detail     string    `json:"detail,omitempty"`
}

// Run outcomes.
const (
	OutcomeRunning   = "RUNNING"
	OutcomeComplete  = "COMPLETE"
	OutcomeCancelled = "CANCELLED"
	OutcomeError     = "ERROR"
)

// OvenStatus aggregates every component snapshot for monitoring.
type OvenStatus struct {
	Sensors     SensorSnapshot   `json:"sensors"`
	Control     ControlState     `json:"control"`
	Door        DoorState        `json:"door"`
	Calibration CalibrationState `json:"calibration"`
	Process     ProcessStatus    `json:"process"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
