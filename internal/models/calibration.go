package models

import "time"

// PowerBuckets is the number of 10% power levels characterized per temperature point.
const PowerBuckets = 10

// RateRow holds one rate (°C/s) per power bucket, 10%..100%.
type RateRow [PowerBuckets]float32

// ThermalCalibrationSummary holds the measured heating/cooling rate tables.
// Rows are indexed like TempPoints, which is ascending.
type ThermalCalibrationSummary struct {
	TempPoints  []float32 `json:"temp_points"`
	HeatingRate []RateRow `json:"heating_rate"`
	CoolingRate []RateRow `json:"cooling_rate"`
}

// NewThermalCalibrationSummary allocates zeroed tables for the given points.
func NewThermalCalibrationSummary(points []float64) ThermalCalibrationSummary {
	s := ThermalCalibrationSummary{
		TempPoints:  make([]float32, len(points)),
		HeatingRate: make([]RateRow, len(points)),
		CoolingRate: make([]RateRow, len(points)),
	}
	for i, p := range points {
		s.TempPoints[i] = float32(p)
	}
	return s
}

// DoorCalibrationData stores the discovered servo endpoints.
type DoorCalibrationData struct {
	IsCalibrated        bool    `json:"is_calibrated"`
	OpenPositionAngle   float32 `json:"open_position_angle"`
	ClosedPositionAngle float32 `json:"closed_position_angle"`
}

// CalibrationProfile is the single persisted calibration artifact.
type CalibrationProfile struct {
	FrontSensorOffset float32                   `json:"front_sensor_offset"`
	BackSensorOffset  float32                   `json:"back_sensor_offset"`
	Thermal           ThermalCalibrationSummary `json:"thermal"`
	Door              DoorCalibrationData       `json:"door"`
	LastCalibration   time.Time                 `json:"last_calibration"`
	IsCalibrated      bool                      `json:"is_calibrated"`
}

// Clone returns a deep copy so callers never alias the engine's tables.
func (p CalibrationProfile) Clone() CalibrationProfile {
	out := p
	out.Thermal.TempPoints = append([]float32(nil), p.Thermal.TempPoints...)
	out.Thermal.HeatingRate = append([]RateRow(nil), p.Thermal.HeatingRate...)
	out.Thermal.CoolingRate = append([]RateRow(nil), p.Thermal.CoolingRate...)
	return out
}

// CalibrationPhase is the engine's transient phase.
type CalibrationPhase int

const (
	PhaseIdle CalibrationPhase = iota
	PhaseTemperature
	PhaseHeating
	PhaseCooling
	PhaseDoor
	PhaseComplete
	PhaseError
)

func (p CalibrationPhase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseTemperature:
		return "TEMPERATURE_CALIBRATION"
	case PhaseHeating:
		return "HEATING_CALIBRATION"
	case PhaseCooling:
		return "COOLING_CALIBRATION"
	case PhaseDoor:
		return "DOOR_CALIBRATION"
	case PhaseComplete:
		return "COMPLETE"
	case PhaseError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (p CalibrationPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// CalibrationState is published for progress display. Not persisted.
type CalibrationState struct {
	Phase         CalibrationPhase `json:"phase"`
	Progress      float64          `json:"progress"` // 0..1
	CurrentTempC  float64          `json:"current_temp_c"`
	TimeRemaining time.Duration    `json:"time_remaining"`
	HasError      bool             `json:"has_error"`
	ErrorMessage  string           `json:"error_message,omitempty"`
}
