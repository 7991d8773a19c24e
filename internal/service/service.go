package service

import (
	"context"
	"errors"

	"reflow_oven/internal/config"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

var (
	ErrProcessActive     = errors.New("a reflow run is in progress")
	ErrCalibrationActive = errors.New("calibration owns the outputs")
	ErrOutOfRange        = errors.New("value out of range")
	ErrNothingToStop     = errors.New("no calibration is active")
)

// MaxTargetC is the highest setpoint accepted from the command surface.
const MaxTargetC = 300.0

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Oven exposes the direct loop, door and reflow commands.
type Oven interface {
	SetTargetTemperature(ctx context.Context, celsius float64) error
	SetDoorPosition(ctx context.Context, percent float64) error
	StopAll(ctx context.Context) error
	StartReflow(ctx context.Context, curve string) error
	CancelReflow(ctx context.Context) error
	ResetProcess(ctx context.Context) error
}

// Monitoring exposes read-only snapshots.
type Monitoring interface {
	GetStatus(ctx context.Context) (models.OvenStatus, error)
}

// Calibration drives the calibration procedures and the learned rate tables.
type Calibration interface {
	StartSensorCalibration(ctx context.Context) error
	StartThermalCalibration(ctx context.Context) error
	StartDoorCalibration(ctx context.Context) error
	StopCalibration(ctx context.Context) error
	SetDoorOpenPosition(ctx context.Context, angle float64) error
	SetDoorClosedPosition(ctx context.Context, angle float64) error
	MoveDoorRaw(ctx context.Context, angle float64) error
	JogDoor(ctx context.Context, delta float64) error
	ExpectedRates(ctx context.Context, percent float64) (RateEstimate, error)
	CalibrationState(ctx context.Context) models.CalibrationState
	CalibrationProfile(ctx context.Context) models.CalibrationProfile
}

type Curves interface {
	ListCurves(ctx context.Context) []models.ReflowCurve
	GetCurve(ctx context.Context, name string) (models.ReflowCurve, error)
}

// EventLog exposes the persisted bus journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.JournalEntry, error)
}

type Runs interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	GetRun(ctx context.Context, id string) (models.RunRecord, error)
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Oven
	Monitoring
	Calibration
	Curves
	EventLog
	Runs
	Authorization
}

// Deps are the running core components the services front.
type Deps struct {
	Sensors     SensorReader
	Control     Loop
	Door        Vent
	Process     Process
	Calibration Calibrator
	Curves      CurveCatalog
	CurveName   string
	Repos       *repository.Repository
	Auth        config.AuthConfig
	Log         *logger.Logger
}

// NewService wires the core components and repositories into concrete services.
func NewService(d Deps) *Service {
	log := d.Log.Named("service")
	oven := NewOvenService(d.Control, d.Door, d.Process, d.Calibration, log)
	oven.DefaultCurve = d.CurveName
	return &Service{
		Oven:          oven,
		Monitoring:    NewMonitoringService(d.Sensors, d.Control, d.Door, d.Calibration, d.Process),
		Calibration:   NewCalibrationService(d.Calibration, d.Process, log),
		Curves:        NewCurveService(d.Curves),
		EventLog:      NewEventLogService(d.Repos.Journal),
		Runs:          NewRunService(d.Repos.Runs),
		Authorization: NewAuthService(d.Repos.Operators, d.Auth),
	}
}
