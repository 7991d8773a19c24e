package service

import (
	"context"

	"reflow_oven/internal/models"
)

// The narrow views of the core components that the services call into.

type SensorReader interface {
	State() models.SensorSnapshot
}

type Loop interface {
	SetTargetTemperature(t float64)
	StopAll()
	State() models.ControlState
}

type Vent interface {
	SetPosition(percent float64) error
	State() models.DoorState
}

type Process interface {
	Start(ctx context.Context, curve string) error
	Cancel(ctx context.Context) error
	Reset(ctx context.Context) error
	Status() models.ProcessStatus
}

type Calibrator interface {
	StartSensor() error
	StartThermal() error
	StartDoor() error
	Stop() bool
	SetDoorOpenPosition(angle float64) error
	SetDoorClosedPosition(angle float64) error
	MoveDoorRaw(angle float64) error
	JogDoor(delta float64) error
	ExpectedHeatingRate(percent float64) float64
	ExpectedCoolingRate(percent float64) float64
	State() models.CalibrationState
	Profile() models.CalibrationProfile
	IsActive() bool
}

type CurveCatalog interface {
	Get(name string) (models.ReflowCurve, error)
	List() []models.ReflowCurve
}

// processBusy reports whether a run currently drives the setpoint.
func processBusy(p Process) bool {
	switch p.Status().State {
	case models.StatePrecheck, models.StateRunning:
		return true
	}
	return false
}
