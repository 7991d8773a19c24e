package service

import (
	"context"
	"errors"
	"sync"

	"reflow_oven/internal/models"
)

// ---- Test doubles for the core components ----

type fakeSensors struct{ snap models.SensorSnapshot }

func (f *fakeSensors) State() models.SensorSnapshot { return f.snap }

type fakeLoop struct {
	mu      sync.Mutex
	targets []float64
	stops   int
	state   models.ControlState
}

func (f *fakeLoop) SetTargetTemperature(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, t)
	f.state.TargetTempC = t
}

func (f *fakeLoop) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state.TargetTempC = 0
}

func (f *fakeLoop) State() models.ControlState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakeVent struct {
	positions []float64
	err       error
	state     models.DoorState
}

func (f *fakeVent) SetPosition(p float64) error {
	if f.err != nil {
		return f.err
	}
	f.positions = append(f.positions, p)
	return nil
}

func (f *fakeVent) State() models.DoorState { return f.state }

type fakeProcess struct {
	status    models.ProcessStatus
	started   []string
	cancels   int
	resets    int
	startErr  error
	cancelErr error
}

func (f *fakeProcess) Start(_ context.Context, curve string) error {
	f.started = append(f.started, curve)
	return f.startErr
}

func (f *fakeProcess) Cancel(context.Context) error {
	f.cancels++
	return f.cancelErr
}

func (f *fakeProcess) Reset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeProcess) Status() models.ProcessStatus { return f.status }

var errBusy = errors.New("calibration busy")

type fakeCalibrator struct {
	active   bool
	started  []string
	stops    int
	doorOpen []float64
	doorShut []float64
	raw      []float64
	jogs     []float64
	state    models.CalibrationState
	profile  models.CalibrationProfile
	startErr error
}

func (f *fakeCalibrator) begin(mode string) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.active {
		return errBusy
	}
	f.active = true
	f.started = append(f.started, mode)
	return nil
}

func (f *fakeCalibrator) StartSensor() error { return f.begin("sensor") }

func (f *fakeCalibrator) StartThermal() error { return f.begin("thermal") }

func (f *fakeCalibrator) StartDoor() error { return f.begin("door") }

func (f *fakeCalibrator) Stop() bool {
	was := f.active
	f.active = false
	if was {
		f.stops++
	}
	return was
}

func (f *fakeCalibrator) SetDoorOpenPosition(a float64) error {
	f.doorOpen = append(f.doorOpen, a)
	return nil
}

func (f *fakeCalibrator) SetDoorClosedPosition(a float64) error {
	f.doorShut = append(f.doorShut, a)
	return nil
}

func (f *fakeCalibrator) MoveDoorRaw(a float64) error {
	f.raw = append(f.raw, a)
	return nil
}

func (f *fakeCalibrator) JogDoor(d float64) error {
	f.jogs = append(f.jogs, d)
	return nil
}

func (f *fakeCalibrator) ExpectedHeatingRate(p float64) float64 { return p * 0.01 }

func (f *fakeCalibrator) ExpectedCoolingRate(p float64) float64 { return -p * 0.02 }

func (f *fakeCalibrator) State() models.CalibrationState { return f.state }

func (f *fakeCalibrator) Profile() models.CalibrationProfile { return f.profile }

func (f *fakeCalibrator) IsActive() bool { return f.active }
