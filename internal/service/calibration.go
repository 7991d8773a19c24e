package service

import (
	"context"
	"errors"
	"math"

	"reflow_oven/internal/calibration"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

// CalibrationService fronts the calibration engine. Procedures only start
// while no reflow run owns the oven.
type CalibrationService struct {
	engine  Calibrator
	process Process
	log     *logger.Logger
}

func NewCalibrationService(engine Calibrator, proc Process, log *logger.Logger) *CalibrationService {
	return &CalibrationService{engine: engine, process: proc, log: log}
}

func (s *CalibrationService) start(name string, fn func() error) error {
	if processBusy(s.process) {
		return ErrProcessActive
	}
	if err := fn(); err != nil {
		s.log.Infow("calibration_start_rejected", "mode", name, "err", err)
		if errors.Is(err, calibration.ErrOutputsHeld) {
			// a run claimed the outputs after the status check above
			return ErrProcessActive
		}
		return err
	}
	s.log.Infow("calibration_started", "mode", name)
	return nil
}

func (s *CalibrationService) StartSensorCalibration(context.Context) error {
	return s.start("sensor", s.engine.StartSensor)
}

func (s *CalibrationService) StartThermalCalibration(context.Context) error {
	return s.start("thermal", s.engine.StartThermal)
}

func (s *CalibrationService) StartDoorCalibration(context.Context) error {
	return s.start("door", s.engine.StartDoor)
}

func (s *CalibrationService) StopCalibration(context.Context) error {
	if !s.engine.Stop() {
		return ErrNothingToStop
	}
	return nil
}

func (s *CalibrationService) SetDoorOpenPosition(_ context.Context, angle float64) error {
	return s.engine.SetDoorOpenPosition(angle)
}

func (s *CalibrationService) SetDoorClosedPosition(_ context.Context, angle float64) error {
	return s.engine.SetDoorClosedPosition(angle)
}

func (s *CalibrationService) MoveDoorRaw(_ context.Context, angle float64) error {
	return s.engine.MoveDoorRaw(angle)
}

func (s *CalibrationService) JogDoor(_ context.Context, delta float64) error {
	return s.engine.JogDoor(delta)
}

// ExpectedRates looks up both tables at the same power level.
func (s *CalibrationService) ExpectedRates(_ context.Context, percent float64) (RateEstimate, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return RateEstimate{}, ErrOutOfRange
	}
	return RateEstimate{
		PowerPercent:   percent,
		HeatingCPerSec: s.engine.ExpectedHeatingRate(percent),
		CoolingCPerSec: s.engine.ExpectedCoolingRate(percent),
	}, nil
}

func (s *CalibrationService) CalibrationState(context.Context) models.CalibrationState {
	return s.engine.State()
}

func (s *CalibrationService) CalibrationProfile(context.Context) models.CalibrationProfile {
	return s.engine.Profile()
}
