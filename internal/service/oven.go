package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"reflow_oven/internal/logger"
)

// OvenService fronts the temperature loop, the vent and the reflow orchestrator.
type OvenService struct {
	control Loop
	door    Vent
	process Process
	calib   Calibrator
	log     *logger.Logger

	// DefaultCurve is started when a reflow request names no curve.
	DefaultCurve string
}

func NewOvenService(control Loop, door Vent, proc Process, calib Calibrator, log *logger.Logger) *OvenService {
	return &OvenService{control: control, door: door, process: proc, calib: calib, log: log}
}

// guardManual rejects direct output commands while something else owns them.
func (s *OvenService) guardManual() error {
	if s.calib.IsActive() {
		return ErrCalibrationActive
	}
	if processBusy(s.process) {
		return ErrProcessActive
	}
	return nil
}

// SetTargetTemperature sets the loop setpoint; 0 idles the heaters.
func (s *OvenService) SetTargetTemperature(_ context.Context, celsius float64) error {
	if math.IsNaN(celsius) || celsius < 0 || celsius > MaxTargetC {
		return fmt.Errorf("%w: target %.1f must be within [0, %.0f]", ErrOutOfRange, celsius, MaxTargetC)
	}
	if err := s.guardManual(); err != nil {
		return err
	}
	s.control.SetTargetTemperature(celsius)
	s.log.Infow("target_set", "target_c", celsius)
	return nil
}

// SetDoorPosition commands the vent aperture in percent.
func (s *OvenService) SetDoorPosition(_ context.Context, percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return fmt.Errorf("%w: door position %.1f must be within [0, 100]", ErrOutOfRange, percent)
	}
	if err := s.guardManual(); err != nil {
		return err
	}
	return s.door.SetPosition(percent)
}

// StopAll cancels any run or calibration and zeroes every output.
func (s *OvenService) StopAll(ctx context.Context) error {
	var errs []error
	if processBusy(s.process) {
		if err := s.process.Cancel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cancel reflow: %w", err))
		}
	}
	if s.calib.Stop() {
		s.log.Infow("calibration_stopped_by_stop_all")
	}
	s.control.StopAll()
	s.log.Warnw("stop_all")
	return errors.Join(errs...)
}

func (s *OvenService) StartReflow(ctx context.Context, curve string) error {
	if curve == "" {
		curve = s.DefaultCurve
	}
	if s.calib.IsActive() {
		return ErrCalibrationActive
	}
	return s.process.Start(ctx, curve)
}

func (s *OvenService) CancelReflow(ctx context.Context) error {
	return s.process.Cancel(ctx)
}

func (s *OvenService) ResetProcess(ctx context.Context) error {
	return s.process.Reset(ctx)
}
