package service

import (
	"context"
	"errors"
	"testing"

	"reflow_oven/internal/calibration"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

func TestCalibrationService_StartRules(t *testing.T) {
	ctx := context.Background()
	engine := &fakeCalibrator{}
	proc := &fakeProcess{}
	svc := NewCalibrationService(engine, proc, logger.Nop())

	if err := svc.StartSensorCalibration(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a second mode while one is active is the engine's call to reject
	if err := svc.StartThermalCalibration(ctx); !errors.Is(err, errBusy) {
		t.Fatalf("expected engine rejection, got %v", err)
	}
	if err := svc.StopCalibration(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.StopCalibration(ctx); !errors.Is(err, ErrNothingToStop) {
		t.Fatalf("expected ErrNothingToStop, got %v", err)
	}

	proc.status.State = models.StateRunning
	if err := svc.StartDoorCalibration(ctx); !errors.Is(err, ErrProcessActive) {
		t.Fatalf("expected ErrProcessActive, got %v", err)
	}
	if len(engine.started) != 1 || engine.started[0] != "sensor" {
		t.Fatalf("unexpected starts: %v", engine.started)
	}
}

func TestCalibrationService_RunClaimedOutputsFirst(t *testing.T) {
	engine := &fakeCalibrator{startErr: calibration.ErrOutputsHeld}
	svc := NewCalibrationService(engine, &fakeProcess{}, logger.Nop())

	if err := svc.StartThermalCalibration(context.Background()); !errors.Is(err, ErrProcessActive) {
		t.Fatalf("expected ErrProcessActive, got %v", err)
	}
}

func TestCalibrationService_DoorAndRates(t *testing.T) {
	ctx := context.Background()
	engine := &fakeCalibrator{}
	svc := NewCalibrationService(engine, &fakeProcess{}, logger.Nop())

	_ = svc.MoveDoorRaw(ctx, 12)
	_ = svc.JogDoor(ctx, -1)
	_ = svc.SetDoorOpenPosition(ctx, 95)
	_ = svc.SetDoorClosedPosition(ctx, 3)
	if len(engine.raw) != 1 || len(engine.jogs) != 1 || engine.doorOpen[0] != 95 || engine.doorShut[0] != 3 {
		t.Fatalf("door calls not forwarded: %+v", engine)
	}

	est, err := svc.ExpectedRates(ctx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.HeatingCPerSec != 0.5 || est.CoolingCPerSec != -1 || est.PowerPercent != 50 {
		t.Fatalf("unexpected estimate: %+v", est)
	}
	if _, err := svc.ExpectedRates(ctx, 120); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
