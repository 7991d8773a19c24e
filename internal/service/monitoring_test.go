package service

import (
	"context"
	"testing"
	"time"

	"reflow_oven/internal/models"
)

func TestMonitoringService_GetStatus(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 9, 1, 12, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	svc := NewMonitoringService(
		&fakeSensors{snap: models.SensorSnapshot{FrontTempC: 150, BackTempC: 152, HasError: true, LastError: "stale"}},
		&fakeLoop{state: models.ControlState{TargetTempC: 160, HasError: true}},
		&fakeVent{state: models.DoorState{Percent: 25}},
		&fakeCalibrator{state: models.CalibrationState{Phase: models.PhaseHeating}},
		&fakeProcess{status: models.ProcessStatus{State: models.StateRunning, CurveName: "SAC305"}},
	)
	svc.now = func() time.Time { return fixed }

	st, err := svc.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Sensors.FrontTempC != 150 || !st.Sensors.HasError {
		t.Fatalf("sensors: %+v", st.Sensors)
	}
	if st.Control.TargetTempC != 160 || st.Door.Percent != 25 {
		t.Fatalf("control/door: %+v %+v", st.Control, st.Door)
	}
	if st.Calibration.Phase != models.PhaseHeating || st.Process.CurveName != "SAC305" {
		t.Fatalf("calibration/process: %+v %+v", st.Calibration, st.Process)
	}
	if st.UpdatedAt.Location() != time.UTC || !st.UpdatedAt.Equal(fixed) {
		t.Fatalf("updated_at not normalized: %v", st.UpdatedAt)
	}
}

func TestMonitoringService_GetStatus_CanceledContext(t *testing.T) {
	t.Parallel()

	svc := NewMonitoringService(&fakeSensors{}, &fakeLoop{}, &fakeVent{}, &fakeCalibrator{}, &fakeProcess{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.GetStatus(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
