package service

import (
	"context"
	"time"

	"reflow_oven/internal/models"
)

// MonitoringService assembles one snapshot from every core component.
type MonitoringService struct {
	sensors SensorReader
	control Loop
	door    Vent
	calib   Calibrator
	process Process
	now     func() time.Time
}

func NewMonitoringService(sensors SensorReader, control Loop, door Vent, calib Calibrator, process Process) *MonitoringService {
	return &MonitoringService{
		sensors: sensors,
		control: control,
		door:    door,
		calib:   calib,
		process: process,
		now:     time.Now,
	}
}

// GetStatus never fails on a component fault; faults are reported inside the snapshot.
func (s *MonitoringService) GetStatus(ctx context.Context) (models.OvenStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.OvenStatus{}, err
	}
	return models.OvenStatus{
		Sensors:     s.sensors.State(),
		Control:     s.control.State(),
		Door:        s.door.State(),
		Calibration: s.calib.State(),
		Process:     s.process.Status(),
		UpdatedAt:   s.now().UTC(),
	}, nil
}
