package service

import (
	"context"
	"fmt"

	"reflow_oven/internal/events"
	"reflow_oven/internal/link"
)

// RegisterLinkCommands maps the secondary controller's commands onto the services.
func RegisterLinkCommands(r *link.Router, s *Service) {
	r.Handle(link.CmdSetTarget, withFloat(s.SetTargetTemperature))
	r.Handle(link.CmdSetDoorPosition, withFloat(s.SetDoorPosition))
	r.Handle(link.CmdSetDoorOpen, withFloat(s.SetDoorOpenPosition))
	r.Handle(link.CmdSetDoorClosed, withFloat(s.SetDoorClosedPosition))
	r.Handle(link.CmdStartSensorCal, noArg(s.StartSensorCalibration))
	r.Handle(link.CmdStartThermalCal, noArg(s.StartThermalCalibration))
	r.Handle(link.CmdStartDoorCal, noArg(s.StartDoorCalibration))
	r.Handle(link.CmdStopCalibration, noArg(s.StopCalibration))
	r.Handle(link.CmdCancelReflow, noArg(s.CancelReflow))
	r.Handle(link.CmdStartReflow, func(ctx context.Context, arg events.Payload) error {
		name, ok := arg.Str()
		if !ok || name == "" {
			return fmt.Errorf("%w: curve name expected, got %s", ErrOutOfRange, arg.Kind())
		}
		return s.StartReflow(ctx, name)
	})
}

func withFloat(fn func(context.Context, float64) error) link.HandlerFunc {
	return func(ctx context.Context, arg events.Payload) error {
		v, ok := arg.Float()
		if !ok {
			return fmt.Errorf("%w: number expected, got %s", ErrOutOfRange, arg.Kind())
		}
		return fn(ctx, v)
	}
}

func noArg(fn func(context.Context) error) link.HandlerFunc {
	return func(ctx context.Context, _ events.Payload) error {
		return fn(ctx)
	}
}
