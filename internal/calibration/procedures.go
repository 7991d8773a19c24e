package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"reflow_oven/internal/models"
)

// runSensor compares both thermocouples against ambient over the sampling window.
// Any sample outside the mismatch threshold aborts without touching the profile.
func (e *Engine) runSensor(ctx context.Context) error {
	samples := int(e.cfg.SensorWindow / e.cfg.SensorSampleEvery)
	if samples < 1 {
		samples = 1
	}

	var diffFront, diffBack float64
	for k := 0; k < samples; k++ {
		snap := e.sensors.State()
		if snap.HasError {
			return fmt.Errorf("%w: %s", ErrSensorFault, snap.LastError)
		}
		diffFront = snap.FrontTempC - snap.AmbientTempC
		diffBack = snap.BackTempC - snap.AmbientTempC
		if math.Abs(diffFront) > e.cfg.MismatchThresholdC || math.Abs(diffBack) > e.cfg.MismatchThresholdC {
			return fmt.Errorf("%w: front %+.1f°C back %+.1f°C from ambient",
				ErrSensorMismatch, diffFront, diffBack)
		}

		left := samples - k - 1
		e.setProgress(models.PhaseTemperature, float64(k+1)/float64(samples),
			snap.FrontTempC, time.Duration(left)*e.cfg.SensorSampleEvery)
		if left == 0 {
			break
		}
		if err := e.sleep(ctx, e.cfg.SensorSampleEvery); err != nil {
			return err
		}
	}

	p := e.Profile()
	p.FrontSensorOffset = float32(diffFront)
	p.BackSensorOffset = float32(diffBack)
	e.log.Infow("sensor_offsets_measured", "front", diffFront, "back", diffBack)
	return e.commit(p, true)
}

// sweep is one direction of the thermal characterization.
type sweep struct {
	phase models.CalibrationPhase
	order []int
	table []models.RateRow
	output func(percent float64)
}

// runThermal measures heating rates with points ascending, then cooling rates
// with points descending.
func (e *Engine) runThermal(ctx context.Context) error {
	n := len(e.cfg.TempPoints)
	if n == 0 {
		return fmt.Errorf("no calibration temperature points configured")
	}
	summary := models.NewThermalCalibrationSummary(e.cfg.TempPoints)

	asc := make([]int, n)
	desc := make([]int, n)
	for i := 0; i < n; i++ {
		asc[i] = i
		desc[i] = n - 1 - i
	}
	sweeps := []sweep{
		{phase: models.PhaseHeating, order: asc, table: summary.HeatingRate, output: e.drive.SetHeaterPower},
		{phase: models.PhaseCooling, order: desc, table: summary.CoolingRate, output: e.drive.SetManualCooling},
	}

	total := len(sweeps) * n * models.PowerBuckets
	done := 0
	perLevel := e.cfg.Settle + e.cfg.TestDuration

	for _, sw := range sweeps {
		for _, i := range sw.order {
			point := e.cfg.TempPoints[i]
			e.setProgress(sw.phase, float64(done)/float64(total), e.temp(), time.Duration(total-done)*perLevel)

			if err := e.reach(ctx, point); err != nil {
				return fmt.Errorf("%s at %.0f°C: %w", sw.phase, point, err)
			}
			e.outputsOff()
			if err := e.sleep(ctx, e.cfg.Dwell); err != nil {
				return err
			}

			for b := 0; b < models.PowerBuckets; b++ {
				power := float64((b + 1) * 10)
				sw.output(power)
				if err := e.sleep(ctx, e.cfg.Settle); err != nil {
					return err
				}
				tStart := e.temp()
				if err := e.sleep(ctx, e.cfg.TestDuration); err != nil {
					return err
				}
				tEnd := e.temp()
				rate := (tEnd - tStart) / e.cfg.TestDuration.Seconds()
				sw.table[i][b] = float32(rate)

				done++
				e.log.Debugw("thermal_rate_measured",
					"phase", sw.phase.String(), "point", point, "power", power, "rate", rate)
				e.setProgress(sw.phase, float64(done)/float64(total), tEnd, time.Duration(total-done)*perLevel)
			}
			e.outputsOff()
		}
	}

	e.drive.StopAll()
	p := e.Profile()
	p.Thermal = summary
	return e.commit(p, true)
}

// reach drives the oven into the tolerance band around point with medium power,
// heating when below and venting when above.
func (e *Engine) reach(ctx context.Context, point float64) error {
	var waited time.Duration
	for {
		t := e.temp()
		switch {
		case math.Abs(t-point) <= e.cfg.ToleranceC:
			return nil
		case t < point:
			e.drive.SetManualCooling(0)
			e.drive.SetHeaterPower(e.cfg.MediumPower)
		default:
			e.drive.SetHeaterPower(0)
			e.drive.SetManualCooling(e.cfg.MediumPower)
		}
		if e.cfg.ReachTimeout > 0 && waited >= e.cfg.ReachTimeout {
			return ErrReachTimeout
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
		waited += e.cfg.PollInterval
	}
}

func (e *Engine) outputsOff() {
	e.drive.SetHeaterPower(0)
	e.drive.SetManualCooling(0)
}

func (e *Engine) temp() float64 {
	return e.drive.State().FrontTempC
}
