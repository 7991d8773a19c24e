package models

import "time"

// ReflowStep is one segment of a reflow curve.
type ReflowStep struct {
	Label       string        `json:"label" yaml:"label"`
	TargetTempC float64       `json:"target_temp_c" yaml:"target_temp_c"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// ReflowCurve is an immutable, named sequence of steps.
type ReflowCurve struct {
	Name              string       `json:"name" yaml:"name"`
	MinimumStartTempC float64      `json:"minimum_start_temp_c" yaml:"minimum_start_temp_c"`
	Steps             []ReflowStep `json:"steps" yaml:"steps"`
}

// TotalDuration sums the step durations.
func (c ReflowCurve) TotalDuration() time.Duration {
	var d time.Duration
	for _, s := range c.Steps {
		d += s.Duration
	}
	return d
}

// PeakTempC returns the highest step target.
func (c ReflowCurve) PeakTempC() float64 {
	peak := 0.0
	for _, s := range c.Steps {
		if s.TargetTempC > peak {
			peak = s.TargetTempC
		}
	}
	return peak
}
