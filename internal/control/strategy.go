package control

import "math"

// HeaterStrategy turns a setpoint and a measured temperature into a heater command.
// power is the computed demand in percent [0,100]; on is whether the element is switched on.
type HeaterStrategy interface {
	Decide(targetC, measuredC float64) (power float64, on bool)
}

// BangBang derives a proportional demand and switches the element on only above
// Threshold. The element is either fully on or off; there is no PWM duty here.
type BangBang struct {
	Gain      float64
	Threshold float64
}

func (b BangBang) Decide(targetC, measuredC float64) (float64, bool) {
	power := clampPercent(b.Gain * (targetC - measuredC))
	return power, power > b.Threshold
}

// Proportional reports the demand as a duty cycle for drivers that can modulate power.
type Proportional struct {
	Gain float64
}

func (p Proportional) Decide(targetC, measuredC float64) (float64, bool) {
	power := clampPercent(p.Gain * (targetC - measuredC))
	return power, power > 0
}

// NewStrategy picks a strategy by its configuration name.
func NewStrategy(name string, gain, threshold float64) HeaterStrategy {
	if name == "proportional" {
		return Proportional{Gain: gain}
	}
	return BangBang{Gain: gain, Threshold: threshold}
}

// clampPercent maps v into [0,100]. NaN reads as no demand.
func clampPercent(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
