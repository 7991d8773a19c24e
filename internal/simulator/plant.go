// Package simulator stands in for the oven hardware when nothing is attached:
// thermocouples, heater relays, the vent servo and its limit switches.
package simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"reflow_oven/internal/config"
	"reflow_oven/internal/models"
)

// ----------- Simulation constants -----------
const (
	MaxReadableC    = 400.0 // thermocouple amplifier full scale °C
	AmbientHumidity = 45.0  // %
)

var ErrNotPowered = errors.New("simulator: servo not powered or pins released")

// Plant is a lumped thermal model of the oven cavity with two elements and a vent.
type Plant struct {
	cfg         config.SimulatorConfig
	closedAngle float64
	openAngle   float64

	mu        sync.RWMutex
	frontC    float64
	backC     float64
	frontPow  float64 // effective %, zero when the relay is off
	backPow   float64
	powered   bool
	attached  bool
	angle     float64
	faultText string
	now       func() time.Time
	last      time.Time
}

// New returns a plant resting at ambient with the vent closed.
func New(cfg config.SimulatorConfig, door config.DoorConfig) *Plant {
	return &Plant{
		cfg:         cfg,
		closedAngle: door.ClosedAngle,
		openAngle:   door.OpenAngle,
		frontC:      cfg.AmbientC,
		backC:       cfg.AmbientC,
		angle:       door.ClosedAngle,
		now:         time.Now,
	}
}

// Run advances the model every tick until ctx is canceled.
func (p *Plant) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	p.mu.Lock()
	p.last = p.now()
	p.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.mu.Lock()
			now := p.now()
			elapsed := now.Sub(p.last).Seconds()
			p.last = now
			p.mu.Unlock()
			p.Advance(elapsed)
		}
	}
}

// Advance integrates the model over elapsed seconds.
func (p *Plant) Advance(elapsed float64) {
	if elapsed <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vent := p.ventFractionLocked()
	p.frontC = p.stepZone(p.frontC, p.frontPow, vent, elapsed)
	p.backC = p.stepZone(p.backC, p.backPow, vent, elapsed)
}

// stepZone applies heater gain, wall loss and vent loss to one zone.
func (p *Plant) stepZone(tempC, power, vent, elapsed float64) float64 {
	gain := p.cfg.HeaterCPerSec * power / 100
	loss := (p.cfg.LossPerSec + p.cfg.DoorLossPerSec*vent) * (tempC - p.cfg.AmbientC)
	next := tempC + (gain-loss)*elapsed
	// a single large step must not overshoot ambient
	if power == 0 && tempC >= p.cfg.AmbientC && next < p.cfg.AmbientC {
		next = p.cfg.AmbientC
	}
	return next
}

func (p *Plant) ventFractionLocked() float64 {
	span := p.openAngle - p.closedAngle
	if span == 0 {
		return 0
	}
	f := (p.angle - p.closedAngle) / span
	return math.Max(0, math.Min(1, f))
}

// State implements the sensor gateway. The back thermocouple reads BackSkewC high.
func (p *Plant) State() models.SensorSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := models.SensorSnapshot{
		FrontTempC:      p.frontC,
		BackTempC:       p.backC + p.cfg.BackSkewC,
		AmbientTempC:    p.cfg.AmbientC,
		AmbientHumidity: AmbientHumidity,
	}
	switch {
	case p.faultText != "":
		snap.HasError, snap.LastError = true, p.faultText
	case snap.FrontTempC > MaxReadableC:
		snap.HasError, snap.LastError = true, "front thermocouple over range"
	case snap.BackTempC > MaxReadableC:
		snap.HasError, snap.LastError = true, "back thermocouple over range"
	}
	return snap
}

// InjectFault makes every reading report an error until ClearFault.
func (p *Plant) InjectFault(text string) {
	p.mu.Lock()
	p.faultText = text
	p.mu.Unlock()
}

func (p *Plant) ClearFault() {
	p.mu.Lock()
	p.faultText = ""
	p.mu.Unlock()
}

// SetHeaters switches the relays. A relay that is off contributes nothing.
func (p *Plant) SetHeaters(frontPower, backPower float64, frontOn, backOn bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frontPow, p.backPow = 0, 0
	if frontOn {
		p.frontPow = clampPercent(frontPower)
	}
	if backOn {
		p.backPow = clampPercent(backPower)
	}
}

func (p *Plant) PowerOn() error {
	p.mu.Lock()
	p.powered = true
	p.mu.Unlock()
	return nil
}

func (p *Plant) PowerOff() error {
	p.mu.Lock()
	p.powered = false
	p.mu.Unlock()
	return nil
}

func (p *Plant) AttachPins() error {
	p.mu.Lock()
	p.attached = true
	p.mu.Unlock()
	return nil
}

func (p *Plant) ReleasePins() error {
	p.mu.Lock()
	p.attached = false
	p.mu.Unlock()
	return nil
}

// WriteAngle moves the vent. The linkage stops at the mechanical ends.
func (p *Plant) WriteAngle(deg float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.powered || !p.attached {
		return ErrNotPowered
	}
	lo, hi := math.Min(p.closedAngle, p.openAngle), math.Max(p.closedAngle, p.openAngle)
	p.angle = math.Max(lo, math.Min(hi, deg))
	return nil
}

// Angle reports the physical vent angle.
func (p *Plant) Angle() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.angle
}

func (p *Plant) OpenTriggered() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return math.Abs(p.angle-p.openAngle) <= p.cfg.LimitToleranceDeg
}

func (p *Plant) ClosedTriggered() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return math.Abs(p.angle-p.closedAngle) <= p.cfg.LimitToleranceDeg
}

// helpers
func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
