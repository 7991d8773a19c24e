package control

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

// Event names published on events.TopicControl.
const (
	EventTargetChanged  = "TARGET_CHANGED"
	EventCoolingChanged = "COOLING_CHANGED"
	EventSensorFault    = "SENSOR_FAULT"
	EventSensorRecover  = "SENSOR_RECOVERED"
	EventManualAcquired = "MANUAL_ACQUIRED"
	EventManualReleased = "MANUAL_RELEASED"
)

var ErrManualHeld = errors.New("control: manual drive already held")

// SensorSource is the read side of the sensor gateway.
type SensorSource interface {
	State() models.SensorSnapshot
}

// Heaters switches the two heating elements. Power is in percent; bang-bang
// hardware only looks at on.
type Heaters interface {
	SetHeaters(frontPower, backPower float64, frontOn, backOn bool)
}

// Aperture is the door governor's percentage command.
type Aperture interface {
	SetPosition(percent float64) error
}

// Config tunes the loop.
type Config struct {
	Period                   time.Duration
	Strategy                 HeaterStrategy
	MinCoolingChangeInterval time.Duration
	CoolingFullScaleC        float64 // excess over target that maps to 100% cooling
}

// Controller runs the fixed-period temperature loop and owns ControlState.
type Controller struct {
	cfg     Config
	sensors SensorSource
	heaters Heaters
	door    Aperture
	bus     events.Publisher
	log     *logger.Logger
	now     func() time.Time

	mu                sync.RWMutex
	state             models.ControlState
	frontOffset       float64
	backOffset        float64
	manual            bool
	manualFront       float64
	manualBack        float64
	lastCoolingChange time.Time
	sensorFaulted     bool
}

// New builds a controller. Nothing runs until Run is called.
func New(cfg Config, sensors SensorSource, heaters Heaters, door Aperture, bus events.Publisher, log *logger.Logger) *Controller {
	if cfg.Strategy == nil {
		cfg.Strategy = BangBang{Gain: 5, Threshold: 50}
	}
	if cfg.CoolingFullScaleC <= 0 {
		cfg.CoolingFullScaleC = 50
	}
	return &Controller{
		cfg:     cfg,
		sensors: sensors,
		heaters: heaters,
		door:    door,
		bus:     bus,
		log:     log.Named("control"),
		now:     time.Now,
	}
}

// Run ticks on absolute deadlines so that work time does not accumulate as drift.
// It only returns when ctx is cancelled; faults degrade a tick, never stop the loop.
func (c *Controller) Run(ctx context.Context) {
	next := c.now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		c.Tick()

		next = next.Add(c.cfg.Period)
		wait := next.Sub(c.now())
		if wait < 0 {
			// overran one or more periods; resync instead of bursting
			missed := (-wait)/c.cfg.Period + 1
			next = next.Add(missed * c.cfg.Period)
			wait = next.Sub(c.now())
			c.log.Debugw("control_overrun", "missed_periods", int64(missed))
		}
		timer.Reset(wait)
	}
}

// Tick runs one control iteration.
func (c *Controller) Tick() {
	snap := c.sensors.State()

	c.mu.Lock()
	c.state.FrontTempC = snap.FrontTempC - c.frontOffset
	c.state.BackTempC = snap.BackTempC - c.backOffset
	c.state.HasError = snap.HasError
	c.state.ManualOverride = c.manual

	faultEdge, recoverEdge := false, false
	if snap.HasError && !c.sensorFaulted {
		faultEdge = true
	} else if !snap.HasError && c.sensorFaulted {
		recoverEdge = true
	}
	c.sensorFaulted = snap.HasError

	var front, back float64
	var frontOn, backOn bool
	var cooling float64
	idle := snap.HasError || (!c.manual && c.state.TargetTempC == 0)

	switch {
	case idle:
		// fail-safe: nothing heats on stale or missing data
	case c.manual:
		front, back = c.manualFront, c.manualBack
		frontOn, backOn = front > 0, back > 0
	default:
		front, frontOn = c.cfg.Strategy.Decide(c.state.TargetTempC, c.state.FrontTempC)
		back, backOn = c.cfg.Strategy.Decide(c.state.TargetTempC, c.state.BackTempC)
		cooling = c.coolingDemand()
	}
	c.state.FrontOutput = front
	c.state.BackOutput = back
	c.state.IsHeating = frontOn || backOn
	c.mu.Unlock()

	c.heaters.SetHeaters(front, back, frontOn, backOn)

	if idle {
		c.forceCooling(0)
	} else if !c.isManual() {
		c.SetCoolingPower(cooling)
	}

	if faultEdge {
		c.log.Warnw("sensor_fault_outputs_zeroed", "err", snap.LastError)
		c.post(EventSensorFault, events.String(snap.LastError))
	}
	if recoverEdge {
		c.log.Infow("sensor_recovered")
		c.post(EventSensorRecover, events.None())
	}
}

// coolingDemand maps the excess of the hotter sensor over the setpoint to a door aperture.
// Caller holds mu.
func (c *Controller) coolingDemand() float64 {
	excess := math.Max(c.state.FrontTempC, c.state.BackTempC) - c.state.TargetTempC
	if excess <= 0 {
		return 0
	}
	return clampPercent(excess / c.cfg.CoolingFullScaleC * 100)
}

// SetTargetTemperature is the only external mutator of the loop setpoint. Never blocks.
func (c *Controller) SetTargetTemperature(t float64) {
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	c.mu.Lock()
	changed := c.state.TargetTempC != t
	c.state.TargetTempC = t
	c.mu.Unlock()
	if changed {
		c.post(EventTargetChanged, events.Float(t))
	}
}

// SetCoolingPower applies a new cooling level unless the previous change happened
// less than MinCoolingChangeInterval ago. It reports whether the value was applied.
func (c *Controller) SetCoolingPower(percent float64) bool {
	percent = clampPercent(percent)
	now := c.now()

	c.mu.Lock()
	if percent == c.state.CoolingPower {
		c.mu.Unlock()
		return false
	}
	if !c.lastCoolingChange.IsZero() && now.Sub(c.lastCoolingChange) < c.cfg.MinCoolingChangeInterval {
		c.mu.Unlock()
		return false
	}
	c.state.CoolingPower = percent
	c.state.IsCooling = percent > 0
	c.lastCoolingChange = now
	c.mu.Unlock()

	c.applyAperture(percent)
	return true
}

// forceCooling bypasses the rate limit; used only for the safe-zero path and stops.
func (c *Controller) forceCooling(percent float64) {
	c.mu.Lock()
	if c.state.CoolingPower == percent {
		c.mu.Unlock()
		return
	}
	c.state.CoolingPower = percent
	c.state.IsCooling = percent > 0
	c.lastCoolingChange = c.now()
	c.mu.Unlock()
	c.applyAperture(percent)
}

func (c *Controller) applyAperture(percent float64) {
	if c.door != nil {
		if err := c.door.SetPosition(percent); err != nil {
			c.log.Warnw("door_command_rejected", "percent", percent, "err", err)
		}
	}
	c.post(EventCoolingChanged, events.Float(percent))
}

// AcquireManual hands heater/cooling outputs to a single external driver (calibration).
// The automatic setpoint is cleared so that releasing returns to idle.
func (c *Controller) AcquireManual() error {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return ErrManualHeld
	}
	c.manual = true
	c.manualFront, c.manualBack = 0, 0
	c.state.TargetTempC = 0
	c.state.ManualOverride = true
	c.mu.Unlock()
	c.post(EventManualAcquired, events.None())
	return nil
}

// ReleaseManual returns outputs to the automatic loop and zeroes them.
func (c *Controller) ReleaseManual() {
	c.mu.Lock()
	was := c.manual
	c.manual = false
	c.manualFront, c.manualBack = 0, 0
	c.state.ManualOverride = false
	c.mu.Unlock()
	c.StopAll()
	if was {
		c.post(EventManualReleased, events.None())
	}
}

// SetHeaterPower sets both elements while manual drive is held.
func (c *Controller) SetHeaterPower(percent float64) {
	percent = clampPercent(percent)
	c.mu.Lock()
	if c.manual {
		c.manualFront, c.manualBack = percent, percent
	}
	c.mu.Unlock()
}

// SetManualCooling drives the door aperture directly while manual drive is held.
// The rate limit does not apply; the holder paces its own changes.
func (c *Controller) SetManualCooling(percent float64) {
	if !c.isManual() {
		return
	}
	c.forceCooling(clampPercent(percent))
}

// StopAll zeroes the setpoint, heaters and cooling immediately.
func (c *Controller) StopAll() {
	c.mu.Lock()
	c.state.TargetTempC = 0
	c.manualFront, c.manualBack = 0, 0
	c.state.FrontOutput, c.state.BackOutput = 0, 0
	c.state.IsHeating = false
	c.mu.Unlock()
	c.heaters.SetHeaters(0, 0, false, false)
	c.forceCooling(0)
}

// SetSensorOffsets installs calibration offsets subtracted from raw readings.
func (c *Controller) SetSensorOffsets(front, back float64) {
	c.mu.Lock()
	c.frontOffset, c.backOffset = front, back
	c.mu.Unlock()
}

// State returns a consistent copy of ControlState.
func (c *Controller) State() models.ControlState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) isManual() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manual
}

func (c *Controller) shutdown() {
	c.heaters.SetHeaters(0, 0, false, false)
	c.log.Infow("control_loop_stopped")
}

func (c *Controller) post(name string, p events.Payload) {
	if c.bus != nil {
		c.bus.Post(events.TopicControl, name, p)
	}
}
