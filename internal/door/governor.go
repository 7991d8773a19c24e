package door

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

// Event names published on events.TopicDoor.
const (
	EventOpening      = "DOOR_OPENING"
	EventClosing      = "DOOR_CLOSING"
	EventPosition     = "DOOR_POSITION"
	EventOpened       = "DOOR_OPENED"
	EventClosed       = "DOOR_CLOSED"
	EventArrived      = "DOOR_ARRIVED"
	EventSafetyStop   = "DOOR_SAFETY_STOP"
	EventServoEnabled = "DOOR_SERVO_ENABLED"
	EventServoOff     = "DOOR_SERVO_DISABLED"
)

// endSlackDeg absorbs rounding between a commanded endpoint and the calibrated end.
const endSlackDeg = 0.5

var (
	ErrServoDisabled = errors.New("door: servo disabled")
	ErrUnsafeMove    = errors.New("door: move would drive into a triggered limit switch")
	ErrBadRange      = errors.New("door: open and closed angles must differ")
)

// Servo is the actuator driver. PWM timing is the driver's concern.
type Servo interface {
	PowerOn() error
	PowerOff() error
	// AttachPins drives the signal line; ReleasePins puts it in high impedance.
	AttachPins() error
	ReleasePins() error
	WriteAngle(deg float64) error
}

// LimitSwitches reports the two end stops.
type LimitSwitches interface {
	OpenTriggered() bool
	ClosedTriggered() bool
}

// Config holds the calibrated domain and task periods.
type Config struct {
	ClosedAngle   float64
	OpenAngle     float64
	Inverted      bool
	CommandPeriod time.Duration
	SafetyPeriod  time.Duration
	SlewDegPerSec float64
}

// Governor owns the vent door actuator and its DoorState.
type Governor struct {
	servo    Servo
	switches LimitSwitches
	bus      events.Publisher
	log      *logger.Logger
	now      func() time.Time

	mu          sync.Mutex
	cfg         Config
	state       models.DoorState
	lastStep    time.Time
	openLatched bool
	shutLatched bool
}

// New returns a governor with the servo disabled and the door assumed closed.
func New(cfg Config, servo Servo, switches LimitSwitches, bus events.Publisher, log *logger.Logger) (*Governor, error) {
	if cfg.OpenAngle == cfg.ClosedAngle {
		return nil, ErrBadRange
	}
	if cfg.SlewDegPerSec <= 0 {
		cfg.SlewDegPerSec = 180
	}
	g := &Governor{
		servo:    servo,
		switches: switches,
		bus:      bus,
		log:      log.Named("door"),
		now:      time.Now,
		cfg:      cfg,
	}
	g.state.CurrentAngle = cfg.ClosedAngle
	g.state.TargetAngle = cfg.ClosedAngle
	return g, nil
}

// EnableServo powers the actuator, then attaches the signal pins.
func (g *Governor) EnableServo() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.ServoEnabled {
		return nil
	}
	if err := g.servo.PowerOn(); err != nil {
		return fmt.Errorf("servo power on: %w", err)
	}
	if err := g.servo.AttachPins(); err != nil {
		_ = g.servo.PowerOff()
		return fmt.Errorf("servo attach: %w", err)
	}
	g.state.ServoEnabled = true
	g.lastStep = g.now()
	g.post(EventServoEnabled, events.None())
	return nil
}

// DisableServo releases the pins first and only then cuts power, so the signal
// line is never driven into an unpowered servo.
func (g *Governor) DisableServo() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disableLocked("requested")
}

func (g *Governor) disableLocked(reason string) {
	if err := g.servo.ReleasePins(); err != nil {
		g.log.Errorw("servo_release_pins_failed", "err", err)
	}
	if err := g.servo.PowerOff(); err != nil {
		g.log.Errorw("servo_power_off_failed", "err", err)
	}
	wasEnabled := g.state.ServoEnabled
	g.state.ServoEnabled = false
	g.state.TargetAngle = g.state.CurrentAngle
	g.state.Direction = models.DirectionNone
	if wasEnabled {
		g.log.Infow("servo_disabled", "reason", reason, "angle", g.state.CurrentAngle)
		g.post(EventServoOff, events.String(reason))
	}
}

// SetPosition commands an aperture in percent [0,100].
func (g *Governor) SetPosition(percent float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.ServoEnabled {
		return ErrServoDisabled
	}
	percent = clamp(percent, 0, 100)
	return g.moveLocked(g.percentToAngle(percent), percent)
}

// SetRawAngle bypasses the percentage mapping. Used during door calibration,
// when the endpoints are still unknown.
func (g *Governor) SetRawAngle(angle float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.ServoEnabled {
		return ErrServoDisabled
	}
	return g.moveLocked(angle, g.angleToPercent(angle))
}

func (g *Governor) moveLocked(target, percent float64) error {
	dir := g.directionTo(target)

	g.state.OpenLimitHit = g.switches.OpenTriggered()
	g.state.CloseLimitHit = g.switches.ClosedTriggered()
	if !g.isSafeToMoveLocked(dir) {
		g.log.Warnw("door_unsafe_move_rejected", "direction", dir.String(), "target", target)
		g.post(EventSafetyStop, events.String(dir.String()))
		g.disableLocked("unsafe move")
		return ErrUnsafeMove
	}

	if err := g.servo.WriteAngle(target); err != nil {
		return fmt.Errorf("servo write: %w", err)
	}
	g.state.TargetAngle = target
	g.state.Percent = percent
	g.state.Direction = dir
	g.lastStep = g.now()

	switch dir {
	case models.DirectionOpening:
		g.post(EventOpening, events.Float(target))
	case models.DirectionClosing:
		g.post(EventClosing, events.Float(target))
	}
	g.post(EventPosition, events.Float(percent))
	return nil
}

// directionTo compares against the current angle, with "opening" meaning travel
// toward OpenAngle regardless of which way the angles run.
func (g *Governor) directionTo(target float64) models.DoorDirection {
	cur := g.state.CurrentAngle
	if target == cur {
		return models.DirectionNone
	}
	towardOpen := (g.cfg.OpenAngle > g.cfg.ClosedAngle) == (target > cur)
	if towardOpen {
		return models.DirectionOpening
	}
	return models.DirectionClosing
}

// isSafeToMoveLocked is false when dir would continue into an already triggered switch.
func (g *Governor) isSafeToMoveLocked(dir models.DoorDirection) bool {
	switch dir {
	case models.DirectionOpening:
		return !g.state.OpenLimitHit
	case models.DirectionClosing:
		return !g.state.CloseLimitHit
	default:
		return true
	}
}

func (g *Governor) percentToAngle(percent float64) float64 {
	if g.cfg.Inverted {
		percent = 100 - percent
	}
	return g.cfg.ClosedAngle + (g.cfg.OpenAngle-g.cfg.ClosedAngle)*percent/100
}

func (g *Governor) angleToPercent(angle float64) float64 {
	p := (angle - g.cfg.ClosedAngle) / (g.cfg.OpenAngle - g.cfg.ClosedAngle) * 100
	if g.cfg.Inverted {
		p = 100 - p
	}
	return clamp(p, 0, 100)
}

// SetCalibration installs measured endpoints. The current target is kept as an angle.
func (g *Governor) SetCalibration(closedAngle, openAngle float64) error {
	if closedAngle == openAngle {
		return ErrBadRange
	}
	g.mu.Lock()
	g.cfg.ClosedAngle = closedAngle
	g.cfg.OpenAngle = openAngle
	g.state.Percent = g.angleToPercent(g.state.TargetAngle)
	g.mu.Unlock()
	g.log.Infow("door_calibration_applied", "closed", closedAngle, "open", openAngle)
	return nil
}

// State returns a consistent copy of DoorState.
func (g *Governor) State() models.DoorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Run starts the command task and the independent safety monitor and blocks until ctx ends.
func (g *Governor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.runEvery(ctx, g.cfg.CommandPeriod, g.Step)
	}()
	go func() {
		defer wg.Done()
		g.runEvery(ctx, g.cfg.SafetyPeriod, g.CheckSafety)
	}()
	wg.Wait()

	g.DisableServo()
}

func (g *Governor) runEvery(ctx context.Context, period time.Duration, fn func()) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// Step advances the tracked angle toward the target at the configured slew rate
// and clears the direction on arrival.
func (g *Governor) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	dt := now.Sub(g.lastStep).Seconds()
	g.lastStep = now
	if g.state.Direction == models.DirectionNone || !g.state.ServoEnabled {
		return
	}

	maxDelta := g.cfg.SlewDegPerSec * dt
	diff := g.state.TargetAngle - g.state.CurrentAngle
	if math.Abs(diff) <= maxDelta {
		g.arriveLocked()
		return
	}
	g.state.CurrentAngle += math.Copysign(maxDelta, diff)
}

func (g *Governor) arriveLocked() {
	g.state.CurrentAngle = g.state.TargetAngle
	g.state.Direction = models.DirectionNone
	g.post(EventArrived, events.Float(g.state.CurrentAngle))
}

// beyondEndLocked reports whether target lies past the end stop that dir travels
// toward, by more than endSlackDeg.
func (g *Governor) beyondEndLocked(dir models.DoorDirection, target float64) bool {
	sign := 1.0
	if g.cfg.OpenAngle < g.cfg.ClosedAngle {
		sign = -1
	}
	switch dir {
	case models.DirectionOpening:
		return sign*(target-g.cfg.OpenAngle) > endSlackDeg
	case models.DirectionClosing:
		return sign*(g.cfg.ClosedAngle-target) > endSlackDeg
	default:
		return false
	}
}

// CheckSafety polls both limit switches and emits one event per switch edge.
// A switch at the end the door is heading for counts as arrival when the target
// is within the calibrated travel; a target past that end disables the servo.
func (g *Governor) CheckSafety() {
	openHit := g.switches.OpenTriggered()
	closedHit := g.switches.ClosedTriggered()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.OpenLimitHit = openHit
	g.state.CloseLimitHit = closedHit

	if openHit && !g.openLatched {
		g.post(EventOpened, events.None())
	}
	if closedHit && !g.shutLatched {
		g.post(EventClosed, events.None())
	}
	g.openLatched = openHit
	g.shutLatched = closedHit

	if g.state.ServoEnabled && !g.isSafeToMoveLocked(g.state.Direction) {
		if !g.beyondEndLocked(g.state.Direction, g.state.TargetAngle) {
			// the stop for the end being approached: the door has arrived
			g.arriveLocked()
			return
		}
		g.log.Warnw("door_safety_stop", "direction", g.state.Direction.String(), "angle", g.state.CurrentAngle)
		g.post(EventSafetyStop, events.String(g.state.Direction.String()))
		g.disableLocked("limit switch")
	}
}

func (g *Governor) post(name string, p events.Payload) {
	if g.bus != nil {
		g.bus.Post(events.TopicDoor, name, p)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
