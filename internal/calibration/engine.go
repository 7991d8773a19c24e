// Package calibration characterizes the oven and owns the persisted calibration profile.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

// Event names published on events.TopicCalibration.
const (
	EventStarted        = "CALIBRATION_STARTED"
	EventProgress       = "CALIBRATION_PROGRESS"
	EventComplete       = "CALIBRATION_COMPLETE"
	EventFailed         = "CALIBRATION_FAILED"
	EventStopped        = "CALIBRATION_STOPPED"
	EventRejected       = "CALIBRATION_REJECTED"
	EventDoorRecorded   = "DOOR_POSITION_RECORDED"
	EventProfileSaved   = "PROFILE_SAVED"
	EventProfileMissing = "PROFILE_NOT_CALIBRATED"
)

var (
	ErrCalibrationBusy = errors.New("calibration: another calibration is active")
	ErrNotInDoorMode   = errors.New("calibration: door calibration is not active")
	ErrSensorMismatch  = errors.New("sensor mismatch")
	ErrSensorFault     = errors.New("sensor fault during calibration")
	ErrReachTimeout    = errors.New("temperature set-point not reached in time")
	ErrWorkerBusy      = errors.New("calibration: worker queue full")
	ErrOutputsHeld     = errors.New("calibration: outputs held by a reflow run")
)

// Mode is the active calibration procedure. At most one is active.
type Mode int

const (
	ModeNone Mode = iota
	ModeSensor
	ModeThermal
	ModeDoor
)

func (m Mode) String() string {
	switch m {
	case ModeSensor:
		return "SENSOR"
	case ModeThermal:
		return "THERMAL"
	case ModeDoor:
		return "DOOR"
	default:
		return "NONE"
	}
}

// Drive is the controller surface the engine takes over while a procedure runs.
type Drive interface {
	AcquireManual() error
	ReleaseManual()
	SetHeaterPower(percent float64)
	SetManualCooling(percent float64)
	StopAll()
	SetSensorOffsets(front, back float64)
	State() models.ControlState
}

// DoorActuator is the door governor surface used by interactive door calibration.
type DoorActuator interface {
	EnableServo() error
	SetRawAngle(angle float64) error
	SetCalibration(closedAngle, openAngle float64) error
	State() models.DoorState
}

// SensorSource returns raw, uncorrected readings.
type SensorSource interface {
	State() models.SensorSnapshot
}

// ProfileStore persists the profile record.
type ProfileStore interface {
	Save(p models.CalibrationProfile) error
	Load() (models.CalibrationProfile, error)
}

// Config carries the procedure constants.
type Config struct {
	TempPoints         []float64
	ToleranceC         float64
	MediumPower        float64
	ReachTimeout       time.Duration
	Dwell              time.Duration
	Settle             time.Duration
	TestDuration       time.Duration
	PollInterval       time.Duration
	SensorWindow       time.Duration
	SensorSampleEvery  time.Duration
	MismatchThresholdC float64
}

type job struct {
	ctx    context.Context
	cancel context.CancelFunc
	mode   Mode
	run    func(ctx context.Context) error
}

// Engine runs one calibration procedure at a time on its own worker.
type Engine struct {
	cfg     Config
	sensors SensorSource
	drive   Drive
	door    DoorActuator
	store   ProfileStore
	bus     events.Publisher
	log     *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	jobs chan job

	mu         sync.RWMutex
	mode       Mode
	state      models.CalibrationState
	profile    models.CalibrationProfile
	cancel     context.CancelFunc
	doorOpen   *float64
	doorClosed *float64
	runHeld    bool
}

func New(cfg Config, sensors SensorSource, drive Drive, door DoorActuator, store ProfileStore, bus events.Publisher, log *logger.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SensorSampleEvery <= 0 {
		cfg.SensorSampleEvery = time.Second
	}
	if cfg.TestDuration <= 0 {
		cfg.TestDuration = 10 * time.Second
	}
	return &Engine{
		cfg:     cfg,
		sensors: sensors,
		drive:   drive,
		door:    door,
		store:   store,
		bus:     bus,
		log:     log.Named("calibration"),
		now:     time.Now,
		sleep:   sleepCtx,
		jobs:    make(chan job, 1),
		profile: emptyProfile(cfg.TempPoints),
	}
}

func emptyProfile(points []float64) models.CalibrationProfile {
	return models.CalibrationProfile{Thermal: models.NewThermalCalibrationSummary(points)}
}

// LoadProfile reads the persisted record and applies it to the controller and door.
// Any unreadable record leaves the oven "not calibrated"; the returned error is informational.
func (e *Engine) LoadProfile() error {
	p, err := e.store.Load()
	if err != nil {
		e.log.Warnw("calibration_profile_not_loaded", "err", err)
		e.post(EventProfileMissing, events.String(err.Error()))
		return err
	}
	if !samePoints(p.Thermal.TempPoints, e.cfg.TempPoints) {
		e.log.Warnw("calibration_temp_points_changed",
			"stored", p.Thermal.TempPoints, "configured", e.cfg.TempPoints)
		p.Thermal = models.NewThermalCalibrationSummary(e.cfg.TempPoints)
	}

	e.mu.Lock()
	e.profile = p
	e.mu.Unlock()

	e.applyProfile(p)
	e.log.Infow("calibration_profile_loaded",
		"front_offset", p.FrontSensorOffset,
		"back_offset", p.BackSensorOffset,
		"door_calibrated", p.Door.IsCalibrated,
		"last_calibration", p.LastCalibration)
	return nil
}

func (e *Engine) applyProfile(p models.CalibrationProfile) {
	e.drive.SetSensorOffsets(float64(p.FrontSensorOffset), float64(p.BackSensorOffset))
	if p.Door.IsCalibrated && e.door != nil {
		if err := e.door.SetCalibration(float64(p.Door.ClosedPositionAngle), float64(p.Door.OpenPositionAngle)); err != nil {
			e.log.Warnw("door_calibration_not_applied", "err", err)
		}
	}
}

func samePoints(stored []float32, configured []float64) bool {
	if len(stored) != len(configured) {
		return false
	}
	for i := range stored {
		if stored[i] != float32(configured[i]) {
			return false
		}
	}
	return true
}

// Run is the worker task. It blocks on the job queue and executes procedures
// one at a time until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case j := <-e.jobs:
			stop := context.AfterFunc(ctx, j.cancel)
			err := j.run(j.ctx)
			stop()
			j.cancel()
			e.finish(j.mode, err)
		}
	}
}

// StartSensor begins sensor offset calibration.
func (e *Engine) StartSensor() error {
	return e.startJob(ModeSensor, models.PhaseTemperature, e.runSensor)
}

// StartThermal begins heating then cooling rate characterization.
func (e *Engine) StartThermal() error {
	return e.startJob(ModeThermal, models.PhaseHeating, e.runThermal)
}

func (e *Engine) startJob(mode Mode, phase models.CalibrationPhase, run func(context.Context) error) error {
	e.mu.Lock()
	if err := e.claimLocked(mode); err != nil {
		e.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	select {
	case e.jobs <- job{ctx: ctx, cancel: cancel, mode: mode, run: run}:
	default:
		cancel()
		e.releaseLocked()
		e.mu.Unlock()
		return ErrWorkerBusy
	}
	e.cancel = cancel
	e.state = models.CalibrationState{Phase: phase, CurrentTempC: e.drive.State().FrontTempC}
	e.mu.Unlock()

	e.log.Infow("calibration_started", "mode", mode.String())
	e.post(EventStarted, events.String(mode.String()))
	return nil
}

// claimLocked enforces mutual exclusion at the mode-switch boundary and takes manual drive.
// A rejected claim leaves the current phase untouched.
func (e *Engine) claimLocked(mode Mode) error {
	if e.mode != ModeNone {
		active := e.mode
		e.log.Warnw("calibration_rejected", "requested", mode.String(), "active", active.String())
		e.post(EventRejected, events.String(mode.String()))
		return fmt.Errorf("%w: %s running", ErrCalibrationBusy, active)
	}
	if e.runHeld {
		e.log.Warnw("calibration_rejected", "requested", mode.String(), "active", "reflow")
		e.post(EventRejected, events.String(mode.String()))
		return ErrOutputsHeld
	}
	if err := e.drive.AcquireManual(); err != nil {
		return fmt.Errorf("acquire outputs: %w", err)
	}
	e.mode = mode
	return nil
}

// HoldOutputs reserves the heaters and the door for a reflow run. It fails while
// a calibration is active; calibration starts fail while the hold is in place.
func (e *Engine) HoldOutputs() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeNone {
		return fmt.Errorf("%w: %s running", ErrCalibrationBusy, e.mode)
	}
	e.runHeld = true
	return nil
}

// ReleaseOutputs drops the hold taken by HoldOutputs.
func (e *Engine) ReleaseOutputs() {
	e.mu.Lock()
	e.runHeld = false
	e.mu.Unlock()
}

func (e *Engine) releaseLocked() {
	e.mode = ModeNone
	e.cancel = nil
	e.doorOpen, e.doorClosed = nil, nil
	e.drive.StopAll()
	e.drive.ReleaseManual()
}

// StartDoor enters interactive door calibration. The servo is enabled so the
// caller can jog the door to its endpoints.
func (e *Engine) StartDoor() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.claimLocked(ModeDoor); err != nil {
		return err
	}
	if err := e.door.EnableServo(); err != nil {
		e.releaseLocked()
		return fmt.Errorf("enable servo: %w", err)
	}
	e.doorOpen, e.doorClosed = nil, nil
	e.state = models.CalibrationState{Phase: models.PhaseDoor}
	e.log.Infow("calibration_started", "mode", ModeDoor.String())
	e.post(EventStarted, events.String(ModeDoor.String()))
	return nil
}

// Stop requests cancellation. Procedures on the worker observe it at their next
// wait; door calibration ends immediately. Returns false if nothing was active.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.mode {
	case ModeNone:
		return false
	case ModeDoor:
		e.releaseLocked()
		e.state = models.CalibrationState{Phase: models.PhaseIdle}
		e.log.Infow("calibration_stopped", "mode", ModeDoor.String())
		e.post(EventStopped, events.String(ModeDoor.String()))
	default:
		if e.cancel != nil {
			e.cancel()
		}
	}
	return true
}

// finish runs on the worker after a procedure returns.
func (e *Engine) finish(mode Mode, err error) {
	e.mu.Lock()
	e.releaseLocked()
	switch {
	case err == nil:
		e.state.Phase = models.PhaseComplete
		e.state.Progress = 1
		e.state.TimeRemaining = 0
	case errors.Is(err, context.Canceled):
		e.state = models.CalibrationState{Phase: models.PhaseIdle}
	default:
		e.state.Phase = models.PhaseError
		e.state.HasError = true
		e.state.ErrorMessage = err.Error()
	}
	e.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		e.log.Infow("calibration_stopped", "mode", mode.String())
		e.post(EventStopped, events.String(mode.String()))
		return
	}
	e.finishEvents(mode, err)
}

// commit persists p and only then makes it the live profile. Sensor and thermal
// runs set the profile-wide calibrated flag; door runs leave it as it was.
func (e *Engine) commit(p models.CalibrationProfile, markCalibrated bool) error {
	if markCalibrated {
		p.IsCalibrated = true
	}
	p.LastCalibration = e.now().UTC()
	if err := e.store.Save(p); err != nil {
		return fmt.Errorf("persist calibration profile: %w", err)
	}
	e.mu.Lock()
	e.profile = p
	e.mu.Unlock()
	e.applyProfile(p)
	e.post(EventProfileSaved, events.None())
	return nil
}

// SetDoorOpenPosition records the current raw angle as fully open.
func (e *Engine) SetDoorOpenPosition(angle float64) error {
	return e.recordDoor(angle, true)
}

// SetDoorClosedPosition records the current raw angle as fully closed.
func (e *Engine) SetDoorClosedPosition(angle float64) error {
	return e.recordDoor(angle, false)
}

func (e *Engine) recordDoor(angle float64, open bool) error {
	e.mu.Lock()
	if e.mode != ModeDoor {
		e.mu.Unlock()
		return ErrNotInDoorMode
	}
	a := angle
	which := "closed"
	if open {
		e.doorOpen = &a
		which = "open"
	} else {
		e.doorClosed = &a
	}
	e.post(EventDoorRecorded, events.String(fmt.Sprintf("%s=%.1f", which, angle)))
	if e.doorOpen == nil || e.doorClosed == nil {
		e.state.Progress = 0.5
		e.mu.Unlock()
		return nil
	}
	openAngle, closedAngle := *e.doorOpen, *e.doorClosed
	p := e.profile.Clone()
	e.mu.Unlock()

	if err := e.door.SetCalibration(closedAngle, openAngle); err != nil {
		return fmt.Errorf("apply door endpoints: %w", err)
	}
	p.Door = models.DoorCalibrationData{
		IsCalibrated:        true,
		OpenPositionAngle:   float32(openAngle),
		ClosedPositionAngle: float32(closedAngle),
	}
	err := e.commit(p, false)
	e.finishDoor(err)
	return err
}

func (e *Engine) finishDoor(err error) {
	e.mu.Lock()
	if e.mode != ModeDoor {
		e.mu.Unlock()
		return
	}
	e.releaseLocked()
	if err != nil {
		e.state.Phase = models.PhaseError
		e.state.HasError = true
		e.state.ErrorMessage = err.Error()
	} else {
		e.state.Phase = models.PhaseComplete
		e.state.Progress = 1
	}
	e.mu.Unlock()
	e.finishEvents(ModeDoor, err)
}

func (e *Engine) finishEvents(mode Mode, err error) {
	if err != nil {
		e.log.Errorw("calibration_failed", "mode", mode.String(), "err", err)
		e.post(EventFailed, events.String(err.Error()))
		return
	}
	e.log.Infow("calibration_complete", "mode", mode.String())
	e.post(EventComplete, events.String(mode.String()))
}

// MoveDoorRaw jogs the door to an absolute servo angle during door calibration.
func (e *Engine) MoveDoorRaw(angle float64) error {
	if e.Mode() != ModeDoor {
		return ErrNotInDoorMode
	}
	return e.door.SetRawAngle(angle)
}

// JogDoor moves the door by delta degrees from its current target.
func (e *Engine) JogDoor(delta float64) error {
	if e.Mode() != ModeDoor {
		return ErrNotInDoorMode
	}
	st := e.door.State()
	return e.door.SetRawAngle(st.TargetAngle + delta)
}

// ExpectedHeatingRate returns °C/s for percent heater power at the current temperature.
func (e *Engine) ExpectedHeatingRate(percent float64) float64 {
	temp := e.drive.State().FrontTempC
	e.mu.RLock()
	defer e.mu.RUnlock()
	th := e.profile.Thermal
	return float64(lookupRate(th.TempPoints, th.HeatingRate, float32(percent), float32(temp)))
}

// ExpectedCoolingRate returns °C/s (negative while cooling) for percent door aperture.
func (e *Engine) ExpectedCoolingRate(percent float64) float64 {
	temp := e.drive.State().FrontTempC
	e.mu.RLock()
	defer e.mu.RUnlock()
	th := e.profile.Thermal
	return float64(lookupRate(th.TempPoints, th.CoolingRate, float32(percent), float32(temp)))
}

func (e *Engine) State() models.CalibrationState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// IsActive reports whether any procedure holds the outputs.
func (e *Engine) IsActive() bool { return e.Mode() != ModeNone }

// Profile returns a deep copy of the live profile.
func (e *Engine) Profile() models.CalibrationProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile.Clone()
}

func (e *Engine) setProgress(phase models.CalibrationPhase, progress, temp float64, remaining time.Duration) {
	e.mu.Lock()
	e.state.Phase = phase
	e.state.Progress = progress
	e.state.CurrentTempC = temp
	e.state.TimeRemaining = remaining
	e.mu.Unlock()
	e.post(EventProgress, events.Float(progress))
}

func (e *Engine) post(name string, p events.Payload) {
	if e.bus != nil {
		e.bus.Post(events.TopicCalibration, name, p)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
