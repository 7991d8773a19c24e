// Package process sequences a reflow run through PRECHECK, RUNNING and COMPLETE.
package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/reflow"
)

// Event names published on events.TopicProcess.
const (
	EventStateChanged       = "STATE_CHANGED"
	EventStepChanged        = "STEP_CHANGED"
	EventRunStarted         = "RUN_STARTED"
	EventComplete           = "PROCESS_COMPLETE"
	EventError              = "PROCESS_ERROR"
	EventTransitionRejected = "TRANSITION_REJECTED"
)

var (
	ErrInvalidTransition = errors.New("process: transition not allowed")
	ErrPredicateFailed   = errors.New("process: safety predicate failed")
	ErrBusy              = errors.New("process: command queue full")
	ErrNotRunning        = errors.New("process: orchestrator is not running")
)

// Controller is the temperature loop as seen by the orchestrator.
type Controller interface {
	SetTargetTemperature(t float64)
	StopAll()
	State() models.ControlState
}

// Aperture opens the vent during precheck cooling.
type Aperture interface {
	SetPosition(percent float64) error
}

// CalibrationGuard arbitrates the outputs between a run and calibration.
// HoldOutputs checks and reserves in one step.
type CalibrationGuard interface {
	IsActive() bool
	HoldOutputs() error
	ReleaseOutputs()
}

// CurveSource resolves curve names.
type CurveSource interface {
	Get(name string) (models.ReflowCurve, error)
}

// RunRecorder persists run history.
type RunRecorder interface {
	Begin(ctx context.Context, r models.RunRecord) error
	Finish(ctx context.Context, r models.RunRecord) error
}

type Config struct {
	TickPeriod      time.Duration
	PrecheckTimeout time.Duration
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdCancel
	cmdReset
	cmdFail
)

type command struct {
	kind  commandKind
	curve string
	cause string
	reply chan error
}

// Orchestrator owns the process state. All transitions happen on the Run goroutine;
// other goroutines talk to it through the command queue.
type Orchestrator struct {
	cfg    Config
	ctrl   Controller
	door   Aperture
	calib  CalibrationGuard
	curves CurveSource
	runs   RunRecorder
	seq    *reflow.Sequencer
	bus    events.Publisher
	log    *logger.Logger
	now    func() time.Time

	behaviors map[models.ProcessState]stateBehavior
	cmds      chan command
	running   chan struct{}
	ctx       context.Context

	// owned by the Run goroutine
	current       models.ProcessState
	curve         models.ReflowCurve
	run           models.RunRecord
	runActive     bool
	startTempC    float64
	stepStarted   time.Time
	precheckSince time.Time

	mu     sync.RWMutex
	status models.ProcessStatus
}

func New(cfg Config, ctrl Controller, door Aperture, calib CalibrationGuard, curves CurveSource, runs RunRecorder, seq *reflow.Sequencer, bus events.Publisher, log *logger.Logger) *Orchestrator {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = 250 * time.Millisecond
	}
	if seq == nil {
		seq = reflow.NewSequencer()
	}
	return &Orchestrator{
		cfg:       cfg,
		ctrl:      ctrl,
		door:      door,
		calib:     calib,
		curves:    curves,
		runs:      runs,
		seq:       seq,
		bus:       bus,
		log:       log.Named("process"),
		now:       time.Now,
		behaviors: defaultBehaviors(),
		cmds:      make(chan command, 8),
		running:   make(chan struct{}),
		ctx:       context.Background(),
		current:   models.StateIdle,
		status:    models.ProcessStatus{State: models.StateIdle},
	}
}

// Run ticks the active state and serves commands until ctx is done.
// Any run in progress is cancelled on the way out.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	close(o.running)
	t := time.NewTicker(o.cfg.TickPeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if o.current != models.StateIdle {
				o.ctx = context.Background()
				o.abort(models.OutcomeCancelled, "shutdown")
			}
			return
		case c := <-o.cmds:
			c.reply <- o.handle(c)
		case <-t.C:
			o.tick(o.now())
		}
	}
}

// Start selects a curve and enters PRECHECK.
func (o *Orchestrator) Start(ctx context.Context, curve string) error {
	return o.submit(ctx, command{kind: cmdStart, curve: curve})
}

// Cancel stops outputs and returns to IDLE from any state.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	return o.submit(ctx, command{kind: cmdCancel})
}

// Reset clears ERROR or COMPLETE back to IDLE.
func (o *Orchestrator) Reset(ctx context.Context) error {
	return o.submit(ctx, command{kind: cmdReset})
}

// Fail forces ERROR with the given cause.
func (o *Orchestrator) Fail(ctx context.Context, cause string) error {
	return o.submit(ctx, command{kind: cmdFail, cause: cause})
}

func (o *Orchestrator) submit(ctx context.Context, c command) error {
	select {
	case <-o.running:
	default:
		return ErrNotRunning
	}
	c.reply = make(chan error, 1)
	select {
	case o.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBusy
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) handle(c command) error {
	switch c.kind {
	case cmdStart:
		curve, err := o.curves.Get(c.curve)
		if err != nil {
			return err
		}
		if err := o.checkTransition(models.StatePrecheck, curve); err != nil {
			return err
		}
		if o.calib != nil {
			if err := o.calib.HoldOutputs(); err != nil {
				return fmt.Errorf("%w: %s -> %s: %v", ErrPredicateFailed, o.current, models.StatePrecheck, err)
			}
		}
		o.curve = curve
		o.seq.SetActiveCurve(curve)
		o.enter(models.StatePrecheck, "start "+curve.Name)
		return nil
	case cmdCancel:
		if o.current == models.StateIdle {
			return nil
		}
		o.abort(models.OutcomeCancelled, "cancelled by operator")
		return nil
	case cmdReset:
		if o.current != models.StateError && o.current != models.StateComplete {
			return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, o.current)
		}
		o.enter(models.StateIdle, "reset")
		return nil
	case cmdFail:
		o.fail(c.cause)
		return nil
	}
	return fmt.Errorf("unknown command %d", c.kind)
}

// tick runs one Update of the current state.
func (o *Orchestrator) tick(now time.Time) {
	o.behaviors[o.current].Update(o, now)
}

// transition validates the table and the predicate, then switches state.
func (o *Orchestrator) transition(to models.ProcessState, reason string) error {
	if err := o.checkTransition(to, o.curve); err != nil {
		return err
	}
	o.enter(to, reason)
	return nil
}

func (o *Orchestrator) checkTransition(to models.ProcessState, curve models.ReflowCurve) error {
	from := o.current
	if !allowed(from, to) {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		o.post(EventTransitionRejected, events.String(from.String()+"->"+to.String()))
		return err
	}
	if p, ok := predicates[edge{from, to}]; ok {
		if err := p(o, curve); err != nil {
			return fmt.Errorf("%w: %s -> %s: %v", ErrPredicateFailed, from, to, err)
		}
	}
	return nil
}

// enter switches state unconditionally; callers have validated the edge.
func (o *Orchestrator) enter(to models.ProcessState, reason string) {
	from := o.current
	o.behaviors[from].OnExit(o)
	o.current = to
	o.updateStatus(func(s *models.ProcessStatus) { s.State = to })
	o.log.Infow("process_transition", "from", from.String(), "to", to.String(), "reason", reason)
	o.post(EventStateChanged, events.String(to.String()))
	o.behaviors[to].OnEnter(o)
	if o.calib != nil && to != models.StatePrecheck && to != models.StateRunning {
		o.calib.ReleaseOutputs()
	}
}

// fail moves to ERROR from anywhere.
func (o *Orchestrator) fail(cause string) {
	o.log.Errorw("process_error", "state", o.current.String(), "cause", cause)
	o.updateStatus(func(s *models.ProcessStatus) { s.LastError = cause })
	o.post(EventError, events.String(cause))
	if o.current == models.StateError {
		return
	}
	o.finishRun(models.OutcomeError, cause)
	o.enter(models.StateError, cause)
}

// abort stops everything and returns to IDLE.
func (o *Orchestrator) abort(outcome, detail string) {
	o.finishRun(outcome, detail)
	o.enter(models.StateIdle, detail)
}

func (o *Orchestrator) beginRun(now time.Time) {
	o.run = models.RunRecord{
		ID:        uuid.NewString(),
		CurveName: o.curve.Name,
		StartedAt: now,
		Outcome:   models.OutcomeRunning,
	}
	o.runActive = true
	if o.runs != nil {
		if err := o.runs.Begin(o.ctx, o.run); err != nil {
			o.log.Warnw("run_history_begin_failed", "run_id", o.run.ID, "err", err)
		}
	}
	o.updateStatus(func(s *models.ProcessStatus) {
		s.RunID = o.run.ID
		s.StartedAt = now
		s.CurveName = o.curve.Name
		s.LastError = ""
	})
	o.post(EventRunStarted, events.String(o.run.ID))
}

func (o *Orchestrator) finishRun(outcome, detail string) {
	if !o.runActive {
		return
	}
	o.runActive = false
	o.run.Outcome = outcome
	o.run.Detail = detail
	o.run.FinishedAt = o.now()
	if o.runs != nil {
		if err := o.runs.Finish(o.ctx, o.run); err != nil {
			o.log.Warnw("run_history_finish_failed", "run_id", o.run.ID, "err", err)
		}
	}
	o.log.Infow("run_finished", "run_id", o.run.ID, "outcome", outcome, "peak_c", o.run.PeakTempC)
}

// Status returns the latest snapshot; safe from any goroutine.
func (o *Orchestrator) Status() models.ProcessStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) updateStatus(fn func(s *models.ProcessStatus)) {
	o.mu.Lock()
	fn(&o.status)
	o.mu.Unlock()
}

func (o *Orchestrator) post(name string, p events.Payload) {
	if o.bus != nil {
		o.bus.Post(events.TopicProcess, name, p)
	}
}
