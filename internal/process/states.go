package process

import (
	"errors"
	"fmt"
	"time"

	"reflow_oven/internal/events"
	"reflow_oven/internal/models"
)

// stateBehavior is what a state does on entry, on exit and on every tick.
type stateBehavior interface {
	OnEnter(o *Orchestrator)
	OnExit(o *Orchestrator)
	Update(o *Orchestrator, now time.Time)
}

func defaultBehaviors() map[models.ProcessState]stateBehavior {
	return map[models.ProcessState]stateBehavior{
		models.StateIdle:     idleState{},
		models.StatePrecheck: precheckState{},
		models.StateRunning:  runningState{},
		models.StateComplete: completeState{},
		models.StateError:    errorState{},
	}
}

type edge struct{ from, to models.ProcessState }

var transitions = map[models.ProcessState][]models.ProcessState{
	models.StateIdle:     {models.StatePrecheck, models.StateError},
	models.StatePrecheck: {models.StateRunning, models.StateIdle, models.StateError},
	models.StateRunning:  {models.StateComplete, models.StateIdle, models.StateError},
	models.StateComplete: {models.StatePrecheck, models.StateIdle, models.StateError},
	models.StateError:    {models.StateIdle},
}

func allowed(from, to models.ProcessState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	errSensorFault      = errors.New("sensor fault")
	errCalibrationOwned = errors.New("calibration in progress")
)

type predicate func(o *Orchestrator, curve models.ReflowCurve) error

var predicates = map[edge]predicate{
	{models.StateIdle, models.StatePrecheck}:     canPrepare,
	{models.StateComplete, models.StatePrecheck}: canPrepare,
	{models.StatePrecheck, models.StateRunning}:  canStartHeating,
}

func canPrepare(o *Orchestrator, curve models.ReflowCurve) error {
	if len(curve.Steps) == 0 {
		return fmt.Errorf("curve %q has no steps", curve.Name)
	}
	if o.calib != nil && o.calib.IsActive() {
		return errCalibrationOwned
	}
	if o.ctrl.State().HasError {
		return errSensorFault
	}
	return nil
}

func canStartHeating(o *Orchestrator, curve models.ReflowCurve) error {
	if err := canPrepare(o, curve); err != nil {
		return err
	}
	if t := o.ctrl.State().MaxTempC(); t > curve.MinimumStartTempC {
		return fmt.Errorf("oven at %.1f°C, curve starts at or below %.1f°C", t, curve.MinimumStartTempC)
	}
	return nil
}

type idleState struct{}

func (idleState) OnEnter(o *Orchestrator) {
	o.ctrl.StopAll()
	o.seq.Clear()
	o.curve = models.ReflowCurve{}
	o.updateStatus(func(s *models.ProcessStatus) {
		*s = models.ProcessStatus{State: models.StateIdle, LastError: s.LastError}
	})
}

func (idleState) OnExit(*Orchestrator) {}

func (idleState) Update(*Orchestrator, time.Time) {}

// precheckState vents the oven until it is cool enough to start the curve.
type precheckState struct{}

func (precheckState) OnEnter(o *Orchestrator) {
	o.precheckSince = o.now()
	// zero the loop first so its idle path does not close the vent behind us
	o.ctrl.StopAll()
	o.updateStatus(func(s *models.ProcessStatus) {
		s.CurveName = o.curve.Name
		s.StepIndex = 0
		s.StepLabel = ""
		s.TargetTempC = 0
		s.LastError = ""
	})
	if o.ctrl.State().MaxTempC() > o.curve.MinimumStartTempC {
		o.vent(100)
	}
}

func (precheckState) OnExit(o *Orchestrator) {
	o.vent(0)
}

func (precheckState) Update(o *Orchestrator, now time.Time) {
	st := o.ctrl.State()
	if st.HasError {
		o.fail("sensor fault during precheck")
		return
	}
	err := o.transition(models.StateRunning, "oven ready")
	if err == nil {
		return
	}
	if !errors.Is(err, ErrPredicateFailed) {
		o.fail(err.Error())
		return
	}
	if o.cfg.PrecheckTimeout > 0 && now.Sub(o.precheckSince) >= o.cfg.PrecheckTimeout {
		o.fail(fmt.Sprintf("precheck timeout: %v", err))
	}
}

func (o *Orchestrator) vent(percent float64) {
	if o.door == nil {
		return
	}
	if err := o.door.SetPosition(percent); err != nil {
		o.log.Warnw("precheck_vent_rejected", "percent", percent, "err", err)
	}
}

// runningState pushes the interpolated setpoint and advances steps on time.
type runningState struct{}

func (runningState) OnEnter(o *Orchestrator) {
	now := o.now()
	o.startTempC = o.ctrl.State().MaxTempC()
	o.stepStarted = now
	o.beginRun(now)
	o.announceStep()
	runningState{}.Update(o, now)
}

func (runningState) OnExit(*Orchestrator) {}

func (runningState) Update(o *Orchestrator, now time.Time) {
	st := o.ctrl.State()
	if st.HasError {
		o.fail("sensor fault during run")
		return
	}
	if t := st.MaxTempC(); t > o.run.PeakTempC {
		o.run.PeakTempC = t
	}

	step, ok := o.seq.CurrentStep()
	if !ok {
		o.complete()
		return
	}
	elapsed := now.Sub(o.stepStarted)
	if elapsed >= step.Duration {
		if o.seq.IsLastStep() {
			o.seq.Complete()
			o.complete()
			return
		}
		o.seq.AdvanceStep()
		o.stepStarted = now
		elapsed = 0
		o.announceStep()
		step, _ = o.seq.CurrentStep()
	}

	target, _ := o.seq.TargetAt(o.startTempC, elapsed)
	o.ctrl.SetTargetTemperature(target)
	o.updateStatus(func(s *models.ProcessStatus) {
		s.StepElapsed = elapsed
		s.TargetTempC = target
		s.StepLabel = step.Label
	})
}

func (o *Orchestrator) announceStep() {
	step, ok := o.seq.CurrentStep()
	if !ok {
		return
	}
	idx := o.seq.Index()
	o.updateStatus(func(s *models.ProcessStatus) {
		s.StepIndex = idx
		s.StepLabel = step.Label
		s.StepElapsed = 0
	})
	o.log.Infow("reflow_step", "index", idx, "label", step.Label, "target_c", step.TargetTempC, "duration", step.Duration)
	o.post(EventStepChanged, events.String(step.Label))
}

func (o *Orchestrator) complete() {
	if err := o.transition(models.StateComplete, "curve finished"); err != nil {
		o.fail(err.Error())
	}
}

type completeState struct{}

func (completeState) OnEnter(o *Orchestrator) {
	o.ctrl.StopAll()
	o.finishRun(models.OutcomeComplete, "")
	o.updateStatus(func(s *models.ProcessStatus) {
		s.TargetTempC = 0
		s.StepIndex = o.seq.Index()
	})
	o.post(EventComplete, events.String(o.curve.Name))
}

func (completeState) OnExit(*Orchestrator) {}

func (completeState) Update(*Orchestrator, time.Time) {}

type errorState struct{}

func (errorState) OnEnter(o *Orchestrator) {
	o.ctrl.StopAll()
	o.updateStatus(func(s *models.ProcessStatus) { s.TargetTempC = 0 })
}

func (errorState) OnExit(*Orchestrator) {}

func (errorState) Update(*Orchestrator, time.Time) {}
