// Package reflow walks reflow curves and keeps the library of known curves.
package reflow

import (
	"sync"
	"time"

	"reflow_oven/internal/models"
)

// Sequencer tracks progress through the active curve. The index only moves
// forward; AdvanceStep stops at the last step and Complete marks the end.
type Sequencer struct {
	mu    sync.RWMutex
	curve models.ReflowCurve
	set   bool
	index int
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// SetActiveCurve replaces the curve and rewinds to step 0.
func (s *Sequencer) SetActiveCurve(c models.ReflowCurve) {
	c.Steps = append([]models.ReflowStep(nil), c.Steps...)
	s.mu.Lock()
	s.curve = c
	s.set = true
	s.index = 0
	s.mu.Unlock()
}

// Clear drops the active curve.
func (s *Sequencer) Clear() {
	s.mu.Lock()
	s.curve = models.ReflowCurve{}
	s.set = false
	s.index = 0
	s.mu.Unlock()
}

// AdvanceStep moves to the next step, clamped to the last one.
func (s *Sequencer) AdvanceStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := len(s.curve.Steps) - 1
	if s.index < last {
		s.index++
	}
}

// Complete drives the index past the last step.
func (s *Sequencer) Complete() {
	s.mu.Lock()
	if s.set {
		s.index = len(s.curve.Steps)
	}
	s.mu.Unlock()
}

func (s *Sequencer) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set && s.index >= len(s.curve.Steps)
}

func (s *Sequencer) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// CurrentStep returns the active step; ok is false with no curve or once complete.
func (s *Sequencer) CurrentStep() (step models.ReflowStep, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.index >= len(s.curve.Steps) {
		return models.ReflowStep{}, false
	}
	return s.curve.Steps[s.index], true
}

// IsLastStep reports whether the current step is the final one.
func (s *Sequencer) IsLastStep() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set && s.index == len(s.curve.Steps)-1
}

func (s *Sequencer) Curve() (models.ReflowCurve, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curve, s.set
}

// TargetAt interpolates the setpoint elapsed into the current step. startTempC is
// the oven temperature when the sequence began and seeds step 0.
func (s *Sequencer) TargetAt(startTempC float64, elapsed time.Duration) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.index >= len(s.curve.Steps) {
		return 0, false
	}
	from := startTempC
	if s.index > 0 {
		from = s.curve.Steps[s.index-1].TargetTempC
	}
	return InterpolateTarget(from, s.curve.Steps[s.index], elapsed), true
}

// InterpolateTarget ramps linearly from fromC to the step target over the step duration.
func InterpolateTarget(fromC float64, step models.ReflowStep, elapsed time.Duration) float64 {
	ratio := 1.0
	if step.Duration > 0 {
		ratio = float64(elapsed) / float64(step.Duration)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio >= 1 {
		return step.TargetTempC
	}
	return fromC + (step.TargetTempC-fromC)*ratio
}
