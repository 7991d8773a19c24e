package reflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reflow_oven/internal/models"
)

func fourStepCurve() models.ReflowCurve {
	return models.ReflowCurve{
		Name:              "test",
		MinimumStartTempC: 50,
		Steps: []models.ReflowStep{
			{Label: "Preheat", TargetTempC: 150, Duration: 60000 * time.Millisecond},
			{Label: "Soak", TargetTempC: 180, Duration: 90000 * time.Millisecond},
			{Label: "Reflow", TargetTempC: 245, Duration: 30000 * time.Millisecond},
			{Label: "Cooldown", TargetTempC: 50, Duration: 60000 * time.Millisecond},
		},
	}
}

func TestSequencer_AdvanceClampsAndCompletionIsExplicit(t *testing.T) {
	s := NewSequencer()
	s.SetActiveCurve(fourStepCurve())

	for i := 0; i < 3; i++ {
		s.AdvanceStep()
	}
	assert.Equal(t, 3, s.Index())
	step, ok := s.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "Cooldown", step.Label)
	assert.False(t, s.IsComplete())

	s.AdvanceStep()
	assert.Equal(t, 3, s.Index(), "index is clamped to size-1")
	assert.False(t, s.IsComplete())

	s.Complete()
	assert.Equal(t, 4, s.Index())
	assert.True(t, s.IsComplete())
	_, ok = s.CurrentStep()
	assert.False(t, ok)
}

func TestSequencer_SetActiveCurveRewinds(t *testing.T) {
	s := NewSequencer()
	s.SetActiveCurve(fourStepCurve())
	s.AdvanceStep()
	s.Complete()

	s.SetActiveCurve(fourStepCurve())
	assert.Equal(t, 0, s.Index())
	assert.False(t, s.IsComplete())
}

func TestSequencer_NoCurve(t *testing.T) {
	s := NewSequencer()
	s.AdvanceStep()
	s.Complete()
	assert.False(t, s.IsComplete())
	_, ok := s.TargetAt(25, 0)
	assert.False(t, ok)
}

func TestSequencer_CurveIsCopied(t *testing.T) {
	c := fourStepCurve()
	s := NewSequencer()
	s.SetActiveCurve(c)
	c.Steps[0].TargetTempC = 999

	step, _ := s.CurrentStep()
	assert.Equal(t, 150.0, step.TargetTempC)
}

func TestInterpolateTarget_PreheatFromAmbient(t *testing.T) {
	preheat := fourStepCurve().Steps[0]

	assert.Equal(t, 45.0, InterpolateTarget(45, preheat, 0))
	assert.Equal(t, 97.5, InterpolateTarget(45, preheat, 30000*time.Millisecond))
	assert.Equal(t, 150.0, InterpolateTarget(45, preheat, 60000*time.Millisecond))
	assert.Equal(t, 150.0, InterpolateTarget(45, preheat, 90*time.Second))
	assert.Equal(t, 45.0, InterpolateTarget(45, preheat, -time.Second))
}

func TestSequencer_TargetAtUsesPreviousStep(t *testing.T) {
	s := NewSequencer()
	s.SetActiveCurve(fourStepCurve())

	got, ok := s.TargetAt(45, 30*time.Second)
	require.True(t, ok)
	assert.Equal(t, 97.5, got)

	s.AdvanceStep() // Soak: 150 -> 180 over 90s
	got, _ = s.TargetAt(45, 45*time.Second)
	assert.Equal(t, 165.0, got)

	s.AdvanceStep()
	s.AdvanceStep() // Cooldown ramps down from 245
	got, _ = s.TargetAt(45, 30*time.Second)
	assert.InDelta(t, 147.5, got, 1e-9)
}
