package housekeeping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

type fakePruner struct {
	before time.Time
	calls  int
	n      int64
	err    error
}

func (f *fakePruner) Prune(ctx context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return f.n, f.err
}

type fakeProfiles struct{ p models.CalibrationProfile }

func (f fakeProfiles) Profile() models.CalibrationProfile { return f.p }

var fixedNow = time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, cfg Config, pr Pruner, ps ProfileSource, bus *events.Bus) *Scheduler {
	t.Helper()
	s, err := New(cfg, pr, ps, bus, logger.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func names(l *events.Listener) []string {
	var out []string
	for {
		select {
		case e := <-l.C():
			out = append(out, e.Name)
		default:
			return out
		}
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(Config{Schedule: "every so often"}, nil, nil, nil, logger.Nop())
	assert.Error(t, err)
}

func TestRunOnce_PrunesOlderThanRetention(t *testing.T) {
	bus := events.NewBus()
	l := bus.Subscribe(8)
	pr := &fakePruner{n: 3}
	calibrated := fakeProfiles{models.CalibrationProfile{IsCalibrated: true, LastCalibration: fixedNow.Add(-time.Hour)}}
	s := newScheduler(t, Config{Retention: 24 * time.Hour, MaxProfileAge: 48 * time.Hour}, pr, calibrated, bus)

	s.RunOnce()

	assert.Equal(t, 1, pr.calls)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), pr.before)
	assert.Equal(t, []string{EventJournalPruned}, names(l))
}

func TestRunOnce_RetentionZeroSkipsPrune(t *testing.T) {
	pr := &fakePruner{}
	s := newScheduler(t, Config{}, pr, nil, nil)
	s.RunOnce()
	assert.Zero(t, pr.calls)
}

func TestRunOnce_PruneErrorIsQuiet(t *testing.T) {
	bus := events.NewBus()
	l := bus.Subscribe(8)
	pr := &fakePruner{err: errors.New("locked")}
	s := newScheduler(t, Config{Retention: time.Hour}, pr, nil, bus)

	s.RunOnce()
	assert.Empty(t, names(l))
}

func TestRunOnce_ProfileChecks(t *testing.T) {
	cases := []struct {
		name    string
		profile models.CalibrationProfile
		want    []string
	}{
		{"uncalibrated", models.CalibrationProfile{}, []string{EventProfileUncalibrated}},
		{"fresh", models.CalibrationProfile{IsCalibrated: true, LastCalibration: fixedNow.Add(-time.Hour)}, nil},
		{"stale", models.CalibrationProfile{IsCalibrated: true, LastCalibration: fixedNow.Add(-72 * time.Hour)}, []string{EventProfileStale}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := events.NewBus()
			l := bus.Subscribe(8)
			s := newScheduler(t, Config{MaxProfileAge: 48 * time.Hour}, nil, fakeProfiles{tc.profile}, bus)
			s.RunOnce()
			assert.Equal(t, tc.want, names(l))
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	pr := &fakePruner{}
	s := newScheduler(t, Config{Schedule: "@every 1h", Retention: time.Hour}, pr, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, pr.calls)
}
