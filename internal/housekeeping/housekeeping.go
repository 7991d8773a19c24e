// Package housekeeping runs periodic maintenance that is not on the control path.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

// Event names published on events.TopicSystem.
const (
	EventJournalPruned       = "JOURNAL_PRUNED"
	EventProfileStale        = "PROFILE_STALE"
	EventProfileUncalibrated = "PROFILE_UNCALIBRATED"
)

const jobTimeout = 30 * time.Second

// Pruner drops journal rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// ProfileSource returns the active calibration profile.
type ProfileSource interface {
	Profile() models.CalibrationProfile
}

type Config struct {
	Schedule      string        // cron spec, e.g. "@every 1h"
	Retention     time.Duration // zero disables pruning
	MaxProfileAge time.Duration // zero disables the age check
}

// Scheduler owns the cron instance and the jobs on it.
type Scheduler struct {
	cfg      Config
	journal  Pruner
	profiles ProfileSource
	bus      events.Publisher
	log      *logger.Logger
	now      func() time.Time

	cron *cron.Cron
}

// New registers the jobs. It fails only on a malformed schedule.
func New(cfg Config, journal Pruner, profiles ProfileSource, bus events.Publisher, log *logger.Logger) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	s := &Scheduler{
		cfg:      cfg,
		journal:  journal,
		profiles: profiles,
		bus:      bus,
		log:      log.Named("housekeeping"),
		now:      time.Now,
		cron:     cron.New(),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("housekeeping schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Run starts the cron loop, checks once immediately and blocks until ctx ends.
// Jobs still running at that point are waited for.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce()
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Infow("housekeeping_stopped")
}

// RunOnce executes every job once.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.pruneJournal(ctx)
	s.checkProfile()
}

func (s *Scheduler) pruneJournal(ctx context.Context) {
	if s.journal == nil || s.cfg.Retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.journal.Prune(ctx, cutoff)
	if err != nil {
		s.log.Errorw("journal_prune_failed", "err", err, "cutoff", cutoff)
		return
	}
	if n > 0 {
		s.log.Infow("journal_pruned", "rows", n, "cutoff", cutoff)
		s.post(EventJournalPruned, events.Int(n))
	}
}

func (s *Scheduler) checkProfile() {
	if s.profiles == nil {
		return
	}
	p := s.profiles.Profile()
	if !p.IsCalibrated {
		s.log.Warnw("profile_not_calibrated")
		s.post(EventProfileUncalibrated, events.None())
		return
	}
	if s.cfg.MaxProfileAge <= 0 || p.LastCalibration.IsZero() {
		return
	}
	if age := s.now().Sub(p.LastCalibration); age > s.cfg.MaxProfileAge {
		s.log.Warnw("profile_stale", "age", age.Round(time.Minute), "last_calibration", p.LastCalibration)
		s.post(EventProfileStale, events.Float(age.Hours()))
	}
}

func (s *Scheduler) post(name string, p events.Payload) {
	if s.bus != nil {
		s.bus.Post(events.TopicSystem, name, p)
	}
}
