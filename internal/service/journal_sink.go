package service

import (
	"context"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

const journalQueueSize = 512

// JournalSink persists every bus event except the names it was told to skip.
type JournalSink struct {
	bus     *events.Bus
	journal repository.Journal
	log     *logger.Logger
	skip    map[string]struct{}
}

func NewJournalSink(bus *events.Bus, journal repository.Journal, log *logger.Logger, skip ...string) *JournalSink {
	s := &JournalSink{
		bus:     bus,
		journal: journal,
		log:     log.Named("journal"),
		skip:    make(map[string]struct{}, len(skip)),
	}
	for _, n := range skip {
		s.skip[n] = struct{}{}
	}
	return s
}

// Run blocks until ctx is done.
func (s *JournalSink) Run(ctx context.Context) {
	l := s.bus.Subscribe(journalQueueSize)
	defer s.bus.Unsubscribe(l)
	events.Consume(ctx, l, func(e events.Event) { s.record(ctx, e) })
}

func (s *JournalSink) record(ctx context.Context, e events.Event) {
	if _, ok := s.skip[e.Name]; ok {
		return
	}
	entry := models.JournalEntry{
		OccurredAt: e.Timestamp,
		Topic:      e.Topic,
		Name:       e.Name,
		Payload:    e.Payload.Value(),
	}
	if err := s.journal.Append(ctx, entry); err != nil && ctx.Err() == nil {
		s.log.Warnw("journal_append_failed", "topic", e.Topic, "name", e.Name, "err", err)
	}
}
