package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"reflow_oven/internal/models"
	"reflow_oven/internal/repository"
)

const (
	defaultLogLimit = 500
	maxLogLimit     = 5000
)

type EventLogService struct {
	journal repository.Journal
}

func NewEventLogService(journal repository.Journal) *EventLogService {
	return &EventLogService{journal: journal}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventName trims spaces and uppercases the event name filter.
func normalizeEventName(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeTopic trims spaces and lowercases the topic filter.
func normalizeTopic(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLogLimit
	case n > maxLogLimit:
		return maxLogLimit
	}
	return n
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (repository.JournalFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.JournalFilter{}, errInvalidTimeRange
	}

	return repository.JournalFilter{
		From:  from,
		To:    to,
		Topic: normalizeTopic(f.Topic),
		Name:  normalizeEventName(f.Name),
		Limit: clampLimit(f.Limit),
	}, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.JournalEntry, error) {
	jf, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.journal.List(ctx, jf)
}
