package models

import "time"

// JournalEntry is a persisted bus event.
type JournalEntry struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Topic      string    `json:"topic"`
	Name       string    `json:"name"`
	Payload    any       `json:"payload,omitempty"`
}

// Operator is a user allowed to drive the oven remotely.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
