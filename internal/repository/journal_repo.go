package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reflow_oven/internal/models"
)

// sqliteTimeLayout matches SQLite's TIMESTAMP text form.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

const (
	insertJournalSQL = `
		INSERT INTO oven_events (id, occurred_at, topic, name, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	selectJournalSQL = `SELECT id, occurred_at, topic, name, payload FROM oven_events`
	pruneJournalSQL  = `DELETE FROM oven_events WHERE occurred_at < ?`
)

// JournalFilter narrows List. Zero values mean "no bound".
type JournalFilter struct {
	From  time.Time
	To    time.Time
	Topic string
	Name  string
	Limit int
}

type JournalSQLite struct {
	db *sql.DB
}

var _ Journal = (*JournalSQLite)(nil)

func NewJournalSQLite(db *sql.DB) *JournalSQLite {
	return &JournalSQLite{db: db}
}

// Append inserts an entry, filling in EventID and OccurredAt when empty.
func (r *JournalSQLite) Append(ctx context.Context, e models.JournalEntry) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	var payload *string
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload of %s/%s: %w", e.Topic, e.Name, err)
		}
		s := string(b)
		payload = &s
	}

	_, err := r.db.ExecContext(ctx, insertJournalSQL,
		e.EventID,
		e.OccurredAt.UTC().Format(sqliteTimeLayout),
		strings.ToLower(strings.TrimSpace(e.Topic)),
		strings.ToUpper(strings.TrimSpace(e.Name)),
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// List returns entries matching f, oldest first.
func (r *JournalSQLite) List(ctx context.Context, f JournalFilter) ([]models.JournalEntry, error) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, f.From.UTC().Format(sqliteTimeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, f.To.UTC().Format(sqliteTimeLayout))
	}
	if topic := strings.ToLower(strings.TrimSpace(f.Topic)); topic != "" {
		conds = append(conds, "topic = ?")
		args = append(args, topic)
	}
	if name := strings.ToUpper(strings.TrimSpace(f.Name)); name != "" {
		conds = append(conds, "name = ?")
		args = append(args, name)
	}

	q := selectJournalSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	out := make([]models.JournalEntry, 0, 64)
	for rows.Next() {
		var (
			e       models.JournalEntry
			at      string
			payload sql.NullString
		)
		if err := rows.Scan(&e.EventID, &at, &e.Topic, &e.Name, &payload); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		ts, err := time.ParseInLocation(sqliteTimeLayout, at, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", at, err)
		}
		e.OccurredAt = ts
		if payload.Valid && payload.String != "" {
			var v any
			if err := json.Unmarshal([]byte(payload.String), &v); err == nil {
				e.Payload = v
			} else {
				e.Payload = payload.String
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes entries older than before and reports how many went.
func (r *JournalSQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, pruneJournalSQL, before.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal rows affected: %w", err)
	}
	return n, nil
}
