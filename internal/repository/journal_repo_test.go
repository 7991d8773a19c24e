package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"reflow_oven/internal/models"
)

func TestJournalAppend_FillsDefaultsAndNormalizes(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(insertJournalSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "door", "DOOR_OPENED", `{"kind":"none","value":null}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewJournalSQLite(db).Append(context.Background(), models.JournalEntry{
		Topic:   " Door ",
		Name:    "door_opened",
		Payload: map[string]any{"kind": "none", "value": nil},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestJournalAppend_NilPayloadStoresNull(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	at := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(insertJournalSQL)).
		WithArgs("ev-1", "2025-03-01 08:30:00.000", "system", "BOOT", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewJournalSQLite(db).Append(context.Background(), models.JournalEntry{
		EventID: "ev-1", OccurredAt: at, Topic: "system", Name: "BOOT",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestJournalAppend_DBError(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO oven_events").WillReturnError(errors.New("down"))

	err := NewJournalSQLite(db).Append(context.Background(), models.JournalEntry{Topic: "door", Name: "X"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestJournalList_NoFilters(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "occurred_at", "topic", "name", "payload"}).
		AddRow("1", "2025-01-01 10:00:00.000", "control", "TARGET_CHANGED", `{"kind":"float","value":150}`).
		AddRow("2", "2025-01-01 11:00:00.000", "door", "DOOR_CLOSED", nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectJournalSQL + " ORDER BY occurred_at ASC")).
		WillReturnRows(rows)

	got, err := NewJournalSQLite(db).List(context.Background(), JournalFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC); !got[0].OccurredAt.Equal(want) {
		t.Fatalf("occurred_at: want %v, got %v", want, got[0].OccurredAt)
	}
	m, ok := got[0].Payload.(map[string]any)
	if !ok || m["value"] != float64(150) {
		t.Fatalf("payload not decoded: %#v", got[0].Payload)
	}
	if got[1].Payload != nil {
		t.Fatalf("want nil payload, got %#v", got[1].Payload)
	}
}

func TestJournalList_WithFilters(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	from := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	q := selectJournalSQL + " WHERE occurred_at >= ? AND occurred_at <= ? AND topic = ? AND name = ? ORDER BY occurred_at ASC LIMIT ?"

	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("2025-01-01 11:00:00.000", "2025-01-01 12:00:00.000", "door", "DOOR_OPENED", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "topic", "name", "payload"}))

	got, err := NewJournalSQLite(db).List(context.Background(), JournalFilter{
		From: from, To: to, Topic: "DOOR", Name: "door_opened", Limit: 10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
}

func TestJournalList_BadTimestamp(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "occurred_at", "topic", "name", "payload"}).
		AddRow("x", "yesterday", "system", "BOOT", nil)
	mock.ExpectQuery("SELECT id, occurred_at").WillReturnRows(rows)

	if _, err := NewJournalSQLite(db).List(context.Background(), JournalFilter{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestJournalPrune(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	before := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(pruneJournalSQL)).
		WithArgs("2025-02-01 00:00:00.000").
		WillReturnResult(sqlmock.NewResult(0, 17))

	n, err := NewJournalSQLite(db).Prune(context.Background(), before)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 17 {
		t.Fatalf("want 17 pruned, got %d", n)
	}
}
