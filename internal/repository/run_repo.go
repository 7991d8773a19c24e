package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reflow_oven/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

const (
	insertRunSQL = `
		INSERT INTO reflow_runs (id, curve_name, started_at, finished_at, outcome, peak_temp_c, detail)
		VALUES (?, ?, ?, NULL, ?, ?, ?)
	`
	finishRunSQL = `
		UPDATE reflow_runs SET finished_at = ?, outcome = ?, peak_temp_c = ?, detail = ?
		WHERE id = ?
	`
	selectRunColumns = `SELECT id, curve_name, started_at, finished_at, outcome, peak_temp_c, detail FROM reflow_runs`
)

type RunSQLite struct {
	db *sql.DB
}

var _ RunHistory = (*RunSQLite)(nil)

func NewRunSQLite(db *sql.DB) *RunSQLite {
	return &RunSQLite{db: db}
}

// Begin inserts a run in the RUNNING outcome.
func (r *RunSQLite) Begin(ctx context.Context, run models.RunRecord) error {
	if run.Outcome == "" {
		run.Outcome = models.OutcomeRunning
	}
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		run.ID,
		run.CurveName,
		run.StartedAt.UTC().Format(sqliteTimeLayout),
		run.Outcome,
		run.PeakTempC,
		run.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Finish stores the terminal outcome of a run.
func (r *RunSQLite) Finish(ctx context.Context, run models.RunRecord) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := r.db.ExecContext(ctx, finishRunSQL,
		finished.UTC().Format(sqliteTimeLayout),
		run.Outcome,
		run.PeakTempC,
		run.Detail,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s rows affected: %w", run.ID, err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *RunSQLite) Get(ctx context.Context, id string) (models.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, selectRunColumns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunRecord{}, ErrRunNotFound
	}
	return run, err
}

// List returns the newest runs first.
func (r *RunSQLite) List(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectRunColumns+" ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (models.RunRecord, error) {
	var (
		run      models.RunRecord
		started  string
		finished sql.NullString
		detail   sql.NullString
	)
	if err := s.Scan(&run.ID, &run.CurveName, &started, &finished, &run.Outcome, &run.PeakTempC, &detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.ParseInLocation(sqliteTimeLayout, started, time.UTC)
	if err != nil {
		return run, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	run.StartedAt = t
	if finished.Valid {
		t, err := time.ParseInLocation(sqliteTimeLayout, finished.String, time.UTC)
		if err != nil {
			return run, fmt.Errorf("parse finished_at %q: %w", finished.String, err)
		}
		run.FinishedAt = t
	}
	run.Detail = detail.String
	return run, nil
}
