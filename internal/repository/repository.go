package repository

import (
	"context"
	"database/sql"
	"time"

	"reflow_oven/internal/models"
)

type Operators interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
	Count(ctx context.Context) (int, error)
}

// Journal stores bus events for later inspection.
type Journal interface {
	Append(ctx context.Context, e models.JournalEntry) error
	List(ctx context.Context, f JournalFilter) ([]models.JournalEntry, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// RunHistory records one row per reflow run.
type RunHistory interface {
	Begin(ctx context.Context, r models.RunRecord) error
	Finish(ctx context.Context, r models.RunRecord) error
	Get(ctx context.Context, id string) (models.RunRecord, error)
	List(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// Profiles persists the calibration profile.
type Profiles interface {
	Save(p models.CalibrationProfile) error
	Load() (models.CalibrationProfile, error)
}

type Repository struct {
	Operators Operators
	Journal   Journal
	Runs      RunHistory
	Profiles  Profiles
}

func NewRepository(db *sql.DB, flash Flash, profileOffset int64) *Repository {
	return &Repository{
		Operators: NewOperatorSQLite(db),
		Journal:   NewJournalSQLite(db),
		Runs:      NewRunSQLite(db),
		Profiles:  NewProfileStore(flash, profileOffset),
	}
}
