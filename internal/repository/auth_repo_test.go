package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"reflow_oven/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

func TestOperatorSQLite_Create(t *testing.T) {
	tests := []struct {
		name       string
		username   string
		hash       string
		expect     func(sqlmock.Sqlmock)
		wantID     int
		errContain string
	}{
		{
			name:     "success",
			username: "alice",
			hash:     "h123",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("alice", "h123").
					WillReturnResult(sqlmock.NewResult(42, 1))
			},
			wantID: 42,
		},
		{
			name:     "exec error",
			username: "bob",
			hash:     "h456",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("bob", "h456").
					WillReturnError(errors.New("unique constraint"))
			},
			errContain: "insert operator",
		},
		{
			name:     "last insert id error",
			username: "carol",
			hash:     "h789",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertOperatorSQL)).
					WithArgs("carol", "h789").
					WillReturnResult(sqlmock.NewErrorResult(errors.New("no last id")))
			},
			errContain: "last insert id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.expect(mock)

			id, err := NewOperatorSQLite(db).Create(context.Background(), tt.username, tt.hash)
			if tt.errContain != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContain) {
					t.Fatalf("want error containing %q, got %v", tt.errContain, err)
				}
				if id != 0 {
					t.Fatalf("want id=0 on error, got %d", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Fatalf("id: want %d, got %d", tt.wantID, id)
			}
		})
	}
}

func TestOperatorSQLite_GetByUsername(t *testing.T) {
	tests := []struct {
		name    string
		expect  func(sqlmock.Sqlmock)
		want    *models.Operator
		wantErr bool
	}{
		{
			name: "found",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectOperatorByUsernameSQL)).
					WithArgs("alice").
					WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).AddRow(7, "alice", "h123"))
			},
			want: &models.Operator{ID: 7, Username: "alice", PasswordHash: "h123"},
		},
		{
			name: "missing",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectOperatorByUsernameSQL)).
					WithArgs("alice").
					WillReturnError(sql.ErrNoRows)
			},
		},
		{
			name: "query error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectOperatorByUsernameSQL)).
					WithArgs("alice").
					WillReturnError(errors.New("disk I/O error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.expect(mock)

			got, err := NewOperatorSQLite(db).GetByUsername(context.Background(), "alice")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("want nil operator, got %+v", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Fatalf("want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestOperatorSQLite_Count(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(countOperatorsSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewOperatorSQLite(db).Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3, got %d", n)
	}
}
