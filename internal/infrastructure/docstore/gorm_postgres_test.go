package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockPostgresStore(t *testing.T) (*GormStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := NewGormStore(db,
		WithGormClock(func() time.Time { return fixedNow }),
		WithGormRetry(RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
	)
	return s, mock, mockDB
}

func documentRows(version int64, data string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"collection", "id", "data", "version", "created_at", "updated_at"}).
		AddRow("budgets", "dm_FY-2025-26", data, version, fixedNow, fixedNow)
}

func incrementCounter(ctx context.Context, tx Tx) error {
	if _, err := tx.Get("budgets", "dm_FY-2025-26"); err != nil {
		return err
	}
	return tx.Update("budgets", "dm_FY-2025-26", Update{Path: "poCounter", Value: Increment(1)})
}

func TestGormStore_PostgresLocksReadsAndChecksVersion(t *testing.T) {
	s, mock, mockDB := newMockPostgresStore(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .* FOR UPDATE`).
		WillReturnRows(documentRows(4, `{"poCounter":3}`))
	mock.ExpectExec(`UPDATE "documents" SET .*version = \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunTransaction(context.Background(), incrementCounter)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PostgresRetriesWhenVersionMoved(t *testing.T) {
	s, mock, mockDB := newMockPostgresStore(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .* FOR UPDATE`).
		WillReturnRows(documentRows(4, `{"poCounter":3}`))
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .* FOR UPDATE`).
		WillReturnRows(documentRows(5, `{"poCounter":4}`))
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		calls++
		return incrementCounter(ctx, tx)
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PostgresRetriesDeadlockedTransaction(t *testing.T) {
	s, mock, mockDB := newMockPostgresStore(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .* FOR UPDATE`).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .* FOR UPDATE`).
		WillReturnRows(documentRows(4, `{"poCounter":3}`))
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		calls++
		return incrementCounter(ctx, tx)
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PostgresOtherErrorsAreNotRetried(t *testing.T) {
	s, mock, mockDB := newMockPostgresStore(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .* FOR UPDATE`).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation \"documents\" does not exist"})
	mock.ExpectRollback()

	calls := 0
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		calls++
		return incrementCounter(ctx, tx)
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateTxError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateTxError(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(err, ErrConflict))
		})
	}

	assert.NoError(t, translateTxError(nil))
}
