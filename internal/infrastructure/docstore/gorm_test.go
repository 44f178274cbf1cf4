package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to ":memory:" is a separate database
	sqlDB.SetMaxOpenConns(1)

	s := NewGormStore(db,
		WithGormClock(func() time.Time { return fixedNow }),
		WithGormRetry(RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}),
	)
	require.NoError(t, s.AutoMigrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s, "counters", "c1", counterDoc{Name: "one", Total: decimal.Zero})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get("counters", "c1"); err != nil {
			return err
		}
		return tx.Update("counters", "c1",
			Update{Path: "count", Value: Increment(3)},
			Update{Path: "total", Value: IncrementDecimal(decimal.RequireFromString("99.99"))},
			Update{Path: "updatedAt", Value: ServerTimestamp},
		)
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	var doc counterDoc
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, int64(3), doc.Count)
	assert.True(t, doc.Total.Equal(decimal.RequireFromString("99.99")))
	assert.True(t, doc.UpdatedAt.Equal(fixedNow))
}

func TestGormStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})

	t.Run("missing document", func(t *testing.T) {
		_, err := s.Get(ctx, "counters", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate create", func(t *testing.T) {
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Create("counters", "c1", counterDoc{Name: "dup"})
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("update of missing document rolls back earlier writes", func(t *testing.T) {
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Create("counters", "c2", counterDoc{Name: "two"}); err != nil {
				return err
			}
			return tx.Update("counters", "ghost", Update{Path: "count", Value: Increment(1)})
		})
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "counters", "c2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("read after write", func(t *testing.T) {
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Update("counters", "c1", Update{Path: "count", Value: Increment(1)}); err != nil {
				return err
			}
			_, err := tx.Query("counters", Query{})
			return err
		})
		assert.ErrorIs(t, err, ErrReadAfterWrite)
	})
}

func TestGormStore_Query(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s, "budgets", "dm_FY-2025-26", map[string]any{"department": "dm", "fiscalYear": "25-26", "status": "active"})
	seed(t, s, "budgets", "dm_FY-2024-25", map[string]any{"department": "dm", "fiscalYear": "24-25", "status": "archived"})
	seed(t, s, "budgets", "hr_FY-2025-26", map[string]any{"department": "hr", "fiscalYear": "25-26", "status": "active"})
	seed(t, s, "intents", "i1", map[string]any{"department": "dm", "poCreated": false})

	snaps, err := s.Query(ctx, "budgets", Query{
		Filters: []Filter{Where("department", OpEqual, "dm")},
		Orders:  []Order{{Path: "fiscalYear", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "dm_FY-2025-26", snaps[0].ID)

	err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.Query("budgets", Query{Filters: []Filter{
			Where("department", OpEqual, "dm"),
			Where("status", OpEqual, "active"),
		}})
		if err != nil {
			return err
		}
		require.Len(t, active, 1)
		intents, err := tx.Query("intents", Query{Filters: []Filter{Where("poCreated", OpEqual, false)}})
		if err != nil {
			return err
		}
		require.Len(t, intents, 1)
		return tx.Update("budgets", active[0].ID, Update{Path: "status", Value: "archived"})
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, "budgets", "dm_FY-2025-26")
	require.NoError(t, err)
	fields, err := snap.Data()
	require.NoError(t, err)
	assert.Equal(t, "archived", fields["status"])
}

func TestGormStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})

	const workers = 10
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return s.RunTransaction(gctx, func(ctx context.Context, tx Tx) error {
				if _, err := tx.Get("counters", "c1"); err != nil {
					return err
				}
				return tx.Update("counters", "c1", Update{Path: "count", Value: Increment(1)})
			})
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	var doc counterDoc
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, int64(workers), doc.Count)
	assert.Equal(t, int64(workers+1), snap.Version)
}

func TestGormStore_ReadOnlyDocumentChangedIsRetried(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})
	seed(t, s, "counters", "c2", counterDoc{Name: "two"})

	calls := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		calls++
		if _, err := tx.Get("counters", "c1"); err != nil {
			return err
		}
		if calls == 1 {
			// another writer bumps c1 after this transaction read it
			err := tx.(*gormTx).db.Model(&DocumentModel{}).
				Where("collection = ? AND id = ?", "counters", "c1").
				Update("version", gorm.Expr("version + 1")).Error
			require.NoError(t, err)
		}
		return tx.Update("counters", "c2", Update{Path: "count", Value: Increment(1)})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	snap, err := s.Get(ctx, "counters", "c2")
	require.NoError(t, err)
	var doc counterDoc
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, int64(1), doc.Count)
}

func TestGormStore_ReadOnlyDocumentCreatedIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s, "counters", "c2", counterDoc{Name: "two"})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get("counters", "ghost"); !assert.ErrorIs(t, err, ErrNotFound) {
			return err
		}
		err := tx.(*gormTx).db.Create(&DocumentModel{
			Collection: "counters", ID: "ghost", Data: `{}`, Version: 1,
			CreatedAt: fixedNow, UpdatedAt: fixedNow,
		}).Error
		require.NoError(t, err)
		return tx.Update("counters", "c2", Update{Path: "count", Value: Increment(1)})
	})
	assert.ErrorIs(t, err, ErrConflict)
}
