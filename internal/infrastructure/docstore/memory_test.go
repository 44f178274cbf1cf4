package docstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type counterDoc struct {
	Name      string          `json:"name"`
	Count     int64           `json:"count"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

var fixedNow = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

func newTestMemoryStore(opts ...MemoryOption) *MemoryStore {
	base := []MemoryOption{
		WithMemoryClock(func() time.Time { return fixedNow }),
		WithMemoryRetry(RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}),
	}
	return NewMemoryStore(append(base, opts...)...)
}

// touch bumps a document's version as a concurrent writer would
func touch(s *MemoryStore, collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection][id].version++
}

func seed(t *testing.T, s Store, collection, id string, data any) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Create(collection, id, data)
	})
	require.NoError(t, err)
}

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", counterDoc{Name: "one", Total: decimal.Zero})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get("counters", "c1"); err != nil {
			return err
		}
		return tx.Update("counters", "c1",
			Update{Path: "count", Value: Increment(2)},
			Update{Path: "total", Value: IncrementDecimal(decimal.RequireFromString("10.5"))},
			Update{Path: "updatedAt", Value: ServerTimestamp},
		)
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, fixedNow, snap.UpdateTime)

	var doc counterDoc
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, "one", doc.Name)
	assert.Equal(t, int64(2), doc.Count)
	assert.True(t, doc.Total.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, fixedNow, doc.UpdatedAt)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := newTestMemoryStore()
	_, err := s.Get(context.Background(), "counters", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ServerTimestampInMapData(t *testing.T) {
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", map[string]any{"name": "x", "updatedAt": ServerTimestamp})

	snap, err := s.Get(context.Background(), "counters", "c1")
	require.NoError(t, err)
	var doc counterDoc
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, fixedNow, doc.UpdatedAt)
}

func TestMemoryStore_TransactionIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Update("counters", "c1", Update{Path: "count", Value: Increment(1)}); err != nil {
			return err
		}
		if err := tx.Create("counters", "c2", counterDoc{Name: "two"}); err != nil {
			return err
		}
		return tx.Update("counters", "missing", Update{Path: "count", Value: Increment(1)})
	})
	require.ErrorIs(t, err, ErrNotFound)

	snap, err := s.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version, "no write of a failed transaction is applied")
	assert.Equal(t, 1, s.Len("counters"))
}

func TestMemoryStore_CreateExisting(t *testing.T) {
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Create("counters", "c1", counterDoc{Name: "again"})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStore_ReadAfterWrite(t *testing.T) {
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})

	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Set("counters", "c2", counterDoc{Name: "two"}); err != nil {
			return err
		}
		_, err := tx.Get("counters", "c1")
		return err
	})
	assert.ErrorIs(t, err, ErrReadAfterWrite)
}

func TestMemoryStore_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})
	s.beforeCommit = func(attempt int) {
		if attempt == 1 {
			touch(s, "counters", "c1")
		}
	}

	var calls int32
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		atomic.AddInt32(&calls, 1)
		if _, err := tx.Get("counters", "c1"); err != nil {
			return err
		}
		return tx.Update("counters", "c1", Update{Path: "count", Value: Increment(1)})
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)

	var doc counterDoc
	snap, err := s.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, int64(1), doc.Count)
}

func TestMemoryStore_ConflictAfterRetriesExhausted(t *testing.T) {
	s := newTestMemoryStore()
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})
	s.beforeCommit = func(int) { touch(s, "counters", "c1") }

	var calls int32
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		atomic.AddInt32(&calls, 1)
		_, err := tx.Get("counters", "c1")
		if err != nil {
			return err
		}
		return tx.Update("counters", "c1", Update{Path: "count", Value: Increment(1)})
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int32(3), calls)
}

func TestMemoryStore_BusinessErrorsAreNotRetried(t *testing.T) {
	s := newTestMemoryStore()
	boom := errors.New("component missing")

	var calls int32
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls)
}

func TestMemoryStore_QueryPhantomConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore()
	seed(t, s, "budgets", "dm_a", map[string]any{"department": "dm"})

	s.beforeCommit = func(attempt int) {
		if attempt == 1 {
			s.mu.Lock()
			s.collections["budgets"]["dm_b"] = &memDocument{data: []byte(`{"department":"dm"}`), version: 1}
			s.mu.Unlock()
		}
	}

	var seen []int
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		snaps, err := tx.Query("budgets", Query{Filters: []Filter{Where("department", OpEqual, "dm")}})
		if err != nil {
			return err
		}
		seen = append(seen, len(snaps))
		return tx.Update("budgets", "dm_a", Update{Path: "status", Value: "active"})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestMemoryStore_ConcurrentIncrementsAreSerializable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMemoryRetry(RetryConfig{MaxAttempts: 500, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}))
	seed(t, s, "counters", "c1", counterDoc{Name: "one"})

	const workers = 20
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return s.RunTransaction(gctx, func(ctx context.Context, tx Tx) error {
				snap, err := tx.Get("counters", "c1")
				if err != nil {
					return err
				}
				var doc counterDoc
				if err := snap.DataTo(&doc); err != nil {
					return err
				}
				return tx.Set("counters", "c1", counterDoc{Name: doc.Name, Count: doc.Count + 1})
			})
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Get(ctx, "counters", "c1")
	require.NoError(t, err)
	var doc counterDoc
	require.NoError(t, snap.DataTo(&doc))
	assert.Equal(t, int64(workers), doc.Count)
}

func TestMemoryStore_QueryOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore()
	seed(t, s, "budgets", "dm_FY-2025-26", map[string]any{"department": "dm", "fiscalYear": "25-26"})
	seed(t, s, "budgets", "dm_FY-2024-25", map[string]any{"department": "dm", "fiscalYear": "24-25"})
	seed(t, s, "budgets", "hr_FY-2025-26", map[string]any{"department": "hr", "fiscalYear": "25-26"})

	snaps, err := s.Query(ctx, "budgets", Query{
		Filters: []Filter{Where("department", OpEqual, "dm")},
		Orders:  []Order{{Path: "fiscalYear"}},
	})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "dm_FY-2024-25", snaps[0].ID)
	assert.Equal(t, "dm_FY-2025-26", snaps[1].ID)
	assert.Equal(t, []string{"dm_FY-2024-25", "dm_FY-2025-26", "hr_FY-2025-26"}, s.IDs("budgets"))
}
