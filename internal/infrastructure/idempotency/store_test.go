package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name    string
	store   Store
	advance func(d time.Duration)
}

func backends(t *testing.T) []backend {
	t.Helper()

	mem := NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = mem.Close() })
	var (
		mu  sync.Mutex
		now = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	)
	mem.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return []backend{
		{name: "memory", store: mem, advance: func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}},
		{name: "redis", store: NewRedisStore(client, ""), advance: mr.FastForward},
	}
}

func TestStore_ReserveCompleteReplay(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			rec, reserved, err := b.store.Reserve(ctx, "bulk:k1", time.Minute)
			require.NoError(t, err)
			assert.True(t, reserved)
			assert.Nil(t, rec)

			rec, reserved, err = b.store.Reserve(ctx, "bulk:k1", time.Minute)
			require.NoError(t, err)
			assert.False(t, reserved)
			require.NotNil(t, rec)
			assert.False(t, rec.Completed, "second caller sees the pending reservation")

			require.NoError(t, b.store.Complete(ctx, "bulk:k1", Record{
				Status:      201,
				ContentType: "application/json",
				Body:        []byte(`{"success":true}`),
			}, time.Hour))

			rec, reserved, err = b.store.Reserve(ctx, "bulk:k1", time.Minute)
			require.NoError(t, err)
			assert.False(t, reserved)
			require.NotNil(t, rec)
			assert.True(t, rec.Completed)
			assert.Equal(t, 201, rec.Status)
			assert.Equal(t, "application/json", rec.ContentType)
			assert.JSONEq(t, `{"success":true}`, string(rec.Body))

			assert.ErrorIs(t, b.store.Complete(ctx, "bulk:k1", Record{Status: 500}, time.Hour), ErrNotReserved)
		})
	}
}

func TestStore_ReleaseAllowsRetry(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			_, reserved, err := b.store.Reserve(ctx, "issue:k2", time.Minute)
			require.NoError(t, err)
			require.True(t, reserved)

			require.NoError(t, b.store.Release(ctx, "issue:k2"))
			assert.ErrorIs(t, b.store.Complete(ctx, "issue:k2", Record{Status: 200}, time.Hour), ErrNotReserved)

			_, reserved, err = b.store.Reserve(ctx, "issue:k2", time.Minute)
			require.NoError(t, err)
			assert.True(t, reserved)
		})
	}
}

func TestStore_ExpiredKeysAreFree(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			_, reserved, err := b.store.Reserve(ctx, "bulk:k3", time.Minute)
			require.NoError(t, err)
			require.True(t, reserved)

			b.advance(2 * time.Minute)

			_, reserved, err = b.store.Reserve(ctx, "bulk:k3", time.Minute)
			require.NoError(t, err)
			assert.True(t, reserved)
		})
	}
}

func TestStore_ConcurrentReserveHasOneWinner(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, reserved, err := b.store.Reserve(context.Background(), "bulk:race", time.Minute)
					assert.NoError(t, err)
					if reserved {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestMemoryStore_CleanupDropsExpired(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()
	now := time.Now()
	s.now = func() time.Time { return now }

	_, _, err := s.Reserve(context.Background(), "a", time.Second)
	require.NoError(t, err)
	_, _, err = s.Reserve(context.Background(), "b", time.Hour)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	s.cleanup()
	assert.Equal(t, 1, s.Len())

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
