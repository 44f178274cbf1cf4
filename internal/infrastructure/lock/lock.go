// Package lock provides keyed mutual exclusion used to serialize budget
// activation per department.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gryphon/budget-core/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context ended or the retry budget ran out
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker runs fn while holding the lock named key
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// New builds the Locker selected by cfg. The redis backend requires client.
func New(cfg config.LockConfig, client redis.UniversalClient, logger *zap.Logger) (Locker, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalLocker(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("lock backend redis requires a redis client")
		}
		return NewRedisLocker(client, RedisOptions{
			Expiry:     cfg.Expiry,
			Tries:      cfg.Tries,
			RetryDelay: cfg.RetryDelay,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
