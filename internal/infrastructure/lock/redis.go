package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const keyPrefix = "budget-core:lock:"

// RedisOptions tunes the distributed mutex
type RedisOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
	// BreakerTimeout is how long the breaker stays open before probing redis again
	BreakerTimeout time.Duration
	// BreakerFailures is the number of consecutive redis failures that open the breaker
	BreakerFailures uint32
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.Expiry <= 0 {
		o.Expiry = 10 * time.Second
	}
	if o.Tries <= 0 {
		o.Tries = 32
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 50 * time.Millisecond
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 3
	}
	return o
}

// RedisLocker is a redsync mutex guarded by a circuit breaker. While redis
// is failing, locks degrade to the process-local locker.
type RedisLocker struct {
	rs       *redsync.Redsync
	opts     RedisOptions
	breaker  *gobreaker.CircuitBreaker
	fallback *LocalLocker
	logger   *zap.Logger
}

// NewRedisLocker creates a distributed locker on client
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	l := &RedisLocker{
		rs:       redsync.New(goredis.NewPool(client)),
		opts:     opts,
		fallback: NewLocalLocker(),
		logger:   logger.Named("lock"),
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-lock",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("Lock circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return l
}

// WithLock runs fn while holding the distributed mutex for key
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(keyPrefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	// contention does not count against the breaker
	var lockErr error
	_, err := l.breaker.Execute(func() (any, error) {
		lockErr = mutex.LockContext(ctx)
		if lockErr != nil && !isContention(ctx, lockErr) {
			return nil, lockErr
		}
		return nil, nil
	})
	switch {
	case err == nil && lockErr == nil:
	case err == nil:
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, lockErr)
	default:
		l.logger.Warn("Distributed lock unavailable, using process lock",
			zap.String("key", key),
			zap.Error(err),
		)
		return l.fallback.WithLock(ctx, key, fn)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil || !ok {
			l.logger.Warn("Failed to release distributed lock",
				zap.String("key", key),
				zap.Bool("released", ok),
				zap.Error(err),
			)
		}
	}()
	return fn(ctx)
}

// State reports the breaker state, for health reporting
func (l *RedisLocker) State() gobreaker.State {
	return l.breaker.State()
}

// isContention reports lock errors caused by another holder or by the caller
// giving up. Per-node failures, including redsync's own node timeouts, mean
// redis is unavailable.
func isContention(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var taken *redsync.ErrTaken
	return errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed)
}
