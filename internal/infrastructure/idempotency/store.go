// Package idempotency remembers the outcome of requests carrying an
// Idempotency-Key so a retried write replays the first response instead of
// running again.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a completed response is replayed
const DefaultTTL = 24 * time.Hour

// ErrNotReserved is returned when completing a key that holds no reservation
var ErrNotReserved = errors.New("idempotency: key not reserved")

// Record is the stored state of one key. A record that is not Completed is
// a reservation held by a request still in flight.
type Record struct {
	Completed   bool   `json:"completed"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store keeps idempotency records
type Store interface {
	// Reserve claims key for ttl. It returns true when the key was free;
	// otherwise it returns the record already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (*Record, bool, error)
	// Complete replaces the reservation with the final response
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// Release drops the key so the request can be retried
	Release(ctx context.Context, key string) error
	Close() error
}
