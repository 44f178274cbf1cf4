// Package docstore provides a small transactional document store: JSON
// documents addressed by (collection, id), partial field updates with atomic
// increments, server timestamps, and transactions that abort and retry when a
// document read by the transaction changed before commit.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Store errors
var (
	ErrNotFound       = errors.New("docstore: document not found")
	ErrAlreadyExists  = errors.New("docstore: document already exists")
	ErrConflict       = errors.New("docstore: transaction conflict")
	ErrReadAfterWrite = errors.New("docstore: transactions must perform all reads before writes")
	ErrInvalidPath    = errors.New("docstore: invalid field path")
)

// Store is a transactional document store
type Store interface {
	// Get reads one document outside of any transaction
	Get(ctx context.Context, collection, id string) (*Snapshot, error)

	// Query lists the documents of a collection matching q, outside of any transaction
	Query(ctx context.Context, collection string, q Query) ([]*Snapshot, error)

	// RunTransaction runs fn and commits its writes atomically. When a
	// document read by fn was modified concurrently the attempt is discarded
	// and fn runs again, up to the configured number of attempts, after which
	// an error wrapping ErrConflict is returned. Any other error from fn
	// aborts without retry.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Close releases resources held by the store
	Close() error
}

// TxFunc is the body of a transaction
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is a store transaction. Writes are buffered and applied at commit;
// calling Get or Query after a write fails with ErrReadAfterWrite.
type Tx interface {
	Get(collection, id string) (*Snapshot, error)
	Query(collection string, q Query) ([]*Snapshot, error)
	// Create inserts a document, failing at commit with ErrAlreadyExists
	Create(collection, id string, data any) error
	// Set replaces a document, creating it when absent
	Set(collection, id string, data any) error
	// Update applies field updates to an existing document, failing at
	// commit with ErrNotFound when it does not exist
	Update(collection, id string, updates ...Update) error
}

// Snapshot is a document as read from the store
type Snapshot struct {
	Collection string
	ID         string
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time

	data   []byte
	fields map[string]any
}

func newSnapshot(collection, id string, data []byte, version int64, created, updated time.Time) *Snapshot {
	return &Snapshot{
		Collection: collection,
		ID:         id,
		Version:    version,
		CreateTime: created,
		UpdateTime: updated,
		data:       data,
	}
}

// DataTo decodes the document into v
func (s *Snapshot) DataTo(v any) error {
	return json.Unmarshal(s.data, v)
}

// Data returns the document as a generic map. Numbers are json.Number.
func (s *Snapshot) Data() (map[string]any, error) {
	if s.fields == nil {
		m, err := decodeFields(s.data)
		if err != nil {
			return nil, err
		}
		s.fields = m
	}
	return s.fields, nil
}

// Raw returns the stored JSON
func (s *Snapshot) Raw() []byte {
	return s.data
}

// Op is a query comparison operator
type Op string

const (
	OpEqual    Op = "=="
	OpNotEqual Op = "!="
)

// Filter restricts a query to documents whose field at Path compares to Value
type Filter struct {
	Path  string
	Op    Op
	Value any
}

// Where builds a Filter
func Where(path string, op Op, value any) Filter {
	return Filter{Path: path, Op: op, Value: value}
}

// Order sorts query results by the field at Path. The document id breaks ties.
type Order struct {
	Path string
	Desc bool
}

// Query selects documents of one collection
type Query struct {
	Filters []Filter
	Orders  []Order
	Limit   int
}

// Update sets the field at the dotted Path. Value may be a plain value,
// the result of Increment or IncrementDecimal, or ServerTimestamp.
type Update struct {
	Path  string
	Value any
}

type increment struct {
	delta    decimal.Decimal
	integral bool
}

// Increment atomically adds n to an integer field, treating a missing field as zero
func Increment(n int64) any {
	return increment{delta: decimal.NewFromInt(n), integral: true}
}

// IncrementDecimal atomically adds d to a decimal field, treating a missing field as zero.
// The result is stored as a decimal string.
func IncrementDecimal(d decimal.Decimal) any {
	return increment{delta: d}
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the store's clock at commit. It may be
// used as an Update value or as a value anywhere inside map data passed to
// Create and Set.
var ServerTimestamp any = serverTimestamp{}
