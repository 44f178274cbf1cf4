package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memDocument struct {
	data       []byte
	version    int64
	createTime time.Time
	updateTime time.Time
}

// MemoryStore is an in-process Store. Transactions use optimistic
// concurrency: every document and query result read by a transaction is
// re-validated at commit, and the attempt is retried when anything changed.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memDocument
	clock       func() time.Time
	retry       RetryConfig
	logger      *zap.Logger
	// beforeCommit runs between fn and validation; tests use it to inject
	// concurrent writes
	beforeCommit func(attempt int)
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used for server timestamps
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// WithMemoryRetry sets the conflict retry policy
func WithMemoryRetry(cfg RetryConfig) MemoryOption {
	return func(s *MemoryStore) { s.retry = cfg }
}

// WithMemoryLogger sets the logger
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = logger }
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]*memDocument),
		clock:       func() time.Time { return time.Now().UTC() },
		retry:       DefaultRetryConfig(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get reads one document
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(docKey{collection, id})
}

func (s *MemoryStore) getLocked(k docKey) (*Snapshot, error) {
	doc, ok := s.collections[k.collection][k.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return newSnapshot(k.collection, k.id, doc.data, doc.version, doc.createTime, doc.updateTime), nil
}

// Query lists matching documents
func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(collection, q)
}

func (s *MemoryStore) queryLocked(collection string, q Query) ([]*Snapshot, error) {
	docs := s.collections[collection]
	snaps := make([]*Snapshot, 0, len(docs))
	for id, doc := range docs {
		snaps = append(snaps, newSnapshot(collection, id, doc.data, doc.version, doc.createTime, doc.updateTime))
	}
	return applyQuery(snaps, q)
}

// RunTransaction runs fn with optimistic concurrency control
func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	attempt := 0
	return runWithRetry(ctx, s.retry, s.logger, func(ctx context.Context) error {
		attempt++
		tx := &memTx{
			store: s,
			reads: make(map[docKey]int64),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(attempt)
		}
		return tx.commit()
	})
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of documents in collection
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

type queryRead struct {
	collection string
	q          Query
	versions   map[string]int64
}

type memTx struct {
	store    *MemoryStore
	reads    map[docKey]int64
	querySet []queryRead
	writes   writeBuffer
}

func (t *memTx) Get(collection, id string) (*Snapshot, error) {
	if t.writes.written() {
		return nil, ErrReadAfterWrite
	}
	k := docKey{collection, id}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	snap, err := t.store.getLocked(k)
	if err != nil {
		t.reads[k] = 0
		return nil, err
	}
	t.reads[k] = snap.Version
	return snap, nil
}

func (t *memTx) Query(collection string, q Query) ([]*Snapshot, error) {
	if t.writes.written() {
		return nil, ErrReadAfterWrite
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	snaps, err := t.store.queryLocked(collection, q)
	if err != nil {
		return nil, err
	}
	qr := queryRead{collection: collection, q: q, versions: make(map[string]int64, len(snaps))}
	for _, snap := range snaps {
		qr.versions[snap.ID] = snap.Version
	}
	t.querySet = append(t.querySet, qr)
	return snaps, nil
}

func (t *memTx) Create(collection, id string, data any) error {
	return t.writes.add(writeOp{kind: opCreate, key: docKey{collection, id}, data: data})
}

func (t *memTx) Set(collection, id string, data any) error {
	return t.writes.add(writeOp{kind: opSet, key: docKey{collection, id}, data: data})
}

func (t *memTx) Update(collection, id string, updates ...Update) error {
	return t.writes.add(writeOp{kind: opUpdate, key: docKey{collection, id}, updates: updates})
}

func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.validateLocked(); err != nil {
		return err
	}
	if !t.writes.written() {
		return nil
	}

	now := s.clock()
	staged, err := stageWrites(t.writes.ops, func(k docKey) (*docState, error) {
		doc, ok := s.collections[k.collection][k.id]
		if !ok {
			return &docState{key: k}, nil
		}
		fields, err := decodeFields(doc.data)
		if err != nil {
			return nil, err
		}
		return &docState{key: k, fields: fields, version: doc.version, exists: true, createTime: doc.createTime}, nil
	}, now)
	if err != nil {
		return err
	}

	encoded := make([][]byte, len(staged))
	for i, st := range staged {
		raw, err := encodeFields(st.fields)
		if err != nil {
			return err
		}
		encoded[i] = raw
	}
	for i, st := range staged {
		coll := s.collections[st.key.collection]
		if coll == nil {
			coll = make(map[string]*memDocument)
			s.collections[st.key.collection] = coll
		}
		coll[st.key.id] = &memDocument{
			data:       encoded[i],
			version:    st.version + 1,
			createTime: st.createTime,
			updateTime: now,
		}
	}
	return nil
}

// validateLocked reports ErrConflict when anything the transaction read has
// changed since it was read
func (t *memTx) validateLocked() error {
	s := t.store
	for k, version := range t.reads {
		var current int64
		if doc, ok := s.collections[k.collection][k.id]; ok {
			current = doc.version
		}
		if current != version {
			return fmt.Errorf("%w: %s changed from version %d to %d", ErrConflict, k, version, current)
		}
	}
	for _, qr := range t.querySet {
		snaps, err := s.queryLocked(qr.collection, qr.q)
		if err != nil {
			return err
		}
		if len(snaps) != len(qr.versions) {
			return fmt.Errorf("%w: query on %s returned %d documents, now %d", ErrConflict, qr.collection, len(qr.versions), len(snaps))
		}
		for _, snap := range snaps {
			if v, ok := qr.versions[snap.ID]; !ok || v != snap.Version {
				return fmt.Errorf("%w: query on %s changed at %s", ErrConflict, qr.collection, snap.ID)
			}
		}
	}
	return nil
}

// IDs returns the ids of every document in collection in lexical order
func (s *MemoryStore) IDs(collection string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
