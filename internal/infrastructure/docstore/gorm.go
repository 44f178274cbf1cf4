package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentModel is the row layout of the documents table
type DocumentModel struct {
	Collection string    `gorm:"primaryKey;type:varchar(64)"`
	ID         string    `gorm:"primaryKey;type:varchar(191)"`
	Data       string    `gorm:"type:text;not null"`
	Version    int64     `gorm:"not null;default:1"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

func (m *DocumentModel) snapshot() *Snapshot {
	return newSnapshot(m.Collection, m.ID, []byte(m.Data), m.Version, m.CreatedAt, m.UpdatedAt)
}

var sqlPathSegment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// GormStore keeps documents in a relational table through GORM. On
// PostgreSQL every transactional read takes a row lock (SELECT ... FOR
// UPDATE), and deadlock or serialization aborts are retried like version
// conflicts. On every dialect a write only succeeds when the row still
// carries the version the transaction read, otherwise the attempt is retried.
//
// Documents a transaction only reads are checked at commit as well, so a
// query result that changed underneath the transaction aborts it.
type GormStore struct {
	db     *gorm.DB
	clock  func() time.Time
	retry  RetryConfig
	logger *zap.Logger
}

// GormOption configures a GormStore
type GormOption func(*GormStore)

// WithGormClock sets the clock used for server timestamps
func WithGormClock(clock func() time.Time) GormOption {
	return func(s *GormStore) { s.clock = clock }
}

// WithGormRetry sets the conflict retry policy
func WithGormRetry(cfg RetryConfig) GormOption {
	return func(s *GormStore) { s.retry = cfg }
}

// WithGormLogger sets the logger
func WithGormLogger(logger *zap.Logger) GormOption {
	return func(s *GormStore) { s.logger = logger }
}

// NewGormStore creates a store over db. The documents table must exist; see AutoMigrate.
func NewGormStore(db *gorm.DB, opts ...GormOption) *GormStore {
	s := &GormStore{
		db:     db,
		clock:  func() time.Time { return time.Now().UTC() },
		retry:  DefaultRetryConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates the documents table. Production PostgreSQL schemas are
// managed by the SQL migrations instead.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&DocumentModel{})
}

func (s *GormStore) dialect() string {
	return s.db.Dialector.Name()
}

// Get reads one document
func (s *GormStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	var m DocumentModel
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return m.snapshot(), nil
}

// Query lists matching documents
func (s *GormStore) Query(ctx context.Context, collection string, q Query) ([]*Snapshot, error) {
	return queryRows(s.db.WithContext(ctx), s.dialect(), collection, q, false)
}

// RunTransaction runs fn inside a database transaction with conflict retry
func (s *GormStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runWithRetry(ctx, s.retry, s.logger, func(ctx context.Context) error {
		return translateTxError(s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			tx := &gormTx{
				db:      db,
				dialect: s.dialect(),
				reads:   make(map[docKey]*DocumentModel),
			}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return tx.commit(s.clock())
		}))
	})
}

// PostgreSQL SQLSTATEs for transactions aborted by the server that succeed when rerun
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translateTxError maps server-side transaction aborts to ErrConflict
func translateTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s (SQLSTATE %s)", ErrConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

// Close closes the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// queryRows pushes string equality filters down to SQL and applies the full
// query in memory so every dialect returns the same result
func queryRows(db *gorm.DB, dialect, collection string, q Query, lock bool) ([]*Snapshot, error) {
	stmt := db.Where("collection = ?", collection)
	for _, f := range q.Filters {
		if expr, arg, ok := jsonFieldExpr(dialect, f); ok {
			stmt = stmt.Where(expr+" = ?", arg)
		}
	}
	if lock && dialect == "postgres" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var models []DocumentModel
	if err := stmt.Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	snaps := make([]*Snapshot, len(models))
	for i := range models {
		snaps[i] = models[i].snapshot()
	}
	return applyQuery(snaps, q)
}

// jsonFieldExpr returns the SQL text extraction of a filter's path and the
// comparison argument when the filter can be evaluated by the database
func jsonFieldExpr(dialect string, f Filter) (string, string, bool) {
	if f.Op != OpEqual && f.Op != "" {
		return "", "", false
	}
	v, err := normalizeValue(f.Value)
	if err != nil {
		return "", "", false
	}
	arg, isString := v.(string)
	if !isString {
		return "", "", false
	}
	parts, err := splitPath(f.Path)
	if err != nil {
		return "", "", false
	}
	for _, p := range parts {
		if !sqlPathSegment.MatchString(p) {
			return "", "", false
		}
	}
	switch dialect {
	case "postgres":
		if len(parts) == 1 {
			return fmt.Sprintf("(data::jsonb)->>'%s'", parts[0]), arg, true
		}
		return fmt.Sprintf("(data::jsonb)#>>'{%s}'", strings.Join(parts, ",")), arg, true
	case "sqlite":
		return fmt.Sprintf("json_extract(data, '$.%s')", strings.Join(parts, ".")), arg, true
	}
	return "", "", false
}

type gormTx struct {
	db      *gorm.DB
	dialect string
	reads   map[docKey]*DocumentModel
	writes  writeBuffer
}

func (t *gormTx) locked() *gorm.DB {
	if t.dialect == "postgres" {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *gormTx) Get(collection, id string) (*Snapshot, error) {
	if t.writes.written() {
		return nil, ErrReadAfterWrite
	}
	k := docKey{collection, id}
	var m DocumentModel
	err := t.locked().Where("collection = ? AND id = ?", collection, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			t.reads[k] = nil
			return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
		}
		return nil, fmt.Errorf("docstore: get %s: %w", k, err)
	}
	t.reads[k] = &m
	return m.snapshot(), nil
}

func (t *gormTx) Query(collection string, q Query) ([]*Snapshot, error) {
	if t.writes.written() {
		return nil, ErrReadAfterWrite
	}
	snaps, err := queryRows(t.db, t.dialect, collection, q, true)
	if err != nil {
		return nil, err
	}
	for _, s := range snaps {
		t.reads[docKey{collection, s.ID}] = &DocumentModel{
			Collection: collection,
			ID:         s.ID,
			Data:       string(s.Raw()),
			Version:    s.Version,
			CreatedAt:  s.CreateTime,
			UpdatedAt:  s.UpdateTime,
		}
	}
	return snaps, nil
}

func (t *gormTx) Create(collection, id string, data any) error {
	return t.writes.add(writeOp{kind: opCreate, key: docKey{collection, id}, data: data})
}

func (t *gormTx) Set(collection, id string, data any) error {
	return t.writes.add(writeOp{kind: opSet, key: docKey{collection, id}, data: data})
}

func (t *gormTx) Update(collection, id string, updates ...Update) error {
	return t.writes.add(writeOp{kind: opUpdate, key: docKey{collection, id}, updates: updates})
}

// load returns the transaction's view of k, reading unseen rows under lock
func (t *gormTx) load(k docKey) (*docState, error) {
	m, seen := t.reads[k]
	if !seen {
		var row DocumentModel
		err := t.locked().Where("collection = ? AND id = ?", k.collection, k.id).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m = nil
		case err != nil:
			return nil, fmt.Errorf("docstore: load %s: %w", k, err)
		default:
			m = &row
		}
	}
	if m == nil {
		return &docState{key: k}, nil
	}
	fields, err := decodeFields([]byte(m.Data))
	if err != nil {
		return nil, err
	}
	return &docState{key: k, fields: fields, version: m.Version, exists: true, createTime: m.CreatedAt}, nil
}

func (t *gormTx) commit(now time.Time) error {
	if !t.writes.written() {
		return nil
	}
	staged, err := stageWrites(t.writes.ops, t.load, now)
	if err != nil {
		return err
	}
	written := make(map[docKey]bool, len(staged))
	for _, st := range staged {
		written[st.key] = true
	}
	if err := t.validateReads(written); err != nil {
		return err
	}
	for _, st := range staged {
		raw, err := encodeFields(st.fields)
		if err != nil {
			return err
		}
		if st.insert {
			row := DocumentModel{
				Collection: st.key.collection,
				ID:         st.key.id,
				Data:       string(raw),
				Version:    1,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := t.db.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: %s", ErrAlreadyExists, st.key)
				}
				return fmt.Errorf("docstore: insert %s: %w", st.key, err)
			}
			continue
		}

		result := t.db.Model(&DocumentModel{}).
			Where("collection = ? AND id = ? AND version = ?", st.key.collection, st.key.id, st.version).
			Updates(map[string]any{
				"data":       string(raw),
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("docstore: update %s: %w", st.key, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s was modified concurrently", ErrConflict, st.key)
		}
	}
	return nil
}

// validateReads fails with ErrConflict when a document the transaction read
// but does not write was created, deleted or updated since it was read.
// PostgreSQL reads already hold the row locks.
func (t *gormTx) validateReads(written map[docKey]bool) error {
	if t.dialect == "postgres" {
		return nil
	}
	for k, read := range t.reads {
		if written[k] {
			continue
		}
		var rows []DocumentModel
		err := t.db.Select("version").
			Where("collection = ? AND id = ?", k.collection, k.id).
			Limit(1).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("docstore: validate %s: %w", k, err)
		}
		switch {
		case read == nil && len(rows) == 0:
		case read != nil && len(rows) == 1 && rows[0].Version == read.Version:
		default:
			return fmt.Errorf("%w: %s changed after it was read", ErrConflict, k)
		}
	}
	return nil
}
