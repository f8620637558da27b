package classpath

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/core"
	"github.com/fluxorio/jvm/pkg/jvm"
	"github.com/fluxorio/jvm/pkg/observability/prometheus"
)

// ErrCorrupt is returned when archived bytes no longer match their digest.
var ErrCorrupt = errors.New("archived class is corrupt")

// Store is a class archive kept in a SQL database. Each row holds a class's
// bytes and their BLAKE2b-256 digest, checked on every read.
type Store struct {
	db      *sql.DB
	driver  string
	logger  core.Logger
	metrics *prometheus.Metrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithStoreLogger(l core.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func WithStoreMetrics(m *prometheus.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// OpenStore connects to the archive and creates its table when missing.
func OpenStore(ctx context.Context, cfg PoolConfig, opts ...StoreOption) (*Store, error) {
	db, err := openPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open class store: %w", err)
	}
	s := &Store{db: db, driver: cfg.Driver, logger: core.NewNopLogger()}
	for _, o := range opts {
		o(s)
	}
	if _, err := db.ExecContext(ctx, s.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("create class store schema: %w", err)
	}
	s.recordPool()
	s.logger.Debugf("Class store opened (driver %s)", cfg.Driver)
	return s, nil
}

func (s *Store) postgres() bool {
	return s.driver == "postgres" || s.driver == "pgx"
}

func (s *Store) schema() string {
	blob := "BLOB"
	if s.postgres() {
		blob = "BYTEA"
	}
	return `CREATE TABLE IF NOT EXISTS jvm_classes (
	name   TEXT PRIMARY KEY,
	data   ` + blob + ` NOT NULL,
	digest TEXT NOT NULL,
	size   INTEGER NOT NULL
)`
}

// rebind rewrites ? placeholders to $n for the postgres drivers.
func (s *Store) rebind(query string) string {
	if !s.postgres() {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.RecordStoreQuery(op, time.Since(start))
	s.recordPool()
}

func (s *Store) recordPool() {
	st := s.db.Stats()
	s.metrics.UpdateStorePool(st.OpenConnections, st.Idle, st.InUse)
}

// Put archives data under name, replacing an earlier version.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return &Error{Code: "INVALID_INPUT", Message: "class name cannot be empty"}
	}
	defer s.observe("put", time.Now())
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO jvm_classes (name, data, digest, size) VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET data = excluded.data, digest = excluded.digest, size = excluded.size`),
		name, data, digest(data), len(data))
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	s.logger.Debugf("Archived class %s (%d bytes)", name, len(data))
	return nil
}

// PutClass parses data and archives it under the class's own name.
func (s *Store) PutClass(ctx context.Context, data []byte) (string, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return "", err
	}
	return cf.Name(), s.Put(ctx, cf.Name(), data)
}

// Get returns the archived bytes of name. A missing class wraps
// jvm.ErrClassNotFound; bytes that fail the digest check wrap ErrCorrupt.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	defer s.observe("get", time.Now())
	var (
		data []byte
		sum  string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data, digest FROM jvm_classes WHERE name = ?`), name).Scan(&data, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", jvm.ErrClassNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if digest(data) != sum {
		s.logger.Warnf("Class %s failed its digest check", name)
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, name)
	}
	return data, nil
}

// Find makes the store a Source.
func (s *Store) Find(ctx context.Context, name string) ([]byte, error) {
	return s.Get(ctx, name)
}

// Delete removes name from the archive. Deleting a missing class wraps
// jvm.ErrClassNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	defer s.observe("delete", time.Now())
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM jvm_classes WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", jvm.ErrClassNotFound, name)
	}
	return nil
}

// Names lists the archived classes in name order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	defer s.observe("list", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM jvm_classes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Import archives every class file that src can walk and returns how many
// were stored.
func (s *Store) Import(ctx context.Context, src DirSource) (int, error) {
	n := 0
	err := src.Walk(func(name string, data []byte) error {
		if err := s.Put(ctx, name, data); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (s *Store) String() string {
	return "store(" + s.driver + ")"
}

// Stats exposes the pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "store already closed"}
	}
	err := s.db.Close()
	s.db = nil
	return err
}
