package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/setwatch/setwatch/internal/duckdb/migrate"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
)

// DefaultQueryTimeout bounds a single store operation.
const DefaultQueryTimeout = 30 * time.Second

// ErrUnknownCollection is returned for a collection outside model.KnownCollections.
var ErrUnknownCollection = model.ErrUnknownCollection

// Store manages the DuckDB database holding the three track collections.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
	log          *logrus.Entry
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithQueryTimeout overrides DefaultQueryTimeout. Non-positive values are ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.QueryTimeout = d
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for track timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens or creates a DuckDB database and applies migrations.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("duckdb: create data dir: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", dbPath, err)
	}

	s := &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: DefaultQueryTimeout,
		log:          logrus.NewEntry(logrus.StandardLogger()),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "duckdb")

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()
	if err := migrate.NewRunner(db, s.log).Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaState reports the applied schema version and any pending migrations.
func (s *Store) SchemaState(ctx context.Context) (migrate.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return migrate.NewRunner(s.db, s.log).Status(ctx)
}

// queryCtx bounds parent by the store's query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}

// trackTables maps each collection to its table. Table names are never taken
// from user input.
var trackTables = map[model.Collection]string{
	model.CollectionCurrent: "current_tracks",
	model.CollectionAll:     "all_tracks",
	model.CollectionRemoved: "removed_tracks",
}

func tableFor(c model.Collection) (string, error) {
	table, ok := trackTables[c]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return table, nil
}
