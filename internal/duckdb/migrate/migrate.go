// Package migrate applies the embedded schema migrations for the setwatch store.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// State describes the schema of a database relative to the embedded migrations.
type State struct {
	Current int
	Latest  int
	Pending []string
}

// Runner applies versioned SQL migrations to a DuckDB database.
// Files are named NNN_description.sql; versions must be unique and start at 1
// with no gaps.
type Runner struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{db: db, log: log.WithField("component", "migrate")}
}

type migration struct {
	version int
	name    string
	sql     string
}

func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	migs := make([]migration, 0, len(names))
	for _, p := range names {
		name := path.Base(p)
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: want NNN_description.sql", name)
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", name, err)
		}
		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		migs = append(migs, migration{version: ver, name: name, sql: string(body)})
	}

	slices.SortFunc(migs, func(a, b migration) int { return a.version - b.version })
	for i, m := range migs {
		if m.version != i+1 {
			return nil, fmt.Errorf("migration %s: expected version %d", m.name, i+1)
		}
	}
	return migs, nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	return nil
}

// inspect bootstraps the bookkeeping table and returns the embedded
// migrations together with the applied version.
func (r *Runner) inspect(ctx context.Context) ([]migration, int, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, 0, err
	}
	migs, err := loadMigrations(migrations, "migrations")
	if err != nil {
		return nil, 0, err
	}
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return nil, 0, fmt.Errorf("reading applied version: %w", err)
	}
	current := int(v.Int64)
	if current > len(migs) {
		return nil, 0, fmt.Errorf("database schema v%d is newer than this binary (v%d)", current, len(migs))
	}
	return migs, current, nil
}

// Run applies all pending migrations in order. Each migration runs in its own
// transaction together with its schema_migrations row.
func (r *Runner) Run(ctx context.Context) error {
	migs, current, err := r.inspect(ctx)
	if err != nil {
		return err
	}
	for _, m := range migs[current:] {
		if err := r.apply(ctx, m); err != nil {
			return err
		}
		r.log.WithFields(logrus.Fields{"version": m.version, "name": m.name}).Debug("applied migration")
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, m migration) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", m.name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("executing %s: %w", m.name, err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return fmt.Errorf("recording %s: %w", m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", m.name, err)
	}
	return nil
}

// Status reports the applied version and the names of pending migrations.
func (r *Runner) Status(ctx context.Context) (State, error) {
	migs, current, err := r.inspect(ctx)
	if err != nil {
		return State{}, err
	}
	st := State{Current: current, Latest: len(migs)}
	for _, m := range migs[current:] {
		st.Pending = append(st.Pending, m.name)
	}
	return st, nil
}
