// Package ledger is the embedded SQLite store: schema, migrations,
// transactions, and cascade GC (spec §C1 / §3 / §4.4 / §4.7).
//
// A process-wide handle is opened once (spec §9, "Global state": "init on
// first use, release at process exit"). Read paths run directly on
// the single connection without an explicit transaction; all write paths
// use a single exclusive transaction wrapping
// the multi-statement protocols of §4.4 and §4.7.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jonboulle/clockwork"
	"github.com/upkit-dev/upkit/internal/errs"
)

// conn is the subset of *sql.DB / *sql.Tx the ledger's statement helpers
// need; every write protocol below runs its statements through one of
// these, so the same helper code works whether or not it's inside the
// exclusive transaction wrapper.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger wraps the embedded SQLite database plus the injectable clock used
// throughout retention/grace-period logic so tests can control time.
type Ledger struct {
	db    *sql.DB
	clock clockwork.Clock
	path  string
}

// Open opens (creating if necessary) the ledger database at path and runs
// all pending migrations. path's directory is created if missing.
func Open(ctx context.Context, path string) (*Ledger, error) {
	return OpenWithClock(ctx, path, clockwork.NewRealClock())
}

// OpenWithClock is Open with an injectable clock, for deterministic tests.
func OpenWithClock(ctx context.Context, path string, clock clockwork.Clock) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Cache("creating ledger directory", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errs.Cache("opening ledger", err)
	}
	db.SetMaxOpenConns(1) // single file; one connection keeps our manual BEGIN/COMMIT coherent

	l := &Ledger{db: db, clock: clock, path: path}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the on-disk path of the ledger file.
func (l *Ledger) Path() string { return l.path }

// DB exposes the underlying *sql.DB for callers, such as the ledger's own
// tests, that need direct read access outside the transactional protocols
// below.
func (l *Ledger) DB() *sql.DB { return l.db }

func (l *Ledger) now() int64 { return l.clock.Now().Unix() }

// withExclusiveTx runs fn inside a single exclusive transaction, committing
// on success and rolling back on any error or panic. This is the mechanism
// behind every multi-statement protocol in §4.4 and §4.7 — the ledger never
// leaves those protocols partially applied. Uses BEGIN IMMEDIATE to acquire
// the write lock up front, matching the teacher's own migration/write
// transaction idiom (internal/storage/sqlite/migrations.go).
func (l *Ledger) withExclusiveTx(ctx context.Context, fn func(c conn) error) (err error) {
	if _, execErr := l.db.ExecContext(ctx, "BEGIN IMMEDIATE"); execErr != nil {
		return errs.Cache("beginning exclusive transaction", execErr)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = l.db.ExecContext(ctx, "ROLLBACK")
		}
	}()

	if err = fn(l.db); err != nil {
		return err
	}

	if _, execErr := l.db.ExecContext(ctx, "COMMIT"); execErr != nil {
		return errs.Cache("committing transaction", execErr)
	}
	committed = true
	return nil
}

// withReadConn runs fn against the shared connection for a read-only
// operation. Reads never need their own BEGIN; SQLite's default isolation
// is sufficient and this keeps the single-connection pool available for the
// hook's fast, frequent lookups.
func (l *Ledger) withReadConn(fn func(c conn) error) error {
	return fn(l.db)
}
