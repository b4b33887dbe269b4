// Package target writes the destination SQLite database file.
package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/migerr"
	_ "modernc.org/sqlite"
)

// Options tune the destination connection.
type Options struct {
	// JournalMode is passed to PRAGMA journal_mode (delete, wal, ...).
	JournalMode string
	// BusyTimeoutMS is passed to PRAGMA busy_timeout.
	BusyTimeoutMS int
}

// SQLite is the destination database. It holds a single connection so that
// connection-scoped pragmas such as foreign_keys apply to every statement.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database file at path. Foreign keys
// are enforced on the connection until SetForeignKeys turns them off.
func Open(path string, opts Options) (*SQLite, error) {
	if opts.JournalMode == "" {
		opts.JournalMode = "delete"
	}
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)",
		path, opts.JournalMode, opts.BusyTimeoutMS)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	logging.Debug("Opened SQLite destination %s (journal_mode=%s)", path, opts.JournalMode)
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// DB returns the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ExecStatements runs each statement in order and stops at the first failure.
func (s *SQLite) ExecStatements(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return migerr.Wrap(migerr.KindDestinationWrite,
				fmt.Sprintf("executing statement %d (%s)", i+1, firstLine(stmt)), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}

// SetForeignKeys turns foreign key enforcement on or off. SQLite ignores the
// pragma inside a transaction, so call it before Begin and after Commit.
func (s *SQLite) SetForeignKeys(ctx context.Context, enabled bool) error {
	value := "OFF"
	if enabled {
		value = "ON"
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = "+value); err != nil {
		return migerr.Wrap(migerr.KindDestinationWrite, "setting foreign_keys "+value, err)
	}
	return nil
}

// ForeignKeysEnabled reports the current enforcement setting.
func (s *SQLite) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	var on int
	if err := s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		return false, fmt.Errorf("reading foreign_keys: %w", err)
	}
	return on == 1, nil
}

// Begin starts the migration transaction.
func (s *SQLite) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, migerr.Wrap(migerr.KindDestinationWrite, "beginning transaction", err)
	}
	return tx, nil
}

// RowCount returns COUNT(*) for a table.
func (s *SQLite) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count, nil
}

// TableExists reports whether a table is defined in the database.
func (s *SQLite) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

// sidecars are the files SQLite keeps next to a database.
var sidecars = []string{"-wal", "-shm", "-journal"}

// ErrDestinationExists is returned when a non-empty destination would be
// replaced without permission.
var ErrDestinationExists = errors.New("destination exists and is not empty")

// PrepareDestination checks a destination path before a schema-writing run.
// A missing or empty file is accepted. A non-empty file is removed, along
// with its sidecar files, only when overwrite is set.
func PrepareDestination(path string, overwrite bool) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking destination: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("destination %s is a directory", path)
	}
	if info.Size() == 0 {
		return nil
	}
	if !overwrite {
		return fmt.Errorf("%w: %s (use --overwrite to replace it)", ErrDestinationExists, path)
	}

	logging.Warn("Overwriting existing destination %s", path)
	for _, name := range append([]string{path}, sidecarPaths(path)...) {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	return nil
}

func sidecarPaths(path string) []string {
	out := make([]string, len(sidecars))
	for i, suffix := range sidecars {
		out[i] = path + suffix
	}
	return out
}

// RequireExisting checks that a data-only run has a database to load into.
func RequireExisting(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("data-only run needs an existing destination: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("destination %s is a directory", path)
	}
	return nil
}
