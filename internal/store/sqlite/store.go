// Package sqlite provides a SQLite-backed session store, selected with
// storage.driver=sqlite.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopzz/catmap/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence for mapping sessions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.SessionStore = (*Store)(nil)

// pragmas are applied to every new database handle before the schema runs.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// Open opens (or creates) the session database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// One writer at a time; readers share the remaining connections.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := prepare(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Info("session store opened",
			slog.String("backend", "sqlite"),
			slog.String("path", path))
	}
	return &Store{db: db, logger: logger}, nil
}

func prepare(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply session schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("closing session store", slog.String("backend", "sqlite"))
	}
	return s.db.Close()
}

// storedTimeLayout is RFC3339 with a fixed-width fraction, so stored
// timestamps sort lexically in time order.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
