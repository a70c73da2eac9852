// Package store persists mapping sessions in Badger.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/shopzz/catmap/internal/domain"
)

// SessionStore is the persistence contract shared by the Badger and SQLite backends.
type SessionStore interface {
	SaveSession(ctx context.Context, rec *domain.SessionRecord) error
	GetSession(ctx context.Context, id string) (*domain.SessionRecord, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ SessionStore = (*Store)(nil)

// New opens a Badger store at path. An empty path keeps everything in memory.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		// Sessions are small and written on every edit; a lost write is a lost link.
		opts = opts.WithSyncWrites(true).WithCompactL0OnClose(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	if logger != nil {
		logger.Info("session store opened",
			slog.String("backend", "badger"),
			slog.String("path", path),
			slog.Bool("in_memory", path == ""))
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("closing session store", slog.String("backend", "badger"))
	}
	return s.db.Close()
}

// get decodes the JSON value stored at key into dest.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}
