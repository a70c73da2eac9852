package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/shopzz/catmap/internal/domain"
)

// SaveSession creates or replaces a session record and its summary.
func (s *Store) SaveSession(_ context.Context, rec *domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	summary, err := json.Marshal(Summarize(rec))
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}

	key := sessionKey(rec.ID)
	defer releaseKey(key)
	summaryKey := sessionSummaryKey(rec.ID)
	defer releaseKey(summaryKey)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(summaryKey, summary)
	})
}

// GetSession retrieves a session record by ID.
func (s *Store) GetSession(_ context.Context, id string) (*domain.SessionRecord, error) {
	key := sessionKey(id)
	defer releaseKey(key)

	var rec domain.SessionRecord
	if err := s.get(key, &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

// ListSessions returns the summaries of all sessions, most recently updated first.
func (s *Store) ListSessions(_ context.Context) ([]domain.SessionSummary, error) {
	summaries := []domain.SessionSummary{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionSummaryPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sum domain.SessionSummary
				if err := json.Unmarshal(val, &sum); err != nil {
					return err
				}
				summaries = append(summaries, sum)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	slices.SortFunc(summaries, func(a, b domain.SessionSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return summaries, nil
}

// DeleteSession removes a session record and its summary.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	key := sessionKey(id)
	defer releaseKey(key)
	summaryKey := sessionSummaryKey(id)
	defer releaseKey(summaryKey)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(summaryKey)
	})
}
