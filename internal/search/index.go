package search

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// CategoryIndex wraps an in-memory Bleve index of categories.
//
// Thread safety: All public methods are safe for concurrent use.
// The mutex protects against queries running during Replace.
type CategoryIndex struct {
	index  bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewCategoryIndex creates an empty in-memory index.
func NewCategoryIndex(logger *slog.Logger) (*CategoryIndex, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &CategoryIndex{
		index:  index,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *CategoryIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexDocuments indexes multiple documents in batches.
func (s *CategoryIndex) IndexDocuments(docs []*Document) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexInto(s.index, docs)
}

func indexInto(index bleve.Index, docs []*Document) error {
	const batchSize = 500

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))

		batch := index.NewBatch()
		for _, doc := range docs[i:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}

		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// Replace swaps the index contents for docs. The new index is built
// before the lock is taken, so queries keep running on the old one meanwhile.
func (s *CategoryIndex) Replace(docs []*Document) error {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := indexInto(index, docs); err != nil {
		_ = index.Close()
		return err
	}

	s.mu.Lock()
	old := s.index
	s.index = index
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		s.logger.Warn("failed to close replaced search index", "error", err)
	}
	s.logger.Debug("rebuilt category index", "documents", len(docs))
	return nil
}

// DocumentCount returns the total number of indexed documents.
func (s *CategoryIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
