package store

import (
	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
)

// ErrSessionNotFound is returned when no session has the requested ID.
// It matches errors.ErrNotFound.
var ErrSessionNotFound = errors.NotFound("session not found")

// Summarize derives the listing summary of a session record.
func Summarize(rec *domain.SessionRecord) domain.SessionSummary {
	sum := domain.SessionSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}

	if rec.State == nil {
		sum.CanonicalTotal = len(rec.Baseline.Canonical)
		sum.SourceARemaining = len(rec.Baseline.SourceA)
		sum.SourceBRemaining = len(rec.Baseline.SourceB)
		return sum
	}

	sum.CanonicalTotal = len(rec.State.Mappings)
	sum.SourceARemaining = len(rec.State.SourceAAvailable)
	sum.SourceBRemaining = len(rec.State.SourceBAvailable)
	for _, m := range rec.State.Mappings {
		if m != nil && m.IsResolved() {
			sum.ResolvedCount++
		}
	}
	return sum
}
