// Package matcher proposes links between the canonical catalog and the two
// marketplace catalogs by comparing category names.
//
// Match is a pure function of its input: it never reads or writes session
// state, so a caller may run it in its own goroutine and abandon it at any
// time. Proposals are applied afterwards, one link at a time, by the caller.
package matcher

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/similarity"
)

// progressSteps is the number of progress reports emitted per phase.
const progressSteps = 20

// Percent ranges of the three phases in the overall progress.
const (
	sourceAStart  = 0
	sourceBStart  = 40
	residualStart = 80
	done          = 100
)

// Input is a frozen copy of the three category pools plus the acceptance threshold.
type Input struct {
	Canonical []domain.Category
	SourceA   []domain.Category
	SourceB   []domain.Category
	// Threshold must lie strictly between 0 and 1. A fuzzy candidate is
	// accepted only when its score is strictly greater than Threshold.
	Threshold float64
}

// Validate checks the input contract.
func (in Input) Validate() error {
	if !(in.Threshold > 0 && in.Threshold < 1) {
		return errors.InvalidArgumentf("threshold must be between 0 and 1 exclusive, got %v", in.Threshold)
	}
	return nil
}

// entry is a category with its normalized name.
type entry struct {
	cat  domain.Category
	name string
}

func newEntries(cats []domain.Category) []entry {
	out := make([]entry, len(cats))
	for i, c := range cats {
		out[i] = entry{cat: c, name: similarity.Normalize(c.Name)}
	}
	return out
}

// run holds the working state of one Match call.
type run struct {
	ctx       context.Context
	progress  chan<- domain.MatchProgress
	threshold float64

	canonical []entry
	sourceA   []entry
	sourceB   []entry

	// exact maps a normalized name to the first canonical entry carrying it.
	exact map[string]int

	consumedA []bool
	consumedB []bool

	stats     domain.MatchStats
	proposals []*domain.Proposal
	byID      map[domain.CategoryID]*domain.Proposal
}

// Match runs the three matching phases over in and returns the proposals.
//
// Progress reports are sent on progress at the start, roughly every 5% of
// each phase, at each phase change and at completion. A nil channel disables
// reporting. Sends block until received or until ctx is done; cancellation is
// observed only at these report points and returns ctx.Err() with no result.
func Match(ctx context.Context, in Input, progress chan<- domain.MatchProgress) (*domain.MatchResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()

	r := &run{
		ctx:       ctx,
		progress:  progress,
		threshold: in.Threshold,
		canonical: newEntries(in.Canonical),
		sourceA:   newEntries(in.SourceA),
		sourceB:   newEntries(in.SourceB),
		consumedA: make([]bool, len(in.SourceA)),
		consumedB: make([]bool, len(in.SourceB)),
		byID:      make(map[domain.CategoryID]*domain.Proposal),
	}
	r.buildExactIndex()

	total := len(in.Canonical) + len(in.SourceA) + len(in.SourceB)
	if err := r.report(domain.ProgressStart, sourceAStart,
		fmt.Sprintf("Matching %d categories", total)); err != nil {
		return nil, err
	}

	if err := r.matchSource(domain.PlatformSourceA, r.sourceA, r.consumedA,
		domain.ProgressSourceA, sourceAStart, sourceBStart); err != nil {
		return nil, err
	}
	if err := r.matchSource(domain.PlatformSourceB, r.sourceB, r.consumedB,
		domain.ProgressSourceB, sourceBStart, residualStart); err != nil {
		return nil, err
	}
	if err := r.matchResidual(); err != nil {
		return nil, err
	}

	if err := r.report(domain.ProgressComplete, done,
		fmt.Sprintf("Matched %d of %d categories", r.stats.MappedCount, r.stats.TotalProcessed)); err != nil {
		return nil, err
	}

	proposals := make([]domain.Proposal, len(r.proposals))
	for i, p := range r.proposals {
		proposals[i] = *p
	}

	return &domain.MatchResult{
		Proposals: proposals,
		Stats:     r.snapshotStats(),
		ElapsedMs: time.Since(started).Milliseconds(),
	}, nil
}

func (r *run) buildExactIndex() {
	r.exact = make(map[string]int, len(r.canonical))
	for i, c := range r.canonical {
		if c.name == "" {
			continue
		}
		if _, ok := r.exact[c.name]; !ok {
			r.exact[c.name] = i
		}
	}
}

// matchSource runs phase 1 or 2: every unconsumed category of one marketplace
// is matched against the canonical pool.
func (r *run) matchSource(
	platform domain.Platform,
	pool []entry,
	consumed []bool,
	status domain.MatchProgressStatus,
	fromPercent, toPercent int,
) error {
	if err := r.report(status, fromPercent,
		fmt.Sprintf("Matching %d %s categories", len(pool), platform)); err != nil {
		return err
	}

	step := reportStep(len(pool))
	for i, e := range pool {
		if i > 0 && i%step == 0 {
			pct := fromPercent + (toPercent-fromPercent)*i/len(pool)
			if err := r.report(status, pct,
				fmt.Sprintf("Matching %s categories (%d/%d)", platform, i, len(pool))); err != nil {
				return err
			}
		}

		r.stats.TotalProcessed++
		if consumed[i] {
			continue
		}

		idx, score, exact, ok := r.findCanonical(e.name)
		if !ok {
			continue
		}

		consumed[i] = true
		r.propose(r.canonical[idx].cat.ID, platform, e.cat.ID)
		r.stats.MappedCount++
		r.stats.SimilaritySum += score
		if exact {
			r.stats.ExactMatchCount++
		}
	}
	return nil
}

// matchResidual runs phase 3: SourceA categories left over from phase 1 are
// paired with leftover SourceB categories, and the pair is kept only when the
// SourceA name also has a canonical anchor.
func (r *run) matchResidual() error {
	if err := r.report(domain.ProgressResidual, residualStart,
		"Pairing remaining marketplace categories"); err != nil {
		return err
	}

	step := reportStep(len(r.sourceA))
	for i, a := range r.sourceA {
		if i > 0 && i%step == 0 {
			pct := residualStart + (done-residualStart)*i/len(r.sourceA)
			if err := r.report(domain.ProgressResidual, pct,
				fmt.Sprintf("Pairing remaining categories (%d/%d)", i, len(r.sourceA))); err != nil {
				return err
			}
		}

		if r.consumedA[i] {
			continue
		}

		// Both lookups are pure, so resolving the anchor first skips the
		// SourceB scan for names that can never be represented.
		idx, _, _, ok := r.findCanonical(a.name)
		if !ok {
			continue
		}

		bIdx, score, found := r.bestResidualB(a.name)
		if !found {
			continue
		}

		canonicalID := r.canonical[idx].cat.ID
		r.propose(canonicalID, domain.PlatformSourceA, a.cat.ID)
		r.propose(canonicalID, domain.PlatformSourceB, r.sourceB[bIdx].cat.ID)
		r.consumedA[i] = true
		r.consumedB[bIdx] = true
		r.stats.MappedCount++
		r.stats.SimilaritySum += score
	}
	return nil
}

// findCanonical looks name up in the exact index, falling back to a scan of
// the whole canonical pool for the best score above the threshold.
func (r *run) findCanonical(name string) (idx int, score float64, exact bool, ok bool) {
	if name == "" {
		return 0, 0, false, false
	}
	if i, hit := r.exact[name]; hit {
		return i, 1.0, true, true
	}

	best, bestScore := -1, 0.0
	for i, c := range r.canonical {
		s := similarity.ScoreNormalized(name, c.name)
		if s > r.threshold && s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return 0, 0, false, false
	}
	return best, bestScore, false, true
}

func (r *run) bestResidualB(name string) (int, float64, bool) {
	best, bestScore := -1, 0.0
	for i, b := range r.sourceB {
		if r.consumedB[i] || b.name == "" {
			continue
		}
		s := similarity.ScoreNormalized(name, b.name)
		if s > r.threshold && s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore, best >= 0
}

// propose adds externalID to the proposal of canonicalID unless it is already there.
func (r *run) propose(canonicalID domain.CategoryID, platform domain.Platform, externalID domain.CategoryID) {
	p, ok := r.byID[canonicalID]
	if !ok {
		p = &domain.Proposal{
			CanonicalID: canonicalID,
			SourceAIDs:  []domain.CategoryID{},
			SourceBIDs:  []domain.CategoryID{},
		}
		r.byID[canonicalID] = p
		r.proposals = append(r.proposals, p)
	}

	ids := &p.SourceAIDs
	if platform == domain.PlatformSourceB {
		ids = &p.SourceBIDs
	}
	for _, id := range *ids {
		if id == externalID {
			return
		}
	}
	*ids = append(*ids, externalID)
}

func (r *run) snapshotStats() domain.MatchStats {
	s := r.stats
	if s.MappedCount > 0 {
		s.AvgSimilarityPercent = int(math.Round(s.SimilaritySum / float64(s.MappedCount) * 100))
	}
	return s
}

// report checks for cancellation and sends a progress update.
func (r *run) report(status domain.MatchProgressStatus, percent int, msg string) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if r.progress == nil {
		return nil
	}

	p := domain.MatchProgress{
		Status:  status,
		Message: msg,
		Percent: percent,
		Stats:   r.snapshotStats(),
	}
	select {
	case r.progress <- p:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

func reportStep(n int) int {
	return max(1, n/progressSteps)
}
