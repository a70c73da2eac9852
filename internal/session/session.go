// Package session holds the mapping state of one catalog load: the available
// category pools, the immutable baseline, and one mapping record per
// canonical category.
//
// A Session is single-writer. Callers that share a session between
// goroutines must serialize access themselves.
package session

import (
	"log/slog"
	"slices"
	"time"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/sse"
)

// EventEmitter receives an event after every successful mutation.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// linkKey identifies an external category across both marketplaces.
type linkKey struct {
	platform domain.Platform
	id       domain.CategoryID
}

// Session is the aggregate root of the mapping state.
type Session struct {
	id      string
	logger  *slog.Logger
	emitter EventEmitter
	now     func() time.Time

	baseline  domain.Baseline
	available map[domain.Platform][]domain.Category
	mappings  []*domain.CanonicalMapping

	// byID indexes mapping records by canonical id. Duplicate canonical ids
	// resolve to the first record.
	byID map[domain.CategoryID]*domain.CanonicalMapping
	// owners records which canonical category each external category is linked to.
	owners map[linkKey]domain.CategoryID
}

// New creates an empty session. Call Initialize or Restore before use.
func New(id string, emitter EventEmitter, logger *slog.Logger) *Session {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:      id,
		logger:  logger.With(slog.String("session_id", id)),
		emitter: emitter,
		now:     time.Now,
	}
	s.Initialize(nil, nil, nil)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Initialize captures the three lists as the baseline, makes them the current
// pools and regenerates the mapping records. Any previous state is discarded.
func (s *Session) Initialize(canonical, sourceA, sourceB []domain.Category) {
	s.baseline = domain.Baseline{
		Canonical: domain.CloneCategories(canonical),
		SourceA:   domain.CloneCategories(sourceA),
		SourceB:   domain.CloneCategories(sourceB),
	}
	s.resetPools()
	s.InitializeMappings()
}

// InitializeMappings regenerates one empty mapping record per category of
// the current canonical pool.
func (s *Session) InitializeMappings() {
	now := s.now()
	canonical := s.available[domain.PlatformCanonical]

	s.mappings = make([]*domain.CanonicalMapping, len(canonical))
	for i, c := range canonical {
		s.mappings[i] = domain.NewCanonicalMapping(c, now)
	}
	s.reindex()
}

// Restore loads a persisted session: the baseline it was created from and
// its last exported state.
func (s *Session) Restore(baseline domain.Baseline, state *domain.Snapshot) {
	s.baseline = baseline.Clone()
	if state == nil {
		s.resetPools()
		s.InitializeMappings()
		return
	}
	s.available = map[domain.Platform][]domain.Category{
		domain.PlatformCanonical: domain.CloneCategories(state.CanonicalAvailable),
		domain.PlatformSourceA:   domain.CloneCategories(state.SourceAAvailable),
		domain.PlatformSourceB:   domain.CloneCategories(state.SourceBAvailable),
	}
	s.mappings = sanitizeMappings(state.Mappings)
	s.reindex()
}

// Link attaches external to the canonical category canonicalID and removes it
// from the platform's available pool. Only the ID of external is required;
// a missing name is taken from the pool or the baseline.
func (s *Session) Link(canonicalID domain.CategoryID, platform domain.Platform, external domain.Category) error {
	link, err := s.link(canonicalID, platform, external)
	if err != nil {
		s.logger.Warn("link rejected",
			slog.String("canonical_id", canonicalID.String()),
			slog.String("platform", string(platform)),
			slog.String("external_id", external.ID.String()),
			slog.String("error", err.Error()))
		return err
	}
	s.emitter.Emit(sse.NewMappingLinkedEvent(s.id, canonicalID, link))
	return nil
}

func (s *Session) link(canonicalID domain.CategoryID, platform domain.Platform, external domain.Category) (domain.CategoryLink, error) {
	if !platform.IsExternal() {
		return domain.CategoryLink{}, errors.InvalidArgumentf("cannot link categories of platform %q", platform)
	}
	m, ok := s.byID[canonicalID]
	if !ok {
		return domain.CategoryLink{}, errors.NotFoundf("canonical category %s not found", canonicalID)
	}
	if m.FindLink(platform, external.ID) >= 0 {
		return domain.CategoryLink{}, errors.AlreadyLinkedf("%s category %s is already linked to %s", platform, external.ID, canonicalID)
	}
	key := linkKey{platform, external.ID}
	if owner, linked := s.owners[key]; linked {
		return domain.CategoryLink{}, errors.AlreadyLinkedf("%s category %s is already linked to %s", platform, external.ID, owner)
	}

	name := external.Name
	if c, found := s.lookup(platform, external.ID); found {
		if name == "" {
			name = c.Name
		}
	} else {
		return domain.CategoryLink{}, errors.NotFoundf("%s category %s not found", platform, external.ID)
	}

	now := s.now()
	link := domain.CategoryLink{
		Platform:     platform,
		ExternalID:   external.ID,
		ExternalName: name,
		LinkedAt:     now,
	}
	m.Links = append(m.Links, link)
	m.UpdatedAt = now
	s.owners[key] = canonicalID
	s.removeAvailable(platform, external.ID)

	return link, nil
}

// MarkNotSold flags canonicalID as not sold. Existing links are kept.
func (s *Session) MarkNotSold(canonicalID domain.CategoryID) error {
	m, ok := s.byID[canonicalID]
	if !ok {
		err := errors.NotFoundf("canonical category %s not found", canonicalID)
		s.logger.Warn("mark not sold rejected",
			slog.String("canonical_id", canonicalID.String()),
			slog.String("error", err.Error()))
		return err
	}

	m.NotSold = true
	m.UpdatedAt = s.now()
	s.emitter.Emit(sse.NewMappingNotSoldEvent(s.id, m.Clone()))
	return nil
}

// Unlink removes one link and returns the external category to its pool.
// The not_sold flag is left untouched.
func (s *Session) Unlink(canonicalID domain.CategoryID, platform domain.Platform, externalID domain.CategoryID) error {
	m, ok := s.byID[canonicalID]
	if !ok {
		return s.rejectUnlink(canonicalID, platform, externalID,
			errors.NotFoundf("canonical category %s not found", canonicalID))
	}
	idx := m.FindLink(platform, externalID)
	if idx < 0 {
		return s.rejectUnlink(canonicalID, platform, externalID,
			errors.NotFoundf("%s category %s is not linked to %s", platform, externalID, canonicalID))
	}

	link := m.Links[idx]
	m.Links = slices.Delete(m.Links, idx, idx+1)
	m.UpdatedAt = s.now()
	s.release(link)

	s.emitter.Emit(sse.NewMappingUnlinkedEvent(s.id, canonicalID, link))
	return nil
}

func (s *Session) rejectUnlink(canonicalID domain.CategoryID, platform domain.Platform, externalID domain.CategoryID, err error) error {
	s.logger.Warn("unlink rejected",
		slog.String("canonical_id", canonicalID.String()),
		slog.String("platform", string(platform)),
		slog.String("external_id", externalID.String()),
		slog.String("error", err.Error()))
	return err
}

// UnlinkAll removes every link of canonicalID, returns the external
// categories to their pools and clears the not_sold flag.
func (s *Session) UnlinkAll(canonicalID domain.CategoryID) error {
	m, ok := s.byID[canonicalID]
	if !ok {
		err := errors.NotFoundf("canonical category %s not found", canonicalID)
		s.logger.Warn("unlink all rejected",
			slog.String("canonical_id", canonicalID.String()),
			slog.String("error", err.Error()))
		return err
	}

	for _, link := range m.Links {
		s.release(link)
	}
	m.Links = []domain.CategoryLink{}
	m.NotSold = false
	m.UpdatedAt = s.now()

	s.emitter.Emit(sse.NewMappingClearedEvent(s.id, m.Clone()))
	return nil
}

// Reset restores all pools from the baseline and regenerates empty mapping
// records. It is destructive, so the caller must pass confirmed=true.
func (s *Session) Reset(confirmed bool) error {
	if !confirmed {
		return errors.InvalidArgument("reset must be confirmed")
	}
	s.resetPools()
	s.InitializeMappings()

	s.logger.Info("session reset")
	s.emitter.Emit(sse.NewSessionResetEvent(s.id))
	return nil
}

// ApplyResult counts the outcome of applying a batch of proposals.
type ApplyResult struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// ApplyProposals links every proposed external category, one call at a time
// and in proposal order. Links that no longer fit the live state are counted
// as failed and skipped. No per-link events are emitted.
func (s *Session) ApplyProposals(proposals []domain.Proposal) ApplyResult {
	var res ApplyResult

	apply := func(canonicalID domain.CategoryID, platform domain.Platform, ids []domain.CategoryID) {
		for _, externalID := range ids {
			if _, err := s.link(canonicalID, platform, domain.Category{ID: externalID}); err != nil {
				res.Failed++
				s.logger.Debug("proposal skipped",
					slog.String("canonical_id", canonicalID.String()),
					slog.String("platform", string(platform)),
					slog.String("external_id", externalID.String()),
					slog.String("error", err.Error()))
				continue
			}
			res.Applied++
		}
	}

	for _, p := range proposals {
		apply(p.CanonicalID, domain.PlatformSourceA, p.SourceAIDs)
		apply(p.CanonicalID, domain.PlatformSourceB, p.SourceBIDs)
	}

	if res.Failed > 0 {
		s.logger.Warn("some proposals could not be applied",
			slog.Int("applied", res.Applied),
			slog.Int("failed", res.Failed))
	}
	return res
}

// Available returns a copy of the current pool of platform.
func (s *Session) Available(platform domain.Platform) []domain.Category {
	return domain.CloneCategories(s.available[platform])
}

// Baseline returns a copy of the baseline list of platform.
func (s *Session) Baseline(platform domain.Platform) []domain.Category {
	return domain.CloneCategories(s.baseline.Pool(platform))
}

// BaselineSnapshot returns a copy of all three baseline lists.
func (s *Session) BaselineSnapshot() domain.Baseline {
	return s.baseline.Clone()
}

// Mappings returns copies of every mapping record in canonical order.
func (s *Session) Mappings() []*domain.CanonicalMapping {
	out := make([]*domain.CanonicalMapping, len(s.mappings))
	for i, m := range s.mappings {
		out[i] = m.Clone()
	}
	return out
}

// Mapping returns a copy of the record of canonicalID.
func (s *Session) Mapping(canonicalID domain.CategoryID) (*domain.CanonicalMapping, error) {
	m, ok := s.byID[canonicalID]
	if !ok {
		return nil, errors.NotFoundf("canonical category %s not found", canonicalID)
	}
	return m.Clone(), nil
}

// Stats counts resolution progress.
type Stats struct {
	CanonicalTotal   int `json:"canonical_total"`
	ResolvedCount    int `json:"resolved_count"`
	SourceARemaining int `json:"source_a_remaining"`
	SourceBRemaining int `json:"source_b_remaining"`
}

// Stats returns the current resolution counts.
func (s *Session) Stats() Stats {
	st := Stats{
		CanonicalTotal:   len(s.mappings),
		SourceARemaining: len(s.available[domain.PlatformSourceA]),
		SourceBRemaining: len(s.available[domain.PlatformSourceB]),
	}
	for _, m := range s.mappings {
		if m.IsResolved() {
			st.ResolvedCount++
		}
	}
	return st
}

func (s *Session) resetPools() {
	s.available = map[domain.Platform][]domain.Category{
		domain.PlatformCanonical: domain.CloneCategories(s.baseline.Canonical),
		domain.PlatformSourceA:   domain.CloneCategories(s.baseline.SourceA),
		domain.PlatformSourceB:   domain.CloneCategories(s.baseline.SourceB),
	}
}

// reindex rebuilds byID and owners from the mapping records.
func (s *Session) reindex() {
	s.byID = make(map[domain.CategoryID]*domain.CanonicalMapping, len(s.mappings))
	s.owners = make(map[linkKey]domain.CategoryID)
	for _, m := range s.mappings {
		if _, dup := s.byID[m.CanonicalID]; !dup {
			s.byID[m.CanonicalID] = m
		}
		for _, l := range m.Links {
			s.owners[linkKey{l.Platform, l.ExternalID}] = m.CanonicalID
		}
	}
}

// lookup finds an external category in the live pool, then in the baseline.
func (s *Session) lookup(platform domain.Platform, id domain.CategoryID) (domain.Category, bool) {
	if c, ok := findCategory(s.available[platform], id); ok {
		return c, true
	}
	return findCategory(s.baseline.Pool(platform), id)
}

// release returns a linked external category to its pool. The category is
// taken from the baseline so that its original name and parent come back;
// if the baseline does not know it, it is rebuilt from the link.
func (s *Session) release(link domain.CategoryLink) {
	delete(s.owners, linkKey{link.Platform, link.ExternalID})

	pool := s.available[link.Platform]
	if _, present := findCategory(pool, link.ExternalID); present {
		return
	}
	c, ok := findCategory(s.baseline.Pool(link.Platform), link.ExternalID)
	if !ok {
		c = domain.Category{ID: link.ExternalID, Name: link.ExternalName}
	}
	s.available[link.Platform] = append(pool, c)
}

func (s *Session) removeAvailable(platform domain.Platform, id domain.CategoryID) {
	s.available[platform] = slices.DeleteFunc(s.available[platform], func(c domain.Category) bool {
		return c.ID == id
	})
}

func findCategory(cats []domain.Category, id domain.CategoryID) (domain.Category, bool) {
	for _, c := range cats {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Category{}, false
}

// sanitizeMappings deep-copies imported records, dropping nil entries,
// links of unknown platforms and duplicate links.
func sanitizeMappings(in []*domain.CanonicalMapping) []*domain.CanonicalMapping {
	out := make([]*domain.CanonicalMapping, 0, len(in))
	seen := make(map[linkKey]bool)
	for _, m := range in {
		if m == nil {
			continue
		}
		c := m.Clone()
		c.Links = slices.DeleteFunc(c.Links, func(l domain.CategoryLink) bool {
			key := linkKey{l.Platform, l.ExternalID}
			if !l.Platform.IsExternal() || seen[key] {
				return true
			}
			seen[key] = true
			return false
		})
		out = append(out, c)
	}
	return out
}
