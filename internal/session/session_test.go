package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/sse"
)

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := event.(sse.Event); ok {
		r.events = append(r.events, e)
	}
}

func (r *recordingEmitter) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cat(id, name, parent string) domain.Category {
	return domain.Category{ID: domain.CategoryID(id), Name: name, ParentID: domain.CategoryID(parent)}
}

// setupTestSession loads a small three-catalog session.
func setupTestSession(t *testing.T) (*Session, *recordingEmitter) {
	t.Helper()

	emitter := &recordingEmitter{}
	s := New("sess-test", emitter, testLogger())
	s.Initialize(
		[]domain.Category{cat("1", "Shoes", ""), cat("2", "Boots", "1"), cat("3", "Hats", "")},
		[]domain.Category{cat("10", "Shoes", ""), cat("11", "Winter boots", "10"), cat("12", "Caps", "")},
		[]domain.Category{cat("20", "Footwear", ""), cat("21", "Headwear", "")},
	)
	return s, emitter
}

// assertPartition checks that every baseline external category is either
// available or linked, never both and never neither.
func assertPartition(t *testing.T, s *Session) {
	t.Helper()

	for _, platform := range []domain.Platform{domain.PlatformSourceA, domain.PlatformSourceB} {
		available := map[domain.CategoryID]int{}
		for _, c := range s.Available(platform) {
			available[c.ID]++
		}
		linked := map[domain.CategoryID]int{}
		for _, m := range s.Mappings() {
			for _, id := range linkedIDs(m, platform) {
				linked[id]++
			}
		}

		for _, c := range s.Baseline(platform) {
			inPool := available[c.ID]
			inLinks := linked[c.ID]
			assert.Equal(t, 1, inPool+inLinks,
				"%s category %s: available=%d linked=%d", platform, c.ID, inPool, inLinks)
		}
	}
}

func ids(cats []domain.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c.ID)
	}
	sort.Strings(out)
	return out
}

func TestInitialize(t *testing.T) {
	s, _ := setupTestSession(t)

	assert.Len(t, s.Mappings(), 3)
	for _, m := range s.Mappings() {
		assert.Empty(t, m.Links)
		assert.False(t, m.NotSold)
	}
	assert.Equal(t, []string{"10", "11", "12"}, ids(s.Available(domain.PlatformSourceA)))

	m, err := s.Mapping("2")
	require.NoError(t, err)
	assert.Equal(t, "Boots", m.CanonicalName)
	assert.Equal(t, domain.CategoryID("1"), m.CanonicalParentID)
}

func TestInitialize_DiscardsPreviousLinks(t *testing.T) {
	s, _ := setupTestSession(t)
	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))

	s.Initialize(s.Baseline(domain.PlatformCanonical), s.Baseline(domain.PlatformSourceA), s.Baseline(domain.PlatformSourceB))

	m, err := s.Mapping("1")
	require.NoError(t, err)
	assert.Empty(t, m.Links)
	assertPartition(t, s)
}

func TestBaselineIsIndependent(t *testing.T) {
	canonical := []domain.Category{cat("1", "Shoes", "")}
	s := New("sess-test", nil, testLogger())
	s.Initialize(canonical, nil, nil)

	canonical[0].Name = "mutated"
	assert.Equal(t, "Shoes", s.Baseline(domain.PlatformCanonical)[0].Name)

	pool := s.Available(domain.PlatformCanonical)
	pool[0].Name = "mutated"
	assert.Equal(t, "Shoes", s.Available(domain.PlatformCanonical)[0].Name)
}

func TestLink(t *testing.T) {
	s, emitter := setupTestSession(t)

	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))

	m, err := s.Mapping("1")
	require.NoError(t, err)
	require.Len(t, m.Links, 1)
	assert.Equal(t, domain.PlatformSourceA, m.Links[0].Platform)
	assert.Equal(t, domain.CategoryID("10"), m.Links[0].ExternalID)
	assert.Equal(t, "Shoes", m.Links[0].ExternalName, "name should come from the pool")
	assert.False(t, m.Links[0].LinkedAt.IsZero())
	assert.True(t, m.IsResolved())

	assert.Equal(t, []string{"11", "12"}, ids(s.Available(domain.PlatformSourceA)))
	assert.Len(t, s.Available(domain.PlatformCanonical), 3, "canonical pool is never depleted")
	assert.Equal(t, []sse.EventType{sse.EventMappingLinked}, emitter.types())
	assertPartition(t, s)
}

func TestLink_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		canonicalID domain.CategoryID
		platform    domain.Platform
		externalID  string
		wantErr     error
	}{
		{"unknown canonical", "99", domain.PlatformSourceA, "11", errors.ErrNotFound},
		{"duplicate on same record", "1", domain.PlatformSourceA, "10", errors.ErrAlreadyLinked},
		{"linked to another record", "2", domain.PlatformSourceA, "10", errors.ErrAlreadyLinked},
		{"unknown external", "1", domain.PlatformSourceA, "404", errors.ErrNotFound},
		{"canonical platform", "1", domain.PlatformCanonical, "2", errors.ErrInvalidArgument},
		{"wrong platform for id", "1", domain.PlatformSourceB, "11", errors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, emitter := setupTestSession(t)
			require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))
			before := s.ExportState()

			err := s.Link(tt.canonicalID, tt.platform, cat(tt.externalID, "", ""))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			after := s.ExportState()
			after.ExportedAt = before.ExportedAt
			assert.Equal(t, before, after, "failed link must not mutate state")
			assert.Len(t, emitter.types(), 1)
			assertPartition(t, s)
		})
	}
}

func TestMarkNotSold(t *testing.T) {
	s, emitter := setupTestSession(t)
	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))

	require.NoError(t, s.MarkNotSold("1"))

	m, err := s.Mapping("1")
	require.NoError(t, err)
	assert.True(t, m.NotSold)
	assert.Len(t, m.Links, 1, "marking not sold keeps existing links")
	assert.Contains(t, emitter.types(), sse.EventMappingNotSold)

	assert.ErrorIs(t, s.MarkNotSold("99"), errors.ErrNotFound)
}

func TestUnlink(t *testing.T) {
	s, emitter := setupTestSession(t)
	require.NoError(t, s.Link("2", domain.PlatformSourceA, cat("11", "", "")))
	require.NoError(t, s.MarkNotSold("2"))

	require.NoError(t, s.Unlink("2", domain.PlatformSourceA, "11"))

	m, err := s.Mapping("2")
	require.NoError(t, err)
	assert.Empty(t, m.Links)
	assert.True(t, m.NotSold, "unlink must not clear not_sold")

	restored := s.Available(domain.PlatformSourceA)
	assert.Equal(t, []string{"10", "11", "12"}, ids(restored))
	for _, c := range restored {
		if c.ID == "11" {
			assert.Equal(t, cat("11", "Winter boots", "10"), c, "restored from baseline")
		}
	}
	assert.Equal(t, sse.EventMappingUnlinked, emitter.types()[len(emitter.types())-1])
	assertPartition(t, s)
}

func TestUnlink_IdempotentFailure(t *testing.T) {
	s, _ := setupTestSession(t)
	require.NoError(t, s.Link("1", domain.PlatformSourceB, cat("20", "", "")))

	require.NoError(t, s.Unlink("1", domain.PlatformSourceB, "20"))
	state := s.ExportState()

	err := s.Unlink("1", domain.PlatformSourceB, "20")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	again := s.ExportState()
	again.ExportedAt = state.ExportedAt
	assert.Equal(t, state, again)
	assertPartition(t, s)
}

func TestUnlink_UnknownCanonical(t *testing.T) {
	s, _ := setupTestSession(t)
	assert.ErrorIs(t, s.Unlink("99", domain.PlatformSourceA, "10"), errors.ErrNotFound)
}

func TestUnlinkAll(t *testing.T) {
	s, emitter := setupTestSession(t)
	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))
	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("11", "", "")))
	require.NoError(t, s.Link("1", domain.PlatformSourceB, cat("20", "", "")))
	require.NoError(t, s.MarkNotSold("1"))

	require.NoError(t, s.UnlinkAll("1"))

	m, err := s.Mapping("1")
	require.NoError(t, err)
	assert.Empty(t, m.Links)
	assert.NotNil(t, m.Links)
	assert.False(t, m.NotSold, "unlink all clears not_sold")
	assert.False(t, m.IsResolved())

	assert.Equal(t, []string{"10", "11", "12"}, ids(s.Available(domain.PlatformSourceA)))
	assert.Equal(t, []string{"20", "21"}, ids(s.Available(domain.PlatformSourceB)))
	assert.Equal(t, sse.EventMappingCleared, emitter.types()[len(emitter.types())-1])
	assertPartition(t, s)

	assert.ErrorIs(t, s.UnlinkAll("99"), errors.ErrNotFound)
}

func TestUnlink_FallsBackToLinkWhenBaselineLacksCategory(t *testing.T) {
	s, _ := setupTestSession(t)

	snapshot := s.ExportState()
	snapshot.SourceAAvailable = []domain.Category{}
	snapshot.Mappings[0].Links = []domain.CategoryLink{{
		Platform:     domain.PlatformSourceA,
		ExternalID:   "777",
		ExternalName: "Imported only",
	}}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)

	_, err = s.ImportState(data)
	require.NoError(t, err)

	require.NoError(t, s.Unlink("1", domain.PlatformSourceA, "777"))
	assert.Equal(t, []domain.Category{cat("777", "Imported only", "")}, s.Available(domain.PlatformSourceA))
}

func TestPartitionInvariant_RandomSequence(t *testing.T) {
	s, _ := setupTestSession(t)

	type op func() error
	ops := []op{
		func() error { return s.Link("1", domain.PlatformSourceA, cat("10", "", "")) },
		func() error { return s.Link("2", domain.PlatformSourceA, cat("10", "", "")) },
		func() error { return s.Link("2", domain.PlatformSourceA, cat("11", "", "")) },
		func() error { return s.Link("3", domain.PlatformSourceB, cat("21", "", "")) },
		func() error { return s.Unlink("1", domain.PlatformSourceA, "10") },
		func() error { return s.Link("2", domain.PlatformSourceA, cat("10", "", "")) },
		func() error { return s.Unlink("1", domain.PlatformSourceA, "10") },
		func() error { return s.UnlinkAll("2") },
		func() error { return s.Link("1", domain.PlatformSourceB, cat("21", "", "")) },
		func() error { return s.UnlinkAll("3") },
		func() error { return s.Link("1", domain.PlatformSourceB, cat("21", "", "")) },
		func() error { return s.UnlinkAll("1") },
		func() error { return s.UnlinkAll("1") },
	}

	for i, o := range ops {
		_ = o()
		t.Logf("after op %d", i)
		assertPartition(t, s)
	}
}

func TestReset(t *testing.T) {
	s, emitter := setupTestSession(t)
	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))
	require.NoError(t, s.Link("3", domain.PlatformSourceB, cat("21", "", "")))
	require.NoError(t, s.MarkNotSold("2"))

	err := s.Reset(false)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Equal(t, 3, s.Stats().ResolvedCount, "unconfirmed reset changes nothing")

	require.NoError(t, s.Reset(true))

	for _, p := range domain.Platforms {
		assert.Equal(t, s.Baseline(p), s.Available(p))
	}
	for _, m := range s.Mappings() {
		assert.Empty(t, m.Links)
		assert.False(t, m.NotSold)
	}
	assert.Equal(t, sse.EventSessionReset, emitter.types()[len(emitter.types())-1])
}

func TestApplyProposals(t *testing.T) {
	s, emitter := setupTestSession(t)
	require.NoError(t, s.Link("3", domain.PlatformSourceA, cat("12", "", "")))

	res := s.ApplyProposals([]domain.Proposal{
		{CanonicalID: "1", SourceAIDs: []domain.CategoryID{"10"}, SourceBIDs: []domain.CategoryID{"20"}},
		// 12 was linked manually after matching started.
		{CanonicalID: "3", SourceAIDs: []domain.CategoryID{"12"}, SourceBIDs: []domain.CategoryID{"21"}},
		{CanonicalID: "99", SourceAIDs: []domain.CategoryID{"11"}},
	})

	assert.Equal(t, ApplyResult{Applied: 3, Failed: 2}, res)
	assert.Equal(t, []string{"11"}, ids(s.Available(domain.PlatformSourceA)))
	assert.Empty(t, s.Available(domain.PlatformSourceB))
	assert.Len(t, emitter.types(), 1, "applying proposals emits no per-link events")
	assertPartition(t, s)
}

func TestStats(t *testing.T) {
	s, _ := setupTestSession(t)
	require.NoError(t, s.Link("1", domain.PlatformSourceA, cat("10", "", "")))
	require.NoError(t, s.MarkNotSold("3"))

	assert.Equal(t, Stats{
		CanonicalTotal:   3,
		ResolvedCount:    2,
		SourceARemaining: 2,
		SourceBRemaining: 2,
	}, s.Stats())
}

// linkedIDs lists the external IDs m links on platform, in link order.
func linkedIDs(m *domain.CanonicalMapping, platform domain.Platform) []domain.CategoryID {
	ids := []domain.CategoryID{}
	for _, l := range m.Links {
		if l.Platform == platform {
			ids = append(ids, l.ExternalID)
		}
	}
	return ids
}
