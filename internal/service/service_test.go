package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/sse"
	"github.com/shopzz/catmap/internal/store"
	"github.com/shopzz/catmap/internal/validation"
)

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

func (r *recordingEmitter) count(t sse.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCatalogs(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		catalog.DefaultCanonicalFile: `[
			{"id": 1, "name": "Shoes", "parent_id": null},
			{"id": 2, "name": "Boots", "parent_id": 1},
			{"id": 3, "name": "Hats", "parent_id": null}
		]`,
		catalog.DefaultSourceAFile: `[
			{"id": 10, "name": "Shoes", "parent_id": null},
			{"id": 11, "name": "Boots", "parent_id": 10}
		]`,
		catalog.DefaultSourceBFile: `[
			{"id": 20, "name": "Shoes", "parent_id": null},
			{"id": 21, "name": "Caps", "parent_id": null}
		]`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

type testEnv struct {
	store    *store.Store
	mappings *MappingService
	automap  *AutoMapService
	emitter  *recordingEmitter
	loader   *catalog.Loader
}

// setupTestServices wires both services to an in-memory store and a
// temporary catalog directory.
func setupTestServices(t *testing.T) (*testEnv, func()) { //nolint:gocritic // Test helper return values are clear from context
	t.Helper()

	dir := t.TempDir()
	writeCatalogs(t, dir)

	s, err := store.New("", nil)
	require.NoError(t, err)

	emitter := &recordingEmitter{}
	loader := catalog.NewLoader(dir, nil, validation.New(), testLogger())
	mappings := NewMappingService(s, loader, emitter, testLogger())
	automap := NewAutoMapService(mappings, emitter, 0.7, testLogger())

	env := &testEnv{
		store:    s,
		mappings: mappings,
		automap:  automap,
		emitter:  emitter,
		loader:   loader,
	}

	cleanup := func() {
		automap.Stop()
		_ = mappings.Close()
		_ = s.Close()
	}
	return env, cleanup
}

func TestMappingService_CreateSession(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "Spring sync")
	require.NoError(t, err)

	assert.Equal(t, "Spring sync", info.Name)
	assert.Equal(t, 3, info.CanonicalTotal)
	assert.Equal(t, 0, info.ResolvedCount)
	assert.Equal(t, 2, info.SourceARemaining)
	assert.Equal(t, 2, info.SourceBRemaining)
	assert.Equal(t, 1, env.emitter.count(sse.EventSessionCreated))

	rec, err := env.store.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, rec.Baseline.Canonical, 3)
	require.NotNil(t, rec.State)
	assert.Len(t, rec.State.Mappings, 3)

	list, err := env.mappings.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)
}

func TestMappingService_CreateSession_DefaultName(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()

	info, err := env.mappings.CreateSession(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, info.Name, "Mapping ")
}

func TestMappingService_CreateSession_BrokenCatalog(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()

	require.NoError(t, os.WriteFile(env.loader.Path(domain.PlatformSourceA), []byte(`{`), 0o644))

	_, err := env.mappings.CreateSession(context.Background(), "x")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	list, err := env.mappings.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMappingService_LinkLifecycle(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "s")
	require.NoError(t, err)

	m, err := env.mappings.Link(ctx, info.ID, "1", domain.PlatformSourceA, domain.Category{ID: "10"})
	require.NoError(t, err)
	require.Len(t, m.Links, 1)
	assert.Equal(t, "Shoes", m.Links[0].ExternalName)

	// Autosaved.
	rec, err := env.store.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryID{"10"}, linkedIDs(rec.State.Mappings[0], domain.PlatformSourceA))
	assert.Len(t, rec.State.SourceAAvailable, 1)

	_, err = env.mappings.Link(ctx, info.ID, "2", domain.PlatformSourceA, domain.Category{ID: "10"})
	assert.ErrorIs(t, err, errors.ErrAlreadyLinked)

	m, err = env.mappings.Unlink(ctx, info.ID, "1", domain.PlatformSourceA, "10")
	require.NoError(t, err)
	assert.Empty(t, m.Links)

	m, err = env.mappings.MarkNotSold(ctx, info.ID, "3")
	require.NoError(t, err)
	assert.True(t, m.NotSold)

	m, err = env.mappings.UnlinkAll(ctx, info.ID, "3")
	require.NoError(t, err)
	assert.False(t, m.NotSold)

	pool, err := env.mappings.Categories(ctx, info.ID, domain.PlatformSourceA)
	require.NoError(t, err)
	assert.Len(t, pool, 2)

	assert.Equal(t, 1, env.emitter.count(sse.EventMappingLinked))
	assert.Equal(t, 1, env.emitter.count(sse.EventMappingUnlinked))
	assert.Equal(t, 1, env.emitter.count(sse.EventMappingNotSold))
	assert.Equal(t, 1, env.emitter.count(sse.EventMappingCleared))
}

func TestMappingService_UnknownSession(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	_, err := env.mappings.GetSession(ctx, "ms-missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = env.mappings.Link(ctx, "ms-missing", "1", domain.PlatformSourceA, domain.Category{ID: "10"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.ErrorIs(t, env.mappings.DeleteSession(ctx, "ms-missing"), errors.ErrNotFound)

	_, err = env.automap.Start(ctx, "ms-missing", 0)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMappingService_Categories_InvalidPlatform(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "s")
	require.NoError(t, err)

	_, err = env.mappings.Categories(ctx, info.ID, "amazon")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestMappingService_Reset(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "s")
	require.NoError(t, err)
	_, err = env.mappings.Link(ctx, info.ID, "1", domain.PlatformSourceB, domain.Category{ID: "20"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.mappings.Reset(ctx, info.ID, false), errors.ErrInvalidArgument)

	got, err := env.mappings.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ResolvedCount)

	require.NoError(t, env.mappings.Reset(ctx, info.ID, true))

	got, err = env.mappings.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ResolvedCount)
	assert.Equal(t, 2, got.SourceBRemaining)
}

func TestMappingService_ExportImport(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "s")
	require.NoError(t, err)
	_, err = env.mappings.Link(ctx, info.ID, "2", domain.PlatformSourceA, domain.Category{ID: "11"})
	require.NoError(t, err)

	snap, err := env.mappings.Export(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotVersion, snap.Version)

	legacy := []byte(`{"mappedCategories": [
		{"shopz_id": 3, "ozon_id": 10, "ozon_name": "Shoes", "wb_id": null, "not_sold": false,
		 "timestamp": "2024-01-02T03:04:05.000Z"}
	]}`)
	format, err := env.mappings.Import(ctx, info.ID, legacy)
	require.NoError(t, err)
	assert.Equal(t, "legacy", format)

	mappings, err := env.mappings.Mappings(ctx, info.ID)
	require.NoError(t, err)
	assert.Empty(t, mappings[1].Links)
	assert.Equal(t, []domain.CategoryID{"10"}, linkedIDs(mappings[2], domain.PlatformSourceA))

	_, err = env.mappings.Import(ctx, info.ID, []byte(`[1, 2]`))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Equal(t, 1, env.emitter.count(sse.EventSessionImported))
}

func TestMappingService_Search(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "s")
	require.NoError(t, err)

	res, err := env.mappings.Search(ctx, info.ID, SearchRequest{Query: "shoes"})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 3)

	_, err = env.mappings.Link(ctx, info.ID, "1", domain.PlatformSourceA, domain.Category{ID: "10"})
	require.NoError(t, err)

	res, err = env.mappings.Search(ctx, info.ID, SearchRequest{
		Query:         "shoes",
		Platform:      domain.PlatformSourceA,
		AvailableOnly: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	res, err = env.mappings.Search(ctx, info.ID, SearchRequest{Query: "shoes", Platform: domain.PlatformSourceA})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)

	_, err = env.mappings.Search(ctx, info.ID, SearchRequest{Query: "shoes", AvailableOnly: true})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestMappingService_RestoreSessions(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "persisted")
	require.NoError(t, err)
	_, err = env.mappings.Link(ctx, info.ID, "1", domain.PlatformSourceA, domain.Category{ID: "10"})
	require.NoError(t, err)
	_, err = env.mappings.MarkNotSold(ctx, info.ID, "3")
	require.NoError(t, err)

	restored := NewMappingService(env.store, env.loader, nil, testLogger())
	defer restored.Close()

	n, err := restored.RestoreSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := restored.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
	assert.Equal(t, 2, got.ResolvedCount)
	assert.Equal(t, 1, got.SourceARemaining)

	// The restored baseline still backs unlink.
	_, err = restored.Unlink(ctx, info.ID, "1", domain.PlatformSourceA, "10")
	require.NoError(t, err)
	pool, err := restored.Categories(ctx, info.ID, domain.PlatformSourceA)
	require.NoError(t, err)
	assert.Len(t, pool, 2)
}

func TestMappingService_DeleteSession(t *testing.T) {
	env, cleanup := setupTestServices(t)
	defer cleanup()
	ctx := context.Background()

	info, err := env.mappings.CreateSession(ctx, "s")
	require.NoError(t, err)

	require.NoError(t, env.mappings.DeleteSession(ctx, info.ID))

	_, err = env.mappings.GetSession(ctx, info.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = env.store.GetSession(ctx, info.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Equal(t, 1, env.emitter.count(sse.EventSessionDeleted))
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
