package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/domain"
	domainerrors "github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/id"
	"github.com/shopzz/catmap/internal/search"
	"github.com/shopzz/catmap/internal/session"
	"github.com/shopzz/catmap/internal/sse"
	"github.com/shopzz/catmap/internal/store"
)

// managedSession is a session plus the bookkeeping the registry needs.
// mu serializes every operation on the session.
type managedSession struct {
	mu        sync.Mutex
	name      string
	createdAt time.Time
	updatedAt time.Time
	sess      *session.Session
	index     *search.CategoryIndex
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	session.Stats
}

// SearchRequest configures a category search inside a session.
type SearchRequest struct {
	Query         string
	Platform      domain.Platform
	AvailableOnly bool
	Limit         int
}

// MappingService owns the live mapping sessions. It loads catalogs into new
// sessions, serializes operations per session, and autosaves after every
// successful mutation.
type MappingService struct {
	store   store.SessionStore
	loader  *catalog.Loader
	emitter session.EventEmitter
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*managedSession
}

// NewMappingService creates a new mapping service.
func NewMappingService(
	sessionStore store.SessionStore,
	loader *catalog.Loader,
	emitter session.EventEmitter,
	logger *slog.Logger,
) *MappingService {
	if emitter == nil {
		emitter = session.NoopEmitter{}
	}
	return &MappingService{
		store:    sessionStore,
		loader:   loader,
		emitter:  emitter,
		logger:   logger,
		sessions: make(map[string]*managedSession),
	}
}

// RestoreSessions loads every persisted session into memory.
// A record that fails to load is logged and skipped.
func (s *MappingService) RestoreSessions(ctx context.Context) (int, error) {
	summaries, err := s.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list persisted sessions: %w", err)
	}

	restored := 0
	for _, sum := range summaries {
		rec, err := s.store.GetSession(ctx, sum.ID)
		if err != nil {
			s.logger.Error("failed to load persisted session",
				slog.String("session_id", sum.ID),
				slog.String("error", err.Error()))
			continue
		}

		sess := session.New(rec.ID, s.emitter, s.logger)
		sess.Restore(rec.Baseline, rec.State)

		index, err := buildIndex(sess, s.logger)
		if err != nil {
			s.logger.Error("failed to index persisted session",
				slog.String("session_id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		s.sessions[rec.ID] = &managedSession{
			name:      rec.Name,
			createdAt: rec.CreatedAt,
			updatedAt: rec.UpdatedAt,
			sess:      sess,
			index:     index,
		}
		s.mu.Unlock()
		restored++
	}

	s.logger.Info("restored mapping sessions", slog.Int("count", restored))
	return restored, nil
}

// CreateSession loads the three catalogs into a new session.
func (s *MappingService) CreateSession(ctx context.Context, name string) (*SessionInfo, error) {
	cats, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	if name == "" {
		name = "Mapping " + time.Now().Format("2006-01-02 15:04")
	}

	sess := session.New(sessionID, s.emitter, s.logger)
	sess.Initialize(cats.Canonical, cats.SourceA, cats.SourceB)

	index, err := buildIndex(sess, s.logger)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ms := &managedSession{
		name:      name,
		createdAt: now,
		updatedAt: now,
		sess:      sess,
		index:     index,
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	s.mu.Lock()
	s.sessions[sessionID] = ms
	s.mu.Unlock()

	if err := s.store.SaveSession(ctx, record(ms)); err != nil {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		_ = index.Close()
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("mapping session created",
		slog.String("session_id", sessionID),
		slog.String("name", name),
		slog.Int("canonical", len(cats.Canonical)),
		slog.Int("source_a", len(cats.SourceA)),
		slog.Int("source_b", len(cats.SourceB)))
	s.emitter.Emit(sse.NewSessionCreatedEvent(sessionID, name))

	return info(sessionID, ms), nil
}

// ListSessions returns the persisted session summaries, most recent first.
func (s *MappingService) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	return s.store.ListSessions(ctx)
}

// GetSession describes one live session.
func (s *MappingService) GetSession(_ context.Context, sessionID string) (*SessionInfo, error) {
	var out *SessionInfo
	err := s.read(sessionID, func(ms *managedSession) error {
		out = info(sessionID, ms)
		return nil
	})
	return out, err
}

// DeleteSession drops a session from memory and storage.
func (s *MappingService) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	ms, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		ms.mu.Lock()
		_ = ms.index.Close()
		ms.mu.Unlock()
	}

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		if !ok || !domainerrors.Is(err, store.ErrSessionNotFound) {
			return err
		}
	}

	s.logger.Info("mapping session deleted", slog.String("session_id", sessionID))
	s.emitter.Emit(sse.NewSessionDeletedEvent(sessionID))
	return nil
}

// Categories returns the current available pool of platform.
func (s *MappingService) Categories(_ context.Context, sessionID string, platform domain.Platform) ([]domain.Category, error) {
	if !platform.IsValid() {
		return nil, domainerrors.InvalidArgumentf("unknown platform %q", platform)
	}
	var out []domain.Category
	err := s.read(sessionID, func(ms *managedSession) error {
		out = ms.sess.Available(platform)
		return nil
	})
	return out, err
}

// Pools returns frozen copies of the three available pools.
func (s *MappingService) Pools(_ context.Context, sessionID string) (canonical, sourceA, sourceB []domain.Category, err error) {
	err = s.read(sessionID, func(ms *managedSession) error {
		canonical = ms.sess.Available(domain.PlatformCanonical)
		sourceA = ms.sess.Available(domain.PlatformSourceA)
		sourceB = ms.sess.Available(domain.PlatformSourceB)
		return nil
	})
	return canonical, sourceA, sourceB, err
}

// Mappings returns every mapping record of a session.
func (s *MappingService) Mappings(_ context.Context, sessionID string) ([]*domain.CanonicalMapping, error) {
	var out []*domain.CanonicalMapping
	err := s.read(sessionID, func(ms *managedSession) error {
		out = ms.sess.Mappings()
		return nil
	})
	return out, err
}

// Mapping returns the record of one canonical category.
func (s *MappingService) Mapping(_ context.Context, sessionID string, canonicalID domain.CategoryID) (*domain.CanonicalMapping, error) {
	var out *domain.CanonicalMapping
	err := s.read(sessionID, func(ms *managedSession) error {
		m, err := ms.sess.Mapping(canonicalID)
		out = m
		return err
	})
	return out, err
}

// Link attaches an external category to a canonical one.
func (s *MappingService) Link(
	ctx context.Context,
	sessionID string,
	canonicalID domain.CategoryID,
	platform domain.Platform,
	external domain.Category,
) (*domain.CanonicalMapping, error) {
	return s.mutateMapping(ctx, sessionID, canonicalID, func(sess *session.Session) error {
		return sess.Link(canonicalID, platform, external)
	})
}

// Unlink detaches one external category.
func (s *MappingService) Unlink(
	ctx context.Context,
	sessionID string,
	canonicalID domain.CategoryID,
	platform domain.Platform,
	externalID domain.CategoryID,
) (*domain.CanonicalMapping, error) {
	return s.mutateMapping(ctx, sessionID, canonicalID, func(sess *session.Session) error {
		return sess.Unlink(canonicalID, platform, externalID)
	})
}

// UnlinkAll clears every link and the not-sold flag of a canonical category.
func (s *MappingService) UnlinkAll(ctx context.Context, sessionID string, canonicalID domain.CategoryID) (*domain.CanonicalMapping, error) {
	return s.mutateMapping(ctx, sessionID, canonicalID, func(sess *session.Session) error {
		return sess.UnlinkAll(canonicalID)
	})
}

// MarkNotSold flags a canonical category as not sold on the marketplaces.
func (s *MappingService) MarkNotSold(ctx context.Context, sessionID string, canonicalID domain.CategoryID) (*domain.CanonicalMapping, error) {
	return s.mutateMapping(ctx, sessionID, canonicalID, func(sess *session.Session) error {
		return sess.MarkNotSold(canonicalID)
	})
}

// Export returns the session state as a v2 snapshot.
func (s *MappingService) Export(_ context.Context, sessionID string) (*domain.Snapshot, error) {
	var out *domain.Snapshot
	err := s.read(sessionID, func(ms *managedSession) error {
		out = ms.sess.ExportState()
		return nil
	})
	return out, err
}

// Import replaces the session state with a v2 or legacy snapshot and
// returns the detected format.
func (s *MappingService) Import(ctx context.Context, sessionID string, data []byte) (string, error) {
	var format string
	err := s.write(ctx, sessionID, func(ms *managedSession) error {
		f, err := ms.sess.ImportState(data)
		if err != nil {
			return err
		}
		format = f

		// Imported pools may hold categories the baseline never had.
		if err := ms.index.Replace(indexDocuments(ms.sess)); err != nil {
			s.logger.Warn("failed to reindex imported session",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
		return nil
	})
	return format, err
}

// Reset restores a session to its baseline. confirmed must be true.
func (s *MappingService) Reset(ctx context.Context, sessionID string, confirmed bool) error {
	return s.write(ctx, sessionID, func(ms *managedSession) error {
		return ms.sess.Reset(confirmed)
	})
}

// ApplyProposals links engine proposals in order and reports the counts.
func (s *MappingService) ApplyProposals(ctx context.Context, sessionID string, proposals []domain.Proposal) (session.ApplyResult, error) {
	var res session.ApplyResult
	err := s.write(ctx, sessionID, func(ms *managedSession) error {
		res = ms.sess.ApplyProposals(proposals)
		return nil
	})
	return res, err
}

// Search looks up categories of a session by name.
func (s *MappingService) Search(ctx context.Context, sessionID string, req SearchRequest) (*search.Result, error) {
	if req.Platform != "" && !req.Platform.IsValid() {
		return nil, domainerrors.InvalidArgumentf("unknown platform %q", req.Platform)
	}
	if req.AvailableOnly && req.Platform == "" {
		return nil, domainerrors.InvalidArgument("available_only requires a platform")
	}

	var (
		index  *search.CategoryIndex
		params = search.Params{Query: req.Query, Platform: req.Platform, Limit: req.Limit}
	)
	err := s.read(sessionID, func(ms *managedSession) error {
		index = ms.index
		if req.AvailableOnly {
			pool := ms.sess.Available(req.Platform)
			params.Restrict = make([]domain.CategoryID, len(pool))
			for i, c := range pool {
				params.Restrict[i] = c.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return index.Search(ctx, params)
}

// WatchCatalogs validates catalog files as they change on disk, so a broken
// edit is reported before the next session is created from it.
func (s *MappingService) WatchCatalogs(ctx context.Context, changes <-chan catalog.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			cats, err := s.loader.LoadPlatform(change.Platform)
			if err != nil {
				s.logger.Warn("changed catalog is not loadable",
					slog.String("platform", string(change.Platform)),
					slog.String("path", change.Path),
					slog.String("error", err.Error()))
				continue
			}
			s.logger.Info("catalog reloaded, new sessions will use it",
				slog.String("platform", string(change.Platform)),
				slog.Int("categories", len(cats)))
		}
	}
}

// Close releases the search indexes of every live session.
func (s *MappingService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, ms := range s.sessions {
		if err := ms.index.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(s.sessions)
	return domainerrors.Join(errs...)
}

func (s *MappingService) lookup(sessionID string) (*managedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.sessions[sessionID]
	if !ok {
		return nil, domainerrors.NotFoundf("session %s not found", sessionID)
	}
	return ms, nil
}

// read runs fn with the session locked.
func (s *MappingService) read(sessionID string, fn func(ms *managedSession) error) error {
	ms, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return fn(ms)
}

// write runs fn with the session locked and autosaves when fn succeeds.
// A failed autosave is logged: the in-memory state stays authoritative and
// the next successful mutation persists it.
func (s *MappingService) write(ctx context.Context, sessionID string, fn func(ms *managedSession) error) error {
	ms, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := fn(ms); err != nil {
		return err
	}

	ms.updatedAt = time.Now()
	if err := s.store.SaveSession(ctx, record(ms)); err != nil {
		s.logger.Error("autosave failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
	return nil
}

func (s *MappingService) mutateMapping(
	ctx context.Context,
	sessionID string,
	canonicalID domain.CategoryID,
	fn func(sess *session.Session) error,
) (*domain.CanonicalMapping, error) {
	var out *domain.CanonicalMapping
	err := s.write(ctx, sessionID, func(ms *managedSession) error {
		if err := fn(ms.sess); err != nil {
			return err
		}
		m, err := ms.sess.Mapping(canonicalID)
		out = m
		return err
	})
	return out, err
}

func record(ms *managedSession) *domain.SessionRecord {
	return &domain.SessionRecord{
		ID:        ms.sess.ID(),
		Name:      ms.name,
		CreatedAt: ms.createdAt,
		UpdatedAt: ms.updatedAt,
		Baseline:  ms.sess.BaselineSnapshot(),
		State:     ms.sess.ExportState(),
	}
}

func info(sessionID string, ms *managedSession) *SessionInfo {
	return &SessionInfo{
		ID:        sessionID,
		Name:      ms.name,
		CreatedAt: ms.createdAt,
		UpdatedAt: ms.updatedAt,
		Stats:     ms.sess.Stats(),
	}
}

// indexDocuments returns the baseline categories of a session plus any
// pooled category the baseline lacks.
func indexDocuments(sess *session.Session) []*search.Document {
	docs := search.DocumentsFromBaseline(sess.BaselineSnapshot())
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		seen[d.ID] = struct{}{}
	}
	for _, p := range domain.Platforms {
		for _, c := range sess.Available(p) {
			doc := search.NewDocument(p, c)
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			docs = append(docs, doc)
		}
	}
	return docs
}

func buildIndex(sess *session.Session, logger *slog.Logger) (*search.CategoryIndex, error) {
	index, err := search.NewCategoryIndex(logger)
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	if err := index.IndexDocuments(indexDocuments(sess)); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("index categories: %w", err)
	}
	return index, nil
}
