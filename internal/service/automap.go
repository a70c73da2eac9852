package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/shopzz/catmap/internal/domain"
	domainerrors "github.com/shopzz/catmap/internal/errors"
	"github.com/shopzz/catmap/internal/id"
	"github.com/shopzz/catmap/internal/matcher"
	"github.com/shopzz/catmap/internal/session"
	"github.com/shopzz/catmap/internal/sse"
)

const (
	// progressBuffer is the capacity of the engine's progress channel.
	progressBuffer = 16

	// DefaultJobRetention is how long a finished job stays queryable.
	DefaultJobRetention = time.Hour

	// defaultMaxFinishedJobs caps finished jobs kept regardless of age.
	defaultMaxFinishedJobs = 100
)

// matchFunc runs the matching engine. Tests replace it.
type matchFunc func(ctx context.Context, in matcher.Input, progress chan<- domain.MatchProgress) (*domain.MatchResult, error)

type jobHandle struct {
	mu     sync.Mutex
	job    *domain.AutoMapJob
	cancel context.CancelFunc
	done   chan struct{}
}

// AutoMapService runs the matching engine in the background against a
// frozen copy of a session's pools, streams its progress, and applies the
// proposals to the live session once the engine has finished.
type AutoMapService struct {
	mappings         *MappingService
	emitter          session.EventEmitter
	logger           *slog.Logger
	defaultThreshold float64
	match            matchFunc
	retention        time.Duration
	maxFinished      int
	now              func() time.Time

	// Worker management
	ctx    context.Context //nolint:containedctx // Context needed for worker lifecycle management
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*jobHandle
}

// NewAutoMapService creates a new auto-map service.
func NewAutoMapService(
	mappings *MappingService,
	emitter session.EventEmitter,
	defaultThreshold float64,
	logger *slog.Logger,
) *AutoMapService {
	if emitter == nil {
		emitter = session.NoopEmitter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AutoMapService{
		mappings:         mappings,
		emitter:          emitter,
		logger:           logger,
		defaultThreshold: defaultThreshold,
		match:            matcher.Match,
		retention:        DefaultJobRetention,
		maxFinished:      defaultMaxFinishedJobs,
		now:              time.Now,
		ctx:              ctx,
		cancel:           cancel,
		jobs:             make(map[string]*jobHandle),
	}
}

// DefaultThreshold returns the threshold used when a request gives none.
func (s *AutoMapService) DefaultThreshold() float64 {
	return s.defaultThreshold
}

// Start launches an auto-map job for a session. A threshold of zero selects
// the default. Only one job per session may run at a time.
func (s *AutoMapService) Start(ctx context.Context, sessionID string, threshold float64) (*domain.AutoMapJob, error) {
	if threshold == 0 {
		threshold = s.defaultThreshold
	}

	canonical, sourceA, sourceB, err := s.mappings.Pools(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	in := matcher.Input{
		Canonical: canonical,
		SourceA:   sourceA,
		SourceB:   sourceB,
		Threshold: threshold,
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	jobID, err := id.Generate(id.PrefixJob)
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	jobCtx, cancel := context.WithCancel(s.ctx)
	h := &jobHandle{
		job:    domain.NewAutoMapJob(jobID, sessionID, threshold),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.pruneLocked()
	for _, other := range s.jobs {
		other.mu.Lock()
		busy := other.job.SessionID == sessionID && !other.job.IsFinished()
		other.mu.Unlock()
		if busy {
			s.mu.Unlock()
			cancel()
			return nil, domainerrors.Conflictf("an auto-map job is already running for session %s", sessionID)
		}
	}
	s.jobs[jobID] = h
	s.mu.Unlock()

	s.logger.Info("auto-map job started",
		slog.String("job_id", jobID),
		slog.String("session_id", sessionID),
		slog.Float64("threshold", threshold),
		slog.Int("canonical", len(canonical)),
		slog.Int("source_a", len(sourceA)),
		slog.Int("source_b", len(sourceB)))

	s.wg.Add(1)
	go s.run(jobCtx, h, in)

	return h.snapshot(), nil
}

// Get returns a copy of a job.
func (s *AutoMapService) Get(_ context.Context, jobID string) (*domain.AutoMapJob, error) {
	h, err := s.handle(jobID)
	if err != nil {
		return nil, err
	}
	return h.snapshot(), nil
}

// Cancel stops a running job. Its proposals are never applied.
// Cancelling a finished job is a no-op.
func (s *AutoMapService) Cancel(_ context.Context, jobID string) (*domain.AutoMapJob, error) {
	h, err := s.handle(jobID)
	if err != nil {
		return nil, err
	}
	h.cancel()
	<-h.done
	return h.snapshot(), nil
}

// Wait blocks until the job finishes or ctx is done.
func (s *AutoMapService) Wait(ctx context.Context, jobID string) (*domain.AutoMapJob, error) {
	h, err := s.handle(jobID)
	if err != nil {
		return nil, err
	}
	select {
	case <-h.done:
		return h.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop cancels every running job and waits for the workers to exit.
func (s *AutoMapService) Stop() {
	s.logger.Info("stopping auto-map service")
	s.cancel()
	s.wg.Wait()
}

func (s *AutoMapService) handle(jobID string) (*jobHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.jobs[jobID]
	if !ok {
		return nil, domainerrors.NotFoundf("job %s not found", jobID)
	}
	return h, nil
}

// pruneLocked forgets finished jobs older than the retention window, then the
// oldest finished jobs beyond maxFinished. Callers hold s.mu.
func (s *AutoMapService) pruneLocked() {
	type finished struct {
		id string
		at time.Time
	}
	cutoff := s.now().Add(-s.retention)
	var kept []finished
	for jobID, h := range s.jobs {
		h.mu.Lock()
		done, at := h.job.IsFinished(), h.job.CompletedAt
		h.mu.Unlock()
		if !done || at == nil {
			continue
		}
		if at.Before(cutoff) {
			delete(s.jobs, jobID)
			continue
		}
		kept = append(kept, finished{id: jobID, at: *at})
	}

	if excess := len(kept) - s.maxFinished; excess > 0 {
		slices.SortFunc(kept, func(a, b finished) int { return a.at.Compare(b.at) })
		for _, f := range kept[:excess] {
			delete(s.jobs, f.id)
		}
	}
}

func (h *jobHandle) snapshot() *domain.AutoMapJob {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.Clone()
}

func (s *AutoMapService) run(ctx context.Context, h *jobHandle, in matcher.Input) {
	defer s.wg.Done()
	defer close(h.done)
	defer h.cancel()

	h.mu.Lock()
	h.job.MarkRunning()
	jobID, sessionID := h.job.ID, h.job.SessionID
	h.mu.Unlock()

	logger := s.logger.With(slog.String("job_id", jobID), slog.String("session_id", sessionID))

	progress := make(chan domain.MatchProgress, progressBuffer)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range progress {
			h.mu.Lock()
			h.job.AddProgress(p)
			h.mu.Unlock()
			s.emitter.Emit(sse.NewAutoMapProgressEvent(sessionID, jobID, p))
		}
	}()

	result, err := s.safeMatch(ctx, in, progress)
	close(progress)
	<-forwarded

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		s.fail(h, logger, err)
		return
	}

	applied, err := s.mappings.ApplyProposals(context.Background(), sessionID, result.Proposals)
	if err != nil {
		s.fail(h, logger, err)
		return
	}

	h.mu.Lock()
	h.job.MarkCompleted(result, applied.Applied, applied.Failed)
	h.mu.Unlock()

	logger.Info("auto-map job completed",
		slog.Int("proposals", len(result.Proposals)),
		slog.Int("applied", applied.Applied),
		slog.Int("failed", applied.Failed),
		slog.Int("mapped", result.Stats.MappedCount),
		slog.Int("exact", result.Stats.ExactMatchCount),
		slog.Int64("elapsed_ms", result.ElapsedMs))
	s.emitter.Emit(sse.NewAutoMapCompleteEvent(sessionID, jobID, result, applied.Applied, applied.Failed))
}

// safeMatch runs the engine and converts a panic into an ENGINE_FAILURE error.
func (s *AutoMapService) safeMatch(
	ctx context.Context,
	in matcher.Input,
	progress chan<- domain.MatchProgress,
) (result *domain.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("matching engine panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result = nil
			err = domainerrors.EngineFailure(fmt.Errorf("panic: %v", r))
		}
	}()
	return s.match(ctx, in, progress)
}

func (s *AutoMapService) fail(h *jobHandle, logger *slog.Logger, err error) {
	h.mu.Lock()
	cancelled := domainerrors.Is(err, context.Canceled)
	if cancelled {
		h.job.MarkCancelled()
	} else {
		h.job.MarkFailed(err.Error())
	}
	jobID, sessionID, msg := h.job.ID, h.job.SessionID, h.job.Error
	h.mu.Unlock()

	if cancelled {
		logger.Info("auto-map job cancelled")
	} else {
		logger.Error("auto-map job failed", slog.String("error", err.Error()))
	}
	s.emitter.Emit(sse.NewAutoMapFailedEvent(sessionID, jobID, msg))
}
