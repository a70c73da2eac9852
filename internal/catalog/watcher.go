package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/sse"
)

// DefaultSettleDelay is how long a catalog file must stay quiet before a
// change is reported. Editors and copy tools write in several steps.
const DefaultSettleDelay = 500 * time.Millisecond

// EventEmitter receives catalog change events.
type EventEmitter interface {
	Emit(event any)
}

// Change describes a settled change of one catalog file.
type Change struct {
	Platform domain.Platform
	Path     string
}

// Watcher reports changes of the catalog files of a Loader.
// Only the three catalog files are reported; other files in the directory
// are ignored.
type Watcher struct {
	logger      *slog.Logger
	emitter     EventEmitter
	fsw         *fsnotify.Watcher
	settleDelay time.Duration

	// platforms maps a cleaned absolute file path to its platform.
	platforms map[string]domain.Platform

	mu      sync.Mutex
	pending map[string]*time.Timer

	changes chan Change
	done    chan struct{}
	once    sync.Once
}

// NewWatcher creates a watcher on the catalog directory of loader.
func NewWatcher(loader *Loader, emitter EventEmitter, logger *slog.Logger, settleDelay time.Duration) (*Watcher, error) {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir, err := filepath.Abs(loader.Dir())
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolve catalog dir: %w", err)
	}
	// Watch the directory, not the files: tools that replace a file by
	// rename would otherwise drop the watch.
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch catalog dir %s: %w", dir, err)
	}

	platforms := make(map[string]domain.Platform, len(domain.Platforms))
	for _, p := range domain.Platforms {
		abs, err := filepath.Abs(loader.Path(p))
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolve %s catalog path: %w", p, err)
		}
		platforms[filepath.Clean(abs)] = p
	}

	return &Watcher{
		logger:      logger,
		emitter:     emitter,
		fsw:         fsw,
		settleDelay: settleDelay,
		platforms:   platforms,
		pending:     make(map[string]*time.Timer),
		changes:     make(chan Change, 16),
		done:        make(chan struct{}),
	}, nil
}

// Changes returns the channel of settled changes.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start processes file system events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("catalog watcher started", slog.Int("files", len(w.platforms)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	platform, ok := w.platforms[path]
	if !ok {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.pending[path]; exists {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.settleDelay, func() {
		w.settled(platform, path)
	})
}

func (w *Watcher) settled(platform domain.Platform, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	w.logger.Info("catalog file changed",
		slog.String("platform", string(platform)),
		slog.String("path", path))

	if w.emitter != nil {
		w.emitter.Emit(sse.NewCatalogChangedEvent(platform, path))
	}

	select {
	case w.changes <- Change{Platform: platform, Path: path}:
	case <-w.done:
	default:
		w.logger.Warn("catalog change dropped, nobody is reading changes",
			slog.String("path", path))
	}
}

// Stop stops the watcher and releases resources. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.fsw.Close()
	})
	return err
}
