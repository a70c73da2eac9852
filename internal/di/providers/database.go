package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/shopzz/catmap/internal/config"
	"github.com/shopzz/catmap/internal/logger"
	"github.com/shopzz/catmap/internal/sse"
	"github.com/shopzz/catmap/internal/store"
	"github.com/shopzz/catmap/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the configured session store with shutdown capability.
type StoreHandle struct {
	store.SessionStore
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the session store selected by configuration.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		path := cfg.SQLitePath()
		db, err := sqlite.Open(path, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Session store initialized", "backend", cfg.Store.Backend, "path", path)
		return &StoreHandle{SessionStore: db}, nil

	case config.BackendBadger, "":
		path := cfg.SessionsPath()
		db, err := store.New(path, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Session store initialized", "backend", config.BackendBadger, "path", path)
		return &StoreHandle{SessionStore: db}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
