package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/config"
	"github.com/shopzz/catmap/internal/logger"
)

// CatalogWatcherHandle wraps the catalog watcher with shutdown capability.
// Watcher is nil when watching is disabled.
type CatalogWatcherHandle struct {
	*catalog.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *CatalogWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideCatalogWatcher watches the catalog files and revalidates them on change.
func ProvideCatalogWatcher(i do.Injector) (*CatalogWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	loader := do.MustInvoke[*catalog.Loader](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	mappings := do.MustInvoke[*MappingServiceHandle](i)

	if !cfg.Catalog.Watch {
		log.Info("Catalog watching disabled by configuration")
		return &CatalogWatcherHandle{}, nil
	}

	w, err := catalog.NewWatcher(loader, sseHandle.Manager, log.Logger, catalog.DefaultSettleDelay)
	if err != nil {
		return nil, err
	}

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	go mappings.WatchCatalogs(ctx, w.Changes())

	log.Info("Catalog watcher started", "dir", loader.Dir())

	return &CatalogWatcherHandle{
		Watcher: w,
		cancel:  cancel,
	}, nil
}
