package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/config"
	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/logger"
	"github.com/shopzz/catmap/internal/service"
	"github.com/shopzz/catmap/internal/validation"
)

// ProvideCatalogLoader provides the catalog loader for the configured directory.
func ProvideCatalogLoader(i do.Injector) (*catalog.Loader, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	v := do.MustInvoke[*validation.Validator](i)

	files := catalog.Files{
		domain.PlatformCanonical: cfg.Catalog.CanonicalFile,
		domain.PlatformSourceA:   cfg.Catalog.SourceAFile,
		domain.PlatformSourceB:   cfg.Catalog.SourceBFile,
	}
	return catalog.NewLoader(cfg.Catalog.Dir, files, v, log.Logger), nil
}

// MappingServiceHandle wraps the mapping service with shutdown capability.
type MappingServiceHandle struct {
	*service.MappingService
}

// Shutdown implements do.Shutdownable.
func (h *MappingServiceHandle) Shutdown() error {
	return h.Close()
}

// ProvideMappingService provides the mapping service and restores persisted sessions.
func ProvideMappingService(i do.Injector) (*MappingServiceHandle, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	loader := do.MustInvoke[*catalog.Loader](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewMappingService(storeHandle.SessionStore, loader, sseHandle.Manager, log.Logger)

	restored, err := svc.RestoreSessions(context.Background())
	if err != nil {
		return nil, err
	}
	log.Info("Mapping sessions restored", "count", restored)

	return &MappingServiceHandle{MappingService: svc}, nil
}

// AutoMapServiceHandle wraps the auto-map service with shutdown capability.
type AutoMapServiceHandle struct {
	*service.AutoMapService
}

// Shutdown implements do.Shutdownable.
func (h *AutoMapServiceHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideAutoMapService provides the background auto-map service.
func ProvideAutoMapService(i do.Injector) (*AutoMapServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	mappings := do.MustInvoke[*MappingServiceHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewAutoMapService(mappings.MappingService, sseHandle.Manager, cfg.Matching.DefaultThreshold, log.Logger)

	log.Info("Auto-map service ready", "default_threshold", cfg.Matching.DefaultThreshold)

	return &AutoMapServiceHandle{AutoMapService: svc}, nil
}
