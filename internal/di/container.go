// Package di provides dependency injection configuration for the catmap server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/config"
	"github.com/shopzz/catmap/internal/di/providers"
	"github.com/shopzz/catmap/internal/logger"
	"github.com/shopzz/catmap/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Persistence and events
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Catalogs
	do.Provide(injector, providers.ProvideCatalogLoader)

	// Business services
	do.Provide(injector, providers.ProvideMappingService)
	do.Provide(injector, providers.ProvideAutoMapService)

	// Workers
	do.Provide(injector, providers.ProvideCatalogWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*catalog.Loader](injector)

	// Business services
	if _, err := do.Invoke[*providers.MappingServiceHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.AutoMapServiceHandle](injector)

	// Workers
	if _, err := do.Invoke[*providers.CatalogWatcherHandle](injector); err != nil {
		return err
	}

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
