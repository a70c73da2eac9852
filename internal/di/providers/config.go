// Package providers contains dependency injection providers for the catmap server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/shopzz/catmap/internal/config"
	"github.com/shopzz/catmap/internal/logger"
	"github.com/shopzz/catmap/internal/validation"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting catmap server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"store", cfg.Store.Backend,
		"catalog_dir", cfg.Catalog.Dir,
	)

	return log, nil
}

// ProvideValidator provides the shared request and catalog validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}
