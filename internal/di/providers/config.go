// Package providers contains dependency injection providers for the fitment server.
package providers

import (
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	log.Info("Starting fitment server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"store_path", cfg.Store.Path,
		"search_path", cfg.Search.DataPath,
	)

	return log, nil
}

// ProvideSlogLogger provides the underlying slog.Logger for packages that need it.
func ProvideSlogLogger(i do.Injector) (*slog.Logger, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return log.Logger, nil
}

// ProvideTimezone resolves the scheduler timezone once so every component
// that reasons about quarters shares the same location.
func ProvideTimezone(i do.Injector) (*time.Location, error) {
	cfg := do.MustInvoke[*config.Config](i)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}
	return loc, nil
}
