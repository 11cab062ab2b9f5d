// Package app holds process-wide state for the live caption service.
package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Nick-Bae/deepgram/internal/config"
	"github.com/Nick-Bae/deepgram/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration. It
// initializes the global logger from the observability settings.
func New(cfg *config.Configuration) *Application {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.Logger().With().Str("service", cfg.Service.Name).Logger(),
	}

	a.Logger.Info().
		Str("sourceLang", cfg.Languages.Source).
		Str("targetLang", cfg.Languages.Target).
		Msg("live caption application created")
	return a
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("live caption service starting")
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("live caption service shutting down")
}
