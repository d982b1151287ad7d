package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/stormrisk/internal/config"
	"github.com/vk/stormrisk/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	// outW receives the result summary; logs go to errW so the summary
	// stays machine-readable when stdout is piped.
	outW   io.Writer
	errW   io.Writer
	logger *slog.Logger
	model  *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and the loaded
// analysis model.
func NewApp(outW, errW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, errW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		// A failure to load the analysis definition is a fatal startup error.
		panic(fmt.Errorf("failed to load analysis definition: %w", err))
	}
	if appConfig.OutputPath != "" {
		model.Output = appConfig.OutputPath
	}
	logger.Debug("Analysis definition loaded.", "analysis", model.Name, "output", model.Output)

	return &App{
		outW:   outW,
		errW:   errW,
		logger: logger,
		model:  model,
	}
}

// Model returns the loaded analysis model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
