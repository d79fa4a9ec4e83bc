package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jasciiz/evox/internal/compile"
	"github.com/jasciiz/evox/internal/ctxlog"
	"github.com/jasciiz/evox/internal/manifest"
	"github.com/jasciiz/evox/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	compiler *compile.Compiler
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, registry and
// compiler. Modules default to the compiled-in core set.
func NewApp(outW io.Writer, appConfig *Config, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	// Load the operation declarations first.
	defs, err := manifest.Load(ctx, appConfig.ManifestPath)
	if err != nil {
		// A failure to load manifests is a fatal startup error.
		panic(fmt.Errorf("failed to load manifests: %w", err))
	}
	logger.Debug("Manifests loaded.", "definitions", len(defs))

	// Create and populate the registry with Go handlers.
	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules()
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	reg.PopulateDefinitions(defs)
	logger.Debug("Registry definitions populated from manifests.")

	// Validate the integrity of the registry. A mismatch between Go code and
	// manifest declarations is a programmer error, so we panic.
	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		compiler: compile.New(reg, compile.NewCache()),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Compiler returns the application's compiler. This is primarily for testing.
func (a *App) Compiler() *compile.Compiler {
	return a.compiler
}
