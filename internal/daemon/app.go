// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ManuGH/capd/internal/log"
)

// App owns the runtime lifecycle and delegates server management to Manager.
type App struct {
	logger  zerolog.Logger
	runtime *Runtime
	manager Manager
}

// NewApp wires rt behind a manager listening on serverCfg. Shutdown drains
// HTTP first, then releases targets so no capture process outlives the
// daemon, then closes the store and telemetry.
func NewApp(rt *Runtime, serverCfg ServerConfig) (*App, error) {
	logger := log.WithComponent("daemon")
	mgr, err := NewManager(serverCfg, Deps{Logger: logger, APIHandler: rt.API.Handler()})
	if err != nil {
		return nil, err
	}
	mgr.RegisterShutdownHook("runtime", rt.Close)
	return &App{logger: logger, runtime: rt, manager: mgr}, nil
}

// Run blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().
		Str("version", a.runtime.Config.Version).
		Int("targets", len(a.runtime.Registries)).
		Msg("Starting capd daemon")
	return a.manager.Start(ctx)
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
