// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires configuration, property store, targets, capture
// registries and the HTTP API into a running capd process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/capd/internal/api"
	"github.com/ManuGH/capd/internal/api/middleware"
	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/config"
	"github.com/ManuGH/capd/internal/health"
	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/store"
	"github.com/ManuGH/capd/internal/target"
	"github.com/ManuGH/capd/internal/telemetry"
)

// ServiceName names the process in logs, traces and spans.
const ServiceName = "capd"

// healthProbeScope is a store scope no target can be named.
const healthProbeScope = "/health"

// Runtime is the assembled daemon before it starts listening.
type Runtime struct {
	Config     config.AppConfig
	Store      store.Backend
	Targets    *target.Manager
	Registries map[string]*capture.Registry
	API        *api.Server
	Telemetry  *telemetry.Provider
}

// Bootstrap builds every component from cfg. On error, whatever was already
// opened is closed again.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (rt *Runtime, err error) {
	logger := log.WithComponent("daemon")
	if len(cfg.Targets) == 0 {
		return nil, ErrNoTargets
	}

	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			err = errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
			rt = nil
		}
	}()

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return rt, fmt.Errorf("telemetry: %w", err)
	}

	rt.Store, err = store.Open(ctx, store.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Redis: store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		},
	})
	if err != nil {
		return rt, fmt.Errorf("property store: %w", err)
	}
	logger.Info().
		Str("backend", cfg.Store.Backend).
		Str(log.FieldPath, cfg.Store.Path).
		Msg("property store opened")

	targets := make([]*target.Target, 0, len(cfg.Targets))
	rt.Registries = make(map[string]*capture.Registry, len(cfg.Targets))
	for _, tc := range cfg.Targets {
		reg, err := BuildRegistry(tc)
		if err != nil {
			return rt, err
		}
		t, err := target.New(target.Config{
			ID:          tc.ID,
			Type:        tc.Type,
			Tags:        tc.Tags,
			StateDir:    filepath.Join(cfg.DataDir, "targets", tc.ID),
			LockTimeout: cfg.LockTimeout,
		}, rt.Store)
		if err != nil {
			return rt, err
		}
		t.AddReleaseHook(func(ctx context.Context, t *target.Target, force bool) {
			reg.ReleaseAll(ctx, t, force)
		})
		targets = append(targets, t)
		rt.Registries[tc.ID] = reg
	}
	rt.Targets, err = target.NewManager(targets...)
	if err != nil {
		return rt, err
	}

	// Ownership does not survive a restart, so streams a previous run left
	// marked started have nobody to collect them.
	for _, t := range targets {
		rt.Registries[t.ID()].ReleaseAll(ctx, t, true)
	}

	stack := middleware.StackConfig{
		EnableMetrics:   true,
		EnableLogging:   true,
		EnableRateLimit: cfg.RateLimit.Enabled,
		RateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.RateLimit.Requests,
			WindowSize:   cfg.RateLimit.Window,
		},
	}
	if cfg.Telemetry.Enabled {
		stack.TracingService = ServiceName
	}
	probes := health.NewManager(cfg.Version)
	probes.RegisterChecker(health.NewWritableDirChecker("data_dir", cfg.DataDir))
	probes.RegisterChecker(health.NewCheckFunc("store", func(ctx context.Context) error {
		_, err := rt.Store.All(ctx, healthProbeScope)
		return err
	}))

	rt.API, err = api.New(api.Config{
		DataDir: cfg.DataDir,
		Tokens:  cfg.Auth.Tokens,
		Stack:   stack,
		Health:  probes,
	}, rt.Targets, rt.Registries)
	if err != nil {
		return rt, err
	}
	return rt, nil
}

// BuildRegistry turns a target's capturer declarations into a registry and
// checks every template against the target's static keywords.
func BuildRegistry(tc config.TargetConfig) (*capture.Registry, error) {
	entries := make(map[string]capture.Entry, len(tc.Capturers))
	for name, cc := range tc.Capturers {
		if cc.Alias != "" {
			entries[name] = capture.Entry{Alias: cc.Alias}
			continue
		}
		impl, err := buildCapturer(cc)
		if err != nil {
			return nil, fmt.Errorf("target %s capturer %s: %w", tc.ID, name, err)
		}
		entries[name] = capture.Entry{Impl: impl}
	}
	reg, err := capture.NewRegistry(entries)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", tc.ID, err)
	}
	if err := reg.CheckKeywords(tc.ID, tc.Type, tc.Tags); err != nil {
		return nil, fmt.Errorf("target %s: %w", tc.ID, err)
	}
	return reg, nil
}

func buildCapturer(cc config.CapturerConfig) (capture.Capturer, error) {
	mode, err := capture.ParseMode(cc.Mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case capture.ModeSnapshot:
		return capture.NewSnapshot(capture.SnapshotConfig{
			Name:        cc.Name,
			Command:     cc.Command,
			MediaType:   cc.MimeType,
			PreCommands: cc.PreCommands,
			Extension:   cc.Extension,
			Inline:      cc.Inline,
		})
	default:
		return capture.NewStream(capture.StreamConfig{
			Name:        cc.Name,
			Command:     cc.Command,
			MediaType:   cc.MimeType,
			PreCommands: cc.PreCommands,
			Extension:   cc.Extension,
			WaitToKill:  cc.WaitToKill,
		})
	}
}

// Close releases every target, then closes the store and telemetry. It is
// safe on a partially built runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Targets != nil {
		if err := rt.Targets.ReleaseAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release targets: %w", err))
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if rt.Telemetry != nil {
		if err := rt.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
