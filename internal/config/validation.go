// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/target"
)

// Validate checks cfg for everything that can be decided without touching
// the system. All problems are reported together.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if cfg.DataDir == "" {
		add("data_dir is required")
	}
	if cfg.ListenAddr == "" {
		add("listen_addr is required")
	}
	if cfg.LockTimeout <= 0 {
		add("lock_timeout must be positive")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "sqlite", "badger":
		if cfg.Store.Path == "" {
			add("store.path is required for %s", cfg.Store.Backend)
		}
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			add("store.redis.addr is required for redis")
		}
	default:
		add("store.backend %q (want memory, sqlite, badger or redis)", cfg.Store.Backend)
	}

	if cfg.Telemetry.Enabled {
		if !slices.Contains([]string{"grpc", "http"}, cfg.Telemetry.Exporter) {
			add("telemetry.exporter %q (want grpc or http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			add("telemetry.sampling_rate %v outside [0, 1]", cfg.Telemetry.SamplingRate)
		}
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Requests <= 0 || cfg.RateLimit.Window <= 0) {
		add("rate_limit needs positive requests and window")
	}
	for token, user := range cfg.Auth.Tokens {
		if token == "" || user == "" {
			add("auth.tokens entries need a token and a user")
		}
	}

	seen := map[string]bool{}
	for i, t := range cfg.Targets {
		if err := target.ValidateID(t.ID); err != nil {
			add("targets[%d]: %v", i, err)
			continue
		}
		if seen[t.ID] {
			add("targets[%d]: duplicate id %q", i, t.ID)
		}
		seen[t.ID] = true
		for name, c := range t.Capturers {
			if err := validateCapturer(t, name, c); err != nil {
				errs = append(errs, fmt.Errorf("%w: target %s capturer %s: %w", ErrInvalidConfig, t.ID, name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func validateCapturer(t TargetConfig, name string, c CapturerConfig) error {
	if err := capture.ValidateName(name); err != nil {
		return err
	}
	if c.Alias != "" {
		if c.Command != "" || c.Mode != "" || c.MimeType != "" {
			return fmt.Errorf("%w: an alias takes no other settings", ErrInvalidConfig)
		}
		ref, ok := t.Capturers[c.Alias]
		if !ok {
			return fmt.Errorf("%w: alias of unknown capturer %q", ErrInvalidConfig, c.Alias)
		}
		if ref.Alias != "" {
			return fmt.Errorf("%w: alias of alias %q; chained aliases are not supported", ErrInvalidConfig, c.Alias)
		}
		return nil
	}

	mode, err := capture.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if c.Command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidConfig)
	}
	if err := capture.ValidateMediaType(c.MimeType); err != nil {
		return err
	}
	if mode == capture.ModeSnapshot && c.WaitToKill != 0 {
		return fmt.Errorf("%w: wait_to_kill only applies to stream capturers", ErrInvalidConfig)
	}
	if mode == capture.ModeStream && c.Inline {
		return fmt.Errorf("%w: inline only applies to snapshot capturers", ErrInvalidConfig)
	}
	if c.WaitToKill < 0 {
		return fmt.Errorf("%w: wait_to_kill must not be negative", ErrInvalidConfig)
	}
	return nil
}
