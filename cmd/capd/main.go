// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// capd serves capture sessions for lab targets over HTTP.
//
// Usage:
//
//	capd --config /etc/capd/config.yaml
//	capd --config config.yaml --check
//
// Exit codes:
//   - 0: clean shutdown, or a valid configuration with --check
//   - 1: configuration or runtime error
//   - 2: usage error
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ManuGH/capd/internal/config"
	"github.com/ManuGH/capd/internal/daemon"
	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/version"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(parent context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("capd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to config file (YAML)")
	check := fs.Bool("check", false, "validate the configuration and capturer templates, then exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the configuration is loaded.
	log.Configure(log.Config{Level: "info", Output: stderr, Service: daemon.ServiceName, Version: version.Version})
	logger := log.WithComponent("daemon")

	path := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
		return 1
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Output: stderr, Service: daemon.ServiceName, Version: cfg.Version})
	logger = log.WithComponent("daemon")
	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str(log.FieldPath, path).
		Int("targets", len(cfg.Targets)).
		Msg("loaded configuration")

	if *check {
		return checkConfig(cfg, stdout, stderr)
	}

	ctx, stop := daemon.WaitForShutdown(parent)
	defer stop()

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "daemon.bootstrap_failed").Msg("failed to build runtime")
		return 1
	}
	app, err := daemon.NewApp(rt, daemon.DefaultServerConfig(cfg.ListenAddr))
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		logger.Error().Err(err).Msg("failed to create daemon")
		return 1
	}
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	return 0
}

// checkConfig builds every target's registry, which resolves aliases and
// checks templates, without touching the store or the network.
func checkConfig(cfg config.AppConfig, stdout, stderr io.Writer) int {
	failed := false
	for _, tc := range cfg.Targets {
		reg, err := daemon.BuildRegistry(tc)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "✗ %v\n", err)
			failed = true
			continue
		}
		_, _ = fmt.Fprintf(stdout, "✓ target %s: %s\n", tc.ID, strings.Join(reg.Names(), ", "))
	}
	if failed {
		return 1
	}
	return 0
}
