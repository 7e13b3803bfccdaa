// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables understood by the loader.
const (
	EnvDataDir         = "CAPD_DATA_DIR"
	EnvListenAddr      = "CAPD_LISTEN_ADDR"
	EnvLogLevel        = "CAPD_LOG_LEVEL"
	EnvLockTimeout     = "CAPD_LOCK_TIMEOUT"
	EnvStoreBackend    = "CAPD_STORE_BACKEND"
	EnvStorePath       = "CAPD_STORE_PATH"
	EnvRedisAddr       = "CAPD_REDIS_ADDR"
	EnvRedisPassword   = "CAPD_REDIS_PASSWORD"
	EnvRedisDB         = "CAPD_REDIS_DB"
	EnvTelemetry       = "CAPD_TELEMETRY_ENABLED"
	EnvOTLPExporter    = "CAPD_OTLP_EXPORTER"
	EnvOTLPEndpoint    = "CAPD_OTLP_ENDPOINT"
	EnvSamplingRate    = "CAPD_TRACE_SAMPLING_RATE"
	EnvRateLimit       = "CAPD_RATE_LIMIT_ENABLED"
	EnvRateLimitReqs   = "CAPD_RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow = "CAPD_RATE_LIMIT_WINDOW"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader for the file at configPath; an empty path
// means defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:     "/var/lib/capd",
		ListenAddr:  ":8080",
		LogLevel:    "info",
		LockTimeout: 30 * time.Second,
		Store:       StoreConfig{Backend: "sqlite"},
		Telemetry:   TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SamplingRate: 1.0, Environment: "production"},
		RateLimit:   RateLimitConfig{Enabled: true, Requests: 120, Window: time.Minute},
	}
}

// Load runs defaults -> file (strict) -> environment -> derived paths ->
// Validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Backend {
		case "sqlite":
			cfg.Store.Path = filepath.Join(cfg.DataDir, "properties.sqlite")
		case "badger":
			cfg.Store.Path = filepath.Join(cfg.DataDir, "properties.badger")
		}
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes path over cfg, so keys absent from the file keep their
// defaults.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	// #nosec G304 -- the configuration path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) consume(key string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString(l.consume(EnvDataDir), cfg.DataDir)
	cfg.ListenAddr = ParseString(l.consume(EnvListenAddr), cfg.ListenAddr)
	cfg.LogLevel = ParseString(l.consume(EnvLogLevel), cfg.LogLevel)
	cfg.LockTimeout = ParseDuration(l.consume(EnvLockTimeout), cfg.LockTimeout)

	cfg.Store.Backend = ParseString(l.consume(EnvStoreBackend), cfg.Store.Backend)
	cfg.Store.Path = ParseString(l.consume(EnvStorePath), cfg.Store.Path)
	cfg.Store.Redis.Addr = ParseString(l.consume(EnvRedisAddr), cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = ParseString(l.consume(EnvRedisPassword), cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = ParseInt(l.consume(EnvRedisDB), cfg.Store.Redis.DB)

	cfg.Telemetry.Enabled = ParseBool(l.consume(EnvTelemetry), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(l.consume(EnvOTLPExporter), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(l.consume(EnvOTLPEndpoint), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.consume(EnvSamplingRate), cfg.Telemetry.SamplingRate)

	cfg.RateLimit.Enabled = ParseBool(l.consume(EnvRateLimit), cfg.RateLimit.Enabled)
	cfg.RateLimit.Requests = ParseInt(l.consume(EnvRateLimitReqs), cfg.RateLimit.Requests)
	cfg.RateLimit.Window = ParseDuration(l.consume(EnvRateLimitWindow), cfg.RateLimit.Window)
}
