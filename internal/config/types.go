// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	DataDir     string        `yaml:"data_dir"`
	ListenAddr  string        `yaml:"listen_addr"`
	LogLevel    string        `yaml:"log_level"`
	LockTimeout time.Duration `yaml:"lock_timeout"`

	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`

	Targets []TargetConfig `yaml:"targets"`
}

// StoreConfig selects the property store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory, sqlite, badger, redis
	Path    string      `yaml:"path"`    // defaults under data_dir
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// AuthConfig maps bearer tokens to user names. With no tokens the caller
// names itself through the X-Capture-User header.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// TargetConfig declares one piece of hardware and its capturers.
type TargetConfig struct {
	ID        string                    `yaml:"id"`
	Type      string                    `yaml:"type"`
	Tags      map[string]string         `yaml:"tags"`
	Capturers map[string]CapturerConfig `yaml:"capturers"`
}

// CapturerConfig declares a capturer, or an alias when Alias is set.
type CapturerConfig struct {
	Alias string `yaml:"alias"`

	Mode        string        `yaml:"mode"` // snapshot or stream
	Name        string        `yaml:"name"` // display template
	Command     string        `yaml:"command"`
	MimeType    string        `yaml:"mimetype"`
	PreCommands []string      `yaml:"pre_commands"`
	Extension   string        `yaml:"extension"`
	WaitToKill  time.Duration `yaml:"wait_to_kill"` // stream only
	Inline      bool          `yaml:"inline"`       // snapshot only
}
