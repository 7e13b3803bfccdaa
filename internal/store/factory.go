// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
)

// Config selects and configures a backend.
type Config struct {
	Backend string // memory, sqlite (default), badger or redis
	Path    string // database file (sqlite) or directory (badger)
	Redis   RedisConfig
}

// Open creates the Backend described by cfg.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryBackend(), nil
	case "", "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("property store: sqlite backend needs a path")
		}
		return NewSQLiteBackend(ctx, cfg.Path)
	case "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("property store: badger backend needs a path")
		}
		return OpenBadgerBackend(cfg.Path)
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("property store: redis backend needs an address")
		}
		return NewRedisBackend(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
