// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capd/internal/capture"
)

// Scoped is what targets hand to the capture core.
var _ capture.Properties = (*Scoped)(nil)

func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr
}

func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			b, err := Open(context.Background(), Config{Backend: "memory"})
			require.NoError(t, err)
			return b
		},
		"sqlite": func(t *testing.T) Backend {
			b, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "props.sqlite")})
			require.NoError(t, err)
			return b
		},
		"badger": func(t *testing.T) Backend {
			b, err := Open(context.Background(), Config{Backend: "badger", Path: t.TempDir()})
			require.NoError(t, err)
			return b
		},
		"redis": func(t *testing.T) Backend {
			mr := setupMiniRedis(t)
			b, err := Open(context.Background(), Config{Backend: "redis", Redis: RedisConfig{Addr: mr.Addr()}})
			require.NoError(t, err)
			return b
		},
	}
}

func TestBackendContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t)
			defer func() { _ = b.Close() }()

			_, ok, err := b.Get(ctx, "qu05a", capture.StartedKey("hdmi0"))
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Set(ctx, "qu05a", capture.StartedKey("hdmi0"), "true"))
			require.NoError(t, b.Set(ctx, "qu05a", capture.OutputKey("hdmi0"), "/srv/a.avi"))
			require.NoError(t, b.Set(ctx, "qu05a", capture.OutputKey("hdmi0"), "/srv/b.avi"))
			require.NoError(t, b.Set(ctx, "qu05b", capture.StartedKey("hdmi0"), "true"))

			v, ok, err := b.Get(ctx, "qu05a", capture.OutputKey("hdmi0"))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "/srv/b.avi", v)

			all, err := b.All(ctx, "qu05a")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{
				"capturer-hdmi0-started": "true",
				"capturer-hdmi0-output":  "/srv/b.avi",
			}, all)

			require.NoError(t, b.Delete(ctx, "qu05a", capture.StartedKey("hdmi0")))
			require.NoError(t, b.Delete(ctx, "qu05a", "never-set"))
			_, ok, err = b.Get(ctx, "qu05a", capture.StartedKey("hdmi0"))
			require.NoError(t, err)
			assert.False(t, ok)

			other, err := b.All(ctx, "qu05b")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"capturer-hdmi0-started": "true"}, other, "targets do not see each other")

			empty, err := b.All(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestScoped(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s := Scope(b, "qu05a")

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := b.Get(ctx, "qu05a", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, all)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteBackend_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "props.sqlite")

	b, err := NewSQLiteBackend(ctx, path)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "qu05a", "capturer-hdmi0-output", "/srv/a.avi"))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(ctx, path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	v, ok, err := b.Get(ctx, "qu05a", "capturer-hdmi0-output")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/srv/a.avi", v)
}

func TestRedisBackend_SharedAcrossClients(t *testing.T) {
	ctx := context.Background()
	mr := setupMiniRedis(t)

	a, err := NewRedisBackend(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := NewRedisBackend(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.Set(ctx, "qu05a", "capturer-hdmi0-started", "true"))
	_, ok, err := b.Get(ctx, "qu05a", "capturer-hdmi0-started")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", mr.HGet("capd:props:qu05a", "capturer-hdmi0-started"))
}

func TestRedisBackend_Unreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisBackend(context.Background(), RedisConfig{Addr: addr})
	assert.ErrorContains(t, err, "redis connection failed")
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, Config{Backend: "etcd"})
	assert.EqualError(t, err, "unknown store backend: etcd")

	_, err = Open(ctx, Config{Backend: "badger"})
	assert.Error(t, err)
	_, err = Open(ctx, Config{Backend: "redis"})
	assert.Error(t, err)
}

func TestMemoryBackend_Closed(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Set(context.Background(), "t", "k", "v"), ErrClosed)
}
