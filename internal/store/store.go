// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists per-target properties. Every backend reads through
// to its storage on each call; nothing is cached, so several daemons sharing
// a backend see each other's writes.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store: closed")

// Backend stores string properties keyed by (target, key).
type Backend interface {
	Get(ctx context.Context, target, key string) (string, bool, error)
	Set(ctx context.Context, target, key, value string) error
	Delete(ctx context.Context, target, key string) error
	All(ctx context.Context, target string) (map[string]string, error)
	Close() error
}

// Scoped is a Backend view restricted to one target.
type Scoped struct {
	backend Backend
	target  string
}

// Scope returns the view of b for target.
func Scope(b Backend, target string) *Scoped {
	return &Scoped{backend: b, target: target}
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.backend.Get(ctx, s.target, key)
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.backend.Set(ctx, s.target, key, value)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.target, key)
}

func (s *Scoped) All(ctx context.Context) (map[string]string, error) {
	return s.backend.All(ctx, s.target)
}
