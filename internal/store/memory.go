// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps properties in process memory. Useful for tests and
// single-shot daemons; nothing survives a restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string]map[string]string
	closed bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, target, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[target][key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, target, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	props, ok := m.data[target]
	if !ok {
		props = make(map[string]string)
		m.data[target] = props
	}
	props[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, target, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data[target], key)
	return nil
}

func (m *MemoryBackend) All(_ context.Context, target string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := maps.Clone(m.data[target])
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
