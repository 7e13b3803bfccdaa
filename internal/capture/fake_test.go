// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"maps"
	"sync"
	"testing"
)

type memProps struct {
	mu sync.Mutex
	m  map[string]string
}

func (p *memProps) Get(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProps) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value
	return nil
}

func (p *memProps) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProps) All(context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.m), nil
}

type fakeTarget struct {
	id    string
	typ   string
	tags  map[string]string
	dir   string
	owner string
	props *memProps
	mu    sync.Mutex
	locks int
}

func newFakeTarget(t *testing.T, owner string) *fakeTarget {
	t.Helper()
	return &fakeTarget{
		id:    "qu05a",
		typ:   "qemu-uefi",
		tags:  map[string]string{"vnc_port": "5901"},
		dir:   t.TempDir(),
		owner: owner,
		props: &memProps{m: map[string]string{}},
	}
}

func (f *fakeTarget) ID() string              { return f.id }
func (f *fakeTarget) Type() string            { return f.typ }
func (f *fakeTarget) Tags() map[string]string { return f.tags }
func (f *fakeTarget) StateDir() string        { return f.dir }
func (f *fakeTarget) Properties() Properties  { return f.props }
func (f *fakeTarget) snapshotProps() map[string]string {
	m, _ := f.props.All(context.Background())
	return m
}

func (f *fakeTarget) Lock(_ context.Context, who string) (func(), error) {
	if who != f.owner {
		return nil, ErrNotOwned
	}
	if !f.mu.TryLock() {
		return nil, ErrLocked
	}
	f.locks++
	return f.mu.Unlock, nil
}
