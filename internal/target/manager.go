// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package target

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/capd/internal/log"
)

// Manager indexes the configured targets.
type Manager struct {
	targets map[string]*Target
	ids     []string
}

// Info is the public description of a target.
type Info struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Tags       map[string]string `json:"tags,omitempty"`
	Owner      string            `json:"owner,omitempty"`
	AcquiredAt *time.Time        `json:"acquired_at,omitempty"`
}

// Info describes the target and its current owner.
func (t *Target) Info() Info {
	info := Info{ID: t.id, Type: t.typ, Tags: t.Tags()}
	if owner, at := t.Owner(); owner != "" {
		info.Owner = owner
		info.AcquiredAt = &at
	}
	return info
}

// NewManager indexes targets; ids must be unique.
func NewManager(targets ...*Target) (*Manager, error) {
	m := &Manager{targets: make(map[string]*Target, len(targets))}
	for _, t := range targets {
		if _, dup := m.targets[t.ID()]; dup {
			return nil, fmt.Errorf("duplicate target id %q", t.ID())
		}
		m.targets[t.ID()] = t
		m.ids = append(m.ids, t.ID())
	}
	sort.Strings(m.ids)
	return m, nil
}

// Get returns the target with the given id.
func (m *Manager) Get(id string) (*Target, error) {
	t, ok := m.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, id)
	}
	return t, nil
}

// List describes all targets sorted by id.
func (m *Manager) List() []Info {
	out := make([]Info, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.targets[id].Info())
	}
	return out
}

// ReleaseAll force-releases every owned target in parallel, so no capture
// process outlives the daemon.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range m.ids {
		t := m.targets[id]
		owner, _ := t.Owner()
		if owner == "" {
			continue
		}
		g.Go(func() error {
			if err := t.Release(ctx, owner, true); err != nil {
				logger := log.WithComponentFromContext(ctx, "target")
				logger.Error().Err(err).Str(log.FieldTarget, t.ID()).Msg("forced release failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
