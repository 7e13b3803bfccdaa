// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package target models the hardware captures are taken from: identity,
// ownership by one user at a time, an exclusive operation lock and a
// property view onto the store.
package target

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/store"
)

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrAlreadyOwned  = errors.New("target already owned")
)

// DefaultLockTimeout bounds how long a request waits for another operation
// on the same target to finish.
const DefaultLockTimeout = 30 * time.Second

var idRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ValidateID checks a target id; ids end up in file names and store keys.
func ValidateID(id string) error {
	if !idRe.MatchString(id) {
		return fmt.Errorf("invalid target id %q", id)
	}
	return nil
}

// ReleaseHook runs while a target is being released, with the operation
// lock held. Hooks must not fail: they log.
type ReleaseHook func(ctx context.Context, t *Target, force bool)

// Config describes a target.
type Config struct {
	ID          string
	Type        string
	Tags        map[string]string
	StateDir    string
	LockTimeout time.Duration
}

// Target implements capture.Target.
type Target struct {
	id          string
	typ         string
	tags        map[string]string
	stateDir    string
	props       *store.Scoped
	lockTimeout time.Duration

	// op serialises capture transitions and releases.
	op chan struct{}

	mu         sync.Mutex
	owner      string
	acquiredAt time.Time
	hooks      []ReleaseHook
}

var _ capture.Target = (*Target)(nil)

// New creates the target and its state directory.
func New(cfg Config, backend store.Backend) (*Target, error) {
	if err := ValidateID(cfg.ID); err != nil {
		return nil, err
	}
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("target %s: state dir is required", cfg.ID)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o750); err != nil {
		return nil, fmt.Errorf("target %s: create state dir: %w", cfg.ID, err)
	}
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Target{
		id:          cfg.ID,
		typ:         cfg.Type,
		tags:        maps.Clone(cfg.Tags),
		stateDir:    cfg.StateDir,
		props:       store.Scope(backend, cfg.ID),
		lockTimeout: timeout,
		op:          make(chan struct{}, 1),
	}, nil
}

func (t *Target) ID() string                     { return t.id }
func (t *Target) Type() string                   { return t.typ }
func (t *Target) StateDir() string               { return t.stateDir }
func (t *Target) Properties() capture.Properties { return t.props }

// Tags returns a copy of the configured tags.
func (t *Target) Tags() map[string]string { return maps.Clone(t.tags) }

// Owner reports the current owner, empty when free.
func (t *Target) Owner() (string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner, t.acquiredAt
}

// AddReleaseHook registers h to run on every Release.
func (t *Target) AddReleaseHook(h ReleaseHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, h)
}

// Acquire makes who the owner. Acquiring a target one already owns is a
// no-op.
func (t *Target) Acquire(who string) error {
	if who == "" {
		return fmt.Errorf("%w: empty user", capture.ErrNotOwned)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.owner {
	case who:
		return nil
	case "":
		t.owner = who
		t.acquiredAt = time.Now()
		return nil
	default:
		return fmt.Errorf("%w: %s owns %s", ErrAlreadyOwned, t.owner, t.id)
	}
}

// Release gives up ownership after running the release hooks. Only the owner
// may release unless force is set. Releasing a free target is a no-op.
func (t *Target) Release(ctx context.Context, who string, force bool) error {
	t.mu.Lock()
	owner := t.owner
	t.mu.Unlock()
	if owner == "" {
		return nil
	}
	if owner != who && !force {
		return fmt.Errorf("%w: %s owns %s", capture.ErrNotOwned, owner, t.id)
	}

	// Wait for in-flight operations; a forced release waits without bound.
	if force {
		ctx = context.WithoutCancel(ctx)
	}
	if err := t.acquireOp(ctx, !force); err != nil {
		return err
	}
	defer t.releaseOp()

	// The session may have ended while waiting.
	t.mu.Lock()
	current := t.owner
	t.mu.Unlock()
	if current != owner {
		if current == "" || force {
			return nil
		}
		return fmt.Errorf("%w: %s", capture.ErrNotOwned, t.id)
	}

	t.mu.Lock()
	hooks := append([]ReleaseHook(nil), t.hooks...)
	t.mu.Unlock()

	logger := log.WithComponentFromContext(ctx, "target")
	logger.Info().
		Str(log.FieldEvent, "target.release").
		Str(log.FieldTarget, t.id).
		Str(log.FieldWho, who).
		Str("owner", owner).
		Bool("force", force).
		Msg("releasing target")
	for _, h := range hooks {
		h(ctx, t, force)
	}

	t.mu.Lock()
	t.owner = ""
	t.acquiredAt = time.Time{}
	t.mu.Unlock()
	return nil
}

// Lock implements capture.Target: who must own the target, and at most one
// holder exists at a time.
func (t *Target) Lock(ctx context.Context, who string) (func(), error) {
	if err := t.checkOwner(who); err != nil {
		return nil, err
	}
	if err := t.acquireOp(ctx, true); err != nil {
		return nil, err
	}
	// Ownership may have changed while waiting.
	if err := t.checkOwner(who); err != nil {
		t.releaseOp()
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(t.releaseOp) }, nil
}

func (t *Target) checkOwner(who string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owner == "" || t.owner != who {
		return fmt.Errorf("%w: %s", capture.ErrNotOwned, t.id)
	}
	return nil
}

// acquireOp takes the operation lock. A bounded wait gives up after the
// lock timeout; an unbounded one only ends with ctx.
func (t *Target) acquireOp(ctx context.Context, bounded bool) error {
	if !bounded {
		select {
		case t.op <- struct{}{}:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", capture.ErrLocked, t.id, ctx.Err())
		}
	}
	timer := time.NewTimer(t.lockTimeout)
	defer timer.Stop()
	select {
	case t.op <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s busy for %s", capture.ErrLocked, t.id, t.lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", capture.ErrLocked, t.id, ctx.Err())
	}
}

func (t *Target) releaseOp() { <-t.op }
