// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package target

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTarget(t *testing.T, id string) *Target {
	t.Helper()
	tgt, err := New(Config{
		ID:          id,
		Type:        "qemu-uefi",
		Tags:        map[string]string{"vnc_port": "5901"},
		StateDir:    filepath.Join(t.TempDir(), id),
		LockTimeout: 100 * time.Millisecond,
	}, store.NewMemoryBackend())
	require.NoError(t, err)
	return tgt
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{ID: "../etc", StateDir: t.TempDir()}, store.NewMemoryBackend())
	assert.Error(t, err)
	_, err = New(Config{ID: "qu05a"}, store.NewMemoryBackend())
	assert.Error(t, err)

	tgt := newTarget(t, "qu05a")
	assert.DirExists(t, tgt.StateDir())
	tags := tgt.Tags()
	tags["vnc_port"] = "1"
	assert.Equal(t, "5901", tgt.Tags()["vnc_port"], "tags are copied")
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	tgt := newTarget(t, "qu05a")

	require.NoError(t, tgt.Acquire("alice"))
	require.NoError(t, tgt.Acquire("alice"))
	assert.ErrorIs(t, tgt.Acquire("bob"), ErrAlreadyOwned)
	owner, at := tgt.Owner()
	assert.Equal(t, "alice", owner)
	assert.False(t, at.IsZero())

	assert.ErrorIs(t, tgt.Release(ctx, "bob", false), capture.ErrNotOwned)
	require.NoError(t, tgt.Release(ctx, "bob", true))
	owner, _ = tgt.Owner()
	assert.Empty(t, owner)

	require.NoError(t, tgt.Release(ctx, "alice", false), "releasing a free target is a no-op")
	require.NoError(t, tgt.Acquire("bob"))
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	tgt := newTarget(t, "qu05a")

	_, err := tgt.Lock(ctx, "alice")
	assert.ErrorIs(t, err, capture.ErrNotOwned, "free targets cannot be locked")

	require.NoError(t, tgt.Acquire("alice"))
	_, err = tgt.Lock(ctx, "bob")
	assert.ErrorIs(t, err, capture.ErrNotOwned)

	release, err := tgt.Lock(ctx, "alice")
	require.NoError(t, err)

	_, err = tgt.Lock(ctx, "alice")
	assert.ErrorIs(t, err, capture.ErrLocked, "second holder times out")

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tgt.Lock(cctx, "alice")
	assert.ErrorIs(t, err, capture.ErrLocked)
	assert.ErrorIs(t, err, context.Canceled)

	release()
	release()
	again, err := tgt.Lock(ctx, "alice")
	require.NoError(t, err)
	again()
}

func TestLock_WaitsForInFlightOperation(t *testing.T) {
	ctx := context.Background()
	tgt := newTarget(t, "qu05a")
	tgt.lockTimeout = 2 * time.Second
	require.NoError(t, tgt.Acquire("alice"))

	release, err := tgt.Lock(ctx, "alice")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	second, err := tgt.Lock(ctx, "alice")
	require.NoError(t, err)
	second()
}

func TestRelease_RunsHooksUnderLock(t *testing.T) {
	ctx := context.Background()
	tgt := newTarget(t, "qu05a")
	require.NoError(t, tgt.Acquire("alice"))

	var calls atomic.Int32
	var sawForce atomic.Bool
	tgt.AddReleaseHook(func(ctx context.Context, got *Target, force bool) {
		calls.Add(1)
		sawForce.Store(force)
		assert.Same(t, tgt, got)
		_, err := got.Lock(ctx, "alice")
		assert.ErrorIs(t, err, capture.ErrLocked, "hooks run with the operation lock held")
	})

	require.NoError(t, tgt.Release(ctx, "alice", false))
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, sawForce.Load())
}

func TestRelease_ForcedWaitsPastLockTimeout(t *testing.T) {
	ctx := context.Background()
	tgt := newTarget(t, "qu05a")
	require.NoError(t, tgt.Acquire("alice"))

	var calls atomic.Int32
	tgt.AddReleaseHook(func(context.Context, *Target, bool) { calls.Add(1) })

	unlock, err := tgt.Lock(ctx, "alice")
	require.NoError(t, err)
	go func() {
		time.Sleep(3 * tgt.lockTimeout)
		unlock()
	}()

	start := time.Now()
	require.NoError(t, tgt.Release(ctx, "admin", true))
	assert.GreaterOrEqual(t, time.Since(start), 2*tgt.lockTimeout)
	assert.Equal(t, int32(1), calls.Load())
	owner, _ := tgt.Owner()
	assert.Empty(t, owner)
}

func TestRelease_UnforcedStillTimesOut(t *testing.T) {
	ctx := context.Background()
	tgt := newTarget(t, "qu05a")
	require.NoError(t, tgt.Acquire("alice"))

	unlock, err := tgt.Lock(ctx, "alice")
	require.NoError(t, err)
	defer unlock()

	assert.ErrorIs(t, tgt.Release(ctx, "alice", false), capture.ErrLocked)
	owner, _ := tgt.Owner()
	assert.Equal(t, "alice", owner)
}

func TestRelease_KeepsNewOwnerAfterWaiting(t *testing.T) {
	for _, force := range []bool{true, false} {
		ctx := context.Background()
		tgt := newTarget(t, "qu05a")
		tgt.lockTimeout = 2 * time.Second
		require.NoError(t, tgt.Acquire("alice"))

		var calls atomic.Int32
		tgt.AddReleaseHook(func(context.Context, *Target, bool) { calls.Add(1) })

		unlock, err := tgt.Lock(ctx, "alice")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- tgt.Release(ctx, "alice", force) }()
		time.Sleep(50 * time.Millisecond)

		// alice's session ends and bob takes the target while the release waits.
		tgt.mu.Lock()
		tgt.owner = "bob"
		tgt.mu.Unlock()
		unlock()

		err = <-done
		if force {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, capture.ErrNotOwned)
		}
		owner, _ := tgt.Owner()
		assert.Equal(t, "bob", owner, "force=%v", force)
		assert.Zero(t, calls.Load(), "force=%v", force)
	}
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	a, b := newTarget(t, "qu05b"), newTarget(t, "qu05a")
	m, err := NewManager(a, b)
	require.NoError(t, err)

	_, err = NewManager(a, a)
	assert.Error(t, err)

	got, err := m.Get("qu05a")
	require.NoError(t, err)
	assert.Same(t, b, got)
	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownTarget)

	require.NoError(t, a.Acquire("alice"))
	var released atomic.Int32
	a.AddReleaseHook(func(context.Context, *Target, bool) { released.Add(1) })
	b.AddReleaseHook(func(context.Context, *Target, bool) { released.Add(1) })

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "qu05a", list[0].ID)
	assert.Empty(t, list[0].Owner)
	assert.Equal(t, "alice", list[1].Owner)
	assert.NotNil(t, list[1].AcquiredAt)

	require.NoError(t, m.ReleaseAll(ctx))
	assert.Equal(t, int32(1), released.Load(), "only owned targets are released")
	owner, _ := a.Owner()
	assert.Empty(t, owner)
}
