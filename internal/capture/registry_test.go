// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCapturer records calls without running anything.
type stubCapturer struct {
	spec   Spec
	starts int
	stops  int
}

func (s *stubCapturer) Spec() Spec          { return s.spec }
func (s *stubCapturer) Templates() []string { return []string{"probe ${id} ${output_file_name}"} }

func (s *stubCapturer) Start(context.Context, Target, string, string) error {
	s.starts++
	return nil
}

func (s *stubCapturer) StopAndGet(context.Context, Target, string, string) (Result, error) {
	s.stops++
	return Result{StreamFile: "/out"}, nil
}

func newStub(mode Mode) *stubCapturer {
	return &stubCapturer{spec: Spec{Mode: mode, MediaType: "image/png", Identity: string(mode)}}
}

func TestNewRegistry_Aliases(t *testing.T) {
	vnc := newStub(ModeSnapshot)
	r, err := NewRegistry(map[string]Entry{
		"vnc0":   {Impl: vnc},
		"screen": {Alias: "vnc0"},
	})
	require.NoError(t, err)

	a, err := r.Resolve("vnc0")
	require.NoError(t, err)
	b, err := r.Resolve("screen")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"screen", "vnc0"}, r.Names())

	states, err := r.List(context.Background(), newFakeTarget(t, "alice"))
	require.NoError(t, err)
	assert.Equal(t, map[string]State{"screen": StateNotApplicable, "vnc0": StateNotApplicable}, states)
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]Entry
	}{
		{"chained alias", map[string]Entry{
			"vnc0":   {Impl: newStub(ModeSnapshot)},
			"screen": {Alias: "vnc0"},
			"desk":   {Alias: "screen"},
		}},
		{"dangling alias", map[string]Entry{"screen": {Alias: "vnc9"}}},
		{"bad name", map[string]Entry{"vnc-0": {Impl: newStub(ModeSnapshot)}}},
		{"empty entry", map[string]Entry{"vnc0": {}}},
		{"both", map[string]Entry{
			"vnc0": {Impl: newStub(ModeSnapshot)},
			"x":    {Impl: newStub(ModeSnapshot), Alias: "vnc0"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entries)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRegistry_UnknownCapturer(t *testing.T) {
	r, err := NewRegistry(map[string]Entry{"vnc0": {Impl: newStub(ModeSnapshot)}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")

	assert.ErrorIs(t, r.Start(context.Background(), tgt, "nope", "alice", t.TempDir()), ErrUnknownCapturer)
	_, err = r.StopAndGet(context.Background(), tgt, "nope", "alice", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownCapturer)
	assert.Zero(t, tgt.locks, "unknown names are rejected before locking")
}

func TestRegistry_StartSnapshotIsInvalid(t *testing.T) {
	vnc := newStub(ModeSnapshot)
	r, err := NewRegistry(map[string]Entry{"vnc0": {Impl: vnc}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")

	err = r.Start(context.Background(), tgt, "vnc0", "alice", t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Zero(t, vnc.starts)
	assert.Empty(t, tgt.snapshotProps())
}

func TestRegistry_OwnershipGate(t *testing.T) {
	hdmi := newStub(ModeStream)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: hdmi}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")

	assert.ErrorIs(t, r.Start(context.Background(), tgt, "hdmi0", "mallory", ""), ErrNotOwned)
	_, err = r.StopAndGet(context.Background(), tgt, "hdmi0", "mallory", "")
	assert.ErrorIs(t, err, ErrNotOwned)
	assert.Zero(t, hdmi.starts)
	assert.Empty(t, tgt.snapshotProps())

	// Another transition in flight on the target.
	tgt.mu.Lock()
	assert.ErrorIs(t, r.Start(context.Background(), tgt, "hdmi0", "alice", ""), ErrLocked)
	tgt.mu.Unlock()
}

func TestRegistry_StopNotStartedHasNoSideEffects(t *testing.T) {
	hdmi := newStub(ModeStream)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: hdmi}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")
	require.NoError(t, tgt.props.Set(context.Background(), "unrelated", "1"))
	before := tgt.snapshotProps()

	_, err = r.StopAndGet(context.Background(), tgt, "hdmi0", "alice", "")
	assert.ErrorIs(t, err, ErrNotCapturing)
	assert.Zero(t, hdmi.stops)
	if diff := cmp.Diff(before, tgt.snapshotProps()); diff != "" {
		t.Errorf("properties changed (-before +after):\n%s", diff)
	}
}

func TestRegistry_RestartStopsPreviousSession(t *testing.T) {
	hdmi := newStub(ModeStream)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: hdmi}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", ""))
	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", ""))
	assert.Equal(t, 2, hdmi.starts)
	assert.Equal(t, 1, hdmi.stops)

	states, err := r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStarted, states["hdmi0"])
}

func TestRegistry_SnapshotNeverTouchesStartedFlag(t *testing.T) {
	vnc := newStub(ModeSnapshot)
	r, err := NewRegistry(map[string]Entry{"vnc0": {Impl: vnc}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")

	for range 3 {
		res, err := r.StopAndGet(context.Background(), tgt, "vnc0", "alice", "")
		require.NoError(t, err)
		assert.Equal(t, "/out", res.StreamFile)
	}
	assert.Equal(t, 3, vnc.stops)
	assert.Empty(t, tgt.snapshotProps())
}

func TestRegistry_ReleaseAll(t *testing.T) {
	a, b, snap := newStub(ModeStream), newStub(ModeStream), newStub(ModeSnapshot)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: a}, "audio0": {Impl: b}, "vnc0": {Impl: snap}})
	require.NoError(t, err)
	tgt := newFakeTarget(t, "alice")
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", ""))
	r.ReleaseAll(ctx, tgt, true)

	assert.Equal(t, 1, a.stops)
	assert.Zero(t, b.stops, "streams that were not started are left alone")
	assert.Zero(t, snap.stops)
	states, err := r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, states["hdmi0"])
}

func TestRegistry_CheckKeywordsAndInventory(t *testing.T) {
	snap, err := NewSnapshot(SnapshotConfig{
		Name:      "${id} VNC",
		Command:   "gvnccapture -q localhost:${vnc_port} ${output_file_name}",
		MediaType: "image/png",
		Extension: ".png",
	})
	require.NoError(t, err)
	r, err := NewRegistry(map[string]Entry{"vnc0": {Impl: snap}, "screen": {Alias: "vnc0"}})
	require.NoError(t, err)

	assert.NoError(t, r.CheckKeywords("qu05a", "qemu", map[string]string{"vnc_port": "5901"}))
	assert.ErrorIs(t, r.CheckKeywords("qu05a", "qemu", nil), ErrInvalidConfig)

	inv := r.Inventory()
	require.Len(t, inv, 2)
	assert.Equal(t, Descriptor{Name: "screen", Mode: ModeSnapshot, MediaType: "image/png", Identity: snap.Spec().Identity, AliasOf: "vnc0"}, inv[0])
	assert.Equal(t, "vnc0", inv[1].Name)
	assert.Empty(t, inv[1].AliasOf)
}
