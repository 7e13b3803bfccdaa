// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capd/internal/procgroup"
)

// recorderScript writes to $1 until SIGTERM, then appends a trailer and exits,
// the way an encoder finalises its container.
const recorderScript = `#!/bin/sh
trap 'echo trailer >> "$1"; exit 0' TERM
echo header > "$1"
while :; do sleep 0.05; done
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func newRecorder(t *testing.T) *Stream {
	t.Helper()
	s, err := NewStream(StreamConfig{
		Name:       "${id} HDMI",
		Command:    "/bin/sh " + writeScript(t, recorderScript) + " ${output_file_name}",
		MediaType:  "video/avi",
		Extension:  ".avi",
		WaitToKill: 2 * time.Second,
	})
	require.NoError(t, err)
	return s
}

func newScreenshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(SnapshotConfig{
		Name:        "${id} VNC",
		Command:     "/bin/sh " + writeScript(t, `echo "$2" > "$1"`) + " ${output_file_name} ${vnc_port}",
		MediaType:   "image/png",
		PreCommands: []string{"test -n '${vnc_port}'"},
		Extension:   ".png",
	})
	require.NoError(t, err)
	return s
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScenario_SnapshotAndStream(t *testing.T) {
	ctx := context.Background()
	tgt := newFakeTarget(t, "alice")
	userPath := t.TempDir()

	r, err := NewRegistry(map[string]Entry{
		"vnc0":  {Impl: newScreenshot(t)},
		"hdmi0": {Impl: newRecorder(t)},
	})
	require.NoError(t, err)
	require.NoError(t, r.CheckKeywords(tgt.ID(), tgt.Type(), tgt.Tags()))

	states, err := r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, map[string]State{"vnc0": StateNotApplicable, "hdmi0": StateStopped}, states)

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", userPath))
	states, err = r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStarted, states["hdmi0"])
	assert.FileExists(t, PidFile(tgt, "hdmi0"))

	snap, err := r.StopAndGet(ctx, tgt, "vnc0", "alice", userPath)
	require.NoError(t, err)
	assert.Equal(t, userPath, filepath.Dir(snap.StreamFile))
	assert.Regexp(t, `^qu05a-vnc0-\d{8}-\d{6}\.png$`, filepath.Base(snap.StreamFile))
	content, err := os.ReadFile(snap.StreamFile)
	require.NoError(t, err)
	assert.Equal(t, "5901\n", string(content))

	states, err = r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStarted, states["hdmi0"], "snapshots do not disturb streams")

	out, ok, err := tgt.props.Get(ctx, OutputKey("hdmi0"))
	require.NoError(t, err)
	require.True(t, ok)
	waitForFile(t, out)

	res, err := r.StopAndGet(ctx, tgt, "hdmi0", "alice", userPath)
	require.NoError(t, err)
	assert.Equal(t, out, res.StreamFile)
	assert.Regexp(t, `^qu05a-hdmi0-\d{8}-\d{6}\.avi$`, filepath.Base(res.StreamFile))
	video, err := os.ReadFile(res.StreamFile)
	require.NoError(t, err)
	assert.Equal(t, "header\ntrailer\n", string(video), "SIGTERM lets the recorder finalise its output")
	assert.NoFileExists(t, PidFile(tgt, "hdmi0"))

	states, err = r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, states["hdmi0"])
	assert.Empty(t, tgt.snapshotProps())

	_, err = r.StopAndGet(ctx, tgt, "hdmi0", "alice", userPath)
	assert.ErrorIs(t, err, ErrNotCapturing)
}

func TestStream_RestartLeavesNoStaleProcess(t *testing.T) {
	ctx := context.Background()
	tgt := newFakeTarget(t, "alice")
	userPath := t.TempDir()
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: newRecorder(t)}, "video": {Alias: "hdmi0"}})
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", userPath))
	first, err := procgroup.ReadPidFile(PidFile(tgt, "hdmi0"))
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", userPath))
	second, err := procgroup.ReadPidFile(PidFile(tgt, "hdmi0"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.ErrorIs(t, procgroup.Signal(first, procgroup.SigProbe), procgroup.ErrProcessGone)
	assert.NoError(t, procgroup.Signal(second, procgroup.SigProbe))

	r.ReleaseAll(ctx, tgt, true)
	assert.NoFileExists(t, PidFile(tgt, "hdmi0"))
	require.Eventually(t, func() bool {
		return errors.Is(procgroup.Signal(second, procgroup.SigProbe), procgroup.ErrProcessGone)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStream_FailedLaunchIsReattemptable(t *testing.T) {
	ctx := context.Background()
	tgt := newFakeTarget(t, "alice")

	broken, err := NewStream(StreamConfig{Command: "/nonexistent/recorder ${output_file_name}", MediaType: "video/avi"})
	require.NoError(t, err)
	failingPre, err := NewStream(StreamConfig{
		Command:     "/bin/sleep 10",
		MediaType:   "video/avi",
		PreCommands: []string{"echo v4l2 busy >&2; exit 4"},
	})
	require.NoError(t, err)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: broken}, "hdmi1": {Impl: failingPre}})
	require.NoError(t, err)

	err = r.Start(ctx, tgt, "hdmi0", "alice", t.TempDir())
	assert.ErrorIs(t, err, ErrLaunchFailed)

	err = r.Start(ctx, tgt, "hdmi1", "alice", t.TempDir())
	require.ErrorIs(t, err, ErrLaunchFailed)
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 4, cerr.ExitCode)
	assert.Equal(t, []string{"v4l2 busy"}, cerr.Output)

	assert.Empty(t, tgt.snapshotProps(), "failed starts leave no session state")
	assert.NoFileExists(t, PidFile(tgt, "hdmi1"))
	states, err := r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, states["hdmi0"])
}

func TestStream_ProcessThatDiedIsStillStopped(t *testing.T) {
	ctx := context.Background()
	tgt := newFakeTarget(t, "alice")
	userPath := t.TempDir()

	s, err := NewStream(StreamConfig{
		Command:   "/bin/sh " + writeScript(t, `echo done > "$1"`) + " ${output_file_name}",
		MediaType: "video/avi",
	})
	require.NoError(t, err)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: s}})
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", userPath))
	out, _, _ := tgt.props.Get(ctx, OutputKey("hdmi0"))
	waitForFile(t, out)

	res, err := r.StopAndGet(ctx, tgt, "hdmi0", "alice", userPath)
	require.NoError(t, err)
	assert.Equal(t, out, res.StreamFile)
}

func TestStream_MissingOutputReportsLogTail(t *testing.T) {
	ctx := context.Background()
	tgt := newFakeTarget(t, "alice")
	s, err := NewStream(StreamConfig{
		Name:      "${id} HDMI",
		Command:   "/bin/sh " + writeScript(t, "echo no signal on input >&2\nsleep 10\n"),
		MediaType: "video/avi",
	})
	require.NoError(t, err)
	r, err := NewRegistry(map[string]Entry{"hdmi0": {Impl: s}})
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx, tgt, "hdmi0", "alice", t.TempDir()))
	require.Eventually(t, func() bool {
		b, _ := os.ReadFile(LogFile(tgt, "hdmi0"))
		return len(b) > 0
	}, 5*time.Second, 10*time.Millisecond)

	_, err = r.StopAndGet(ctx, tgt, "hdmi0", "alice", "")
	require.ErrorIs(t, err, ErrCaptureFailed)
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"no signal on input"}, cerr.Output)
	assert.Equal(t, "qu05a HDMI", cerr.Capturer)

	states, err := r.List(ctx, tgt)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, states["hdmi0"])
}

func TestSnapshot_FailureCarriesDiagnostics(t *testing.T) {
	tgt := newFakeTarget(t, "alice")
	s, err := NewSnapshot(SnapshotConfig{
		Name:      "${id} VNC",
		Command:   "/bin/sh " + writeScript(t, "echo connection refused >&2\nexit 2\n") + " ${output_file_name}",
		MediaType: "image/png",
	})
	require.NoError(t, err)

	_, err = s.StopAndGet(context.Background(), tgt, "vnc0", t.TempDir())
	require.ErrorIs(t, err, ErrCaptureFailed)
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "qu05a VNC", cerr.Capturer)
	assert.Equal(t, 2, cerr.ExitCode)
	assert.Equal(t, []string{"connection refused"}, cerr.Output)
	assert.Equal(t, "/bin/sh", cerr.Args[0])
}

func TestSnapshot_Inline(t *testing.T) {
	tgt := newFakeTarget(t, "alice")
	body := `cat > "$1" <<'JSON'
[{"sequence":1,"timestamp":"20240309130507","power (watt)":2.5},
 {"sequence":2,"timestamp":"20240309130508","power (watt)":2.7}]
JSON
`
	s, err := NewSnapshot(SnapshotConfig{
		Command:   "/bin/sh " + writeScript(t, body) + " ${output_file_name}",
		MediaType: "application/json",
		Inline:    true,
	})
	require.NoError(t, err)

	userPath := t.TempDir()
	res, err := s.StopAndGet(context.Background(), tgt, "power0", userPath)
	require.NoError(t, err)
	assert.Empty(t, res.StreamFile)
	samples, ok := res.Data["samples"].([]Sample)
	require.True(t, ok)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(2), samples[1].Sequence)

	entries, err := os.ReadDir(userPath)
	require.NoError(t, err)
	assert.Empty(t, entries, "inline capture files are not left behind")
}
