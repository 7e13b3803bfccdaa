// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/metrics"
)

const outputTailLines = 20

// Command kinds, used as metric labels.
const (
	kindPre      = "pre"
	kindSnapshot = "snapshot"
	kindStream   = "stream"
)

// shell runs pre-commands; they are written by whoever configures the
// daemon, never by clients.
var shell = "/bin/sh"

// runCommand runs argv to completion with cwd os.TempDir(). stdout and
// stderr go to a line ring whose tail ends up in the returned CommandError.
// ctx is only used for logging: capture commands are not cancellable.
func runCommand(ctx context.Context, kind, capturer string, failKind error, argv []string) error {
	logger := log.WithComponentFromContext(ctx, "capture")
	ring := NewLineRing(defaultRingLines)

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from daemon configuration
	cmd.Dir = os.TempDir()
	cmd.Stdout = ring
	cmd.Stderr = ring

	logger.Info().
		Str(log.FieldEvent, "capture.exec").
		Str(log.FieldCapturer, capturer).
		Str(log.FieldCommand, strings.Join(argv, " ")).
		Str("kind", kind).
		Msg("running capture command")

	err := cmd.Run()
	if err == nil {
		metrics.IncCommandExit(kind, "ok")
		return nil
	}

	cerr := &CommandError{
		Kind:     failKind,
		Capturer: capturer,
		Args:     argv,
		ExitCode: -1,
		Output:   tail(ring.Lines(), outputTailLines),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr.ExitCode = exitErr.ExitCode()
		metrics.IncCommandExit(kind, "nonzero")
	} else {
		metrics.IncCommandExit(kind, "spawn_error")
	}
	logger.Error().
		Err(err).
		Str(log.FieldEvent, "capture.exec_failed").
		Str(log.FieldCapturer, capturer).
		Str(log.FieldCommand, strings.Join(argv, " ")).
		Int(log.FieldExitCode, cerr.ExitCode).
		Strs("output", cerr.Output).
		Msg("capture command failed")
	return cerr
}

// runPreCommands expands and runs each pre-command through the shell.
func runPreCommands(ctx context.Context, capturer string, failKind error, cmds []string, kws map[string]string) error {
	for _, tmpl := range cmds {
		line, err := ExpandTemplate(tmpl, kws)
		if err != nil {
			return &CommandError{Kind: failKind, Capturer: capturer, ExitCode: -1, Err: err}
		}
		if err := runCommand(ctx, kindPre, capturer, failKind, []string{shell, "-c", line}); err != nil {
			return err
		}
	}
	return nil
}

// fileTail returns up to n trailing lines of the file at path.
func fileTail(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()
	ring := NewLineRing(n)
	if _, err := io.Copy(ring, f); err != nil {
		return nil
	}
	return ring.Lines()
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
