// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/procgroup"
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	// Name is a display template for logs and errors.
	Name        string
	Command     string
	MediaType   string
	PreCommands []string
	Extension   string
	// WaitToKill is the grace period between SIGTERM and SIGKILL; it gives
	// encoders time to finalise their container. Defaults to one second.
	WaitToKill time.Duration
}

// Stream runs a background process between Start and StopAndGet.
type Stream struct {
	cfg  StreamConfig
	spec Spec
	term *procgroup.Terminator
	now  clock
}

// NewStream validates cfg and builds a Stream.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidConfig)
	}
	if cfg.WaitToKill < 0 {
		return nil, fmt.Errorf("%w: negative wait_to_kill %s", ErrInvalidConfig, cfg.WaitToKill)
	}
	spec, err := newSpec(ModeStream, cfg.MediaType, cfg.Command)
	if err != nil {
		return nil, err
	}
	for _, tmpl := range append([]string{cfg.Name, cfg.Command}, cfg.PreCommands...) {
		if _, err := TemplateKeys(tmpl); err != nil {
			return nil, err
		}
	}
	if cfg.WaitToKill == 0 {
		cfg.WaitToKill = procgroup.DefaultGrace
	}
	cfg.PreCommands = append([]string(nil), cfg.PreCommands...)
	return &Stream{
		cfg:  cfg,
		spec: spec,
		term: procgroup.NewTerminator(cfg.WaitToKill),
		now:  time.Now,
	}, nil
}

func (s *Stream) Spec() Spec { return s.spec }

func (s *Stream) Templates() []string {
	return append([]string{s.cfg.Name, s.cfg.Command}, s.cfg.PreCommands...)
}

// Start launches the capture process. The output path is persisted before
// launching; on failure it is cleared again and nothing is left running.
func (s *Stream) Start(ctx context.Context, t Target, name, userPath string) error {
	ctx = context.WithoutCancel(ctx)
	logger := log.WithComponentFromContext(ctx, "capture").With().
		Str(log.FieldTarget, t.ID()).Str(log.FieldCapturer, name).Logger()
	pidfile := PidFile(t, name)

	// A pid file left by a session nobody stopped must not leak its process.
	outcome, err := s.term.Terminate(ctx, pidfile)
	if err != nil {
		return fmt.Errorf("%s: reap previous session: %w", name, err)
	}
	if outcome != procgroup.OutcomeNotRunning {
		logger.Warn().Str("outcome", string(outcome)).Msg("terminated leftover stream process")
	}

	file := OutputPath(userPath, t.ID(), name, s.now(), s.cfg.Extension)
	props := t.Properties()
	if err := props.Set(ctx, OutputKey(name), file); err != nil {
		return fmt.Errorf("%s: persist output path: %w", name, err)
	}

	launched := false
	defer func() {
		if launched {
			return
		}
		if err := props.Delete(ctx, OutputKey(name)); err != nil {
			logger.Error().Err(err).Msg("failed to clear output path after failed start")
		}
	}()

	kws, err := Keywords(ctx, t, file)
	if err != nil {
		return err
	}
	display := displayName(s.cfg.Name, name, kws)

	if err := runPreCommands(ctx, display, ErrLaunchFailed, s.cfg.PreCommands, kws); err != nil {
		return err
	}
	argv, err := expandArgv(s.cfg.Command, kws)
	if err != nil {
		return &CommandError{Kind: ErrLaunchFailed, Capturer: display, ExitCode: -1, Err: err}
	}
	if err := s.spawn(ctx, t, name, display, argv, pidfile); err != nil {
		return err
	}
	launched = true
	return nil
}

func (s *Stream) spawn(ctx context.Context, t Target, name, display string, argv []string, pidfile string) error {
	logger := log.WithComponentFromContext(ctx, "capture").With().
		Str(log.FieldTarget, t.ID()).Str(log.FieldCapturer, name).Logger()
	fail := func(err error) error {
		return &CommandError{Kind: ErrLaunchFailed, Capturer: display, Args: argv, ExitCode: -1, Err: err}
	}

	logf, err := os.OpenFile(LogFile(t, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fail(err)
	}
	var closeOnce sync.Once
	closeLog := func() { closeOnce.Do(func() { _ = logf.Close() }) }

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from daemon configuration
	cmd.Dir = os.TempDir()
	cmd.Stdout = logf
	cmd.Stderr = logf

	logger.Info().
		Str(log.FieldEvent, "capture.spawn").
		Str(log.FieldCommand, strings.Join(argv, " ")).
		Msg("starting stream capture")

	pid, err := procgroup.Spawn(cmd, pidfile, func(waitErr error) {
		closeLog()
		logger.Debug().Err(waitErr).Str(log.FieldEvent, "capture.exit").Msg("stream process exited")
	})
	if err != nil {
		closeLog()
		logger.Error().Err(err).Str(log.FieldCommand, strings.Join(argv, " ")).Msg("failed to start stream capture")
		return fail(err)
	}
	logger.Info().Int(log.FieldPID, pid).Str(log.FieldPidFile, pidfile).Msg("stream capture running")
	return nil
}

// StopAndGet terminates the process recorded for name and returns its
// output file. A process that already exited is not an error.
func (s *Stream) StopAndGet(ctx context.Context, t Target, name, _ string) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	logger := log.WithComponentFromContext(ctx, "capture").With().
		Str(log.FieldTarget, t.ID()).Str(log.FieldCapturer, name).Logger()
	props := t.Properties()

	file, ok, err := props.Get(ctx, OutputKey(name))
	if err != nil {
		return Result{}, fmt.Errorf("%s: read output path: %w", name, err)
	}
	display := name
	if kws, err := Keywords(ctx, t, file); err == nil {
		display = displayName(s.cfg.Name, name, kws)
	}
	if err := props.Delete(ctx, OutputKey(name)); err != nil {
		return Result{}, fmt.Errorf("%s: clear output path: %w", display, err)
	}

	outcome, err := s.term.Terminate(ctx, PidFile(t, name))
	if err != nil {
		return Result{}, fmt.Errorf("%s: terminate: %w", display, err)
	}
	logger.Info().Str(log.FieldEvent, "capture.stop").Str("outcome", string(outcome)).Msg("stream capture stopped")

	if !ok || file == "" {
		return Result{}, &CommandError{Kind: ErrCaptureFailed, Capturer: display, ExitCode: -1, Err: errors.New("no output recorded")}
	}
	if _, err := os.Stat(file); err != nil {
		return Result{}, &CommandError{
			Kind:     ErrCaptureFailed,
			Capturer: display,
			ExitCode: -1,
			Output:   fileTail(LogFile(t, name), outputTailLines),
			Err:      fmt.Errorf("output file: %w", err),
		}
	}
	return Result{StreamFile: file}, nil
}
