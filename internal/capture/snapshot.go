// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/capd/internal/log"
)

// SnapshotConfig configures a Snapshot.
type SnapshotConfig struct {
	// Name is a display template for logs and errors, e.g. "${id} VNC".
	Name        string
	Command     string
	MediaType   string
	PreCommands []string
	// Extension is appended to the output file name, e.g. ".png".
	Extension string
	// Inline returns the produced JSON samples as data instead of a file.
	Inline bool
}

// Snapshot runs its command synchronously inside StopAndGet.
type Snapshot struct {
	cfg  SnapshotConfig
	spec Spec
	now  clock
}

// NewSnapshot validates cfg and builds a Snapshot.
func NewSnapshot(cfg SnapshotConfig) (*Snapshot, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidConfig)
	}
	spec, err := newSpec(ModeSnapshot, cfg.MediaType, cfg.Command)
	if err != nil {
		return nil, err
	}
	if cfg.Inline && spec.PrimaryMediaType() != "application/json" {
		return nil, fmt.Errorf("%w: inline capturers must produce application/json, not %q", ErrInvalidConfig, cfg.MediaType)
	}
	for _, tmpl := range append([]string{cfg.Name, cfg.Command}, cfg.PreCommands...) {
		if _, err := TemplateKeys(tmpl); err != nil {
			return nil, err
		}
	}
	cfg.PreCommands = append([]string(nil), cfg.PreCommands...)
	return &Snapshot{cfg: cfg, spec: spec, now: time.Now}, nil
}

func (s *Snapshot) Spec() Spec { return s.spec }

func (s *Snapshot) Templates() []string {
	return append([]string{s.cfg.Name, s.cfg.Command}, s.cfg.PreCommands...)
}

// Start does nothing; snapshots are taken in StopAndGet.
func (s *Snapshot) Start(context.Context, Target, string, string) error { return nil }

// StopAndGet takes the snapshot. The run is detached from ctx cancellation.
func (s *Snapshot) StopAndGet(ctx context.Context, t Target, name, userPath string) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	file := OutputPath(userPath, t.ID(), name, s.now(), s.cfg.Extension)

	kws, err := Keywords(ctx, t, file)
	if err != nil {
		return Result{}, err
	}
	display := displayName(s.cfg.Name, name, kws)

	if err := runPreCommands(ctx, display, ErrCaptureFailed, s.cfg.PreCommands, kws); err != nil {
		return Result{}, err
	}
	argv, err := expandArgv(s.cfg.Command, kws)
	if err != nil {
		return Result{}, &CommandError{Kind: ErrCaptureFailed, Capturer: display, ExitCode: -1, Err: err}
	}
	if err := runCommand(ctx, kindSnapshot, display, ErrCaptureFailed, argv); err != nil {
		return Result{}, err
	}

	if !s.cfg.Inline {
		return Result{StreamFile: file}, nil
	}
	return s.inline(ctx, display, file)
}

func (s *Snapshot) inline(ctx context.Context, display, file string) (Result, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Result{}, &CommandError{Kind: ErrCaptureFailed, Capturer: display, ExitCode: -1, Err: err}
	}
	samples, err := ParseSamples(data)
	if err != nil {
		return Result{}, &CommandError{Kind: ErrCaptureFailed, Capturer: display, ExitCode: -1, Err: fmt.Errorf("decode samples: %w", err)}
	}
	if err := os.Remove(file); err != nil {
		logger := log.WithComponentFromContext(ctx, "capture")
		logger.Warn().Err(err).Str(log.FieldOutputFile, file).Msg("failed to remove inline capture file")
	}
	return Result{Data: map[string]any{"samples": samples}}, nil
}
