// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/metrics"
)

const (
	DefaultGrace        = time.Second
	DefaultKillTimeout  = 5 * time.Second
	DefaultPollInterval = 20 * time.Millisecond
)

// Outcome describes how a Terminate call ended.
type Outcome string

const (
	OutcomeNotRunning Outcome = "not_running" // no pid record, or the process was already gone
	OutcomeExited     Outcome = "exited"      // exited within the grace period
	OutcomeKilled     Outcome = "killed"      // SIGKILL was needed
)

// Terminator stops processes recorded in pid files.
type Terminator struct {
	Grace        time.Duration
	KillTimeout  time.Duration
	PollInterval time.Duration

	// signal defaults to Signal; tests replace it.
	signal func(pid int, sig Sig) error
}

// NewTerminator returns a Terminator with the given grace period and the
// package defaults for everything else.
func NewTerminator(grace time.Duration) *Terminator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Terminator{
		Grace:        grace,
		KillTimeout:  DefaultKillTimeout,
		PollInterval: DefaultPollInterval,
		signal:       Signal,
	}
}

// Terminate stops the process group whose leader pid is stored in pidfile:
// SIGTERM, wait up to Grace for it to disappear, then SIGKILL once and wait
// up to KillTimeout. The pid file is removed on every path. A missing pid
// file or an already exited process is success. Cancelling ctx only cuts the
// grace period short.
func (t *Terminator) Terminate(ctx context.Context, pidfile string) (out Outcome, err error) {
	logger := log.WithComponentFromContext(ctx, "procgroup").With().Str(log.FieldPidFile, pidfile).Logger()
	defer func() {
		if rmErr := RemovePidFile(pidfile); rmErr != nil {
			logger.Warn().Err(rmErr).Msg("failed to clean up pid file")
		}
		metrics.IncProcOutcome(string(out), err)
	}()

	pid, err := ReadPidFile(pidfile)
	if err != nil {
		if errors.Is(err, ErrNoPidFile) || errors.Is(err, ErrBadPidFile) {
			logger.Debug().Err(err).Msg("no usable pid record, treating as stopped")
			return OutcomeNotRunning, nil
		}
		return OutcomeNotRunning, err
	}
	logger = logger.With().Int(log.FieldPID, pid).Logger()

	logger.Debug().Str(log.FieldEvent, "proc.sigterm").Msg("sending SIGTERM to process group")
	if err := t.send(pid, SigTerm); err != nil {
		if errors.Is(err, ErrProcessGone) {
			return OutcomeNotRunning, nil
		}
		return OutcomeNotRunning, fmt.Errorf("procgroup: SIGTERM pid %d: %w", pid, err)
	}

	if t.waitGone(ctx, pid, t.Grace) {
		return OutcomeExited, nil
	}

	logger.Warn().Str(log.FieldEvent, "proc.sigkill").Dur("grace", t.Grace).
		Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	if err := t.send(pid, SigKill); err != nil {
		if errors.Is(err, ErrProcessGone) {
			return OutcomeExited, nil
		}
		return OutcomeKilled, fmt.Errorf("procgroup: SIGKILL pid %d: %w", pid, err)
	}

	// The kill wait is not bound to ctx: once SIGKILL is out we want to know.
	if t.waitGone(context.Background(), pid, t.KillTimeout) {
		return OutcomeKilled, nil
	}
	logger.Error().Str(log.FieldEvent, "proc.kill_failed").Msg("process group survived SIGKILL")
	return OutcomeKilled, ErrKillFailed
}

func (t *Terminator) send(pid int, sig Sig) error {
	err := t.signalFunc()(pid, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(sigName(sig), "sent")
	case errors.Is(err, ErrProcessGone):
		metrics.IncProcTerminate(sigName(sig), "esrch")
	default:
		metrics.IncProcTerminate(sigName(sig), "error")
	}
	return err
}

// waitGone polls for the process to disappear; it reports true once it has.
func (t *Terminator) waitGone(ctx context.Context, pid int, d time.Duration) bool {
	poll := t.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(poll)
	defer tick.Stop()

	for {
		if errors.Is(t.signalFunc()(pid, SigProbe), ErrProcessGone) {
			return true
		}
		select {
		case <-deadline.C:
			return errors.Is(t.signalFunc()(pid, SigProbe), ErrProcessGone)
		case <-ctx.Done():
			return false
		case <-tick.C:
		}
	}
}

func (t *Terminator) signalFunc() func(int, Sig) error {
	if t.signal == nil {
		return Signal
	}
	return t.signal
}

func sigName(sig Sig) string {
	switch sig {
	case SigTerm:
		return "SIGTERM"
	case SigKill:
		return "SIGKILL"
	default:
		return sig.String()
	}
}
