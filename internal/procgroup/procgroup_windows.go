// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

// Sig is the platform signal type.
type Sig = syscall.Signal

const (
	SigProbe Sig = 0
	SigTerm  Sig = syscall.SIGTERM
	SigKill  Sig = syscall.SIGKILL
)

// set is a no-op on Windows for process groups in this context.
func set(cmd *exec.Cmd) {}

// signalGroup only supports killing on Windows: there is no graceful signal,
// so SIGTERM is a no-op and the escalation ends in SIGKILL after the grace.
func signalGroup(pid int, sig Sig) error {
	if pid <= 0 {
		return ErrProcessGone
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	switch sig {
	case SigKill:
		if err := proc.Kill(); err != nil {
			return ErrProcessGone
		}
	case SigProbe:
		_ = proc.Release()
	}
	return nil
}
