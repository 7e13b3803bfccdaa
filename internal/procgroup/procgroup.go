// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup supervises external child processes that must survive
// the request that started them: they are launched into their own process
// group, their pid is persisted to a pid file, and they are terminated later,
// possibly by a different invocation, with a SIGTERM -> grace -> SIGKILL
// escalation.
package procgroup

import (
	"errors"
	"os/exec"
)

var (
	// ErrProcessGone reports that the process (group) no longer exists. It is
	// the expected outcome when a supervised process exited on its own and is
	// never surfaced as a termination failure.
	ErrProcessGone = errors.New("process not found")
	ErrKillFailed  = errors.New("kill operation failed")

	ErrNoPidFile  = errors.New("pid file not found")
	ErrBadPidFile = errors.New("pid file malformed")
)

// Set configures the command to start in a new process group.
// Mandatory for Terminate to reach the whole process tree.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Signal sends sig to the process group led by pid, falling back to the pid
// itself when it is not a group leader. A missing process maps to
// ErrProcessGone. Signal 0 probes the leader's existence.
func Signal(pid int, sig Sig) error {
	return signalGroup(pid, sig)
}
