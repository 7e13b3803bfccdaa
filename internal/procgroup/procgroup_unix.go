// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
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

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalGroup(pid int, sig Sig) error {
	if pid <= 0 {
		return ErrProcessGone
	}
	var err error
	if sig == SigProbe {
		// Only the leader: an orphaned grandchild waiting to be reaped by
		// init must not keep the group "alive".
		err = syscall.Kill(pid, sig)
	} else {
		// Negative pid targets the group; pgid == pid because of Setpgid.
		err = syscall.Kill(-pid, sig)
		if errors.Is(err, syscall.ESRCH) {
			err = syscall.Kill(pid, sig)
		}
	}
	if errors.Is(err, syscall.ESRCH) {
		return ErrProcessGone
	}
	return err
}
