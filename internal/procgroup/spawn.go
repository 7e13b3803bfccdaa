// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"fmt"
	"os/exec"
)

// Spawn starts cmd detached in its own process group and records its pid in
// pidfile. The child is reaped in the background so it never lingers as a
// zombie of the launching process; onExit, if set, receives the Wait result.
// If the pid cannot be persisted the child is killed, since nothing could
// stop it later.
func Spawn(cmd *exec.Cmd, pidfile string, onExit func(error)) (int, error) {
	Set(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	pid := cmd.Process.Pid

	go func() {
		err := cmd.Wait()
		if onExit != nil {
			onExit(err)
		}
	}()

	if err := WritePidFile(pidfile, pid); err != nil {
		_ = Signal(pid, SigKill)
		return 0, err
	}
	return pid, nil
}
