// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ReadPidFile returns the pid stored in path.
func ReadPidFile(path string) (int, error) {
	// #nosec G304 -- pid files live in the daemon-owned state directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNoPidFile
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadPidFile, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// RemovePidFile deletes path; a missing file is not an error.
func RemovePidFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// WritePidFile persists pid to path, replacing any previous record atomically.
func WritePidFile(path string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", ErrBadPidFile, pid)
	}
	return writeFileAtomic(path, []byte(strconv.Itoa(pid)+"\n"))
}
