// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package procgroup

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeFileAtomic uses renameio: temp file, fsync, rename. A reader in
// another invocation never observes a half-written pid.
func writeFileAtomic(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
