// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCapturer  = errors.New("unknown capturer")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNotCapturing     = errors.New("not capturing")
	ErrNotOwned         = errors.New("target not owned by caller")
	ErrLocked           = errors.New("target locked")
	ErrLaunchFailed     = errors.New("launch failed")
	ErrCaptureFailed    = errors.New("capture failed")
	ErrInvalidConfig    = errors.New("invalid capturer configuration")
)

// CommandError carries the diagnostics of a failed external command. Kind is
// ErrLaunchFailed or ErrCaptureFailed; errors.Is matches both Kind and Err.
type CommandError struct {
	Kind     error
	Capturer string
	Args     []string
	ExitCode int // -1 when the command never ran to completion
	Output   []string
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Capturer, e.Kind)
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, ": %q", strings.Join(e.Args, " "))
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if e.Err != nil && e.ExitCode < 0 {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CommandError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
