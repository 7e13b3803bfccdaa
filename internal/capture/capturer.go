// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"time"
)

// Capturer is implemented by Snapshot and Stream. name is the name the
// capturer was invoked under, which keys its properties and files.
type Capturer interface {
	Spec() Spec
	Start(ctx context.Context, t Target, name, userPath string) error
	StopAndGet(ctx context.Context, t Target, name, userPath string) (Result, error)
	// Templates lists every template string, for configuration checks.
	Templates() []string
}

// displayName expands the capturer's display template, falling back to the
// invoked name when the template is empty or cannot be resolved.
func displayName(tmpl, name string, kws map[string]string) string {
	if tmpl == "" {
		return name
	}
	s, err := ExpandTemplate(tmpl, kws)
	if err != nil {
		return name
	}
	return s
}

type clock func() time.Time
