// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldTarget    = "target"
	FieldCapturer  = "capturer"
	FieldWho       = "who"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldPidFile   = "pidfile"
	FieldCommand   = "command"
	FieldExitCode  = "exit_code"
	FieldSignal    = "signal"

	// Capture fields
	FieldMode       = "mode"
	FieldMediaType  = "mimetype"
	FieldOutputFile = "output_file"

	// Path fields
	FieldPath = "path"
)
