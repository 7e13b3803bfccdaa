// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	TargetIDKey      = "capture.target"
	CapturerKey      = "capture.capturer"
	CaptureModeKey   = "capture.mode"
	CaptureWhoKey    = "capture.who"
	CaptureResultKey = "capture.result"

	ErrorTypeKey = "error.type"
)

// CaptureAttributes creates span attributes for a capture operation.
func CaptureAttributes(target, capturer, mode, who string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(TargetIDKey, target),
		attribute.String(CapturerKey, capturer),
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(CaptureModeKey, mode))
	}
	if who != "" {
		attrs = append(attrs, attribute.String(CaptureWhoKey, who))
	}
	return attrs
}

// ErrorAttribute tags a span with a coarse error classification.
func ErrorAttribute(kind string) attribute.KeyValue {
	return attribute.String(ErrorTypeKey, kind)
}
