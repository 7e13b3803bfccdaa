// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the capd configuration.
//
// Precedence is ENV > file > defaults. The YAML file is decoded strictly:
// unknown keys and multiple documents are rejected. Capturer declarations are
// checked here for well-formed names, modes, media types and aliases; the
// daemon then builds them and verifies their command templates against each
// target's keywords.
package config
