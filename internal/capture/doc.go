// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capture dispatches capture requests against a target to its
// configured capturers.
//
// A capturer is either a snapshot capturer, which runs its external command
// synchronously on StopAndGet, or a stream capturer, which launches a
// long-running process on Start and reaps it on StopAndGet. The Registry maps
// names (and single-hop aliases) to capturers, gates mutations behind the
// target's exclusive lock and keeps the per-capturer started flag in the
// target's property store. Nothing about a running stream is kept in memory:
// the output path lives in the property store and the pid in a pid file under
// the target state directory, so Start and StopAndGet may be served by
// different processes.
package capture
