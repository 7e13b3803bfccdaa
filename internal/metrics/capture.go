// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the capture daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// captureOpsTotal counts registry operations by outcome.
	captureOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capd_capture_operations_total",
		Help: "Capture operations by operation, capturer mode and result",
	}, []string{"op", "mode", "result"}) // op=start|stop_and_get|release; result=ok|<error kind>

	captureOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capd_capture_operation_duration_seconds",
		Help:    "Duration of capture operations, including external commands",
		Buckets: prometheus.ExponentialBuckets(0.005, 2.0, 14), // 5ms to ~40s
	}, []string{"op", "mode"})

	captureRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capd_capture_forced_restarts_total",
		Help: "Stream starts that found a previous session still marked started",
	})

	commandExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capd_command_exit_total",
		Help: "External capture commands by kind and result",
	}, []string{"kind", "result"}) // kind=pre|snapshot|stream; result=ok|nonzero|spawn_error
)

// ObserveCaptureOp records one registry operation.
func ObserveCaptureOp(op, mode, result string, d time.Duration) {
	captureOpsTotal.WithLabelValues(op, mode, result).Inc()
	captureOpDuration.WithLabelValues(op, mode).Observe(d.Seconds())
}

// IncForcedRestart records a start that had to reap a stale session first.
func IncForcedRestart() {
	captureRestartsTotal.Inc()
}

// IncCommandExit records the result of an external command.
func IncCommandExit(kind, result string) {
	commandExitTotal.WithLabelValues(kind, result).Inc()
}
