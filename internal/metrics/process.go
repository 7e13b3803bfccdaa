// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capd_proc_terminate_signals_total",
		Help: "Signals sent while terminating supervised processes",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capd_proc_terminate_total",
		Help: "Terminations of supervised processes by outcome",
	}, []string{"outcome", "error"})
)

// IncProcTerminate records a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcOutcome records how a termination ended.
func IncProcOutcome(outcome string, err error) {
	failed := "false"
	if err != nil {
		failed = "true"
	}
	procOutcomeTotal.WithLabelValues(outcome, failed).Inc()
}
