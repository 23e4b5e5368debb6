// Package metrics exposes Prometheus instruments for work-log imports.
package metrics

import (
	"errors"
	"time"

	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for worklog_imports_total.
const (
	ResultOK           = "ok"
	ResultLookupFailed = "lookup_failed"
	ResultInsertFailed = "insert_failed"
	ResultBusy         = "busy"
	ResultSourceError  = "source_error"
)

var (
	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklog",
		Subsystem: "imports",
		Name:      "total",
		Help:      "Total number of imports broken down by mode and result.",
	}, []string{"mode", "result"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklog",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Rows processed by completed imports, by outcome (inserted, planned, or rejection reason).",
	}, []string{"outcome"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "worklog",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Duration of completed imports.",
		Buckets: []float64{
			0.01, 0.05, 0.1,
			0.25, 0.5, 1,
			2.5, 5, 10, 30, 60,
		},
	}, []string{"mode"})
)

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "import"
}

// ObserveImport records a completed import.
func ObserveImport(out *core.Outcome) {
	if out == nil {
		return
	}
	m := mode(out.DryRun)
	importsTotal.WithLabelValues(m, ResultOK).Inc()
	importDuration.WithLabelValues(m).Observe(out.Duration.Seconds())

	importRows.WithLabelValues("planned").Add(float64(out.PlannedInsert))
	importRows.WithLabelValues("inserted").Add(float64(out.Inserted))
	for _, r := range core.AllReasons() {
		if n := out.Count(r); n > 0 {
			importRows.WithLabelValues(r.Tag()).Add(float64(n))
		}
	}
}

// ObserveFailure records an import that produced no outcome.
func ObserveFailure(dryRun bool, err error, elapsed time.Duration) {
	m := mode(dryRun)
	importsTotal.WithLabelValues(m, FailureResult(err)).Inc()
	if elapsed > 0 {
		importDuration.WithLabelValues(m).Observe(elapsed.Seconds())
	}
}

// FailureResult classifies an import error into a result label.
func FailureResult(err error) string {
	switch {
	case errors.Is(err, core.ErrStoreLookup):
		return ResultLookupFailed
	case errors.Is(err, core.ErrBulkInsert):
		return ResultInsertFailed
	case errors.Is(err, core.ErrTooManyImports):
		return ResultBusy
	default:
		return ResultSourceError
	}
}
