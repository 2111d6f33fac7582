// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the appender.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metric calls are always safe even when no real
//     backend is configured.
//
// The primary use case is instrumentation of the append/flush cycle (rows
// buffered, flushes performed, flush latency) without coupling the core to a
// specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. a
	// Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing
// backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordRows increments the appended-row counter for a table.
func RecordRows(table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("duckstage_rows_total", float64(delta), Labels{
		"table": table,
	})
}

// RecordFlush is a convenience for the common pattern: count a flush and
// record its latency, partitioned by outcome.
func RecordFlush(table string, rows int, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"table":  table,
		"status": status,
	}

	backend.IncCounter("duckstage_flushes_total", 1, lbls)
	backend.ObserveHistogram("duckstage_flush_duration_seconds", d.Seconds(), lbls)
	if err == nil {
		RecordRows(table, int64(rows))
	}
}
