// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the appender labels (table, status) onto Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instead of
//     exposing an HTTP scrape endpoint; appender runs are batch-shaped, so a
//     scrape target would usually be gone before the scraper arrived.
//
// The package intentionally contains all Prometheus-specific dependencies so
// the rest of the module stays decoupled from Prometheus.
package prompush

import (
	"fmt"

	"duckstage/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	rowCounter    *prometheus.CounterVec // "duckstage_rows_total"
	flushCounter  *prometheus.CounterVec // "duckstage_flushes_total"
	flushDuration *prometheus.SummaryVec // "duckstage_flush_duration_seconds"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name; gatewayURL: base URL of the gateway.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "duckstage"
	}

	reg := prometheus.NewRegistry()

	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckstage_rows_total",
			Help: "Total number of rows flushed into the destination, partitioned by table.",
		},
		[]string{"table"},
	)
	flushCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckstage_flushes_total",
			Help: "Total number of buffer flushes, partitioned by table and status.",
		},
		[]string{"table", "status"},
	)
	flushDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "duckstage_flush_duration_seconds",
			Help:       "Duration of buffer flushes in seconds, partitioned by table and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"table", "status"},
	)

	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}
	if err := reg.Register(flushCounter); err != nil {
		return nil, fmt.Errorf("prompush: register flush counter: %w", err)
	}
	if err := reg.Register(flushDuration); err != nil {
		return nil, fmt.Errorf("prompush: register flush summary: %w", err)
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		rowCounter:    rowCounter,
		flushCounter:  flushCounter,
		flushDuration: flushDuration,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "duckstage_rows_total":
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["table"]).Add(delta)

	case "duckstage_flushes_total":
		if b.flushCounter == nil {
			return
		}
		b.flushCounter.WithLabelValues(labels["table"], labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "duckstage_flush_duration_seconds" || b.flushDuration == nil {
		return
	}
	b.flushDuration.WithLabelValues(labels["table"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
