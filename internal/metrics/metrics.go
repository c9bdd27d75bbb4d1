// Package metrics records per-run counters for the deploy client and writes
// them in the Prometheus text exposition format, suitable for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "deplopush"
	subsystem = "run"
)

var durationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Run holds the collectors for a single client run.
// A nil *Run is valid and records nothing.
type Run struct {
	registry *prometheus.Registry

	uploads    *prometheus.CounterVec
	attempts   prometheus.Counter
	retries    prometheus.Counter
	bytes      prometheus.Counter
	duration   prometheus.Histogram
	discovered prometheus.Gauge
	finished   prometheus.Gauge
	status     *prometheus.GaugeVec
}

// New creates a Run backed by its own registry
func New() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "uploads_total",
			Help:      "Archives processed, by terminal outcome",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upload_attempts_total",
			Help:      "Upload requests sent, including retries",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upload_retries_total",
			Help:      "Backoff sleeps taken before a retry",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "uploaded_bytes_total",
			Help:      "Archive bytes of successfully deployed files",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upload_attempt_duration_seconds",
			Help:      "Latency distribution of single upload attempts",
			Buckets:   durationBuckets,
		}),
		discovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archives_discovered",
			Help:      "Archives found by the directory scan",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the run finished",
		}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status",
			Help:      "Set to 1 for the status the run ended with",
		}, []string{"status"}),
	}

	r.registry.MustRegister(r.uploads, r.attempts, r.retries, r.bytes, r.duration, r.discovered, r.finished, r.status)
	return r
}

// ObserveAttempt records one upload request and its latency
func (r *Run) ObserveAttempt(d time.Duration) {
	if r == nil {
		return
	}
	r.attempts.Inc()
	r.duration.Observe(d.Seconds())
}

// ObserveRetry records a backoff sleep before another attempt
func (r *Run) ObserveRetry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

// ObserveResult records the terminal outcome of one archive
func (r *Run) ObserveResult(outcome string, size int64, success bool) {
	if r == nil {
		return
	}
	r.uploads.With(prometheus.Labels{"outcome": outcome}).Inc()
	if success && size > 0 {
		r.bytes.Add(float64(size))
	}
}

// ObserveDiscovered records how many archives the scan found
func (r *Run) ObserveDiscovered(n int) {
	if r == nil {
		return
	}
	r.discovered.Set(float64(n))
}

// ObserveFinished records the final run status and completion time
func (r *Run) ObserveFinished(status string, at time.Time) {
	if r == nil {
		return
	}
	r.status.With(prometheus.Labels{"status": status}).Set(1)
	r.finished.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics to path atomically
func (r *Run) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
