// Package metrics exposes sweep counters in the Prometheus text format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sweeper"

// Recorder collects the metrics of the runs made by this process.
type Recorder struct {
	registry      *prometheus.Registry
	filesTotal    *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastRun       *prometheus.GaugeVec
	summaryBytes  prometheus.Gauge
	summaryFiles  prometheus.Gauge
}

// NewRecorder registers the sweeper metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	m := &Recorder{
		registry: reg,
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_disposed_total",
				Help:      "Files successfully disposed of",
			},
			[]string{"mode"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_disposed_total",
				Help:      "Bytes reclaimed by successful disposals",
			},
			[]string{"mode"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disposal_failures_total",
				Help:      "Files that could not be disposed of",
			},
			[]string{"mode"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of sweep runs",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"mode"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"mode"},
		),
		summaryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "summary_total_bytes",
				Help:      "Cumulative bytes reclaimed according to the summary record",
			},
		),
		summaryFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "summary_total_files",
				Help:      "Cumulative files reclaimed according to the summary record",
			},
		),
	}

	reg.MustRegister(
		m.filesTotal,
		m.bytesTotal,
		m.failuresTotal,
		m.runDuration,
		m.lastRun,
		m.summaryBytes,
		m.summaryFiles,
	)
	return m
}

// Run describes a finished run for RecordRun.
type Run struct {
	Mode     string
	Files    int
	Bytes    int64
	Failed   int
	Duration time.Duration
	Finished time.Time
}

// RecordRun adds a finished run to the per-mode counters and stamps the
// last-run gauge with r.Finished.
func (m *Recorder) RecordRun(r Run) {
	m.filesTotal.WithLabelValues(r.Mode).Add(float64(r.Files))
	m.bytesTotal.WithLabelValues(r.Mode).Add(float64(r.Bytes))
	m.failuresTotal.WithLabelValues(r.Mode).Add(float64(r.Failed))
	m.runDuration.WithLabelValues(r.Mode).Observe(r.Duration.Seconds())
	m.lastRun.WithLabelValues(r.Mode).Set(float64(r.Finished.Unix()))
}

// SetSummary sets the cumulative summary gauges to the stored totals.
func (m *Recorder) SetSummary(totalBytes, totalFiles int64) {
	m.summaryBytes.Set(float64(totalBytes))
	m.summaryFiles.Set(float64(totalFiles))
}

// Gatherer exposes the registry, e.g. for an HTTP handler.
func (m *Recorder) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the metrics for the node_exporter textfile collector.
// The file is replaced atomically.
func (m *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
