// Package metrics provides Prometheus collectors for conversion
// throughput and latency. Collectors register on the default registry at
// package load; the CLI exposes them through an optional promhttp
// listener.
//
// # Basic Usage
//
//	metrics.RowsRead.WithLabelValues("cycles").Add(float64(stats.Rows))
//	metrics.RowsSkipped.WithLabelValues("cycles", metrics.ReasonInvalid).Add(float64(stats.Skipped))
//
//	timer := metrics.NewTimer("parse")
//	parse(rows)
//	metrics.ObserveStage("parse", "cycles", timer.Stop())
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons for the RowsSkipped counter.
const (
	// ReasonInvalid marks rows dropped by validation: wrong field count,
	// empty fields, unparseable keyed values.
	ReasonInvalid = "invalid"
	// ReasonFiltered marks rows dropped by a cycle-mode or state filter.
	ReasonFiltered = "filtered"
)

var (
	// RowsRead counts raw rows read from inputs, header excluded.
	// Labels: data_type (cycles/sensors/geospatial)
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caar_rows_read_total",
			Help: "Total raw rows read from inputs",
		},
		[]string{"data_type"},
	)

	// RowsSkipped counts rows dropped before the record set.
	// Labels: data_type, reason (invalid/filtered)
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caar_rows_skipped_total",
			Help: "Total rows dropped during validation or filtering",
		},
		[]string{"data_type", "reason"},
	)

	// RecordsWritten counts records persisted to cache artifacts.
	// Labels: data_type, codec (json/avro)
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caar_records_written_total",
			Help: "Total records written to cache artifacts",
		},
		[]string{"data_type", "codec"},
	)

	// BytesWritten counts bytes written to cache artifacts.
	// Labels: data_type
	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caar_cache_bytes_written_total",
			Help: "Total bytes written to cache artifacts",
		},
		[]string{"data_type"},
	)

	// StageDuration tracks per-stage pipeline latency.
	// Labels: stage (fetch/sniff/detect/parse/records/cache), data_type
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "caar_stage_duration_seconds",
			Help: "Pipeline stage duration in seconds",
			Buckets: []float64{
				.001, // header sniffs on small files
				.005,
				.01,
				.05,
				.1,
				.5,
				1, // full-season parses
				5,
				30,
				120, // remote fetches of large inputs
			},
		},
		[]string{"stage", "data_type"},
	)

	// JobsActive gauges conversion jobs currently running.
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caar_jobs_active",
			Help: "Number of conversion jobs currently running",
		},
	)

	// JobsTotal counts finished conversion jobs.
	// Labels: status (success/error)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caar_jobs_total",
			Help: "Total conversion jobs finished",
		},
		[]string{"status"},
	)

	// RowThroughput gauges rows converted per second.
	// Labels: data_type
	RowThroughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "caar_rows_per_second",
			Help: "Current conversion throughput in rows per second",
		},
		[]string{"data_type"},
	)

	// ProcessRSS gauges the resident set size of the process.
	ProcessRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caar_process_rss_bytes",
			Help: "Resident set size in bytes",
		},
	)

	// ProcessCPU gauges the process CPU utilization percentage.
	ProcessCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caar_process_cpu_percent",
			Help: "Process CPU utilization percent",
		},
	)
)

// ObserveStage records one pipeline stage duration.
func ObserveStage(stage, dataType string, d time.Duration) {
	StageDuration.WithLabelValues(stage, dataType).Observe(d.Seconds())
}

// Timer measures one operation from creation to Stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a timer and starts timing immediately. The name is
// for identification in logs.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. Stopping more than
// once returns the total elapsed time each call.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over reporting windows and
// publishes the rate to the RowThroughput gauge. Safe for concurrent
// use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	dataType  string
}

// NewThroughputTracker creates a tracker labeled with the data type it
// measures.
func NewThroughputTracker(dataType string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		dataType:  dataType,
	}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current rows/second, publishes it, resets
// the window and returns the rate.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	RowThroughput.WithLabelValues(t.dataType).Set(throughput)
	return throughput
}
