// Package metrics provides Prometheus metrics for STDF ingestion
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record stream metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdf_ingest_records_total",
			Help: "Total number of STDF records consumed, by record kind",
		},
		[]string{"kind"},
	)

	WarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdf_ingest_warnings_total",
			Help: "Recoverable ingestion conditions, by error kind",
		},
		[]string{"kind"},
	)

	// Materialized entity metrics
	EntitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdf_ingest_entities_created_total",
			Help: "Dies, bins and test items appended to the store",
		},
		[]string{"entity"},
	)

	// Load metrics
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdf_loads_total",
			Help: "Total number of file loads, by outcome",
		},
		[]string{"status"},
	)

	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stdf_load_duration_seconds",
			Help:    "Time taken to load one STDF file",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"status"},
	)

	LoadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stdf_load_bytes_total",
			Help: "Total decompressed STDF bytes read",
		},
	)
)

// IngestMetrics records the metrics of one ingest run
type IngestMetrics struct{}

func NewIngestMetrics() *IngestMetrics {
	return &IngestMetrics{}
}

func (m *IngestMetrics) RecordRecord(kind string) {
	RecordsTotal.WithLabelValues(kind).Inc()
}

func (m *IngestMetrics) RecordWarning(kind string) {
	WarningsTotal.WithLabelValues(kind).Inc()
}

func (m *IngestMetrics) RecordCreated(entity string, n int64) {
	EntitiesCreated.WithLabelValues(entity).Add(float64(n))
}

// RecordLoad records the outcome of a whole file load
func (m *IngestMetrics) RecordLoad(status string, bytes int64, duration time.Duration) {
	LoadsTotal.WithLabelValues(status).Inc()
	LoadDuration.WithLabelValues(status).Observe(duration.Seconds())
	LoadBytes.Add(float64(bytes))
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
