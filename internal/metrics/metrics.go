// Package metrics exposes the prometheus metric families shared across
// the write queue, compactor, task GC and query executor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_tasks_total",
			Help: "Total number of write tasks by terminal status",
		},
		[]string{"tenant", "status"},
	)

	TaskQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flapjack_write_queue_depth",
			Help: "Pending write operations queued per tenant",
		},
		[]string{"tenant"},
	)

	DocumentsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_documents_indexed_total",
			Help: "Total documents committed to the segment store",
		},
		[]string{"tenant"},
	)

	DocumentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_documents_rejected_total",
			Help: "Total documents rejected during validation, by reason",
		},
		[]string{"tenant", "reason"},
	)

	OpLogSeq = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flapjack_oplog_seq",
			Help: "Current OpLog sequence number per tenant",
		},
		[]string{"tenant"},
	)

	OpLogTruncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_oplog_truncations_total",
			Help: "Total OpLog truncation passes per tenant",
		},
		[]string{"tenant"},
	)

	WriteCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flapjack_write_commit_duration_seconds",
			Help:    "Time to flush and commit a write batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flapjack_search_duration_seconds",
			Help:    "Time to execute a search query",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	FacetCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_facet_cache_hits_total",
			Help: "Facet cache hits",
		},
		[]string{"tenant"},
	)

	FacetCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_facet_cache_misses_total",
			Help: "Facet cache misses",
		},
		[]string{"tenant"},
	)

	FacetCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_facet_cache_evictions_total",
			Help: "Facet cache oldest-wins evictions",
		},
	)

	CompactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flapjack_compaction_duration_seconds",
			Help:    "Time taken per segment-store compaction cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	CompactionCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_compaction_cycles_total",
			Help: "Total number of compaction cycles run",
		},
	)

	TaskEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_task_evictions_total",
			Help: "Total tasks evicted from the per-tenant task table",
		},
		[]string{"tenant"},
	)

	MemoryWatermarkPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flapjack_memory_watermark_percent",
			Help: "Process memory usage as a percentage of the configured budget",
		},
	)

	AnalyticsEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_analytics_events_dropped_total",
			Help: "Analytics events dropped because the collector's channel was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		TaskQueueDepth,
		DocumentsIndexed,
		DocumentsRejected,
		OpLogSeq,
		OpLogTruncations,
		WriteCommitDuration,
		SearchDuration,
		FacetCacheHits,
		FacetCacheMisses,
		FacetCacheEvictions,
		CompactionDuration,
		CompactionCyclesTotal,
		TaskEvictionsTotal,
		MemoryWatermarkPercent,
		AnalyticsEventsDropped,
	)
}

// Handler returns the prometheus HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation for later observation into a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(h prometheus.ObserverVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration { return time.Since(t.start) }
