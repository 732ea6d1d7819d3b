// Package metrics defines the Prometheus metric collectors used by the
// indexing core and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the indexing core.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	DumpsTotal           *prometheus.CounterVec
	DumpDuration         prometheus.Histogram
	MergesTotal          *prometheus.CounterVec
	MergeDuration        prometheus.Histogram
	EntriesWrittenTotal  *prometheus.CounterVec
	PostingsBytesWritten *prometheus.CounterVec
	PostingsReadErrors   prometheus.Counter
	PageCacheHitsTotal   prometheus.Counter
	PageCacheMissesTotal prometheus.Counter
	ActivePartitions     prometheus.Gauge
}

// New creates all collectors and registers them with reg. A nil reg leaves
// the collectors unregistered, which is what tests and embedded users want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexicon_docs_indexed_total",
				Help: "Total documents accepted by the live partition.",
			},
		),
		DumpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexicon_partition_dumps_total",
				Help: "Partition dumps by status.",
			},
			[]string{"status"},
		),
		DumpDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexicon_partition_dump_duration_seconds",
				Help:    "Time spent dumping a partition to disk.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexicon_partition_merges_total",
				Help: "Partition merges by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lexicon_partition_merge_duration_seconds",
				Help:    "Time spent merging partitions.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		EntriesWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexicon_dictionary_entries_written_total",
				Help: "Dictionary entries persisted, by dictionary kind.",
			},
			[]string{"dict"},
		),
		PostingsBytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexicon_postings_bytes_written_total",
				Help: "Bytes written to postings channels, by channel.",
			},
			[]string{"channel"},
		),
		PostingsReadErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexicon_postings_read_errors_total",
				Help: "Postings reads that failed and were served as empty.",
			},
		),
		PageCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexicon_page_cache_hits_total",
				Help: "Dictionary page cache hits.",
			},
		),
		PageCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexicon_page_cache_misses_total",
				Help: "Dictionary page cache misses.",
			},
		),
		ActivePartitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexicon_active_partitions",
				Help: "Number of on-disk partitions open for querying.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DocsIndexedTotal,
			m.DumpsTotal,
			m.DumpDuration,
			m.MergesTotal,
			m.MergeDuration,
			m.EntriesWrittenTotal,
			m.PostingsBytesWritten,
			m.PostingsReadErrors,
			m.PageCacheHitsTotal,
			m.PageCacheMissesTotal,
			m.ActivePartitions,
		)
	}
	return m
}

var discard = New(nil)

// Discard returns a shared set of unregistered collectors.
func Discard() *Metrics {
	return discard
}

// Or returns m, or the discard set when m is nil.
func Or(m *Metrics) *Metrics {
	if m == nil {
		return discard
	}
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
