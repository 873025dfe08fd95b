// Package metrics defines the Prometheus collectors of an index build and
// exposes them for scraping or for a single push at the end of a batch run.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus collectors for a build.
type Metrics struct {
	LinesReadTotal      prometheus.Counter
	DocsIndexedTotal    prometheus.Counter
	LinesSkippedTotal   *prometheus.CounterVec
	PostingsTotal       prometheus.Counter
	FragmentsTotal      prometheus.Counter
	IndexFlushesTotal   *prometheus.CounterVec
	FlushDuration       prometheus.Histogram
	ResidentBytes       prometheus.Gauge
	ResidentTerms       prometheus.Gauge
	LastBuildSuccess    prometheus.Gauge
	LastBuildDurationS  prometheus.Gauge
	FilterLinesMatched  prometheus.Counter
	FilterLinesExamined prometheus.Counter
}

// New creates all collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry keeps repeated builds in one process independent.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LinesReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termindex_lines_read_total",
				Help: "Total collection lines read.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termindex_docs_indexed_total",
				Help: "Total documents registered.",
			},
		),
		LinesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termindex_lines_skipped_total",
				Help: "Total malformed lines skipped by reason.",
			},
			[]string{"reason"},
		),
		PostingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termindex_postings_total",
				Help: "Total postings recorded.",
			},
		),
		FragmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termindex_fragments_total",
				Help: "Total text fragments produced by the splitter, before filtering.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termindex_flushes_total",
				Help: "Total flush cycles by status.",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termindex_flush_duration_seconds",
				Help:    "Time spent draining and writing one flush cycle.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		ResidentBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termindex_resident_bytes",
				Help: "Approximate bytes held by the in-memory tables.",
			},
		),
		ResidentTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termindex_resident_terms",
				Help: "Distinct terms held by the in-memory term table.",
			},
		),
		LastBuildSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termindex_last_build_success",
				Help: "1 if the last build completed, 0 otherwise.",
			},
		),
		LastBuildDurationS: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termindex_last_build_duration_seconds",
				Help: "Wall time of the last build.",
			},
		),
		FilterLinesMatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termindex_filter_lines_matched_total",
				Help: "Collection lines selected by the document filter.",
			},
		),
		FilterLinesExamined: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termindex_filter_lines_examined_total",
				Help: "Collection lines examined by the document filter.",
			},
		),
	}

	reg.MustRegister(
		m.LinesReadTotal,
		m.DocsIndexedTotal,
		m.LinesSkippedTotal,
		m.PostingsTotal,
		m.FragmentsTotal,
		m.IndexFlushesTotal,
		m.FlushDuration,
		m.ResidentBytes,
		m.ResidentTerms,
		m.LastBuildSuccess,
		m.LastBuildDurationS,
		m.FilterLinesMatched,
		m.FilterLinesExamined,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Push sends everything in g to a Pushgateway once. Batch jobs finish
// before a scraper would reliably see them, so this is the primary export.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
