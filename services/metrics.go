package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	itemsUpsertedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crcnews_items_upserted_total",
		Help: "Total number of news items inserted or merged.",
	})
	itemsSkippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crcnews_items_skipped_total",
		Help: "Candidates dropped during ingestion, by reason.",
	}, []string{"reason"})
	sourceFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crcnews_source_failures_total",
		Help: "Source fetches that failed, by source name.",
	}, []string{"source"})
	runDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crcnews_run_duration_seconds",
		Help:    "Wall-clock duration of ingestion runs.",
		Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 120},
	})
)

func init() {
	prometheus.MustRegister(itemsUpsertedCounter, itemsSkippedCounter, sourceFailuresCounter, runDurationHistogram)
}
