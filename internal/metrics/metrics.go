// Package metrics holds the prometheus collectors of an ingestion run.
//
// The process is a batch job, so nothing is scraped: after each run the
// default registry is written to a node-exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts counts provider requests by result (ok, error).
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equities_fetch_attempts_total",
		Help: "Provider fetch attempts by result",
	}, []string{"result"})

	// FetchDuration tracks the latency of a single fetch attempt.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "equities_fetch_duration_seconds",
		Help:    "Duration of one provider fetch attempt in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	// SymbolsProcessed counts finished symbols by status and error kind.
	SymbolsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equities_symbols_total",
		Help: "Symbols processed by status (ok, failed) and error kind",
	}, []string{"status", "kind"})

	// RowsWritten counts rows persisted in new segments.
	RowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "equities_rows_written_total",
		Help: "Rows written to partition segments",
	})

	// RowsRejected counts provider rows dropped by the row policy.
	RowsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "equities_rows_rejected_total",
		Help: "Provider rows rejected during normalization",
	})

	// LastRunTimestamp is the unix time the last run finished.
	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equities_last_run_timestamp_seconds",
		Help: "Unix time of the last finished ingestion run",
	})

	// LastRunSuccess is 1 when the last run had no failed symbol.
	LastRunSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equities_last_run_success",
		Help: "1 if every symbol of the last run succeeded, else 0",
	})
)

// WriteTextfile writes every registered collector to path in the text
// exposition format. The write is atomic. Empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
