// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sync metrics
	SyncCyclesTotal      *prometheus.CounterVec
	SyncCycleDuration    prometheus.Histogram
	TransfersFetched     prometheus.Counter
	TransfersClassified  *prometheus.CounterVec
	TransactionsLedgered *prometheus.CounterVec
	LedgerDuplicates     prometheus.Counter
	AggregationOutcomes  *prometheus.CounterVec
	CheckpointBlock      prometheus.Gauge
	ArchiveErrors        prometheus.Counter

	// Upstream metrics
	UpstreamCallLatency *prometheus.HistogramVec
	UpstreamErrors      *prometheus.CounterVec

	// Pricing metrics
	TokenPriceUSD prometheus.Gauge
	PriceLookups  *prometheus.CounterVec

	// Snapshot metrics
	FinalizeRuns *prometheus.CounterVec

	// API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WSClients           prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "savercoin"
	}

	return &Metrics{
		SyncCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Total number of sync cycles by status",
		}, []string{"status"}),
		SyncCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Sync cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		TransfersFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transfers_fetched_total",
			Help:      "Total number of raw transfers fetched from sources",
		}),
		TransfersClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transfers_classified_total",
			Help:      "Total number of transfers by classification result",
		}, []string{"result"}),
		TransactionsLedgered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transactions_ledgered_total",
			Help:      "Total number of transactions written to the ledger by kind",
		}, []string{"kind"}),
		LedgerDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "ledger_duplicates_total",
			Help:      "Total number of transfers already present in the ledger",
		}),
		AggregationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "aggregation_outcomes_total",
			Help:      "Total number of wallet aggregation results by outcome",
		}, []string{"outcome"}),
		CheckpointBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "checkpoint_block",
			Help:      "Next block the sync will request",
		}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "archive_errors_total",
			Help:      "Total number of failed archive appends",
		}),

		UpstreamCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_latency_seconds",
			Help:      "Upstream API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "method"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Total number of upstream errors by source and kind",
		}, []string{"source", "kind"}),

		TokenPriceUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "token_price_usd",
			Help:      "Last token price served to the aggregator",
		}),
		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "lookups_total",
			Help:      "Total number of price lookups by result",
		}, []string{"result"}),

		FinalizeRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "finalize_runs_total",
			Help:      "Total number of finalize attempts by outcome",
		}, []string{"outcome"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_clients",
			Help:      "Number of connected leaderboard feed clients",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful sync cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSyncCycle records a finished sync cycle.
func RecordSyncCycle(status string, durationSeconds float64) {
	DefaultMetrics.SyncCyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SyncCycleDuration.Observe(durationSeconds)
}

// RecordTransfersFetched adds n to the fetched transfers counter.
func RecordTransfersFetched(n int) {
	DefaultMetrics.TransfersFetched.Add(float64(n))
}

// RecordClassification counts one classification result.
func RecordClassification(result string) {
	DefaultMetrics.TransfersClassified.WithLabelValues(result).Inc()
}

// RecordLedgered counts one newly ledgered transaction.
func RecordLedgered(kind string) {
	DefaultMetrics.TransactionsLedgered.WithLabelValues(kind).Inc()
}

// RecordLedgerDuplicate counts one duplicate ledger insert.
func RecordLedgerDuplicate() {
	DefaultMetrics.LedgerDuplicates.Inc()
}

// RecordAggregation counts one aggregation outcome.
func RecordAggregation(outcome string) {
	DefaultMetrics.AggregationOutcomes.WithLabelValues(outcome).Inc()
}

// SetCheckpoint updates the checkpoint gauge.
func SetCheckpoint(block uint64) {
	DefaultMetrics.CheckpointBlock.Set(float64(block))
}

// RecordArchiveError counts one failed archive append.
func RecordArchiveError() {
	DefaultMetrics.ArchiveErrors.Inc()
}

// RecordUpstreamCall records an upstream call latency.
func RecordUpstreamCall(source, method string, durationSeconds float64) {
	DefaultMetrics.UpstreamCallLatency.WithLabelValues(source, method).Observe(durationSeconds)
}

// RecordUpstreamError counts one upstream error.
func RecordUpstreamError(source, kind string) {
	DefaultMetrics.UpstreamErrors.WithLabelValues(source, kind).Inc()
}

// RecordPriceLookup counts one price lookup and sets the price gauge.
func RecordPriceLookup(result string, price float64) {
	DefaultMetrics.PriceLookups.WithLabelValues(result).Inc()
	DefaultMetrics.TokenPriceUSD.Set(price)
}

// RecordFinalize counts one finalize attempt.
func RecordFinalize(outcome string) {
	DefaultMetrics.FinalizeRuns.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, code string, durationSeconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// SetWSClients updates the connected feed clients gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(database, operation string, durationSeconds float64) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(durationSeconds)
}

// RecordDBError increments the database error counter.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}

// SetLastSuccessfulSync sets the last successful sync timestamp.
func SetLastSuccessfulSync(timestamp float64) {
	DefaultMetrics.LastSuccessfulSync.Set(timestamp)
}
