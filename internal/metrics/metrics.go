// Package metrics exposes the worker's Prometheus gauges/counters/
// histograms. Grounded on the teacher's internal/metrics/metrics.go
// (promauto-registered package vars, Name/Help/Buckets shape), re-themed
// from the vehicle marketplace's HTTP/DB/SSE/order metrics onto this
// domain's ambient concerns: bid acceptance, schedule rewrites, scheduler
// job pressure, and datasource reliability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ==========================================================================
	// HTTP Metrics
	// ==========================================================================
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the bid server",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// ==========================================================================
	// Document Store Metrics
	// ==========================================================================
	DocumentStoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_store_operations_total",
			Help: "Total Document Store load/save operations",
		},
		[]string{"operation", "outcome"}, // operation: load|save, outcome: ok|conflict|not_found|error
	)

	DocumentStoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "document_store_operation_duration_seconds",
			Help:    "Document Store load/save latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// ==========================================================================
	// Bid Handler Metrics (C5)
	// ==========================================================================
	BidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Total number of bids submitted to the Bid Handler",
		},
		[]string{"auction_id", "status"}, // status: accepted, rejected, error
	)

	BidAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auction_bid_amount",
			Help:    "Distribution of accepted bid amounts",
			Buckets: []float64{100, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		},
		[]string{"auction_id"},
	)

	ScheduleRewriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auction_schedule_rewrite_duration_seconds",
			Help:    "Time to rebuild the stage timeline after an accepted bid (end_bid_stage)",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	RoundExtensionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_round_extensions_total",
			Help: "Total number of bid-triggered round extensions (a new main round appended after a bid)",
		},
	)

	// ==========================================================================
	// Scheduler Metrics (C4)
	// ==========================================================================
	SchedulerJobsScheduled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_jobs_scheduled",
			Help: "Number of one-shot jobs currently pending on the scheduler",
		},
	)

	SchedulerJobsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_fired_total",
			Help: "Total number of scheduler jobs that have fired, by job name",
		},
		[]string{"job"},
	)

	// ==========================================================================
	// Auction Lifecycle Metrics (C6)
	// ==========================================================================
	AuctionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctions_active",
			Help: "1 while this worker's auction is between schedule_auction and end_auction, else 0",
		},
	)

	AuctionStageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_stage_transitions_total",
			Help: "Total current_stage advances, by resulting stage kind",
		},
		[]string{"kind"}, // pause, mainRound, preannouncement, end
	)

	// ==========================================================================
	// Datasource Metrics (C3)
	// ==========================================================================
	DatasourceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasource_calls_total",
			Help: "Total Datasource calls (get_data, set_participation_urls, upload_audit, post_results)",
		},
		[]string{"operation", "status"},
	)

	DatasourceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasource_call_duration_seconds",
			Help:    "Datasource call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	DatasourceRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasource_retries_total",
			Help: "Total retry attempts issued by the datasource's bounded retry loop",
		},
		[]string{"operation"},
	)
)
