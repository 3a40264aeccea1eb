package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chain RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "RPC attempts by method and result class",
	}, []string{"method", "class"})

	RPCRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "RPC retries scheduled by method and error class",
	}, []string{"method", "class"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watcher",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Duration of a single RPC attempt",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method"})

	// Scanner
	CursorHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watcher",
		Subsystem: "scanner",
		Name:      "cursor_height",
		Help:      "Last fully scanned block height",
	})

	ChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watcher",
		Subsystem: "scanner",
		Name:      "chain_height",
		Help:      "Latest chain height observed",
	})

	BlocksScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "scanner",
		Name:      "blocks_scanned_total",
		Help:      "Blocks fully processed",
	})

	CycleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "scanner",
		Name:      "cycle_failures_total",
		Help:      "Scan cycles aborted by an error",
	})

	ReceiptErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "scanner",
		Name:      "receipt_errors_total",
		Help:      "Receipt fetches that failed after retries",
	})

	// Classifier
	ClassifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "classifier",
		Name:      "outcomes_total",
		Help:      "Classification outcomes, untracked transactions excluded",
	}, []string{"outcome"})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "classifier",
		Name:      "decode_failures_total",
		Help:      "Transfer logs that failed to decode",
	})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "classifier",
		Name:      "events_total",
		Help:      "Classified transfer events by direction and kind",
	}, []string{"direction", "kind"})

	// Token metadata
	TokenMetaLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "token",
		Name:      "lookups_total",
		Help:      "Token metadata cache lookups by result",
	}, []string{"result"})

	// Dispatcher
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Message deliveries by destination and status",
	}, []string{"destination", "status"})

	DispatchQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watcher",
		Subsystem: "notify",
		Name:      "queue_depth",
		Help:      "Messages waiting per destination",
	}, []string{"destination"})
)
