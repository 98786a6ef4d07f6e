package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for MarketLedger.
type Metrics struct {
	// --- Core Processing ---
	CoreOpsApplied   *prometheus.CounterVec
	CoreOpsRejected  *prometheus.CounterVec
	CoreOpDuration   *prometheus.HistogramVec
	CoreStateHashDur prometheus.Histogram
	CoreSequence     prometheus.Gauge

	// --- Latency ---
	IngestToApply   *prometheus.HistogramVec
	ApplyToPersist  prometheus.Histogram
	NATSPullLatency *prometheus.HistogramVec
	PersistBatchDur prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	StaleRounds           *prometheus.CounterVec

	// --- Trading ---
	BetsPlaced     *prometheus.CounterVec
	OrdersFilled   *prometheus.CounterVec
	SwapsExecuted  prometheus.Counter
	SwapFeeRetained prometheus.Counter
	OracleUpdates  prometheus.Counter
	SyncRounds     prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBetsWritten   prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// --- Query / HTTP API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_core_ops_applied_total",
			Help: "Operations successfully applied by core",
		}, []string{"event_type"}),

		CoreOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_core_ops_rejected_total",
			Help: "Operations rejected (validation, authorization)",
		}, []string{"op", "code"}),

		CoreOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_core_op_duration_seconds",
			Help:    "Time to apply a single operation in core",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		CoreStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketledger_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketledger_core_sequence",
			Help: "Current global sequence number",
		}),

		// Latency
		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		ApplyToPersist: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketledger_apply_to_persist_seconds",
			Help:    "Core emit to Postgres commit",
			Buckets: latencyBuckets,
		}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketledger_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketledger_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketledger_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketledger_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_idempotency_duplicates_total",
			Help: "Duplicate commands caught (lru/postgres)",
		}, []string{"subject", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketledger_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketledger_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		StaleRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_stale_rounds_total",
			Help: "Environment sync rounds ignored as stale",
		}, []string{"subject"}),

		// Trading
		BetsPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_bets_placed_total",
			Help: "Bets accepted per market",
		}, []string{"market_id"}),

		OrdersFilled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_orders_filled_total",
			Help: "Limit orders filled",
		}, []string{"side"}),

		SwapsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_swaps_executed_total",
			Help: "Pool swaps executed",
		}),

		SwapFeeRetained: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_swap_fee_events_total",
			Help: "Swaps that retained a non-zero fee",
		}),

		OracleUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_oracle_updates_total",
			Help: "Oracle price writes (single and batch entries)",
		}),

		SyncRounds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_sync_rounds_total",
			Help: "Environment sync rounds applied",
		}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBetsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_persist_bets_written_total",
			Help: "Bet rows written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketledger_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketledger_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketledger_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketledger_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketledger_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),

		// HTTP API
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"route"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
