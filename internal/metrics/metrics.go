package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsTotal counts bridge transactions by direction and terminal status
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transactions_total",
			Help: "Total number of bridge transactions",
		},
		[]string{"direction", "status"},
	)

	// RejectionsTotal counts rejected requests by stable rejection code
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rejections_total",
			Help: "Total number of rejected bridge requests",
		},
		[]string{"code"},
	)

	// TransactionAmount tracks the amount of SEMILLA moved per direction
	TransactionAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transaction_amount",
			Help:    "Amount of SEMILLA bridged",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 10000, 100000},
		},
		[]string{"direction"},
	)

	// AdapterCallDuration tracks external chain adapter latency
	AdapterCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_adapter_call_duration_seconds",
			Help:    "External chain adapter call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// SecurityEventsTotal counts security events by severity and type
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_security_events_total",
			Help: "Total number of security events recorded",
		},
		[]string{"severity", "event_type"},
	)

	// BreakerOpen reports the circuit breaker state (1 = open)
	BreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_circuit_breaker_open",
			Help: "Whether the bridge circuit breaker is open",
		},
	)

	// RefundRetries counts refund attempts after failed mints
	RefundRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_refund_retries_total",
			Help: "Total number of refund retry attempts",
		},
	)

	// StaleTransactions counts transactions failed by the staleness sweeper
	StaleTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_stale_transactions_total",
			Help: "Total number of transactions failed for exceeding the staleness threshold",
		},
		[]string{"direction"},
	)
)
