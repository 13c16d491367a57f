// Package metrics exposes the engine's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service bundles the engine's prometheus collectors.
type Service struct {
	registry *prometheus.Registry

	TxSubmitted      *prometheus.CounterVec
	TxFinalized      *prometheus.CounterVec
	CancelRequested  *prometheus.CounterVec
	PermitsSigned    prometheus.Counter
	PermitsSkipped   prometheus.Counter
	RPCRetries       prometheus.Counter
	ConfirmLatency   prometheus.Histogram
	NonceResyncs     prometheus.Counter
	AnalyticsDropped prometheus.Counter
}

// New creates the metrics service with its own registry.
func New() *Service {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Service{
		registry: registry,
		TxSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txengine_transactions_submitted_total",
			Help: "Transactions submitted to the network, by chain.",
		}, []string{"chain_id"}),
		TxFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txengine_transactions_finalized_total",
			Help: "Transaction records finalized, by terminal status.",
		}, []string{"status"}),
		CancelRequested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txengine_cancellations_total",
			Help: "Cancellation requests built, by kind.",
		}, []string{"kind"}),
		PermitsSigned: factory.NewCounter(prometheus.CounterOpts{
			Name: "txengine_permits_signed_total",
			Help: "Off-chain permits signed.",
		}),
		PermitsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "txengine_permits_skipped_total",
			Help: "Permit requests skipped because the allowance already covered the amount.",
		}),
		RPCRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "txengine_rpc_retries_total",
			Help: "Retried RPC calls after transient provider errors.",
		}),
		ConfirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "txengine_confirmation_latency_seconds",
			Help:    "Time from submission to receipt.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		NonceResyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "txengine_nonce_resyncs_total",
			Help: "Nonce resyncs triggered by stale-nonce submission errors.",
		}),
		AnalyticsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "txengine_analytics_events_dropped_total",
			Help: "Analytics events dropped because the emit queue was full.",
		}),
	}
}

// Registry returns the underlying registry for the metrics endpoint.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}
