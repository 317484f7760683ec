// Package metrics exposes the node's Prometheus instrumentation. The
// teacher's own metrics package hand-rolls its aggregation and export
// format; this one uses prometheus/client_golang directly, since that
// library is already in the example pack's dependency surface and
// gives standard histogram/counter semantics and a ready-made HTTP
// exporter instead of a second bespoke one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this node emits, constructed once at
// startup and threaded into the packages that report against it.
type Registry struct {
	registry *prometheus.Registry

	BlocksProduced   prometheus.Counter
	BlocksVerified   prometheus.Counter
	BlocksChallenged prometheus.Counter
	BlockApplyLatency prometheus.Histogram

	MemPoolSize       prometheus.Gauge
	MemPoolRejections *prometheus.CounterVec

	ChallengerState prometheus.Gauge

	WithdrawalsFinalized prometheus.Counter
	FinalizationFrontier prometheus.Gauge

	L1RPCErrors *prometheus.CounterVec
}

// NewRegistry builds a fresh metric set registered against its own
// prometheus.Registry, so tests can construct independent instances
// without colliding on the global default registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		registry: reg,
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gwnode_blocks_produced_total",
			Help: "Number of L2 blocks produced by this node.",
		}),
		BlocksVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gwnode_blocks_verified_total",
			Help: "Number of L2 blocks successfully verified and applied.",
		}),
		BlocksChallenged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gwnode_blocks_challenged_total",
			Help: "Number of submitted blocks that failed replay and were challenged.",
		}),
		BlockApplyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gwnode_block_apply_latency_seconds",
			Help:    "Time to replay and apply a single block.",
			Buckets: prometheus.DefBuckets,
		}),
		MemPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gwnode_mempool_size",
			Help: "Number of transactions currently admitted to the mem-pool.",
		}),
		MemPoolRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwnode_mempool_rejections_total",
			Help: "Mem-pool admission rejections by reason.",
		}, []string{"reason"}),
		ChallengerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gwnode_challenger_state",
			Help: "Current challenger lifecycle state (enum value).",
		}),
		WithdrawalsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gwnode_withdrawals_finalized_total",
			Help: "Number of withdrawals finalised on L1.",
		}),
		FinalizationFrontier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gwnode_finalization_frontier_block",
			Help: "Block number of the withdrawal finalisation frontier.",
		}),
		L1RPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwnode_l1_rpc_errors_total",
			Help: "L1 RPC errors by method.",
		}, []string{"method"}),
	}
	reg.MustRegister(
		m.BlocksProduced, m.BlocksVerified, m.BlocksChallenged, m.BlockApplyLatency,
		m.MemPoolSize, m.MemPoolRejections, m.ChallengerState,
		m.WithdrawalsFinalized, m.FinalizationFrontier, m.L1RPCErrors,
	)
	return m
}

// Handler returns the HTTP handler serving this registry's metrics in
// the Prometheus text exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
