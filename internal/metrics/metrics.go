// Package metrics wires the handful of Prometheus counters and gauges
// named by the supplemented GET /metrics endpoint (§6): gateway
// connection counts, collector stream-processing counts, and decision
// dispatch counts. Kept as package-level collectors registered against
// the default registry, the way a single small binary typically wires
// client_golang rather than threading a *prometheus.Registry through
// every constructor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the default registry in the Prometheus text exposition
// format, mounted at GET /metrics by each binary's mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a dedicated /metrics listener in the background for
// binaries (like the collector) that don't otherwise run an HTTP mux.
// Listen failures are logged by the caller, not here: metrics exposure
// is best-effort and must never block the binary's real work.
func Serve(addr string) <-chan error {
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	go func() {
		errCh <- http.ListenAndServe(addr, mux)
	}()
	return errCh
}

var (
	GatewayActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meeting_intel",
		Subsystem: "gateway",
		Name:      "active_connections",
		Help:      "Number of currently admitted gateway WebSocket sessions.",
	})

	GatewayConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeting_intel",
		Subsystem: "gateway",
		Name:      "connections_rejected_total",
		Help:      "Connections rejected with WAIT because the server was at capacity.",
	})

	CollectorEntriesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meeting_intel",
		Subsystem: "collector",
		Name:      "entries_processed_total",
		Help:      "Redis Streams entries processed, labeled by outcome.",
	}, []string{"outcome"})

	CollectorPendingClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeting_intel",
		Subsystem: "collector",
		Name:      "pending_entries_claimed_total",
		Help:      "Pending entries reclaimed from stalled consumers via XAutoClaim.",
	})

	PromoterSegmentsPromoted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meeting_intel",
		Subsystem: "promoter",
		Name:      "segments_promoted_total",
		Help:      "Segments moved from the mutable session map into durable storage.",
	})

	DecisionDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meeting_intel",
		Subsystem: "decision",
		Name:      "dispatches_total",
		Help:      "Decision-window LLM dispatches, labeled by outcome.",
	}, []string{"outcome"})
)
