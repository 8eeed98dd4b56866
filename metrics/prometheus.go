// Package metrics exports routing and dispatch metrics in Prometheus
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter holds the metric families for the routing core.
type Exporter struct {
	registry *prometheus.Registry

	routingDecisions *prometheus.CounterVec
	resolveFailures  *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec
	dispatchTotal   *prometheus.CounterVec

	queueDepth    prometheus.Gauge
	queuedTotal   prometheus.Counter
	drainedTotal  prometheus.Counter
	onlineState   prometheus.Gauge
	creditsSpent  *prometheus.CounterVec
	ledgerOutages prometheus.Counter
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one).
	Registry *prometheus.Registry

	// Buckets for the dispatch latency histogram, in seconds.
	LatencyBuckets []float64
}

// NewExporter creates an exporter and registers all collectors.
func NewExporter(cfg Config) *Exporter {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	buckets := cfg.LatencyBuckets
	if len(buckets) == 0 {
		buckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	}

	e := &Exporter{
		registry: registry,
		routingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyroute_routing_decisions_total",
			Help: "Gatekeeper decisions by category and target.",
		}, []string{"category", "target"}),
		resolveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyroute_resolve_failures_total",
			Help: "Model resolution failures by mode.",
		}, []string{"mode"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skyroute_dispatch_duration_seconds",
			Help:    "Remote dispatch latency.",
			Buckets: buckets,
		}, []string{"provider", "model", "outcome"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyroute_dispatch_total",
			Help: "Dispatches by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skyroute_offline_queue_depth",
			Help: "Tasks currently held in the offline queue.",
		}),
		queuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyroute_offline_queued_total",
			Help: "Tasks enqueued while offline.",
		}),
		drainedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyroute_offline_drained_total",
			Help: "Tasks replayed after recovery.",
		}),
		onlineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skyroute_online",
			Help: "Last observed connectivity state (1 online, 0 offline).",
		}),
		creditsSpent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyroute_credits_spent_total",
			Help: "Credits deducted by provider and model.",
		}, []string{"provider", "model"}),
		ledgerOutages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyroute_ledger_outages_total",
			Help: "Ledger failures degraded to local cost estimates.",
		}),
	}

	registry.MustRegister(
		e.routingDecisions,
		e.resolveFailures,
		e.dispatchLatency,
		e.dispatchTotal,
		e.queueDepth,
		e.queuedTotal,
		e.drainedTotal,
		e.onlineState,
		e.creditsSpent,
		e.ledgerOutages,
	)
	return e
}

// Handler returns the /metrics HTTP handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) ObserveRoutingDecision(category, target string) {
	e.routingDecisions.WithLabelValues(category, target).Inc()
}

func (e *Exporter) ObserveResolveFailure(mode string) {
	e.resolveFailures.WithLabelValues(mode).Inc()
}

func (e *Exporter) ObserveDispatch(provider, model, outcome string, duration time.Duration) {
	e.dispatchLatency.WithLabelValues(provider, model, outcome).Observe(duration.Seconds())
	e.dispatchTotal.WithLabelValues(provider, model, outcome).Inc()
}

func (e *Exporter) SetQueueDepth(depth int) {
	e.queueDepth.Set(float64(depth))
}

func (e *Exporter) ObserveQueued() {
	e.queuedTotal.Inc()
}

func (e *Exporter) ObserveDrained() {
	e.drainedTotal.Inc()
}

func (e *Exporter) SetOnline(online bool) {
	if online {
		e.onlineState.Set(1)
	} else {
		e.onlineState.Set(0)
	}
}

func (e *Exporter) ObserveCreditsSpent(provider, model string, credits int64) {
	e.creditsSpent.WithLabelValues(provider, model).Add(float64(credits))
}

func (e *Exporter) ObserveLedgerOutage() {
	e.ledgerOutages.Inc()
}
