package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

// Registry returns the process registry served on /metrics
func Registry() *prometheus.Registry {
	return registry
}

// Metrics groups every collector the bot reports
type Metrics struct {
	Quote    *QuoteMetrics
	Strategy *StrategyMetrics
	Network  *NetworkMetrics
}

// New registers all collectors with reg under namespace
func New(reg prometheus.Registerer, namespace string) *Metrics {
	return &Metrics{
		Quote:    NewQuoteMetrics(reg, namespace),
		Strategy: NewStrategyMetrics(reg, namespace),
		Network:  NewNetworkMetrics(reg, namespace),
	}
}

// NewDefault registers process and Go runtime collectors next to the bot's own
func NewDefault(namespace string) *Metrics {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(registry, namespace)
}

type QuoteMetrics struct {
	Requests *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

func NewQuoteMetrics(reg prometheus.Registerer, namespace string) *QuoteMetrics {
	factory := promauto.With(reg)
	return &QuoteMetrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of venue quotes requested",
		}, []string{"venue", "direction"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "failures_total",
			Help:      "Total number of failed venue quotes by reason",
		}, []string{"venue", "reason"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "latency_seconds",
			Help:      "Venue quote latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"venue"}),
	}
}

type StrategyMetrics struct {
	TiersEvaluated *prometheus.CounterVec
	TiersSkipped   *prometheus.CounterVec
	Opportunities  *prometheus.CounterVec
	Executions     *prometheus.CounterVec
	ScanTime       prometheus.Histogram
}

func NewStrategyMetrics(reg prometheus.Registerer, namespace string) *StrategyMetrics {
	factory := promauto.With(reg)
	return &StrategyMetrics{
		TiersEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "tiers_evaluated_total",
			Help:      "Total number of capital tiers evaluated",
		}, []string{"strategy"}),
		TiersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "tiers_skipped_total",
			Help:      "Total number of capital tiers skipped after a quote failure",
		}, []string{"strategy", "reason"}),
		Opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "opportunities_total",
			Help:      "Total number of profitable tiers found",
		}, []string{"strategy"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "executions_total",
			Help:      "Total number of flash loan submissions by result",
		}, []string{"strategy", "result"}),
		ScanTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "scan_time_seconds",
			Help:      "Time taken to scan one pair",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

type NetworkMetrics struct {
	Blocks             prometheus.Counter
	LatestBlock        prometheus.Gauge
	CyclesSuperseded   prometheus.Counter
	CycleTime          prometheus.Histogram
	SubscriptionErrors prometheus.Counter
	Reconnects         prometheus.Counter
	GasPrice           prometheus.Histogram
}

func NewNetworkMetrics(reg prometheus.Registerer, namespace string) *NetworkMetrics {
	factory := promauto.With(reg)
	return &NetworkMetrics{
		Blocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "blocks_total",
			Help:      "Total number of block headers received",
		}),
		LatestBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "latest_block",
			Help:      "Number of the latest block scanned",
		}),
		CyclesSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "cycles_superseded_total",
			Help:      "Total number of scan cycles cancelled by a newer block",
		}),
		CycleTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "cycle_time_seconds",
			Help:      "Time taken to scan one block",
			Buckets:   prometheus.DefBuckets,
		}),
		SubscriptionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "subscription_errors_total",
			Help:      "Total number of head subscription errors",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "reconnects_total",
			Help:      "Total number of reconnection attempts",
		}),
		GasPrice: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "gas_price",
			Help:      "Gas price used for submissions",
			Buckets:   prometheus.ExponentialBuckets(1e9, 2, 15), // Start at 1 gwei
		}),
	}
}
