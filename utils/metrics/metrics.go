package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by the bot.
const Namespace = "dexarb"

// Metrics bundles every metric group against a single registry.
type Metrics struct {
	Registry  *prometheus.Registry
	Cycle     *CycleMetrics
	Scanner   *ScannerMetrics
	Execution *ExecutionMetrics
	Gas       *GasMetrics
}

// New creates a fresh registry with the Go and process collectors and all metric groups.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:  registry,
		Cycle:     NewCycleMetrics(registry, Namespace),
		Scanner:   NewScannerMetrics(registry, Namespace),
		Execution: NewExecutionMetrics(registry, Namespace),
		Gas:       NewGasMetrics(registry, Namespace),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

type CycleMetrics struct {
	Runs         prometheus.Counter
	Failures     prometheus.Counter
	SkippedTicks prometheus.Counter
	Busy         prometheus.Counter
	Duration     prometheus.Histogram
	State        prometheus.Gauge
	BaseBalance  prometheus.Gauge
}

func NewCycleMetrics(reg prometheus.Registerer, namespace string) *CycleMetrics {
	factory := promauto.With(reg)
	return &CycleMetrics{
		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of cycles started",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "failures_total",
			Help:      "Total number of cycles ended by a fatal error",
		}),
		SkippedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "skipped_ticks_total",
			Help:      "Ticks dropped because the previous cycle overran the interval",
		}),
		Busy: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "busy_rejections_total",
			Help:      "Cycle requests rejected because a cycle was already running",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall time of a full cycle",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "state",
			Help:      "Current controller state (0 idle, 1 scanning, 2 executing)",
		}),
		BaseBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "base_balance",
			Help:      "Base token balance read at the end of the last cycle",
		}),
	}
}

type ScannerMetrics struct {
	Checks         prometheus.Counter
	QuoteFailures  *prometheus.CounterVec
	Profitable     prometheus.Counter
	LastNetProfit  prometheus.Gauge
	PrefetchTime   prometheus.Histogram
	RecoveredPanic prometheus.Counter
}

func NewScannerMetrics(reg prometheus.Registerer, namespace string) *ScannerMetrics {
	factory := promauto.With(reg)
	return &ScannerMetrics{
		Checks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "checks_total",
			Help:      "Total number of triples priced",
		}),
		QuoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "quote_failures_total",
			Help:      "Quote failures by venue",
		}, []string{"venue"}),
		Profitable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "profitable_total",
			Help:      "Triples whose net profit cleared the threshold",
		}),
		LastNetProfit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "last_net_profit",
			Help:      "Net profit of the most recent check, in base token units",
		}),
		PrefetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "prefetch_seconds",
			Help:      "Time spent fetching all quotes of a pass",
			Buckets:   prometheus.DefBuckets,
		}),
		RecoveredPanic: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "recovered_panics_total",
			Help:      "Panics recovered while executing an opportunity",
		}),
	}
}

type ExecutionMetrics struct {
	Swaps     *prometheus.CounterVec
	Approvals *prometheus.CounterVec
	Exposures prometheus.Counter
	GasUsed   prometheus.Histogram
}

func NewExecutionMetrics(reg prometheus.Registerer, namespace string) *ExecutionMetrics {
	factory := promauto.With(reg)
	return &ExecutionMetrics{
		Swaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "swaps_total",
			Help:      "Swap transactions by leg and result",
		}, []string{"leg", "result"}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "approvals_total",
			Help:      "Approval transactions by result",
		}, []string{"result"}),
		Exposures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "exposures_total",
			Help:      "Executions that left a token position open after a failed sell",
		}),
		GasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "gas_used",
			Help:      "Gas used per confirmed transaction",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 6),
		}),
	}
}

type GasMetrics struct {
	GasPriceGwei   prometheus.Gauge
	NativePriceUSD prometheus.Gauge
	CostInBase     prometheus.Gauge
	Degraded       prometheus.Counter
}

func NewGasMetrics(reg prometheus.Registerer, namespace string) *GasMetrics {
	factory := promauto.With(reg)
	return &GasMetrics{
		GasPriceGwei: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gas",
			Name:      "price_gwei",
			Help:      "Last capped gas price",
		}),
		NativePriceUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gas",
			Name:      "native_price_usd",
			Help:      "Last native token price used for gas conversion",
		}),
		CostInBase: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gas",
			Name:      "swap_cost_base",
			Help:      "Last estimated cost of one swap in base token units",
		}),
		Degraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gas",
			Name:      "degraded_estimates_total",
			Help:      "Estimates that fell back to the configured constant",
		}),
	}
}
