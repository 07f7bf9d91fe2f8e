package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gsm-lang/gsmc/pkg/config"
)

// CompileMetrics tracks the compiler pipeline.
//
// Metrics:
//   - gsmc_compiler_compilations_total: compilations by status
//   - gsmc_compiler_compile_duration_seconds: end-to-end compile time
//   - gsmc_compiler_phase_duration_seconds: time per pipeline phase
//   - gsmc_compiler_syntax_errors_total: syntax errors reported
//   - gsmc_compiler_module_instructions: IR size of generated modules
//   - gsmc_compiler_optimizer_changes_total: changes made per pass
//   - gsmc_compiler_runs_total: interpreter runs by status
//   - gsmc_compiler_run_steps: instructions executed per run
type CompileMetrics struct {
	compilationsTotal *prometheus.CounterVec
	compileDuration   prometheus.Histogram
	phaseDuration     *prometheus.HistogramVec
	syntaxErrors      prometheus.Counter
	moduleInsts       prometheus.Histogram
	optimizerChanges  *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runSteps          prometheus.Histogram
}

// Compilation of small programs takes microseconds to milliseconds.
var durationBuckets = []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

func NewCompileMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CompileMetrics {
	cm := &CompileMetrics{
		compilationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "compilations_total",
				Help:      "Total number of compilations by status",
			},
			[]string{"status"},
		),

		compileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "compile_duration_seconds",
				Help:      "End-to-end compilation time",
				Buckets:   durationBuckets,
			},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "phase_duration_seconds",
				Help:      "Time spent in each pipeline phase",
				Buckets:   durationBuckets,
			},
			[]string{"phase"},
		),

		syntaxErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "syntax_errors_total",
				Help:      "Total number of syntax errors reported",
			},
		),

		moduleInsts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "module_instructions",
				Help:      "Number of IR instructions in generated modules",
				Buckets:   prometheus.ExponentialBuckets(8, 4, 7),
			},
		),

		optimizerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "optimizer_changes_total",
				Help:      "Total number of IR changes made by each optimizer pass",
			},
			[]string{"pass"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "runs_total",
				Help:      "Total number of interpreted runs by status",
			},
			[]string{"status"},
		),

		runSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "run_steps",
				Help:      "Instructions executed per interpreted run",
				Buckets:   prometheus.ExponentialBuckets(10, 10, 8),
			},
		),
	}

	registry.MustRegister(
		cm.compilationsTotal,
		cm.compileDuration,
		cm.phaseDuration,
		cm.syntaxErrors,
		cm.moduleInsts,
		cm.optimizerChanges,
		cm.runsTotal,
		cm.runSteps,
	)

	return cm
}

// CacheMetrics tracks the artifact cache.
type CacheMetrics struct {
	hitsTotal   prometheus.Counter
	missesTotal prometheus.Counter
	entries     prometheus.Gauge
}

func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of artifact cache hits",
		}),
		missesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of artifact cache misses",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_entries",
			Help:      "Current number of artifacts in the cache",
		}),
	}

	registry.MustRegister(cm.hitsTotal, cm.missesTotal, cm.entries)
	return cm
}
