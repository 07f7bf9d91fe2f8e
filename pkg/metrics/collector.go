// Package metrics exposes Prometheus metrics for the compiler.
//
// A Collector owns a private registry so that tests and embedders can run
// several compilers side by side. Every Record method is a no-op when
// metrics are disabled, which lets the driver call them unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gsm-lang/gsmc/pkg/config"
)

// Compilation outcomes used as the status label.
const (
	StatusOK          = "ok"
	StatusSyntaxError = "syntax_error"
	StatusGenError    = "generation_error"
	StatusError       = "error"
	StatusCached      = "cached"
)

// Collector records compile, cache and run metrics.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	compile *CompileMetrics
	cache   *CacheMetrics
}

// NewCollector creates a collector registered on registry. If registry is
// nil a new one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		compile:  NewCompileMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
	}
}

// Disabled returns a collector that records nothing.
func Disabled() *Collector {
	return NewCollector(&config.MetricsConfig{Enabled: false}, nil)
}

func (c *Collector) Enabled() bool { return c != nil && c.config.Enabled }

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordCompilation records one finished compilation.
func (c *Collector) RecordCompilation(status string, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	c.compile.compilationsTotal.WithLabelValues(status).Inc()
	c.compile.compileDuration.Observe(duration.Seconds())
}

// RecordPhase records the duration of one pipeline phase.
func (c *Collector) RecordPhase(phase string, duration time.Duration) {
	if !c.Enabled() {
		return
	}
	c.compile.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (c *Collector) RecordSyntaxErrors(n int) {
	if !c.Enabled() || n == 0 {
		return
	}
	c.compile.syntaxErrors.Add(float64(n))
}

// RecordModuleSize observes the instruction count of a generated module.
func (c *Collector) RecordModuleSize(insts int) {
	if !c.Enabled() {
		return
	}
	c.compile.moduleInsts.Observe(float64(insts))
}

func (c *Collector) RecordOptimization(pass string, changes int) {
	if !c.Enabled() || changes == 0 {
		return
	}
	c.compile.optimizerChanges.WithLabelValues(pass).Add(float64(changes))
}

// RecordRun records a program executed by the interpreter.
func (c *Collector) RecordRun(status string, steps int) {
	if !c.Enabled() {
		return
	}
	c.compile.runsTotal.WithLabelValues(status).Inc()
	c.compile.runSteps.Observe(float64(steps))
}

func (c *Collector) RecordCacheHit() {
	if !c.Enabled() {
		return
	}
	c.cache.hitsTotal.Inc()
}

func (c *Collector) RecordCacheMiss() {
	if !c.Enabled() {
		return
	}
	c.cache.missesTotal.Inc()
}

func (c *Collector) SetCacheEntries(n int) {
	if !c.Enabled() {
		return
	}
	c.cache.entries.Set(float64(n))
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
