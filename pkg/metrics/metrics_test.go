package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gsm-lang/gsmc/pkg/config"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "gsmc",
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)
	if collector.Registry() != registry {
		t.Error("collector registry not set correctly")
	}
	if !collector.Enabled() {
		t.Error("expected collector to be enabled")
	}
}

func TestCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	NewCollector(cfg, nil)

	if cfg.Namespace != "gsmc" || cfg.Subsystem != "compiler" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestCollector_RecordCompilation(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordCompilation(StatusOK, 2*time.Millisecond)
	collector.RecordCompilation(StatusOK, 3*time.Millisecond)
	collector.RecordCompilation(StatusSyntaxError, time.Millisecond)

	if got := testutil.ToFloat64(collector.compile.compilationsTotal.WithLabelValues(StatusOK)); got != 2 {
		t.Errorf("ok compilations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.compile.compilationsTotal.WithLabelValues(StatusSyntaxError)); got != 1 {
		t.Errorf("syntax_error compilations = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(collector.compile.compileDuration); n != 1 {
		t.Errorf("duration histogram series = %d, want 1", n)
	}
}

func TestCollector_RecordPhasesAndPasses(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordPhase("parse", time.Millisecond)
	collector.RecordPhase("codegen", time.Millisecond)
	collector.RecordOptimization("constant-fold", 4)
	collector.RecordOptimization("dce", 0)
	collector.RecordSyntaxErrors(2)
	collector.RecordModuleSize(40)

	if n := testutil.CollectAndCount(collector.compile.phaseDuration); n != 2 {
		t.Errorf("phase series = %d, want 2", n)
	}
	if got := testutil.ToFloat64(collector.compile.optimizerChanges.WithLabelValues("constant-fold")); got != 4 {
		t.Errorf("constant-fold changes = %v, want 4", got)
	}
	if n := testutil.CollectAndCount(collector.compile.optimizerChanges); n != 1 {
		t.Errorf("zero-change pass created a series: %d series", n)
	}
	if got := testutil.ToFloat64(collector.compile.syntaxErrors); got != 2 {
		t.Errorf("syntax errors = %v, want 2", got)
	}
}

func TestCollector_Cache(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordCacheHit()
	collector.RecordCacheMiss()
	collector.RecordCacheMiss()
	collector.SetCacheEntries(5)

	expected := `
# HELP test_gsmc_cache_misses_total Total number of artifact cache misses
# TYPE test_gsmc_cache_misses_total counter
test_gsmc_cache_misses_total 2
`
	if err := testutil.CollectAndCompare(collector.cache.missesTotal, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(collector.cache.entries); got != 5 {
		t.Errorf("entries = %v, want 5", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	collector := Disabled()

	collector.RecordCompilation(StatusOK, time.Millisecond)
	collector.RecordRun(StatusOK, 10)
	collector.RecordCacheHit()

	if got := testutil.ToFloat64(collector.compile.compilationsTotal.WithLabelValues(StatusOK)); got != 0 {
		t.Errorf("disabled collector recorded %v compilations", got)
	}

	var nilCollector *Collector
	if nilCollector.Enabled() {
		t.Error("nil collector reports enabled")
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordRun(StatusOK, 120)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_gsmc_runs_total") {
		t.Errorf("metrics output missing runs_total:\n%s", body)
	}
}
