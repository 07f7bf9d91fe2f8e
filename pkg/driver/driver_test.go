package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gsm-lang/gsmc/pkg/cache"
	"github.com/gsm-lang/gsmc/pkg/codegen"
	"github.com/gsm-lang/gsmc/pkg/config"
	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/interp"
	"github.com/gsm-lang/gsmc/pkg/metrics"
	"github.com/gsm-lang/gsmc/pkg/optimizer"
)

const sample = "int a = 2, b; b = a ^ 3 + 1; if b > 5: begin a = b % 4; end"

func recorder(t *testing.T) (*tracetest.SpanRecorder, Option) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return sr, WithTracerProvider(tp)
}

func spanNames(sr *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestCompileEmitForms(t *testing.T) {
	tests := []struct {
		name string
		emit string
		arch string
		want []string
	}{
		{"ir", EmitIR, "", []string{"; ModuleID = 'calc.expr'", "define i32 @main(", "ret i32 0"}},
		{"llvm", EmitLLVM, "", []string{"define i32 @main(i32 %argc, i8** %argv)", "mul nsw i32"}},
		{"amd64", EmitAsm, "amd64", []string{".globl main", "pushq %rbp", "ret"}},
		{"arm64", EmitAsm, "arm64", []string{".globl main", "stp x29, x30, [sp, #-16]!", "mul w", "ret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{Emit: tt.emit, Arch: tt.arch, OptLevel: 0, Target: "linux"})
			res, err := c.Compile(context.Background(), "sample.gsm", []byte(sample))
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}

			out := string(res.Output)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if res.Module == nil || res.Program == nil {
				t.Error("result is missing the program or module")
			}
			if _, err := uuid.Parse(res.BuildID); err != nil {
				t.Errorf("invalid build ID %q", res.BuildID)
			}
		})
	}
}

func TestCompileUnknownEmit(t *testing.T) {
	c := New(Options{Emit: "wasm"})
	if _, err := c.Compile(context.Background(), "x.gsm", []byte("int a;")); err == nil {
		t.Error("expected error for unknown output form")
	}
}

func TestCompileUnsupportedArch(t *testing.T) {
	c := New(Options{Emit: EmitAsm, Arch: "riscv64"})
	_, err := c.Compile(context.Background(), "x.gsm", []byte("int a;"))
	if err == nil || !strings.Contains(err.Error(), `unsupported architecture "riscv64"`) {
		t.Errorf("error = %v, want unsupported architecture", err)
	}
	if SupportsArch("riscv64") || !SupportsArch("arm64") || !SupportsArch("amd64") {
		t.Error("SupportsArch disagrees with the EmitAsm backends")
	}
}

func TestCompileExponentLimit(t *testing.T) {
	zero := 0

	tests := []struct {
		name    string
		limit   *int
		src     string
		wantErr string
	}{
		{"default limit", nil, "int x = 3 ^ 3;", ""},
		{"default limit edge", nil, "int x = 1 ^ 64;", ""},
		{"zero limit", &zero, "int x = 3 ^ 3;", "exponent 3 exceeds limit 0"},
		{"zero limit allows zero", &zero, "int x = 3 ^ 0;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{Emit: EmitIR, MaxExponent: tt.limit})
			_, err := c.Compile(context.Background(), "p.gsm", []byte(tt.src))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Compile: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompileSyntaxErrors(t *testing.T) {
	c := New(Options{})
	src := "int = 5; int x = 1; y 3;"

	_, err := c.Compile(context.Background(), "bad.gsm", []byte(src))
	var list *frontend.ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("error = %v, want *frontend.ErrorList", err)
	}
	if list.Count() != 2 {
		t.Errorf("got %d syntax errors, want 2: %v", list.Count(), err)
	}
	if !strings.HasPrefix(list.Errors[0].Error(), "bad.gsm:1:") {
		t.Errorf("error not stamped with file: %s", list.Errors[0])
	}
}

func TestCompileGenerationError(t *testing.T) {
	c := New(Options{})

	_, err := c.Compile(context.Background(), "gen.gsm", []byte("int a = 1; b = a;"))
	var genErr *codegen.GenError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *codegen.GenError", err)
	}
	if !strings.HasPrefix(err.Error(), "gen.gsm: ") {
		t.Errorf("error not prefixed with file: %v", err)
	}
}

func TestCompileSpans(t *testing.T) {
	sr, withTracer := recorder(t)
	c := New(Options{Emit: EmitIR, OptLevel: 1}, withTracer)

	if _, err := c.Compile(context.Background(), "sample.gsm", []byte(sample)); err != nil {
		t.Fatal(err)
	}

	names := strings.Join(spanNames(sr), ",")
	if names != "lex,parse,codegen,verify,optimize,emit,compile" {
		t.Errorf("spans = %s", names)
	}

	for _, s := range sr.Ended() {
		if s.Name() != "compile" {
			if !s.Parent().SpanID().IsValid() {
				t.Errorf("phase %s has no parent span", s.Name())
			}
			continue
		}
		if s.Status().Code != codes.Ok {
			t.Errorf("compile span status = %v", s.Status())
		}
	}
}

func TestCompileSpansOnError(t *testing.T) {
	sr, withTracer := recorder(t)
	c := New(Options{}, withTracer)

	if _, err := c.Compile(context.Background(), "bad.gsm", []byte("int = 3;")); err == nil {
		t.Fatal("expected syntax error")
	}

	names := strings.Join(spanNames(sr), ",")
	if names != "lex,parse,compile" {
		t.Errorf("spans = %s, want lex,parse,compile", names)
	}
	for _, s := range sr.Ended() {
		if s.Name() == "parse" && s.Status().Code != codes.Error {
			t.Errorf("parse span status = %v, want error", s.Status())
		}
		if s.Name() == "compile" && s.Status().Description != metrics.StatusSyntaxError {
			t.Errorf("compile span status = %q", s.Status().Description)
		}
	}
}

func TestCompileCancelledBeforeLex(t *testing.T) {
	sr, withTracer := recorder(t)
	c := New(Options{Emit: EmitIR}, withTracer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Compile(ctx, "sample.gsm", []byte(sample)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	names := strings.Join(spanNames(sr), ",")
	if names != "lex,compile" {
		t.Errorf("spans = %s, want lex,compile", names)
	}
	for _, s := range sr.Ended() {
		if s.Name() == "lex" && s.Status().Code != codes.Error {
			t.Errorf("lex span status = %v, want error", s.Status())
		}
	}
}

func TestCompileLevelZeroSkipsOptimizer(t *testing.T) {
	sr, withTracer := recorder(t)
	c := New(Options{Emit: EmitIR, OptLevel: 0}, withTracer)

	res, err := c.Compile(context.Background(), "sample.gsm", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Total() != 0 {
		t.Errorf("level 0 made %d changes", res.Stats.Total())
	}
	for _, name := range spanNames(sr) {
		if name == "optimize" {
			t.Error("optimize span recorded at level 0")
		}
	}
}

func TestCompileResultVar(t *testing.T) {
	src := "int i, junk = 5, r; loopc i < 4: begin i += 1; junk = junk * 3; r += i; end"
	c := New(Options{Emit: EmitIR, OptLevel: 2, ResultVar: "r"})

	res, err := c.Compile(context.Background(), "dead.gsm", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(res.Output), "junk") {
		t.Errorf("dead variable survived:\n%s", res.Output)
	}
	if res.Stats["dead-slots"] == 0 {
		t.Errorf("no dead-slot changes recorded: %v", res.Stats)
	}
}

func TestCompileCache(t *testing.T) {
	ctx := context.Background()
	store, err := cache.Open(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "t", Subsystem: "driver"}, nil)
	c := New(Options{Emit: EmitLLVM}, WithCache(store), WithMetrics(collector))

	first, err := c.Compile(ctx, "a.gsm", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first compilation served from cache")
	}

	second, err := c.Compile(ctx, "a.gsm", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Fatal("second compilation missed the cache")
	}
	if string(second.Output) != string(first.Output) {
		t.Error("cached artifact differs from the compiled one")
	}
	if second.BuildID != first.BuildID {
		t.Errorf("cached build ID = %s, want %s", second.BuildID, first.BuildID)
	}

	// a different level is a different artifact
	other := New(Options{Emit: EmitLLVM, OptLevel: 2}, WithCache(store))
	res, err := other.Compile(ctx, "a.gsm", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("options were not part of the cache key")
	}

	if n, err := testutil.GatherAndCount(collector.Registry(), "t_driver_compilations_total"); err != nil || n != 2 {
		t.Errorf("compilation status series = %d (%v), want 2 (ok, cached)", n, err)
	}
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.gsm")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New(Options{Emit: EmitIR}).CompileFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != path {
		t.Errorf("source = %s, want %s", res.Source, path)
	}

	if _, err := New(Options{}).CompileFile(context.Background(), filepath.Join(t.TempDir(), "missing.gsm")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{"valid", sample, false},
		{"syntax", "int a = (1 + ;", true},
		{"undeclared", "a = 1;", true},
		{"redeclared", "int a; int a;", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(Options{OptLevel: 2}).Check(context.Background(), tt.name+".gsm", []byte(tt.src))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && res.Stats.Total() != 0 {
				t.Error("Check ran the optimizer")
			}
		})
	}
}

func TestRun(t *testing.T) {
	src := "int i, s; loopc i < 10: begin i += 1; s += i * i; end"

	for level := 0; level <= optimizer.MaxLevel; level++ {
		c := New(Options{OptLevel: level})
		_, out, err := c.Run(context.Background(), "squares.gsm", []byte(src), interp.Options{})
		if err != nil {
			t.Fatalf("O%d: %v", level, err)
		}
		if s, ok := out.Lookup("s"); !ok || s != 385 {
			t.Errorf("O%d: s = %d (found %v), want 385", level, s, ok)
		}
		if out.ExitCode != 0 {
			t.Errorf("O%d: exit code = %d", level, out.ExitCode)
		}
	}
}

func TestRunRuntimeError(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "t", Subsystem: "run"}, nil)
	c := New(Options{}, WithMetrics(collector))

	_, _, err := c.Run(context.Background(), "spin.gsm", []byte("int i; loopc i == 0: begin i = 0; end"), interp.Options{MaxSteps: 1000})
	if !errors.Is(err, interp.ErrStepLimit) {
		t.Fatalf("error = %v, want step limit", err)
	}
	if n, err := testutil.GatherAndCount(collector.Registry(), "t_run_runs_total"); err != nil || n != 1 {
		t.Errorf("runs series = %d (%v), want 1", n, err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Compile.OptLevel = 2
	cfg.Compile.Emit = "asm"
	cfg.Compile.ResultVar = "r"

	opts, err := OptionsFromConfig(&cfg.Compile)
	if err != nil {
		t.Fatal(err)
	}
	if opts.OptLevel != 2 || opts.Emit != "asm" || opts.ResultVar != "r" || opts.Profile != nil {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.MaxExponent == nil || *opts.MaxExponent != config.DefaultMaxExponent {
		t.Errorf("max exponent = %v, want %d", opts.MaxExponent, config.DefaultMaxExponent)
	}

	cfg.Compile.MaxExponent = 0
	opts, err = OptionsFromConfig(&cfg.Compile)
	if err != nil {
		t.Fatal(err)
	}
	if opts.MaxExponent == nil || *opts.MaxExponent != 0 {
		t.Errorf("explicit max exponent 0 became %v", opts.MaxExponent)
	}

	path := filepath.Join(t.TempDir(), "prof.json")
	if err := optimizer.NewProfile("main", map[string]uint64{"entry": 1}).Save(path); err != nil {
		t.Fatal(err)
	}
	cfg.Compile.Profile = path
	opts, err = OptionsFromConfig(&cfg.Compile)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Profile == nil || opts.Profile.Functions["main"] == nil {
		t.Errorf("profile not loaded: %+v", opts.Profile)
	}

	cfg.Compile.Profile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := OptionsFromConfig(&cfg.Compile); err == nil {
		t.Error("expected error for missing profile")
	}
}

func TestFingerprintCoversProfile(t *testing.T) {
	base := Options{Emit: EmitLLVM, OptLevel: 1}
	withProfile := base
	withProfile.Profile = optimizer.NewProfile("main", map[string]uint64{"entry": 1, "loop.body": 40})

	if base.fingerprint() == withProfile.fingerprint() {
		t.Error("profile does not change the fingerprint")
	}
}
