// Package driver runs the GSM compilation pipeline.
//
// Design: one Compiler per configuration. Each call to Compile walks the
// phases lex, parse, codegen, verify, optimize and emit in order, with an
// OpenTelemetry span and a duration metric per phase. Parsing reports every
// syntax error before giving up; every later phase stops at its first error.
// A Compiler holds no per-compilation state, so independent files may be
// compiled concurrently.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gsm-lang/gsmc/pkg/cache"
	"github.com/gsm-lang/gsmc/pkg/codegen"
	"github.com/gsm-lang/gsmc/pkg/codegen/amd64"
	"github.com/gsm-lang/gsmc/pkg/codegen/arm64"
	"github.com/gsm-lang/gsmc/pkg/codegen/llvm"
	"github.com/gsm-lang/gsmc/pkg/config"
	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/interp"
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/linker"
	"github.com/gsm-lang/gsmc/pkg/logger"
	"github.com/gsm-lang/gsmc/pkg/metrics"
	"github.com/gsm-lang/gsmc/pkg/optimizer"
)

const tracerName = "github.com/gsm-lang/gsmc/pkg/driver"

// Output forms.
const (
	EmitIR   = "ir"
	EmitLLVM = "llvm"
	EmitAsm  = "asm"
)

// Options controls what a Compiler produces.
type Options struct {
	ModuleName string

	// MaxExponent bounds the literal exponent of "^". Nil selects
	// codegen.DefaultMaxExponent.
	MaxExponent *int

	OptLevel int
	Emit     string

	// ResultVar enables dead variable elimination at level 2.
	ResultVar string

	// Target selects the assembly symbol convention for EmitAsm.
	Target string

	// Arch selects the EmitAsm backend, "amd64" or "arm64". Empty means
	// the host.
	Arch string

	Profile *optimizer.Profile
}

// OptionsFromConfig converts the compile section of the configuration,
// loading the block profile it names.
func OptionsFromConfig(cfg *config.CompileConfig) (Options, error) {
	maxExp := cfg.MaxExponent
	opts := Options{
		ModuleName:  cfg.ModuleName,
		MaxExponent: &maxExp,
		OptLevel:    cfg.OptLevel,
		Emit:        cfg.Emit,
		ResultVar:   cfg.ResultVar,
		Target:      cfg.Target,
		Arch:        cfg.Arch,
	}
	if cfg.Profile != "" {
		profile, err := optimizer.LoadProfile(cfg.Profile)
		if err != nil {
			return opts, err
		}
		opts.Profile = profile
	}
	return opts, nil
}

// SupportsArch reports whether EmitAsm has a backend for arch.
func SupportsArch(arch string) bool {
	return arch == "amd64" || arch == "arm64"
}

// fingerprint renders every option that affects the artifact.
func (o Options) fingerprint() string {
	maxExp := codegen.DefaultMaxExponent
	if o.MaxExponent != nil {
		maxExp = *o.MaxExponent
	}
	s := fmt.Sprintf("module=%s maxexp=%d O%d emit=%s result=%s target=%s arch=%s",
		o.ModuleName, maxExp, o.OptLevel, o.Emit, o.ResultVar, o.Target, o.Arch)
	if o.Profile != nil {
		// map keys marshal sorted
		if data, err := json.Marshal(o.Profile); err == nil {
			s += " profile=" + string(data)
		}
	}
	return s
}

// Result is one finished compilation.
type Result struct {
	BuildID string
	Source  string

	// Program and Module are nil for results served from the cache.
	Program *frontend.Program
	Module  *ir.Module

	Output   []byte
	Stats    optimizer.Stats
	Cached   bool
	Duration time.Duration
}

type Compiler struct {
	opts    Options
	cache   *cache.Cache
	metrics *metrics.Collector
	tracer  trace.Tracer
}

type Option func(*Compiler)

// WithCache serves and stores artifacts through c.
func WithCache(c *cache.Cache) Option {
	return func(cc *Compiler) { cc.cache = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Compiler) { c.metrics = m }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Compiler) { c.tracer = tp.Tracer(tracerName) }
}

func New(opts Options, options ...Option) *Compiler {
	if opts.ModuleName == "" {
		opts.ModuleName = codegen.DefaultModuleName
	}
	if opts.MaxExponent == nil {
		n := codegen.DefaultMaxExponent
		opts.MaxExponent = &n
	}
	if opts.Emit == "" {
		opts.Emit = EmitLLVM
	}
	if opts.Arch == "" {
		opts.Arch = runtime.GOARCH
	}
	if opts.OptLevel > optimizer.MaxLevel {
		opts.OptLevel = optimizer.MaxLevel
	}

	c := &Compiler{
		opts:    opts,
		metrics: metrics.Disabled(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Compiler) Options() Options { return c.opts }

// CompileFile reads path and compiles it.
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return c.Compile(ctx, path, src)
}

// Compile turns src into the configured output form. name labels
// diagnostics, logs and spans.
func (c *Compiler) Compile(ctx context.Context, name string, src []byte) (*Result, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "compile", trace.WithAttributes(
		attribute.String("gsm.file", name),
		attribute.String("gsm.emit", c.opts.Emit),
		attribute.Int("gsm.opt_level", c.opts.OptLevel),
	))
	defer span.End()

	res, err := c.compile(ctx, name, src)
	elapsed := time.Since(start)

	status := statusOf(err)
	if err == nil && res.Cached {
		status = metrics.StatusCached
	}
	c.metrics.RecordCompilation(status, elapsed)
	logger.LogCompilerComplete(name, err == nil, elapsed.String())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return nil, err
	}
	res.Duration = elapsed
	span.SetAttributes(
		attribute.String("gsm.build_id", res.BuildID),
		attribute.Bool("gsm.cached", res.Cached),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, name string, src []byte) (*Result, error) {
	var key string
	if c.cache != nil {
		key = cache.Key(src, c.opts.fingerprint())
		entry, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn("Artifact cache lookup failed", "file", name, "error", err)
		case ok:
			c.metrics.RecordCacheHit()
			return &Result{BuildID: entry.ID, Source: name, Output: entry.Artifact, Cached: true}, nil
		default:
			c.metrics.RecordCacheMiss()
		}
	}

	res, err := c.build(ctx, name, src, c.opts.OptLevel)
	if err != nil {
		return nil, err
	}

	if err := c.phase(ctx, "emit", name, func(ctx context.Context, span trace.Span) error {
		out, err := c.emit(res.Module)
		if err != nil {
			return err
		}
		res.Output = out
		span.SetAttributes(attribute.Int("gsm.output_bytes", len(out)))
		return nil
	}); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.store(ctx, key, res)
	}
	return res, nil
}

func (c *Compiler) store(ctx context.Context, key string, res *Result) {
	entry := &cache.Entry{
		ID:       res.BuildID,
		Key:      key,
		Source:   res.Source,
		Emit:     c.opts.Emit,
		Artifact: res.Output,
	}
	if err := c.cache.Put(ctx, entry); err != nil {
		logger.Warn("Failed to store artifact", "file", res.Source, "error", err)
		return
	}
	if n, err := c.cache.Len(ctx); err == nil {
		c.metrics.SetCacheEntries(n)
	}
}

// Check parses and generates src without optimizing or emitting. The
// returned error lists every syntax error, or the first generation error.
func (c *Compiler) Check(ctx context.Context, name string, src []byte) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "check", trace.WithAttributes(attribute.String("gsm.file", name)))
	defer span.End()

	res, err := c.build(ctx, name, src, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, statusOf(err))
		return nil, err
	}
	return res, nil
}

// Run compiles src at the configured level and executes it.
func (c *Compiler) Run(ctx context.Context, name string, src []byte, opts interp.Options) (*Result, *interp.Result, error) {
	ctx, span := c.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("gsm.file", name)))
	defer span.End()

	res, err := c.build(ctx, name, src, c.opts.OptLevel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, statusOf(err))
		return nil, nil, err
	}

	var out *interp.Result
	err = c.phase(ctx, "execute", name, func(ctx context.Context, span trace.Span) error {
		var err error
		out, err = interp.Run(ctx, res.Module, opts)
		if out != nil {
			span.SetAttributes(
				attribute.Int("gsm.steps", out.Steps),
				attribute.Int("gsm.exit_code", int(out.ExitCode)),
			)
		}
		return err
	})

	steps := 0
	if out != nil {
		steps = out.Steps
	}
	if err != nil {
		c.metrics.RecordRun(metrics.StatusError, steps)
		return res, nil, err
	}
	c.metrics.RecordRun(metrics.StatusOK, steps)
	return res, out, nil
}

// build runs every phase up to and including optimization.
func (c *Compiler) build(ctx context.Context, name string, src []byte, level int) (*Result, error) {
	res := &Result{BuildID: uuid.NewString(), Source: name}
	log := logger.With("build_id", res.BuildID)
	log.Debug("Compiling", "file", name, "bytes", len(src))

	var tokens []frontend.Token
	if err := c.phase(ctx, "lex", name, func(ctx context.Context, span trace.Span) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tokens = frontend.Tokenize(string(src))
		logger.LogLexing(name, len(tokens))
		span.SetAttributes(attribute.Int("gsm.tokens", len(tokens)))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := c.phase(ctx, "parse", name, func(ctx context.Context, span trace.Span) error {
		p := frontend.NewParser(tokens)
		prog, _ := p.Parse()
		errs := &frontend.ErrorList{Errors: p.Errors()}
		errs.SetFile(name)

		logger.LogParsing(name, len(prog.Stmts), errs.Count())
		span.SetAttributes(
			attribute.Int("gsm.statements", len(prog.Stmts)),
			attribute.Int("gsm.syntax_errors", errs.Count()),
		)
		for _, e := range errs.Errors {
			logger.LogError("parse", name, e.Pos.Line, e.Message)
		}
		c.metrics.RecordSyntaxErrors(errs.Count())

		res.Program = prog
		return errs.ToError()
	}); err != nil {
		return nil, err
	}

	if err := c.phase(ctx, "codegen", name, func(ctx context.Context, span trace.Span) error {
		m, err := codegen.Generate(res.Program,
			codegen.WithModuleName(c.opts.ModuleName),
			codegen.WithMaxExponent(*c.opts.MaxExponent),
		)
		if err != nil {
			var genErr *codegen.GenError
			if errors.As(err, &genErr) {
				logger.LogError("codegen", name, genErr.Pos.Line, genErr.Message)
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		res.Module = m
		blocks, insts := moduleSize(m)
		logger.LogIRGeneration(name, blocks, insts)
		span.SetAttributes(attribute.Int("gsm.blocks", blocks), attribute.Int("gsm.instructions", insts))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := c.phase(ctx, "verify", name, func(ctx context.Context, span trace.Span) error {
		return ir.Verify(res.Module)
	}); err != nil {
		return nil, err
	}

	if level > 0 {
		if err := c.phase(ctx, "optimize", name, func(ctx context.Context, span trace.Span) error {
			opts := optimizer.Options{Level: level, Profile: c.opts.Profile}
			if c.opts.ResultVar != "" {
				opts.Live = frontend.LiveDeclarations(res.Program, c.opts.ResultVar)
			}
			stats, err := optimizer.Optimize(res.Module, opts)
			res.Stats = stats
			for _, pass := range stats.Passes() {
				c.metrics.RecordOptimization(pass, stats[pass])
			}
			span.SetAttributes(attribute.Int("gsm.changes", stats.Total()))
			return err
		}); err != nil {
			return nil, err
		}
	}

	_, insts := moduleSize(res.Module)
	c.metrics.RecordModuleSize(insts)
	return res, nil
}

func (c *Compiler) emit(m *ir.Module) ([]byte, error) {
	switch c.opts.Emit {
	case EmitIR:
		return []byte(m.String()), nil

	case EmitLLVM:
		var buf bytes.Buffer
		if err := llvm.Emit(&buf, m); err != nil {
			return nil, err
		}
		logger.LogCodeGen("llvm", "main", moduleInsts(m))
		return buf.Bytes(), nil

	case EmitAsm:
		var (
			asm string
			err error
		)
		prefix := linker.SymbolPrefix(c.opts.Target)
		switch c.opts.Arch {
		case "amd64":
			g := amd64.NewGenerator(nil)
			g.SymbolPrefix = prefix
			asm, err = g.GenerateWithValidation(m)
		case "arm64":
			g := arm64.NewGenerator(nil)
			g.SymbolPrefix = prefix
			asm, err = g.GenerateWithValidation(m)
		default:
			return nil, fmt.Errorf("unsupported architecture %q", c.opts.Arch)
		}
		if err != nil {
			return nil, err
		}
		logger.LogCodeGen(c.opts.Arch, "main", moduleInsts(m))
		return []byte(asm), nil
	}
	return nil, fmt.Errorf("unknown output form %q", c.opts.Emit)
}

// phase runs fn inside a child span and records its duration.
func (c *Compiler) phase(ctx context.Context, name, file string, fn func(context.Context, trace.Span) error) error {
	ctx, span := c.tracer.Start(ctx, name)
	defer span.End()

	logger.LogPhase(name, file)
	start := time.Now()
	err := fn(ctx, span)
	c.metrics.RecordPhase(name, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.LogPhaseComplete(name, file)
	return nil
}

func moduleSize(m *ir.Module) (blocks, insts int) {
	for _, fn := range m.Functions {
		blocks += len(fn.Blocks)
		insts += fn.InstCount()
	}
	return blocks, insts
}

func moduleInsts(m *ir.Module) int {
	_, n := moduleSize(m)
	return n
}

func statusOf(err error) string {
	if err == nil {
		return metrics.StatusOK
	}
	var syntax *frontend.ErrorList
	if errors.As(err, &syntax) {
		return metrics.StatusSyntaxError
	}
	var gen *codegen.GenError
	if errors.As(err, &gen) {
		return metrics.StatusGenError
	}
	return metrics.StatusError
}
