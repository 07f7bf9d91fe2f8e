package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/cache"
	"github.com/gsm-lang/gsmc/pkg/driver"
	"github.com/gsm-lang/gsmc/pkg/metrics"
)

// compileFlags are shared by the commands that produce output.
type compileFlags struct {
	output   string
	emit     string
	optLevel int
}

func (f *compileFlags) register(cmd *cobra.Command, withEmit bool) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVarP(&f.optLevel, "opt-level", "O", 1, "optimization level 0-2")
	if withEmit {
		cmd.Flags().StringVar(&f.emit, "emit", "", "output form: ir, llvm, asm (default from config)")
	}
}

// options merges the compile section of the configuration with the flags
// the user actually set.
func (f *compileFlags) options(cmd *cobra.Command) (driver.Options, error) {
	opts, err := driver.OptionsFromConfig(&cfg.Compile)
	if err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("emit") {
		opts.Emit = f.emit
	}
	if cmd.Flags().Changed("opt-level") {
		if f.optLevel < 0 || f.optLevel > 2 {
			return opts, fmt.Errorf("invalid optimization level %d", f.optLevel)
		}
		opts.OptLevel = f.optLevel
	}
	return opts, nil
}

// newCompiler wires the cache and metrics from the configuration. The
// returned function releases the cache.
func newCompiler(ctx context.Context, opts driver.Options, collector *metrics.Collector) (*driver.Compiler, func(), error) {
	options := []driver.Option{driver.WithMetrics(collector)}
	release := func() {}

	if cfg.Cache.Enabled {
		store, err := cache.Open(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		options = append(options, driver.WithCache(store))
		release = func() { store.Close() }
	}
	return driver.New(opts, options...), release, nil
}

// newCollector returns a Prometheus collector when metrics are enabled.
func newCollector() *metrics.Collector {
	if !cfg.Metrics.Enabled {
		return metrics.Disabled()
	}
	return metrics.NewCollector(&cfg.Metrics, nil)
}
