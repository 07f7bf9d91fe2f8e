package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/driver"
	"github.com/gsm-lang/gsmc/pkg/logger"
	"github.com/gsm-lang/gsmc/pkg/metrics"
	"github.com/gsm-lang/gsmc/pkg/watch"
)

var watchFlags struct {
	compileFlags
	metricsAddr string
}

var watchCmd = &cobra.Command{
	Use:   "watch <file|dir>",
	Short: "Recompile sources when they change",
	Long: `Watch a file or directory and recompile every changed source. Output is
written next to the source with an extension for the output form (.ll, .s
or .ir).

With metrics enabled (metrics.enabled or --metrics-addr), Prometheus metrics
are served at /metrics while watching.`,
	Args: cobra.ExactArgs(1),
	RunE: watchSources,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchFlags.emit, "emit", "", "output form: ir, llvm, asm (default from config)")
	watchCmd.Flags().IntVarP(&watchFlags.optLevel, "opt-level", "O", 1, "optimization level 0-2")
	watchCmd.Flags().StringVar(&watchFlags.metricsAddr, "metrics-addr", "", "serve /metrics on this address")
}

func outputPath(src, emit string) string {
	ext := map[string]string{driver.EmitLLVM: ".ll", driver.EmitAsm: ".s", driver.EmitIR: ".ir"}[emit]
	return strings.TrimSuffix(src, filepath.Ext(src)) + ext
}

func watchSources(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := watchFlags.options(cmd)
	if err != nil {
		return err
	}

	if watchFlags.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = watchFlags.metricsAddr
	}
	collector := newCollector()
	if collector.Enabled() {
		srv := serveMetrics(cfg.Metrics.ListenAddress, collector)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	c, release, err := newCompiler(ctx, opts, collector)
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()
	rebuild := func(path string) error {
		res, err := c.CompileFile(ctx, path)
		if err != nil {
			fmt.Fprintln(out, err)
			return nil
		}
		dst := outputPath(path, c.Options().Emit)
		if err := os.WriteFile(dst, res.Output, 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(out, "%s -> %s (%s)\n", path, dst, res.Duration.Round(time.Microsecond))
		return nil
	}

	wcfg := watch.DefaultConfig(args[0])
	wcfg.Debounce = cfg.Watch.Debounce
	wcfg.Extensions = cfg.Watch.Extensions
	w, err := watch.New(wcfg)
	if err != nil {
		return err
	}

	if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
		if err := rebuild(args[0]); err != nil {
			return err
		}
	}
	return w.Watch(ctx, rebuild)
}

func serveMetrics(addr string, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
