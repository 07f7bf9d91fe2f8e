package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/config"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	logFormat string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gsmc",
	Short: "gsmc - compiler for the GSM language",
	Long: `gsmc compiles GSM programs to LLVM IR, amd64/arm64 assembly or native executables.

Configuration is read from gsmc.yaml in the working directory when present,
or from the file given with --config, and can be overridden with GSMC_*
environment variables.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default gsmc.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")
}

// setup loads the configuration and initializes logging.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if verbose {
		loaded.Log.Level = "debug"
	}
	if logFormat != "" {
		loaded.Log.Format = logFormat
	}

	level, err := logger.ParseLevel(loaded.Log.Level)
	if err != nil {
		return err
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = level
	logCfg.Format = loaded.Log.Format
	logCfg.Output = cmd.ErrOrStderr()
	logCfg.LogFile = loaded.Log.File
	logCfg.AddSource = verbose
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.LogCompilerStart(os.Args[1:])
	cfg = loaded
	return nil
}
