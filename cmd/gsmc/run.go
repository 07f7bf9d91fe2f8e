package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/interp"
	"github.com/gsm-lang/gsmc/pkg/logger"
	"github.com/gsm-lang/gsmc/pkg/optimizer"
)

var runFlags struct {
	compileFlags
	maxSteps int
	profile  string
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute a GSM program",
	Long: `Compile a GSM program and execute it with the IR interpreter, then
print the final value of every variable.

With --profile, block execution counts are written as a profile that
"gsmc compile" can use (compile.profile) to lay out hot blocks first.

Examples:
  gsmc run prog.gsm
  gsmc run prog.gsm --max-steps 1000 --profile prog.prof`,
	Args: cobra.ExactArgs(1),
	RunE: runSource,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runFlags.optLevel, "opt-level", "O", 1, "optimization level 0-2")
	runCmd.Flags().IntVar(&runFlags.maxSteps, "max-steps", 0, "instruction limit (default from config)")
	runCmd.Flags().StringVar(&runFlags.profile, "profile", "", "write a block profile to this file")
}

func runSource(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := runFlags.options(cmd)
	if err != nil {
		return err
	}
	// layout does not change results
	opts.Profile = nil

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	steps := cfg.Run.MaxSteps
	if cmd.Flags().Changed("max-steps") {
		steps = runFlags.maxSteps
	}

	c, release, err := newCompiler(ctx, opts, newCollector())
	if err != nil {
		return err
	}
	defer release()

	_, res, err := c.Run(ctx, args[0], src, interp.Options{MaxSteps: steps})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, v := range res.Vars {
		fmt.Fprintf(out, "%s = %d\n", v.Name, v.Value)
	}
	logger.Info("Program finished", "file", args[0], "exit_code", res.ExitCode, "steps", res.Steps)

	if runFlags.profile != "" {
		if err := optimizer.NewProfile("main", res.Blocks).Save(runFlags.profile); err != nil {
			return err
		}
		logger.Info("Wrote block profile", "path", runFlags.profile)
	}
	return nil
}
