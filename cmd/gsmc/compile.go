package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/logger"
)

var compileOpts compileFlags

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Compile a GSM program",
	Long: `Compile a GSM program to textual IR, LLVM IR or amd64/arm64 assembly
(compile.arch, default the host).

Examples:
  # LLVM IR on stdout
  gsmc compile prog.gsm

  # Assembly at -O2 into a file
  gsmc compile prog.gsm --emit asm -O 2 -o prog.s`,
	Args: cobra.ExactArgs(1),
	RunE: compileSource,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileOpts.register(compileCmd, true)
}

func compileSource(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := compileOpts.options(cmd)
	if err != nil {
		return err
	}

	c, release, err := newCompiler(ctx, opts, newCollector())
	if err != nil {
		return err
	}
	defer release()

	res, err := c.CompileFile(ctx, args[0])
	if err != nil {
		return err
	}
	logger.Info("Compiled", "file", args[0], "build_id", res.BuildID, "cached", res.Cached, "duration", res.Duration)

	if compileOpts.output == "" {
		_, err = cmd.OutOrStdout().Write(res.Output)
		return err
	}
	if err := os.WriteFile(compileOpts.output, res.Output, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
