package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/driver"
	"github.com/gsm-lang/gsmc/pkg/linker"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

var buildOpts compileFlags

// hostArch is the instruction set build emits; compile.arch does not apply.
var hostArch = runtime.GOARCH

var buildCmd = &cobra.Command{
	Use:   "build <file>",
	Short: "Build a native executable",
	Long: `Compile a GSM program to assembly for the host architecture (amd64 or
arm64), assemble it with "as" and link it with the C compiler driver
(compile.cc). The executable's exit status is 0.

Examples:
  gsmc build prog.gsm
  gsmc build prog.gsm -O 2 -o bin/prog`,
	Args: cobra.ExactArgs(1),
	RunE: buildExecutable,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildOpts.register(buildCmd, false)
}

func buildExecutable(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !driver.SupportsArch(hostArch) {
		return fmt.Errorf("unsupported host architecture %s", hostArch)
	}
	opts, err := buildOpts.options(cmd)
	if err != nil {
		return err
	}
	opts.Emit = driver.EmitAsm
	opts.Arch = hostArch

	c, release, err := newCompiler(ctx, opts, newCollector())
	if err != nil {
		return err
	}
	defer release()

	res, err := c.CompileFile(ctx, args[0])
	if err != nil {
		return err
	}

	work, err := os.MkdirTemp("", "gsmc-build-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	asmPath := filepath.Join(work, "main.s")
	objPath := filepath.Join(work, "main.o")
	if err := os.WriteFile(asmPath, res.Output, 0o644); err != nil {
		return err
	}
	if err := linker.EmitObject(ctx, asmPath, objPath); err != nil {
		return err
	}

	output := buildOpts.output
	if output == "" {
		output = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	l := linker.New(cfg.Compile.Target, output, cfg.Compile.CC)
	l.AddObject(objPath)
	if err := l.Link(ctx); err != nil {
		return err
	}

	logger.Info("Built executable", "file", args[0], "output", output, "build_id", res.BuildID)
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
