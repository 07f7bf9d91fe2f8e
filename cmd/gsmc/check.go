package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsm-lang/gsmc/pkg/driver"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Report syntax and semantic errors",
	Long: `Parse and generate IR for each file without emitting anything.

Every syntax error in a file is reported; generation stops at the first
semantic error (undeclared or re-declared variable, bad exponent).`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkSources,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkSources(cmd *cobra.Command, args []string) error {
	opts, err := driver.OptionsFromConfig(&cfg.Compile)
	if err != nil {
		return err
	}
	c := driver.New(opts, driver.WithMetrics(newCollector()))

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
		if _, err := c.Check(cmd.Context(), path, src); err != nil {
			fmt.Fprintln(out, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files have errors", failed, len(args))
	}
	return nil
}
