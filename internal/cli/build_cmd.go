package cli

import (
	"context"
	"fmt"

	"github.com/bcentdev/soku/internal/build"
	"github.com/bcentdev/soku/internal/logger"
	"github.com/spf13/cobra"
)

// newBuildCmd implements the `build` command from spec.md §6: a one-shot
// production build.
func newBuildCmd() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "One-shot production build",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runBuild(cmd *cobra.Command, flags *buildFlags) error {
	cfg, env, err := flags.loadConfig()
	if err != nil {
		return fail(ExitConfig, "%w", err)
	}
	if len(cfg.Entries) == 0 {
		return fail(ExitConfig, "no entries configured: add \"entry\" or \"entries\" to soku.config.json")
	}

	pipeline, err := build.New(cfg, env)
	if err != nil {
		return fail(ExitFailure, "%w", err)
	}
	defer pipeline.Close()

	result, err := pipeline.Run(context.Background())
	if err != nil {
		return fail(ExitFailure, "%w", err)
	}

	printDiagnostics(cmd, result.Log)
	if result.Log.HasErrors() {
		return fail(ExitDiagnostics, "build failed with %d error(s)", countErrors(result.Log))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %d module(s) into %d chunk(s) -> %s\n",
		result.Graph.Len(), len(result.Chunks), cfg.Outdir)
	return nil
}

func printDiagnostics(cmd *cobra.Command, log *logger.Log) {
	for _, msg := range log.Done() {
		fmt.Fprintln(cmd.ErrOrStderr(), msg.Excerpt())
	}
}

func countErrors(log *logger.Log) int {
	n := 0
	for _, msg := range log.Done() {
		if msg.Severity == logger.Error {
			n++
		}
	}
	return n
}
