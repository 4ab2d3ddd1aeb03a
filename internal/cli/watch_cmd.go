package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/bcentdev/soku/internal/build"
	"github.com/spf13/cobra"
)

// newWatchCmd implements the `watch` command from spec.md §6: "Build +
// Watcher (no server)."
func newWatchCmd() *cobra.Command {
	var flags buildFlags
	var clear, verbose bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build + Watcher (no server)",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runDevLoop(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), pipeline, devLoopOptions{
				clear:   clear,
				verbose: verbose,
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the terminal before each rebuild")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log every watched file event")
	return cmd
}
