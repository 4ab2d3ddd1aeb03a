package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcentdev/soku/internal/build"
	"github.com/bcentdev/soku/internal/devserver"
	"github.com/spf13/cobra"
)

// updateChannelPath is the known path clients connect to for the Update
// Channel Server (spec.md §6: "Clients connect at a known path").
const updateChannelPath = "/__soku_hmr"

// idleSocketTimeout is spec.md §5's "the update-channel server times out
// idle sockets after a configurable interval."
const idleSocketTimeout = 5 * time.Minute

// newDevCmd implements the `dev` command from spec.md §6: "Build + Watcher
// + Update-Channel server."
func newDevCmd() *cobra.Command {
	flags := buildFlags{root: ".", outdir: "dist", mode: "development"}
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Build + Watcher + Update-Channel server",
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

			server := devserver.New(idleSocketTimeout)
			mux := http.NewServeMux()
			mux.HandleFunc(updateChannelPath, server.HandleWS)
			addr := fmt.Sprintf("%s:%d", host, port)
			httpServer := &http.Server{Addr: addr, Handler: mux}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				_ = httpServer.Close()
			}()

			errCh := make(chan error, 1)
			go func() {
				fmt.Fprintf(cmd.OutOrStdout(), "update channel listening on ws://%s%s\n", addr, updateChannelPath)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			loopErr := runDevLoop(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), pipeline, devLoopOptions{
				server: server,
			})

			select {
			case err := <-errCh:
				return fail(ExitFailure, "%w", err)
			default:
			}
			return loopErr
		},
	}
	cmd.Flags().StringVar(&flags.root, "root", ".", "project root directory")
	cmd.Flags().StringVar(&host, "host", "localhost", "host to bind the update channel server to")
	cmd.Flags().IntVar(&port, "port", 3000, "port to bind the update channel server to")
	return cmd
}
