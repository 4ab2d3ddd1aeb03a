package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// newPreviewCmd implements the `preview` command: a static file server for a
// pre-built output directory. Spec.md §1 externalizes "the static preview
// HTTP server" as a front-end collaborator, but a repo still needs *a*
// preview path to be runnable end to end (grounded on the teacher's own
// cmd/esbuild serve mode), so a minimal net/http one lives here.
func newPreviewCmd() *cobra.Command {
	var dir string
	var port int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Static file server for a pre-built output",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := fmt.Sprintf(":%d", port)
			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on http://localhost%s\n", dir, addr)
			server := &http.Server{Addr: addr, Handler: http.FileServer(http.Dir(dir))}
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fail(ExitFailure, "%w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "dist", "directory to serve")
	cmd.Flags().IntVar(&port, "port", 4173, "port to listen on")
	return cmd
}
