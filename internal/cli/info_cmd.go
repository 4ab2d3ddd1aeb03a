package cli

import (
	"fmt"
	"runtime"

	"github.com/bcentdev/soku/internal/config"
	"github.com/spf13/cobra"
)

// newInfoCmd implements the `info` command from spec.md §6: "Prints version
// and environment."
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Prints version and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "soku %s\n", config.CurrentToolVersion)
			fmt.Fprintf(out, "go %s\n", runtime.Version())
			fmt.Fprintf(out, "%s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "cpus %d\n", runtime.NumCPU())
			return nil
		},
	}
}
