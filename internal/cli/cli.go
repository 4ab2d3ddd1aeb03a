// Package cli is the argument-parsing front end spec.md §1 treats as an
// external collaborator of the core; it exists here only so the repo has a
// runnable entry point, per cmd/soku's package doc.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes from spec.md §6.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitConfig       = 2
	ExitDiagnostics  = 3
)

// exitError tags a cobra RunE error with the precise spec.md §6 exit code it
// should produce, instead of collapsing every failure to 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, args ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// Execute builds the root command, runs it against args, prints any error to
// stderr, and returns the process exit code spec.md §6 specifies.
func Execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ee, ok := err.(*exitError); ok {
			return ee.code
		}
		return ExitFailure
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "soku",
		Short:         "A sub-250ms JS/TS/CSS bundler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newBuildCmd(),
		newDevCmd(),
		newWatchCmd(),
		newPreviewCmd(),
		newInfoCmd(),
	)
	return root
}
