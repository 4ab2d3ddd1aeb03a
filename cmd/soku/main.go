// Command soku is the thin CLI front end over the build pipeline in
// internal/build, internal/incremental, internal/watcher, internal/hmr, and
// internal/devserver. Argument parsing, the terminal UI, and opinionated log
// presentation are explicitly out of this repo's core scope (spec.md §1),
// but a runnable entry point still has to exist to exercise that core end to
// end, the same way esbuild's cmd/esbuild is a thin shell over pkg/api.
package main

import (
	"os"

	"github.com/bcentdev/soku/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
