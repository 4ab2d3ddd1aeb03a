package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bcentdev/soku/internal/build"
	"github.com/bcentdev/soku/internal/devserver"
	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/hmr"
	"github.com/bcentdev/soku/internal/incremental"
	"github.com/bcentdev/soku/internal/logger"
	"github.com/bcentdev/soku/internal/watcher"
)

// devLoopOptions configures the shared watch/dev rebuild loop. server is nil
// for `watch` (spec.md §6: "Build + Watcher (no server)").
type devLoopOptions struct {
	clear   bool
	verbose bool
	server  *devserver.Server
	now     func() time.Time
}

// runDevLoop implements spec.md §2's dev-mode control flow: "Watcher ->
// Incremental Engine -> Graph Builder (partial) -> Hot-Update Dispatcher ->
// Update Channel." It runs the initial full build, then reacts to coalesced
// filesystem events until ctx is cancelled.
func runDevLoop(ctx context.Context, stdout, stderr io.Writer, pipeline *build.Pipeline, opts devLoopOptions) error {
	if opts.now == nil {
		opts.now = time.Now
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		return fail(ExitFailure, "%w", err)
	}
	reportBuild(stdout, stderr, result, opts.clear)

	dispatcher := hmr.NewDispatcher()
	hadErrors := result.Log.HasErrors()
	if opts.server != nil && hadErrors {
		broadcastErrors(opts.server, dispatcher, result.Log, opts.now())
	}

	engine := &incremental.Engine{
		Graph:       result.Graph,
		Builder:     pipeline.Builder(),
		Log:         result.Log,
		TreeShaking: pipeline.Cfg.TreeShaking,
		ChunkPlan:   pipeline.ChunkPlan(),
	}

	w, err := watcher.New(watcher.Options{
		Root:     pipeline.Cfg.Root,
		OutDir:   pipeline.Cfg.Outdir,
		CacheDir: filepath.Join(pipeline.Cfg.Root, ".cache"),
		IsModulePath: func(path string) bool {
			_, ok := engine.Graph.Get(graph.CanonicalId(path))
			return ok
		},
		IsConfigFile: func(path string) bool {
			base := filepath.Base(path)
			return strings.Contains(base, ".config.") || base == "package.json"
		},
	})
	if err != nil {
		return fail(ExitFailure, "watcher: %w", err)
	}
	defer w.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	w.Run(done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			handleEvent(stdout, stderr, pipeline, engine, dispatcher, opts, ev, &hadErrors)
		}
	}
}

func handleEvent(stdout, stderr io.Writer, pipeline *build.Pipeline, engine *incremental.Engine,
	dispatcher *hmr.Dispatcher, opts devLoopOptions, ev watcher.Event, hadErrors *bool) {

	if opts.verbose {
		fmt.Fprintf(stdout, "[watch] %s\n", ev.Path)
	}

	switch ev.Kind {
	case watcher.ConfigChanged:
		// A changed package.json invalidates the long-lived resolver's
		// manifest and resolution caches for that directory before the full
		// rebuild re-resolves through it.
		if filepath.Base(ev.Path) == "package.json" {
			pipeline.Resolver.InvalidateManifest(filepath.Dir(ev.Path))
		}
		rebuildFull(stdout, stderr, pipeline, engine, dispatcher, opts, hadErrors)
		return
	case watcher.Removed:
		rebuildFull(stdout, stderr, pipeline, engine, dispatcher, opts, hadErrors)
		return
	}

	id := graph.CanonicalId(ev.Path)
	if incremental.Unchanged(engine.Graph, pipeline.Loader, id) {
		return
	}

	update, err := engine.Apply(context.Background(), id)
	if err != nil {
		rebuildFull(stdout, stderr, pipeline, engine, dispatcher, opts, hadErrors)
		return
	}

	if _, err := pipeline.EmitChunks(engine.Graph, update.Chunks); err != nil {
		engine.Log.AddError(logger.KindIO, nil, err.Error())
	}

	if engine.Log.HasErrors() {
		*hadErrors = true
		printDiagnosticsTo(stderr, engine.Log)
		if opts.server != nil {
			broadcastErrors(opts.server, dispatcher, engine.Log, opts.now())
		}
		return
	}

	if *hadErrors {
		*hadErrors = false
		if opts.server != nil {
			opts.server.Broadcast(dispatcher.BuildOk(opts.now()))
		}
	}

	kind, affected := hmr.Classify(engine.Graph, id, update.ExportsChanged)
	fmt.Fprintf(stdout, "[hmr] %s: %s\n", kind, id)
	if opts.server != nil {
		opts.server.Broadcast(dispatcher.Build(kind, affected, opts.now()))
	}
}

func rebuildFull(stdout, stderr io.Writer, pipeline *build.Pipeline, engine *incremental.Engine, dispatcher *hmr.Dispatcher, opts devLoopOptions, hadErrors *bool) {
	result, err := pipeline.Run(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return
	}
	reportBuild(stdout, stderr, result, opts.clear)

	// A full rebuild replaces the graph, its log, and the builder's cached
	// resolver/loader state in lockstep, so targeted Reprocess calls after
	// this point read the modules a full rebuild just produced instead of
	// the stale pre-rebuild graph (spec.md §4.7's Removed/ConfigChanged path
	// always falls back to a full rebuild before resuming incremental work).
	engine.Graph = result.Graph
	engine.Log = result.Log
	engine.Builder = pipeline.Builder()

	*hadErrors = result.Log.HasErrors()
	if opts.server == nil {
		return
	}
	if *hadErrors {
		broadcastErrors(opts.server, dispatcher, result.Log, opts.now())
		return
	}
	opts.server.Broadcast(dispatcher.Build(hmr.FullReload, nil, opts.now()))
}

func broadcastErrors(server *devserver.Server, dispatcher *hmr.Dispatcher, log *logger.Log, now time.Time) {
	for _, msg := range log.Done() {
		if msg.Severity != logger.Error {
			continue
		}
		server.Broadcast(dispatcher.BuildError(msg, now))
	}
}

func reportBuild(stdout, stderr io.Writer, result *build.Result, clear bool) {
	if clear {
		fmt.Fprint(stdout, "\033[H\033[2J")
	}
	printDiagnosticsTo(stderr, result.Log)
	if result.Log.HasErrors() {
		fmt.Fprintln(stderr, "build failed")
		return
	}
	fmt.Fprintf(stdout, "built %d module(s) into %d chunk(s)\n", result.Graph.Len(), len(result.Chunks))
}

func printDiagnosticsTo(w io.Writer, log *logger.Log) {
	for _, msg := range log.Done() {
		fmt.Fprintln(w, msg.Excerpt())
	}
}
