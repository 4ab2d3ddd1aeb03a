// Package build is the driver that wires the Resolver, Loader,
// Parser/Transformer, Graph Builder, Tree Shaker, Chunker, and Emitter into
// one production build, per spec.md §2's control flow: "entries -> Graph
// Builder (parallel DAG expansion) -> Tree Shaker -> Chunker -> Emitter."
package build

import (
	"context"
	"fmt"
	"runtime"

	"github.com/bcentdev/soku/internal/bundler"
	"github.com/bcentdev/soku/internal/cache"
	"github.com/bcentdev/soku/internal/config"
	"github.com/bcentdev/soku/internal/fingerprint"
	gofs "github.com/bcentdev/soku/internal/fs"
	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/graphbuild"
	"github.com/bcentdev/soku/internal/logger"
	"github.com/bcentdev/soku/internal/resolver"
	"github.com/bcentdev/soku/internal/transform"
	"github.com/bcentdev/soku/internal/treeshake"
)

// defaultJSXFactory/Fragment/CSSModuleScheme are not configurable from the
// project config file (spec.md §6 enumerates that file's recognized keys
// and none of them name a JSX factory or CSS-module hash scheme), so a
// single fixed default ships for both, mirroring a common bundler default
// (React's historical createElement/Fragment contract).
const (
	defaultJSXFactory      = "createElement"
	defaultJSXFragment     = "Fragment"
	defaultCSSModuleScheme = "hash5"
)

// Pipeline bundles the long-lived collaborators a build (or an incremental
// rebuild) needs: the persistent cache, the resolver, and the loader all
// outlive a single Run call so dev-mode rebuilds reuse their warm state.
type Pipeline struct {
	Cfg      *config.BuildConfig
	Env      map[string]string
	Cache    *cache.Store
	Resolver *resolver.Resolver
	Loader   *gofs.Loader
	Log      *logger.Log

	configHash fingerprint.Hash
	builder    *graphbuild.Builder
}

// Result is one build's output: the completed graph, its chunk plan, and an
// optional analysis manifest, alongside the diagnostic log.
type Result struct {
	Graph    *graph.ModuleGraph
	Chunks   []bundler.Chunk
	Manifest []bundler.ManifestEntry
	Log      *logger.Log
}

// New constructs a Pipeline, opening the persistent cache at cfg.Root per
// spec.md §6's cache layout.
func New(cfg *config.BuildConfig, env map[string]string) (*Pipeline, error) {
	store, err := cache.Open(cfg.Root)
	if err != nil {
		return nil, err
	}

	conditions := []string{"import", "require", "default"}
	if cfg.Mode == config.ModeDevelopment {
		conditions = append([]string{"development"}, conditions...)
	}
	conditions = append([]string{"browser"}, conditions...)

	res := resolver.New(resolver.Options{
		Root:       cfg.Root,
		Alias:      cfg.Alias,
		External:   cfg.External,
		Conditions: conditions,
		IsBrowser:  true,
	})

	p := &Pipeline{
		Cfg:      cfg,
		Env:      env,
		Cache:    store,
		Resolver: res,
		Loader:   gofs.NewLoader(),
		Log:      logger.NewLog(),
	}
	p.configHash = cfg.ConfigHash(defaultJSXFactory, defaultJSXFragment, defaultCSSModuleScheme, conditions)
	return p, nil
}

// Close releases the pipeline's cache handle (spec.md §9: "an init (open
// store) and teardown (flush + close)").
func (p *Pipeline) Close() error {
	return p.Cache.Close()
}

func (p *Pipeline) transformOpts(kind graph.ModuleKind) transform.Options {
	strategy := p.Cfg.Strategy
	return transform.Options{
		Strategy:        strategy,
		JSXFactory:      defaultJSXFactory,
		JSXFragment:     defaultJSXFragment,
		Define:          config.DefineTable(p.Cfg.Define, p.Env),
		CSSModules:      kind == graph.KindCssModule,
		Minify:          p.Cfg.Minify,
		SourceMaps:      p.Cfg.SourceMaps,
		CSSModuleScheme: defaultCSSModuleScheme,
	}
}

// Run executes one full build: graph expansion, optional tree shaking,
// chunking, and emission. It fails with a non-nil error only for conditions
// spec.md §7 calls "Configuration" (abort before workers start); per-module
// failures are diagnostics in the returned Result.Log and the caller decides
// the exit code via Log.HasErrors().
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if len(p.Cfg.Entries) == 0 {
		return nil, fmt.Errorf("build: no entries configured")
	}

	log := logger.NewLog()
	p.Log = log

	if p.Cfg.Strategy == transform.StrategyAuto {
		p.Cfg.Strategy = p.detectStrategy()
	}

	// A prior session's graph record under the same entries + config means
	// every unchanged file will replay out of the entry cache below; surface
	// the warm-start size in dev mode. (Changed files re-key themselves:
	// their new content hash simply misses, spec.md §4.4.)
	if p.Cfg.Mode == config.ModeDevelopment {
		if rec, ok := p.Cache.GetGraph(cache.GraphKey(p.Cfg.Entries, p.configHash)); ok {
			log.Add(logger.Msg{Severity: logger.Note, Kind: logger.KindCache,
				Text: fmt.Sprintf("warm cache: graph record holds %d module(s) from a previous session", len(rec.ModuleFingerprints))})
		}
	}

	p.builder = graphbuild.NewBuilder(graphbuild.BuilderOptions{
		Workers:       runtime.NumCPU(),
		Resolver:      p.Resolver,
		Loader:        p.Loader,
		Cache:         p.Cache,
		TransformOpts: p.transformOpts,
		ToolVersion:   p.Cfg.ToolVersion,
		ConfigHash:    p.configHash,
		Log:           log,
		KindFromPath:  graph.KindFromPath,
	})

	g, err := p.builder.Build(ctx, p.Cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	if log.HasErrors() {
		return &Result{Graph: g, Log: log}, nil
	}

	if p.Cfg.TreeShaking {
		treeshake.Shake(g)
	}

	chunks := bundler.Plan(g, p.ChunkPlan())

	manifest, err := p.EmitChunks(g, chunks)
	if err != nil {
		log.AddError(logger.KindIO, nil, err.Error())
		return &Result{Graph: g, Chunks: chunks, Log: log}, nil
	}

	p.persistGraphRecord(g)

	return &Result{Graph: g, Chunks: chunks, Manifest: manifest, Log: log}, nil
}

// Builder returns the graphbuild.Builder constructed by the last Run call, reused
// by the Incremental Engine for targeted Reprocess calls against the same
// resolver/loader/cache/log wiring (spec.md §4.4/§4.7).
func (p *Pipeline) Builder() *graphbuild.Builder {
	return p.builder
}

// ChunkPlan returns the bundler.ChunkPlan implied by the pipeline's config,
// shared between Run's initial chunking and the Incremental Engine's
// re-chunking after a targeted rebuild.
func (p *Pipeline) ChunkPlan() bundler.ChunkPlan {
	return bundler.ChunkPlan{
		CodeSplitting: p.Cfg.CodeSplitting,
		VendorChunk:   p.Cfg.VendorChunk,
		ManualChunks:  p.Cfg.ManualChunks,
	}
}

// EmitChunks re-runs the Emitter over an already-computed chunk plan, using
// the same ConcatOptions Run would. The Incremental Engine calls this after
// a targeted Reprocess + re-chunk instead of a full Run, so a dev rebuild
// only redoes chunking/emission, not resolution or transform, for modules
// whose cache entries are unaffected (spec.md §4.4/§4.7).
func (p *Pipeline) EmitChunks(g *graph.ModuleGraph, chunks []bundler.Chunk) ([]bundler.ManifestEntry, error) {
	emitter := bundler.NewEmitter(p.Cfg.Outdir)
	return emitter.EmitChunks(g, chunks, bundler.ConcatOptions{
		SourceMaps:    p.Cfg.SourceMaps,
		SourcesInline: p.Cfg.Mode == config.ModeDevelopment,
		Minify:        p.Cfg.Minify,
		KeepExternal:  true,
		CodeSplitting: p.Cfg.CodeSplitting,
	}, p.Cfg.Analyze)
}

// detectStrategy peeks at entry file extensions to run spec.md §4.3's
// selector once, before the graph is known, so the first cold build doesn't
// need a second pass once JSX/TS files are discovered mid-graph.
func (p *Pipeline) detectStrategy() transform.Strategy {
	kinds := map[graph.ModuleKind]bool{}
	for _, path := range p.Cfg.Entries {
		kinds[graph.KindFromPath(path)] = true
	}
	return transform.Select(transform.StrategyAuto, kinds)
}

// persistGraphRecord writes the fingerprint/reverse-deps snapshot of g as a
// second cache record keyed by H(entries || config_hash). Run reads the
// record back only to report its size as a warm-start note; it does not
// seed the graph's modules or reverse_deps from it.
func (p *Pipeline) persistGraphRecord(g *graph.ModuleGraph) {
	rec := cache.GraphRecord{
		ModuleFingerprints: map[string]fingerprint.Hash{},
		ReverseDeps:        map[string][]string{},
	}
	for id, m := range g.All() {
		m.Lock()
		rec.ModuleFingerprints[string(id)] = m.Hash
		m.Unlock()
		deps := g.ReverseDeps(id)
		strs := make([]string, len(deps))
		for i, d := range deps {
			strs[i] = string(d)
		}
		rec.ReverseDeps[string(id)] = strs
	}
	key := cache.GraphKey(p.Cfg.Entries, p.configHash)
	_ = p.Cache.PutGraph(key, rec)
}
