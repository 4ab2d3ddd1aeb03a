// Package graphbuild drives spec.md §4.2's Graph Builder: Resolver + Loader
// + Parser/Transformer across a bounded worker pool, materializing a
// graph.ModuleGraph closed under static dependencies rooted at configured
// entries. It lives apart from package graph so the data model stays free of
// transform-pipeline dependencies.
package graphbuild

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bcentdev/soku/internal/cache"
	"github.com/bcentdev/soku/internal/fingerprint"
	"github.com/bcentdev/soku/internal/fs"
	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
	"github.com/bcentdev/soku/internal/resolver"
	"github.com/bcentdev/soku/internal/transform"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BuilderOptions configures one graph-building pass.
type BuilderOptions struct {
	Workers       int
	Resolver      *resolver.Resolver
	Loader        *fs.Loader
	Cache         *cache.Store
	TransformOpts func(kind graph.ModuleKind) transform.Options
	ToolVersion   string
	ConfigHash    fingerprint.Hash
	Log           *logger.Log
	KindFromPath  func(path string) graph.ModuleKind
}

// Builder expands a dependency graph in parallel from entry roots.
type Builder struct {
	opts BuilderOptions
}

func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Builder{opts: opts}
}

// Build expands the graph from entries to closure under static dependencies.
// Ordering guarantee (spec.md §4.2): the resulting graph is deterministic for
// a fixed (entries, configuration, source tree) regardless of worker
// interleaving, because every downstream consumer reads through a
// deterministic DFS ordered by each module's Deps sequence rather than by
// insertion order. g.Entries lists the entries sorted by entry name.
func (b *Builder) Build(ctx context.Context, entries map[string]string) (*graph.ModuleGraph, error) {
	g := graph.NewModuleGraph()
	sem := semaphore.NewWeighted(int64(b.opts.Workers))
	grp, ctx := errgroup.WithContext(ctx)

	var enqueue enqueueFunc
	enqueue = func(id graph.ModuleId) {
		grp.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return b.processModule(g, id, enqueue)
		})
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := graph.CanonicalId(entries[name])
		g.Entries = append(g.Entries, graph.Entry{Name: name, Id: id})
		if _, inserted := g.GetOrInsert(id, &graph.Module{Id: id}); inserted {
			enqueue(id)
		}
	}

	if err := grp.Wait(); err != nil {
		return g, err
	}
	return g, nil
}

// enqueueFunc recurses through Builder.Build's closure; declared here only
// for readability of processModule's signature.
type enqueueFunc func(graph.ModuleId)

func (b *Builder) processModule(g *graph.ModuleGraph, id graph.ModuleId, enqueue enqueueFunc) error {
	m, ok := g.Get(id)
	if !ok {
		return fmt.Errorf("graph: module %q vanished before processing", id)
	}

	data, err := b.opts.Loader.Read(string(id))
	if err != nil {
		b.opts.Log.AddError(logger.KindIO, &logger.Location{File: string(id)}, err.Error())
		return nil // a per-module failure does not abort peer work (spec.md §4.2)
	}

	kind := b.opts.KindFromPath(string(id))
	contentHash := fingerprint.Of(data.Contents)

	m.Lock()
	m.Kind = kind
	m.Source = data.Contents
	m.Hash = contentHash
	m.ModTimeUnix = data.ModTime.Unix()
	m.Size = data.Size
	m.Unlock()

	topts := b.opts.TransformOpts(kind)
	cacheKey := cache.Key(data.Contents, uint8(kind), b.opts.ToolVersion, b.opts.ConfigHash)

	var result transform.Result
	if b.opts.Cache != nil {
		if entry, found, _ := b.opts.Cache.Get(cacheKey); found {
			result = decodeCachedResult(entry)
		} else {
			result = transform.Transform(string(id), kind, data.Contents, topts)
			if entry, err := encodeResult(result, kind, b.opts.ToolVersion, b.opts.ConfigHash); err == nil {
				_ = b.opts.Cache.Put(cacheKey, entry)
			}
		}
	} else {
		result = transform.Transform(string(id), kind, data.Contents, topts)
	}

	for _, d := range result.Diagnostics {
		b.opts.Log.Add(d)
	}

	m.Lock()
	m.TransformedCode = result.Output
	m.Exports = result.Exports
	m.ClassMap = result.ClassMap
	m.IsNodeModule = isNodeModulePath(string(id))
	m.SideEffectFree = b.opts.Resolver.SideEffectsFreePath(string(id))
	m.Unlock()

	resolvedDeps := make([]graph.ResolvedImport, 0, len(result.Deps))
	for _, dep := range result.Deps {
		outcome := b.opts.Resolver.Resolve(string(id), dep.Specifier, nil)
		ri := graph.ResolvedImport{
			Specifier:  dep.Specifier,
			ImportKind: dep.Kind,
			Imported:   dep.Imported,
		}
		switch {
		case outcome.Err != nil:
			b.opts.Log.AddError(logger.KindResolution, &logger.Location{File: string(id)}, outcome.Err.Error())
			continue
		case outcome.IsExternal:
			ri.IsExternal = true
			ri.ExternalName = outcome.External
		default:
			ri.Resolved = graph.ModuleId(outcome.Resolved)
			if _, inserted := g.GetOrInsert(ri.Resolved, &graph.Module{Id: ri.Resolved}); inserted {
				enqueue(ri.Resolved)
			}
			g.AddEdge(id, ri.Resolved)
		}
		resolvedDeps = append(resolvedDeps, ri)
	}

	m.Lock()
	m.Deps = resolvedDeps
	m.Unlock()

	return nil
}

func isNodeModulePath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "node_modules" {
			return true
		}
	}
	return false
}

// decodeCachedResult reconstructs a transform.Result from a cached Entry.
func decodeCachedResult(entry cache.Entry) transform.Result {
	var deps []transform.Dep
	if len(entry.Deps) > 0 {
		_ = gob.NewDecoder(bytes.NewReader(entry.Deps)).Decode(&deps)
	}
	var exports map[string]graph.ExportInfo
	if len(entry.Exports) > 0 {
		_ = gob.NewDecoder(bytes.NewReader(entry.Exports)).Decode(&exports)
	}
	var classMap map[string]string
	if len(entry.ClassMap) > 0 {
		_ = gob.NewDecoder(bytes.NewReader(entry.ClassMap)).Decode(&classMap)
	}
	return transform.Result{Output: entry.TransformedCode, Deps: deps, Exports: exports, Map: entry.SourceMap, ClassMap: classMap}
}

func encodeResult(result transform.Result, kind graph.ModuleKind, toolVersion string, configHash fingerprint.Hash) (cache.Entry, error) {
	var depsBuf, exportsBuf, classMapBuf bytes.Buffer
	if err := gob.NewEncoder(&depsBuf).Encode(result.Deps); err != nil {
		return cache.Entry{}, err
	}
	if err := gob.NewEncoder(&exportsBuf).Encode(result.Exports); err != nil {
		return cache.Entry{}, err
	}
	if len(result.ClassMap) > 0 {
		if err := gob.NewEncoder(&classMapBuf).Encode(result.ClassMap); err != nil {
			return cache.Entry{}, err
		}
	}
	return cache.Entry{
		TransformedCode: result.Output,
		Deps:            depsBuf.Bytes(),
		Exports:         exportsBuf.Bytes(),
		SourceMap:       result.Map,
		ClassMap:        classMapBuf.Bytes(),
		Kind:            uint8(kind),
		ToolVersion:     toolVersion,
		ConfigHash:      configHash.String(),
	}, nil
}
