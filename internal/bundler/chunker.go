// Package bundler implements the Chunker/Bundler/Emitter component of
// spec.md §4.6: partitioning modules into chunks, concatenating each into a
// single artifact with wrapping and a source map, and writing the results
// atomically.
package bundler

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bcentdev/soku/internal/fingerprint"
	"github.com/bcentdev/soku/internal/graph"
	"github.com/bmatcuk/doublestar/v4"
)

// Chunk is spec.md glossary's "a set of modules emitted to a single
// artifact file."
type Chunk struct {
	Name       string
	FileName   string
	Modules    []graph.ModuleId // topologically sorted
	EntryNames []string         // entry names whose root chunk this is, if any
	IsDynamic  bool
	IsVendor   bool
}

// ChunkPlan configures the Chunker's strategy selection (spec.md §4.6).
type ChunkPlan struct {
	CodeSplitting bool
	VendorChunk   bool
	ManualChunks  map[string][]string // chunk name -> glob patterns, first match wins
}

// Plan partitions g's modules into chunks per spec.md §4.6's four
// strategies, applied together: manual groups override default placement;
// vendor split separates node_modules; multiple entries each get a root
// chunk with shared modules deduped to the first entry; dynamic import call
// sites become separate chunk boundaries when CodeSplitting is enabled.
func Plan(g *graph.ModuleGraph, plan ChunkPlan) []Chunk {
	all := g.All()
	placement := map[graph.ModuleId]string{}
	chunkModules := map[string][]graph.ModuleId{}

	place := func(id graph.ModuleId, chunkName string) {
		if _, already := placement[id]; already {
			return
		}
		placement[id] = chunkName
		chunkModules[chunkName] = append(chunkModules[chunkName], id)
	}

	manualMatch := func(id graph.ModuleId) (string, bool) {
		names := make([]string, 0, len(plan.ManualChunks))
		for name := range plan.ManualChunks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, pattern := range plan.ManualChunks[name] {
				if ok, _ := doublestar.Match(pattern, string(id)); ok {
					return name, true
				}
				if ok, _ := doublestar.Match(pattern, filepath.Base(string(id))); ok {
					return name, true
				}
			}
		}
		return "", false
	}

	// Dynamic-import subgraphs get their own chunk: the callee's static
	// closure minus anything reachable from the main graph (spec.md §4.6),
	// so a module shared with an entry stays in the entry's chunk and the
	// lazy chunk only carries what is exclusively its own.
	dynamicChunks := map[string][]graph.ModuleId{}
	if plan.CodeSplitting {
		mainReach := map[graph.ModuleId]bool{}
		for _, e := range g.Entries {
			for _, id := range closure(g, e.Id, false) {
				mainReach[id] = true
			}
		}
		for _, m := range all {
			for _, dep := range m.Deps {
				if dep.IsExternal || dep.ImportKind != graph.Dynamic {
					continue
				}
				sub := closure(g, dep.Resolved, false)
				name := dynamicChunkName(sub)
				for _, id := range sub {
					if mainReach[id] {
						continue
					}
					if _, already := placement[id]; !already {
						if _, manual := manualMatch(id); !manual {
							placement[id] = name
							dynamicChunks[name] = append(dynamicChunks[name], id)
						}
					}
				}
			}
		}
	}
	for name, mods := range dynamicChunks {
		chunkModules[name] = mods
	}

	// Manual groups take priority over vendor/entry defaults.
	for id := range all {
		if _, already := placement[id]; already {
			continue
		}
		if name, ok := manualMatch(id); ok {
			place(id, name)
		}
	}

	// Vendor split.
	if plan.VendorChunk {
		for id, m := range all {
			if _, already := placement[id]; already {
				continue
			}
			if m.IsNodeModule {
				place(id, "vendor")
			}
		}
	}

	// Multiple entries: one traversal (closure's depth-first walk) per entry,
	// in entry order, so shared
	// modules land in the first entry whose traversal reaches them. Without
	// code splitting, dynamic-import edges are followed too: the whole lazy
	// subgraph is inlined into the importer's chunk rather than split off.
	for _, e := range g.Entries {
		reachable := closure(g, e.Id, !plan.CodeSplitting)
		chunkName := e.Name
		for _, id := range reachable {
			place(id, chunkName)
		}
	}

	// Anything left over (unreachable from any entry, e.g. orphaned by a
	// manual-chunk-only reference) still needs a home.
	for id := range all {
		if _, already := placement[id]; !already {
			place(id, "app")
		}
	}

	chunkNames := make([]string, 0, len(chunkModules))
	for name := range chunkModules {
		chunkNames = append(chunkNames, name)
	}
	sort.Strings(chunkNames)

	entryByName := map[string]bool{}
	for _, e := range g.Entries {
		entryByName[e.Name] = true
	}

	chunks := make([]Chunk, 0, len(chunkNames))
	for _, name := range chunkNames {
		sorted := topoSort(g, chunkModules[name])
		c := Chunk{
			Name:     name,
			Modules:  sorted,
			IsVendor: name == "vendor",
		}
		if _, isDyn := dynamicChunks[name]; isDyn {
			c.IsDynamic = true
			c.FileName = name + ".js"
		} else if entryByName[name] {
			c.EntryNames = []string{name}
			c.FileName = name + ".js"
		} else {
			c.FileName = name + ".js"
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// closure returns every module reachable from root via static (and
// side-effect) edges; Dynamic import edges are followed only when
// followDynamic is set (they are chunk boundaries when code splitting is
// on, spec.md §4.6, and ordinary edges when it is off).
func closure(g *graph.ModuleGraph, root graph.ModuleId, followDynamic bool) []graph.ModuleId {
	visited := map[graph.ModuleId]bool{}
	var order []graph.ModuleId
	var visit func(id graph.ModuleId)
	visit = func(id graph.ModuleId) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		m, ok := g.Get(id)
		if !ok {
			return
		}
		deps := append([]graph.ResolvedImport(nil), m.Deps...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Resolved < deps[j].Resolved })
		for _, dep := range deps {
			if dep.IsExternal || (dep.ImportKind == graph.Dynamic && !followDynamic) {
				continue
			}
			visit(dep.Resolved)
		}
	}
	visit(root)
	return order
}

// topoSort orders modules by a topological sort of static deps, breaking
// ties by lexicographic id, per spec.md §4.6's concatenation protocol.
func topoSort(g *graph.ModuleGraph, modules []graph.ModuleId) []graph.ModuleId {
	set := map[graph.ModuleId]bool{}
	for _, id := range modules {
		set[id] = true
	}
	visited := map[graph.ModuleId]bool{}
	var order []graph.ModuleId

	sorted := append([]graph.ModuleId(nil), modules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var visit func(id graph.ModuleId)
	visit = func(id graph.ModuleId) {
		if visited[id] || !set[id] {
			return
		}
		visited[id] = true
		m, ok := g.Get(id)
		if ok {
			deps := append([]graph.ResolvedImport(nil), m.Deps...)
			sort.Slice(deps, func(i, j int) bool { return deps[i].Resolved < deps[j].Resolved })
			for _, dep := range deps {
				if !dep.IsExternal && dep.ImportKind != graph.Dynamic {
					visit(dep.Resolved)
				}
			}
		}
		order = append(order, id)
	}
	for _, id := range sorted {
		visit(id)
	}
	return order
}

func dynamicChunkName(modules []graph.ModuleId) string {
	sorted := append([]graph.ModuleId(nil), modules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var sb strings.Builder
	for _, id := range sorted {
		sb.WriteString(string(id))
	}
	h := fingerprint.Of([]byte(sb.String()))
	return "chunk-" + h.String()[:8]
}
