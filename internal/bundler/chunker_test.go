package bundler

import (
	"sort"
	"testing"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/google/go-cmp/cmp"
)

func buildSharedGraph() *graph.ModuleGraph {
	g := graph.NewModuleGraph()

	shared := &graph.Module{Id: "shared.js", Kind: graph.KindJavaScript}
	g.GetOrInsert("shared.js", shared)

	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript}
	main.Deps = []graph.ResolvedImport{{Resolved: "shared.js", ImportKind: graph.Static}}
	g.GetOrInsert("main.js", main)
	g.AddEdge("main.js", "shared.js")

	admin := &graph.Module{Id: "admin.js", Kind: graph.KindJavaScript}
	admin.Deps = []graph.ResolvedImport{{Resolved: "shared.js", ImportKind: graph.Static}}
	g.GetOrInsert("admin.js", admin)
	g.AddEdge("admin.js", "shared.js")

	g.Entries = []graph.Entry{{Name: "main", Id: "main.js"}, {Name: "admin", Id: "admin.js"}}
	return g
}

// TestPlanTwoEntriesShareModuleOnce mirrors spec.md §8 scenario 4: main and
// admin share shared.js; shared.js must appear in exactly one chunk.
func TestPlanTwoEntriesShareModuleOnce(t *testing.T) {
	g := buildSharedGraph()
	chunks := Plan(g, ChunkPlan{})

	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2 (main, admin)", len(chunks))
	}

	occurrences := 0
	var names []string
	for _, c := range chunks {
		names = append(names, c.Name)
		for _, id := range c.Modules {
			if id == "shared.js" {
				occurrences++
			}
		}
	}
	if occurrences != 1 {
		t.Fatalf("shared.js appeared in %d chunks, want exactly 1", occurrences)
	}
	sort.Strings(names)
	if names[0] != "admin" || names[1] != "main" {
		t.Fatalf("chunk names = %v, want [admin main]", names)
	}
}

func TestPlanVendorChunkSeparatesNodeModules(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("/proj/node_modules/lodash/index.js", &graph.Module{
		Id: "/proj/node_modules/lodash/index.js", Kind: graph.KindJavaScript, IsNodeModule: true,
	})
	main := &graph.Module{Id: "proj/main.js", Kind: graph.KindJavaScript}
	main.Deps = []graph.ResolvedImport{{Resolved: "/proj/node_modules/lodash/index.js", ImportKind: graph.Static}}
	g.GetOrInsert("proj/main.js", main)
	g.AddEdge("proj/main.js", "/proj/node_modules/lodash/index.js")
	g.Entries = []graph.Entry{{Name: "main", Id: "proj/main.js"}}

	chunks := Plan(g, ChunkPlan{VendorChunk: true})

	var vendor, app *Chunk
	for i := range chunks {
		switch chunks[i].Name {
		case "vendor":
			vendor = &chunks[i]
		case "main":
			app = &chunks[i]
		}
	}
	if vendor == nil || len(vendor.Modules) != 1 || vendor.Modules[0] != "/proj/node_modules/lodash/index.js" {
		t.Fatalf("expected lodash isolated in vendor chunk, got %+v", vendor)
	}
	if app == nil {
		t.Fatalf("expected a main chunk")
	}
	for _, id := range app.Modules {
		if id == "/proj/node_modules/lodash/index.js" {
			t.Fatalf("vendor module leaked into main chunk")
		}
	}
}

func TestPlanManualChunkOverridesVendor(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("proj/node_modules/react/index.js", &graph.Module{
		Id: "proj/node_modules/react/index.js", Kind: graph.KindJavaScript, IsNodeModule: true,
	})
	main := &graph.Module{Id: "proj/main.js", Kind: graph.KindJavaScript}
	main.Deps = []graph.ResolvedImport{{Resolved: "proj/node_modules/react/index.js", ImportKind: graph.Static}}
	g.GetOrInsert("proj/main.js", main)
	g.AddEdge("proj/main.js", "proj/node_modules/react/index.js")
	g.Entries = []graph.Entry{{Name: "main", Id: "proj/main.js"}}

	chunks := Plan(g, ChunkPlan{
		VendorChunk:  true,
		ManualChunks: map[string][]string{"framework": {"**/react/**"}},
	})

	var framework *Chunk
	for i := range chunks {
		if chunks[i].Name == "framework" {
			framework = &chunks[i]
		}
	}
	if framework == nil || len(framework.Modules) != 1 {
		t.Fatalf("expected react routed to manual 'framework' chunk, got chunks=%+v", chunks)
	}
}

func TestTopoSortOrdersDependenciesBeforeDependents(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("a.js", &graph.Module{Id: "a.js"})
	g.GetOrInsert("b.js", &graph.Module{Id: "b.js"})
	a, _ := g.Get("a.js")
	a.Deps = []graph.ResolvedImport{{Resolved: "b.js", ImportKind: graph.Static}}

	order := topoSort(g, []graph.ModuleId{"a.js", "b.js"})
	if len(order) != 2 || order[0] != "b.js" || order[1] != "a.js" {
		t.Fatalf("topoSort = %v, want [b.js a.js]", order)
	}
}

func buildDynamicGraph() *graph.ModuleGraph {
	g := graph.NewModuleGraph()

	shared := &graph.Module{Id: "shared.js", Kind: graph.KindJavaScript}
	g.GetOrInsert("shared.js", shared)

	lazy := &graph.Module{Id: "lazy.js", Kind: graph.KindJavaScript}
	lazy.Deps = []graph.ResolvedImport{{Resolved: "shared.js", ImportKind: graph.Static}}
	g.GetOrInsert("lazy.js", lazy)
	g.AddEdge("lazy.js", "shared.js")

	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript}
	main.Deps = []graph.ResolvedImport{
		{Resolved: "shared.js", ImportKind: graph.Static},
		{Specifier: "./lazy.js", Resolved: "lazy.js", ImportKind: graph.Dynamic},
	}
	g.GetOrInsert("main.js", main)
	g.AddEdge("main.js", "shared.js")

	g.Entries = []graph.Entry{{Name: "main", Id: "main.js"}}
	return g
}

// TestPlanDynamicChunkExcludesMainReachableModules: the lazy chunk carries
// only modules exclusive to the dynamic subgraph; shared.js stays with the
// entry that statically imports it.
func TestPlanDynamicChunkExcludesMainReachableModules(t *testing.T) {
	g := buildDynamicGraph()
	chunks := Plan(g, ChunkPlan{CodeSplitting: true})

	var dynamic, main *Chunk
	for i := range chunks {
		if chunks[i].IsDynamic {
			dynamic = &chunks[i]
		}
		if chunks[i].Name == "main" {
			main = &chunks[i]
		}
	}
	if dynamic == nil || main == nil {
		t.Fatalf("expected a dynamic chunk and a main chunk, got %+v", chunks)
	}
	if len(dynamic.Modules) != 1 || dynamic.Modules[0] != "lazy.js" {
		t.Fatalf("dynamic chunk = %v, want exactly [lazy.js]", dynamic.Modules)
	}
	for _, id := range main.Modules {
		if id == "lazy.js" {
			t.Fatalf("lazy.js must not be duplicated into the main chunk")
		}
	}
	found := false
	for _, id := range main.Modules {
		if id == "shared.js" {
			found = true
		}
	}
	if !found {
		t.Fatalf("shared.js must stay in the main chunk, got %v", main.Modules)
	}
}

// TestPlanWithoutCodeSplittingInlinesDynamicSubgraph: with splitting off,
// the dynamic subgraph lands in the importer's own chunk.
func TestPlanWithoutCodeSplittingInlinesDynamicSubgraph(t *testing.T) {
	g := buildDynamicGraph()
	chunks := Plan(g, ChunkPlan{})

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1 single bundle", len(chunks))
	}
	has := map[graph.ModuleId]bool{}
	for _, id := range chunks[0].Modules {
		has[id] = true
	}
	for _, id := range []graph.ModuleId{"main.js", "shared.js", "lazy.js"} {
		if !has[id] {
			t.Fatalf("expected %s in the single bundle, got %v", id, chunks[0].Modules)
		}
	}
}

// TestPlanDeterministic exercises spec.md §8's determinism property at the
// chunk-plan level: the same graph and configuration always partition
// identically, regardless of map iteration order inside Plan.
func TestPlanDeterministic(t *testing.T) {
	plan := ChunkPlan{CodeSplitting: true, VendorChunk: true,
		ManualChunks: map[string][]string{"framework": {"**/react/**"}}}
	first := Plan(buildDynamicGraph(), plan)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, Plan(buildDynamicGraph(), plan)); diff != "" {
			t.Fatalf("chunk plan not deterministic (-first +repeat):\n%s", diff)
		}
	}
}
