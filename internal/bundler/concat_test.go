package bundler

import (
	"strings"
	"testing"

	"github.com/bcentdev/soku/internal/graph"
)

// TestCSSConcatenateImporteeBeforeImporter mirrors spec.md §8 scenario 3:
// a.css imports b.css; the emitted order must be b's rule before a's.
func TestCSSConcatenateImporteeBeforeImporter(t *testing.T) {
	g := graph.NewModuleGraph()
	b := &graph.Module{Id: "b.css", Kind: graph.KindCss, TransformedCode: ".y { color: blue; }\n"}
	g.GetOrInsert("b.css", b)

	a := &graph.Module{Id: "a.css", Kind: graph.KindCss, TransformedCode: ".x { color: red; }\n"}
	a.Deps = []graph.ResolvedImport{{Resolved: "b.css", ImportKind: graph.Static}}
	g.GetOrInsert("a.css", a)
	g.AddEdge("a.css", "b.css")
	g.Entries = []graph.Entry{{Name: "main", Id: "a.css"}}

	chunks := Plan(g, ChunkPlan{})
	var chunk Chunk
	for _, c := range chunks {
		if c.Name == "main" {
			chunk = c
		}
	}

	out := CSSConcatenate(g, chunk)
	yIdx := strings.Index(out, ".y")
	xIdx := strings.Index(out, ".x")
	if yIdx < 0 || xIdx < 0 {
		t.Fatalf("expected both rules present, got %q", out)
	}
	if yIdx > xIdx {
		t.Fatalf("expected .y (importee) before .x (importer), got %q", out)
	}
	if strings.Contains(out, "@import") {
		t.Fatalf("expected no @import directive remaining, got %q", out)
	}
}

func TestConcatenateRewritesInChunkImportsAndExecutesEntries(t *testing.T) {
	g := graph.NewModuleGraph()
	u := &graph.Module{Id: "u.js", Kind: graph.KindJavaScript, TransformedCode: "export const add = (a, b) => a + b;"}
	g.GetOrInsert("u.js", u)

	main := &graph.Module{
		Id:              "main.js",
		Kind:            graph.KindJavaScript,
		TransformedCode: "import { add } from './u.js';\nconsole.log(add(1, 2));",
	}
	main.Deps = []graph.ResolvedImport{{
		Specifier: "./u.js", Resolved: "u.js", ImportKind: graph.Static,
		Imported: graph.ImportedNames{Names: map[string]bool{"add": true}},
	}}
	g.GetOrInsert("main.js", main)
	g.AddEdge("main.js", "u.js")
	g.Entries = []graph.Entry{{Name: "main", Id: "main.js"}}

	chunk := Chunk{Name: "main", Modules: []graph.ModuleId{"u.js", "main.js"}, EntryNames: []string{"main"}}
	artifact := Concatenate(g, chunk, ConcatOptions{})

	if !strings.Contains(artifact.Code, `__require("u.js")`) {
		t.Fatalf("expected import rewritten to __require call, got %q", artifact.Code)
	}
	if !strings.Contains(artifact.Code, `__require("main.js");`) {
		t.Fatalf("expected entry module executed at the end, got %q", artifact.Code)
	}
	if !strings.Contains(artifact.Code, "add") {
		t.Fatalf("expected retained add identifier in output, got %q", artifact.Code)
	}
}

func TestConcatenateDynamicImportRewrite(t *testing.T) {
	g := graph.NewModuleGraph()
	lazy := &graph.Module{Id: "lazy.js", Kind: graph.KindJavaScript, TransformedCode: "export const n = 1;"}
	g.GetOrInsert("lazy.js", lazy)

	main := &graph.Module{
		Id:              "main.js",
		Kind:            graph.KindJavaScript,
		TransformedCode: "import('./lazy.js').then(m => console.log(m.n));",
	}
	main.Deps = []graph.ResolvedImport{{Specifier: "./lazy.js", Resolved: "lazy.js", ImportKind: graph.Dynamic}}
	g.GetOrInsert("main.js", main)
	g.Entries = []graph.Entry{{Name: "main", Id: "main.js"}}

	// With code splitting, the call site loads the carved chunk file.
	split := Concatenate(g, Chunk{Name: "main", Modules: []graph.ModuleId{"main.js"}}, ConcatOptions{CodeSplitting: true})
	if !strings.Contains(split.Code, `__loadChunk("chunk-`) {
		t.Fatalf("expected __loadChunk call with code splitting, got %q", split.Code)
	}

	// Without it, the target is registered in-bundle and resolved in place.
	inline := Concatenate(g, Chunk{Name: "main", Modules: []graph.ModuleId{"lazy.js", "main.js"}}, ConcatOptions{})
	if !strings.Contains(inline.Code, `Promise.resolve(__require("lazy.js"))`) {
		t.Fatalf("expected in-place resolution without code splitting, got %q", inline.Code)
	}
}

func TestConcatenatePlainStylesheetRegistersEmptyModule(t *testing.T) {
	g := graph.NewModuleGraph()
	css := &graph.Module{Id: "a.css", Kind: graph.KindCss, TransformedCode: ".x { color: red; }"}
	g.GetOrInsert("a.css", css)

	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript, TransformedCode: "import './a.css';\nconsole.log(1);"}
	main.Deps = []graph.ResolvedImport{{Specifier: "./a.css", Resolved: "a.css", ImportKind: graph.SideEffectOnly}}
	g.GetOrInsert("main.js", main)
	g.Entries = []graph.Entry{{Name: "main", Id: "main.js"}}

	artifact := Concatenate(g, Chunk{Name: "main", Modules: []graph.ModuleId{"a.css", "main.js"}}, ConcatOptions{})
	if strings.Contains(artifact.Code, "color: red") {
		t.Fatalf("raw CSS text must not leak into the JS artifact, got %q", artifact.Code)
	}
	if !strings.Contains(artifact.Code, `__registry["a.css"]`) {
		t.Fatalf("stylesheet module must still be registered so imports of it resolve, got %q", artifact.Code)
	}
}
