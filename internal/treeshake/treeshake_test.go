package treeshake

import (
	"strings"
	"testing"

	"github.com/bcentdev/soku/internal/graph"
)

// newModule builds a Module whose Exports/StmtStart/StmtEnd line up with
// actual byte offsets in code, the way internal/transform's extractExports
// would produce them.
func newModule(id graph.ModuleId, code string, exports map[string]string) *graph.Module {
	info := map[string]graph.ExportInfo{}
	for name, needle := range exports {
		start := strings.Index(code, needle)
		if start < 0 {
			panic("fixture: needle not found in code: " + needle)
		}
		info[name] = graph.ExportInfo{Name: name, StmtStart: start, StmtEnd: start + len(needle)}
	}
	return &graph.Module{Id: id, Kind: graph.KindJavaScript, TransformedCode: code, Exports: info}
}

// TestShakeDropsUnusedExport mirrors spec.md §8 scenario 1: main.js imports
// add from u.js (which also exports an unused sub); the shaker must drop sub
// from u.js's output while keeping add.
func TestShakeDropsUnusedExport(t *testing.T) {
	g := graph.NewModuleGraph()

	uCode := "export const add = (a, b) => a + b;\nexport const sub = (a, b) => a - b;\n"
	u := newModule("u.js", uCode, map[string]string{
		"add": "export const add = (a, b) => a + b;",
		"sub": "export const sub = (a, b) => a - b;",
	})
	g.GetOrInsert("u.js", u)

	mainCode := "import { add } from './u.js';\nconsole.log(add(1, 2));\n"
	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript, TransformedCode: mainCode}
	main.Deps = []graph.ResolvedImport{{
		Specifier:  "./u.js",
		Resolved:   "u.js",
		ImportKind: graph.Static,
		Imported:   graph.ImportedNames{Names: map[string]bool{"add": true}},
	}}
	g.GetOrInsert("main.js", main)
	g.Entries = append(g.Entries, graph.Entry{Name: "main", Id: "main.js"})
	g.AddEdge("main.js", "u.js")

	Shake(g)

	got, _ := g.Get("u.js")
	if !strings.Contains(got.TransformedCode, "add") {
		t.Fatalf("expected retained export add in output, got %q", got.TransformedCode)
	}
	if strings.Contains(got.TransformedCode, "sub") {
		t.Fatalf("expected sub removed from output, got %q", got.TransformedCode)
	}
	if len(got.RemovedExports) != 1 || got.RemovedExports[0] != "sub" {
		t.Fatalf("RemovedExports = %v, want [sub]", got.RemovedExports)
	}
	if got.SizeDelta <= 0 {
		t.Fatalf("expected positive SizeDelta from removing sub, got %d", got.SizeDelta)
	}
}

// TestShakeKeepsNamespaceImportMarksAllExports ensures a namespace import
// marks every export of its target used, so none is swept.
func TestShakeKeepsNamespaceImportMarksAllExports(t *testing.T) {
	g := graph.NewModuleGraph()

	uCode := "export const a = 1;\nexport const b = 2;\n"
	u := newModule("u.js", uCode, map[string]string{
		"a": "export const a = 1;",
		"b": "export const b = 2;",
	})
	g.GetOrInsert("u.js", u)

	mainCode := "import * as ns from './u.js';\nconsole.log(ns);\n"
	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript, TransformedCode: mainCode}
	main.Deps = []graph.ResolvedImport{{
		Specifier:  "./u.js",
		Resolved:   "u.js",
		ImportKind: graph.Static,
		Imported:   graph.ImportedNames{Namespace: true},
	}}
	g.GetOrInsert("main.js", main)
	g.Entries = append(g.Entries, graph.Entry{Name: "main", Id: "main.js"})
	g.AddEdge("main.js", "u.js")

	Shake(g)

	got, _ := g.Get("u.js")
	if !strings.Contains(got.TransformedCode, "a") || !strings.Contains(got.TransformedCode, "b") {
		t.Fatalf("namespace import should keep all exports, got %q", got.TransformedCode)
	}
	if len(got.RemovedExports) != 0 {
		t.Fatalf("RemovedExports = %v, want none", got.RemovedExports)
	}
}

func TestShakeKeepsSiblingReferencedByUsedExport(t *testing.T) {
	g := graph.NewModuleGraph()

	uCode := "const helper = 2;\nexport const a = helper + 1;\nexport const b = 99;\n"
	u := newModule("u.js", uCode, map[string]string{
		"a": "export const a = helper + 1;",
		"b": "export const b = 99;",
	})
	g.GetOrInsert("u.js", u)

	mainCode := "import { a } from './u.js';\nconsole.log(a);\n"
	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript, TransformedCode: mainCode}
	main.Deps = []graph.ResolvedImport{{
		Specifier:  "./u.js",
		Resolved:   "u.js",
		ImportKind: graph.Static,
		Imported:   graph.ImportedNames{Names: map[string]bool{"a": true}},
	}}
	g.GetOrInsert("main.js", main)
	g.Entries = append(g.Entries, graph.Entry{Name: "main", Id: "main.js"})
	g.AddEdge("main.js", "u.js")

	Shake(g)

	got, _ := g.Get("u.js")
	if strings.Contains(got.TransformedCode, "const b = 99") {
		t.Fatalf("expected unused sibling export b removed, got %q", got.TransformedCode)
	}
	for _, removed := range got.RemovedExports {
		if removed == "a" {
			t.Fatalf("export a must not be removed, it is used by the entry")
		}
	}
}

// TestShakeSideEffectFreePackageSweepsUnusedExports: a module whose
// manifest declares "sideEffects": false gets no side-effect protection, so
// even a side-effect-flagged unused export is removed.
func TestShakeSideEffectFreePackageSweepsUnusedExports(t *testing.T) {
	g := graph.NewModuleGraph()

	libCode := "export const used = 1;\nexport const unused = init();\n"
	lib := newModule("lib.js", libCode, map[string]string{
		"used":   "export const used = 1;",
		"unused": "export const unused = init();",
	})
	info := lib.Exports["unused"]
	info.SideEffect = true
	lib.Exports["unused"] = info
	lib.SideEffectFree = true
	g.GetOrInsert("lib.js", lib)

	main := &graph.Module{Id: "main.js", Kind: graph.KindJavaScript, TransformedCode: "import { used } from 'lib';\n"}
	main.Deps = []graph.ResolvedImport{{
		Specifier: "lib", Resolved: "lib.js", ImportKind: graph.Static,
		Imported: graph.ImportedNames{Names: map[string]bool{"used": true}},
	}}
	g.GetOrInsert("main.js", main)
	g.Entries = append(g.Entries, graph.Entry{Name: "main", Id: "main.js"})
	g.AddEdge("main.js", "lib.js")

	Shake(g)

	got, _ := g.Get("lib.js")
	if strings.Contains(got.TransformedCode, "unused") {
		t.Fatalf("expected unused export swept from sideEffects:false module, got %q", got.TransformedCode)
	}
	if !strings.Contains(got.TransformedCode, "used") {
		t.Fatalf("expected used export retained, got %q", got.TransformedCode)
	}
}
