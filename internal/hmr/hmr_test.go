package hmr

import (
	"testing"
	"time"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
)

func TestClassifyStylesheetAlwaysReplace(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("a.css", &graph.Module{Id: "a.css", Kind: graph.KindCss})

	kind, ids := Classify(g, "a.css", true)
	if kind != StylesheetReplace {
		t.Fatalf("kind = %v, want StylesheetReplace", kind)
	}
	if len(ids) != 1 || ids[0] != "a.css" {
		t.Fatalf("ids = %v, want [a.css]", ids)
	}
}

func TestClassifyModuleReplaceWhenExportsUnchanged(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("a.js", &graph.Module{Id: "a.js", Kind: graph.KindJavaScript})

	kind, ids := Classify(g, "a.js", false)
	if kind != ModuleReplace {
		t.Fatalf("kind = %v, want ModuleReplace", kind)
	}
	if len(ids) != 1 || ids[0] != "a.js" {
		t.Fatalf("ids = %v, want [a.js]", ids)
	}
}

func TestClassifyFullReloadWhenDependentNotHotAcceptable(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("a.js", &graph.Module{Id: "a.js", Kind: graph.KindJavaScript})
	g.GetOrInsert("index.html", &graph.Module{Id: "index.html", Kind: graph.KindHtml})
	g.AddEdge("index.html", "a.js")

	kind, _ := Classify(g, "a.js", true)
	if kind != FullReload {
		t.Fatalf("kind = %v, want FullReload when a non-hot-acceptable dependent exists", kind)
	}
}

func TestClassifyModuleReplaceWhenAllDependentsHotAcceptable(t *testing.T) {
	g := graph.NewModuleGraph()
	g.GetOrInsert("a.js", &graph.Module{Id: "a.js", Kind: graph.KindJavaScript})
	g.GetOrInsert("b.js", &graph.Module{Id: "b.js", Kind: graph.KindJavaScript})
	g.AddEdge("b.js", "a.js")

	kind, ids := Classify(g, "a.js", true)
	if kind != ModuleReplace {
		t.Fatalf("kind = %v, want ModuleReplace when every dependent can hot-accept", kind)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want both a.js and b.js in the reverse closure", ids)
	}
}

// TestDispatcherSeqStrictlyIncreasing exercises spec.md §8's "Update
// ordering" property: for any client, received seq values are strictly
// increasing.
func TestDispatcherSeqStrictlyIncreasing(t *testing.T) {
	d := NewDispatcher()
	now := time.Unix(0, 0)

	p1 := d.Build(ModuleReplace, []graph.ModuleId{"a.js"}, now)
	p2 := d.Build(StylesheetReplace, []graph.ModuleId{"a.css"}, now)
	p3 := d.BuildOk(now)

	if !(p1.Seq < p2.Seq && p2.Seq < p3.Seq) {
		t.Fatalf("seq values not strictly increasing: %d, %d, %d", p1.Seq, p2.Seq, p3.Seq)
	}
}

func TestBuildErrorConvertsOneBasedColumn(t *testing.T) {
	d := NewDispatcher()
	loc := &logger.Location{File: "a.js", Line: 3, Column: 4, Length: 2, LineText: "xx"}
	msg := logger.Msg{Severity: logger.Error, Kind: logger.KindParse, Text: "unexpected token", Location: loc}

	pkt := d.BuildError(msg, time.Unix(0, 0))
	if pkt.Payload == nil {
		t.Fatalf("expected a payload diagnostic")
	}
	if pkt.Payload.Column != 5 {
		t.Fatalf("Column = %d, want 5 (0-based Location.Column=4 -> 1-based)", pkt.Payload.Column)
	}
	if pkt.Payload.Line != 3 {
		t.Fatalf("Line = %d, want 3 (Location.Line is already 1-based)", pkt.Payload.Line)
	}
}
