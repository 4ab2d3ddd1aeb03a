package graph

import (
	"sort"
	"sync"
	"testing"
)

func TestGetOrInsertFirstWriterWins(t *testing.T) {
	g := NewModuleGraph()
	first := &Module{Id: "a"}
	second := &Module{Id: "a"}

	got, inserted := g.GetOrInsert("a", first)
	if !inserted || got != first {
		t.Fatalf("expected first insert to win")
	}

	got, inserted = g.GetOrInsert("a", second)
	if inserted {
		t.Fatalf("expected second insert to report inserted=false")
	}
	if got != first {
		t.Fatalf("expected GetOrInsert to return the first-inserted module, not a racer's")
	}
}

func TestGetOrInsertConcurrentRaceFirstWriterWins(t *testing.T) {
	g := NewModuleGraph()
	const n = 64
	results := make([]*Module, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			m := &Module{Id: "race"}
			got, _ := g.GetOrInsert("race", m)
			results[i] = got
		}()
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent GetOrInsert returned different winners")
		}
	}
}

func TestDeleteRemovesModule(t *testing.T) {
	g := NewModuleGraph()
	g.GetOrInsert("a", &Module{Id: "a"})
	g.Delete("a")
	if _, ok := g.Get("a"); ok {
		t.Fatalf("expected module to be gone after Delete")
	}
}

func TestAllAndLen(t *testing.T) {
	g := NewModuleGraph()
	ids := []ModuleId{"a", "b", "c"}
	for _, id := range ids {
		g.GetOrInsert(id, &Module{Id: id})
	}
	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}
	all := g.All()
	var got []string
	for id := range all {
		got = append(got, string(id))
	}
	sort.Strings(got)
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("All() = %v, want [a b c]", got)
	}
}

func TestReverseDepsAndClosure(t *testing.T) {
	g := NewModuleGraph()
	// a -> b -> c
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	deps := g.ReverseDeps("b")
	if len(deps) != 1 || deps[0] != "a" {
		t.Fatalf("ReverseDeps(b) = %v, want [a]", deps)
	}

	closure := g.ReverseClosure("c")
	for _, id := range []ModuleId{"a", "b", "c"} {
		if !closure[id] {
			t.Errorf("expected %q in reverse closure of c", id)
		}
	}
}

func TestRemoveEdgesFrom(t *testing.T) {
	g := NewModuleGraph()
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("x", "b")

	g.RemoveEdgesFrom("a")

	if deps := g.ReverseDeps("b"); len(deps) != 1 || deps[0] != "x" {
		t.Fatalf("ReverseDeps(b) after RemoveEdgesFrom(a) = %v, want [x]", deps)
	}
	if deps := g.ReverseDeps("c"); len(deps) != 0 {
		t.Fatalf("ReverseDeps(c) after RemoveEdgesFrom(a) = %v, want []", deps)
	}
}
