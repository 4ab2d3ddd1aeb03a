package graphbuild

import (
	"context"
	"fmt"

	"github.com/bcentdev/soku/internal/graph"
)

// ReprocessResult reports what changed about a single module after a
// Reprocess call, the information the Incremental Engine (spec.md §4.4) and
// Hot-Update Dispatcher (spec.md §4.7) need to classify the update.
type ReprocessResult struct {
	ExportsChanged bool
	NewDeps        []graph.ModuleId // newly discovered modules inserted into the graph
}

// Reprocess re-transforms a single already-known module outside of a full
// Build pass: spec.md §4.7 step 4, "Re-transform the module; re-extract
// deps; if its set of exports changed, add its reverse-dep closure to the
// affected set; otherwise add only the module itself." New static
// dependencies discovered by the re-transform are resolved and, if not
// already present, inserted and processed synchronously (dev-mode edits
// rarely introduce more than a handful of new imports, so this runs without
// the worker pool Build uses for the initial cold pass).
func (b *Builder) Reprocess(ctx context.Context, g *graph.ModuleGraph, id graph.ModuleId) (ReprocessResult, error) {
	m, ok := g.Get(id)
	if !ok {
		return ReprocessResult{}, fmt.Errorf("graph: reprocess of unknown module %q", id)
	}

	m.Lock()
	oldExports := make(map[string]graph.ExportInfo, len(m.Exports))
	for k, v := range m.Exports {
		oldExports[k] = v
	}
	m.Unlock()

	g.RemoveEdgesFrom(id)

	var newlyInserted []graph.ModuleId
	enqueue := func(newId graph.ModuleId) { newlyInserted = append(newlyInserted, newId) }

	if err := b.processModule(g, id, enqueue); err != nil {
		return ReprocessResult{}, err
	}

	// Synchronously drain any newly discovered modules (and their own new
	// transitive deps) so the graph closes under static deps again.
	for i := 0; i < len(newlyInserted); i++ {
		if err := b.processModule(g, newlyInserted[i], enqueue); err != nil {
			return ReprocessResult{}, err
		}
	}

	m.Lock()
	newExports := m.Exports
	m.Unlock()

	return ReprocessResult{
		ExportsChanged: !sameExportNames(oldExports, newExports),
		NewDeps:        newlyInserted,
	}, nil
}

func sameExportNames(a, b map[string]graph.ExportInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}
