// Package treeshake implements spec.md §4.5: used-export propagation from
// entry roots, followed by a sweep that removes unreferenced top-level
// declarations.
package treeshake

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bcentdev/soku/internal/graph"
)

// Shake runs all three steps of spec.md §4.5 over a completed graph.
func Shake(g *graph.ModuleGraph) {
	seed(g)
	propagate(g)
	sweep(g)
}

// seed implements step 1: every entry module's exports are roots.
// Side-effectful statements are not marked here; sweep keeps side-effectful
// exports, and never removes statements outside export spans.
func seed(g *graph.ModuleGraph) {
	for _, e := range g.Entries {
		m, ok := g.Get(e.Id)
		if !ok {
			continue
		}
		m.Lock()
		for name := range m.Exports {
			if m.UsedExports == nil {
				m.UsedExports = map[string]bool{}
			}
			m.UsedExports[name] = true
		}
		m.Unlock()
	}
}

// propagate implements step 2 as a pass over every module repeated until
// nothing new is marked. Each import marks the names its clause imports as
// used in the target module, whether or not the importing module's own
// statements are used; identifiers are not traced statement by statement
// across modules. Within a module, markLocalReferences marks sibling exports
// that a used export's statement mentions. Namespace imports mark every
// export of the target used (spec.md §9's conservative choice).
// SideEffectOnly imports mark only side-effectful statements, not named
// exports.
func propagate(g *graph.ModuleGraph) {
	all := g.All()

	// The worklist is every module, in id order.
	worklist := make([]graph.ModuleId, 0, len(all))
	for id := range all {
		worklist = append(worklist, id)
	}
	sort.Slice(worklist, func(i, j int) bool { return worklist[i] < worklist[j] })

	changed := true
	for changed {
		changed = false
		for _, id := range worklist {
			m, ok := g.Get(id)
			if !ok {
				continue
			}
			m.Lock()
			deps := append([]graph.ResolvedImport(nil), m.Deps...)
			m.Unlock()

			for _, dep := range deps {
				if dep.IsExternal {
					continue
				}
				target, ok := g.Get(dep.Resolved)
				if !ok {
					continue
				}
				switch dep.ImportKind {
				case graph.SideEffectOnly:
					if markAllSideEffects(target) {
						changed = true
					}
				default:
					if dep.Imported.Namespace {
						if markAllExports(target) {
							changed = true
						}
					} else if dep.Imported.Default {
						if target.MarkUsed("default") {
							changed = true
						}
					} else {
						for name := range dep.Imported.Names {
							if target.MarkUsed(name) {
								changed = true
							}
						}
					}
				}
			}

			// A used export's statement body may reference another export
			// declared in the same module (e.g. "export const a = b + 1;
			// export const b = 2;"); mark that sibling used too, or sweep
			// would delete it out from under a.
			if markLocalReferences(m) {
				changed = true
			}
		}
	}
}

func markAllExports(m *graph.Module) bool {
	m.Lock()
	defer m.Unlock()
	if m.UsedExports == nil {
		m.UsedExports = map[string]bool{}
	}
	changed := false
	for name := range m.Exports {
		if !m.UsedExports[name] {
			m.UsedExports[name] = true
			changed = true
		}
	}
	if !m.UsedExports["*side-effects*"] {
		m.UsedExports["*side-effects*"] = true
		changed = true
	}
	return changed
}

func markAllSideEffects(m *graph.Module) bool {
	m.Lock()
	defer m.Unlock()
	if m.UsedExports == nil {
		m.UsedExports = map[string]bool{}
	}
	if m.UsedExports["*side-effects*"] {
		return false
	}
	m.UsedExports["*side-effects*"] = true
	return true
}

// identifierRefRe finds bare identifier references, used by
// markLocalReferences' scan within a used statement's body.
var identifierRefRe = regexp.MustCompile(`[A-Za-z_$][\w$]*`)

// markLocalReferences scans every currently-used export's own statement text
// for identifiers that name another export of the same module, and marks
// those used too. This is a textual heuristic, not a scope-aware reference
// resolver: it can over-keep a sibling export whose name happens to appear
// as a string or property key, never under-keep one that's a genuine
// reference, which is the safe direction for a tree shaker to err in.
func markLocalReferences(m *graph.Module) bool {
	m.Lock()
	code := m.TransformedCode
	exports := m.Exports
	used := make([]string, 0, len(m.UsedExports))
	for name, isUsed := range m.UsedExports {
		if isUsed {
			used = append(used, name)
		}
	}
	m.Unlock()

	if len(exports) == 0 {
		return false
	}

	changed := false
	for _, name := range used {
		info, ok := exports[name]
		if !ok || info.StmtStart < 0 || info.StmtEnd > len(code) || info.StmtStart >= info.StmtEnd {
			continue
		}
		stmt := code[info.StmtStart:info.StmtEnd]
		for _, ref := range identifierRefRe.FindAllString(stmt, -1) {
			if ref == name {
				continue
			}
			if _, isSiblingExport := exports[ref]; isSiblingExport {
				if m.MarkUsed(ref) {
					changed = true
				}
			}
		}
	}
	return changed
}

// sweep implements step 3: each module emits only the statements whose
// produced names are used or that are side-effectful, preserving relative
// order; RemovedExports and a byte-size delta are recorded for --analyze.
func sweep(g *graph.ModuleGraph) {
	for _, m := range g.All() {
		if !m.Kind.IsScript() || len(m.Exports) == 0 {
			continue
		}
		sweepModule(m)
	}
}

func sweepModule(m *graph.Module) {
	m.Lock()
	code := m.TransformedCode
	exports := m.Exports
	used := m.UsedExports
	sideEffectFree := m.SideEffectFree
	m.Unlock()

	if len(exports) == 0 {
		return
	}

	// Decide which exports survive: used exports, plus anything the
	// side-effect marker keeps. A module whose package manifest declares
	// "sideEffects": false gets no such protection: every top-level
	// statement is treated as pure (spec.md §4.5), so only genuinely used
	// exports remain.
	var removed []string

	sideEffectsKept := used["*side-effects*"] && !sideEffectFree

	order := exportsInOrder(exports)
	for _, name := range order {
		info := exports[name]
		isUsed := used[info.Name] || name == "*"
		if !isUsed && (sideEffectsKept || (info.SideEffect && !sideEffectFree)) {
			isUsed = true
		}
		if !isUsed {
			removed = append(removed, name)
		}
	}

	if len(removed) == 0 {
		return
	}

	// Everything outside named-export statement spans (imports, helper
	// declarations, top-level side-effect statements not tied to an export)
	// is preserved verbatim; only the identified dead export statements are
	// dropped, by reconstructing the text minus removed spans.
	final := removeSpans(code, exports, removed)

	sizeDelta := len(code) - len(final)

	m.Lock()
	m.TransformedCode = final
	m.RemovedExports = removed
	m.SizeDelta = sizeDelta
	m.Unlock()
}

func exportsInOrder(exports map[string]graph.ExportInfo) []string {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return exports[names[i]].StmtStart < exports[names[j]].StmtStart })
	return names
}

// removeSpans deletes the byte ranges of each removed export's producing
// statement from code, preserving the relative order of everything else
// (spec.md §4.5 step 3: "Produced output preserves relative order of kept
// statements").
func removeSpans(code string, exports map[string]graph.ExportInfo, removed []string) string {
	type span struct{ start, end int }
	var cuts []span
	for _, name := range removed {
		info := exports[name]
		cuts = append(cuts, span{info.StmtStart, info.StmtEnd})
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })

	var sb strings.Builder
	last := 0
	for _, c := range cuts {
		if c.start < last {
			continue
		}
		sb.WriteString(code[last:c.start])
		last = c.end
	}
	sb.WriteString(code[last:])
	return sb.String()
}
