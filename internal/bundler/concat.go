package bundler

import (
	"fmt"
	"strings"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/sourcemap"
	"github.com/bcentdev/soku/internal/transform"
)

// ConcatOptions configures module wrapping and concatenation.
type ConcatOptions struct {
	SourceMaps    bool
	SourcesInline bool
	Minify        bool
	KeepExternal  bool // rewrite external imports to require(); when false they are left as written, not omitted
	CodeSplitting bool // dynamic import() sites load separate chunk files
}

// Artifact is one emitted chunk's concatenated output plus its map.
type Artifact struct {
	Code string
	Map  []byte
}

// Concatenate implements spec.md §4.6's concatenation protocol: each module
// becomes a function-scoped block declaring an exports/module local, imports
// rewritten to direct references through a shared registry, entry modules
// executed in g.Entries order at the end.
//
// The registry lives on a shared global rather than inside each chunk's own
// closure, so a module reachable from more than one emitted chunk (the
// vendor split, a second entry's root chunk, or a lazily loaded dynamic
// chunk) resolves to the same __require call everywhere, per spec.md §4.6's
// "referenced by a runtime loader" requirement for dynamic import().
func Concatenate(g *graph.ModuleGraph, c Chunk, opts ConcatOptions) Artifact {
	var body strings.Builder
	smBuilder := sourcemap.NewBuilder()

	body.WriteString("(function() {\n")
	body.WriteString("  var __global = typeof globalThis !== \"undefined\" ? globalThis : this;\n")
	body.WriteString("  var __registry = __global.__sokuRegistry || (__global.__sokuRegistry = {});\n")
	body.WriteString("  var __require = __global.__sokuRequire || (__global.__sokuRequire = function(id) {\n")
	body.WriteString("    var mod = __registry[id];\n")
	body.WriteString("    if (!mod) { throw new Error(\"module not registered: \" + id); }\n")
	body.WriteString("    if (!mod.loaded) { mod.loaded = true; mod.fn(mod.exports, mod); }\n")
	body.WriteString("    return mod.exports;\n")
	body.WriteString("  });\n")
	body.WriteString("  var __loadChunk = __global.__sokuLoadChunk || (__global.__sokuLoadChunk = function(file, id) {\n")
	body.WriteString("    return new Promise(function(resolve, reject) {\n")
	body.WriteString("      if (__registry[id]) { resolve(__require(id)); return; }\n")
	body.WriteString("      var s = document.createElement(\"script\");\n")
	body.WriteString("      s.src = file;\n")
	body.WriteString("      s.onload = function() { resolve(__require(id)); };\n")
	body.WriteString("      s.onerror = function() { reject(new Error(\"failed to load chunk: \" + file)); };\n")
	body.WriteString("      document.head.appendChild(s);\n")
	body.WriteString("    });\n")
	body.WriteString("  });\n\n")

	for _, id := range c.Modules {
		m, ok := g.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&body, "  __registry[%q] = { exports: {}, loaded: false, fn: function(exports, module) {\n", string(id))

		code := m.TransformedCode
		switch {
		case len(m.ClassMap) > 0:
			code = "module.exports.default = " + transform.ClassMapJSON(m.ClassMap) + ";"
		case m.Kind.IsStylesheet():
			// A plain stylesheet's text is aggregated into bundle.css by the
			// Emitter; its script-side registration is an empty module so
			// side-effect imports of it still resolve.
			code = ""
		}
		code = wrapModuleBody(code, m, g, opts)

		for _, line := range strings.Split(code, "\n") {
			body.WriteString("    " + line + "\n")
		}
		body.WriteString("  }};\n")
	}

	body.WriteString("\n")
	// Entry modules in this chunk execute in g.Entries order, which is
	// sorted by entry name; entries are configured as a map, so the order in
	// which they were written is not kept.
	inChunk := map[graph.ModuleId]bool{}
	for _, id := range c.Modules {
		inChunk[id] = true
	}
	for _, e := range g.Entries {
		if _, ok := g.Get(e.Id); !ok || !inChunk[e.Id] {
			continue
		}
		fmt.Fprintf(&body, "  __require(%q);\n", string(e.Id))
	}
	body.WriteString("})();\n")

	var mapBytes []byte
	if opts.SourceMaps {
		for _, id := range c.Modules {
			m, ok := g.Get(id)
			if !ok {
				continue
			}
			smBuilder.AddSource(string(id), string(m.Source), opts.SourcesInline)
		}
		mapBytes = smBuilder.Render()
	}

	return Artifact{Code: body.String(), Map: mapBytes}
}

func isEntryModule(g *graph.ModuleGraph, id graph.ModuleId) bool {
	for _, e := range g.Entries {
		if e.Id == id {
			return true
		}
	}
	return false
}

// CSSConcatenate implements spec.md §8 scenario 3: concatenating stylesheet
// chunks in dependency order (importee before importer), already guaranteed
// by topoSort over the CSS @import graph.
func CSSConcatenate(g *graph.ModuleGraph, c Chunk) string {
	var sb strings.Builder
	for _, id := range c.Modules {
		m, ok := g.Get(id)
		if !ok || !m.Kind.IsStylesheet() {
			continue
		}
		sb.WriteString(m.TransformedCode)
		sb.WriteString("\n")
	}
	return sb.String()
}
