package bundler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bcentdev/soku/internal/graph"
)

// wrapModuleBody rewrites a transformed module's ES-module import/export
// syntax into the CommonJS-shaped form the __registry wrapper in
// Concatenate expects: export declarations become exports.<name>
// assignments, import clauses become __require(...)-backed var bindings,
// and dynamic import() call sites become __loadChunk(...) calls against the
// chunk file the Chunker carved the target subgraph into (spec.md §4.6), or
// Promise.resolve(__require(...)) when code splitting is off.
//
// extractExports/extractDeps in package transform only record metadata
// (name, byte spans) for tree shaking; they never rewrite the source text,
// so this is the one place that turns spec.md's module graph into runnable
// JavaScript.
func wrapModuleBody(code string, m *graph.Module, g *graph.ModuleGraph, opts ConcatOptions) string {
	if !m.Kind.IsScript() {
		return code
	}

	code = rewriteDynamicImports(code, m, g, opts)
	code = rewriteRequireCalls(code, m, opts)

	code = rewriteExportStarFrom(code, m, opts)
	code = rewriteNamedExportsFrom(code, m, opts)
	code = rewriteNamedExports(code)
	code = rewriteDeclExports(code, wrapExportConstLetVarRe, 1)
	code = rewriteDeclExports(code, wrapExportFunctionRe, 1)
	code = rewriteDeclExports(code, wrapExportClassRe, 1)
	code = wrapExportDefaultRe.ReplaceAllString(code, "exports.default = ")

	code = rewriteDefaultNamedImports(code, m, opts)
	code = rewriteNamespaceImports(code, m, opts)
	code = rewriteDefaultImports(code, m, opts)
	code = rewriteNamedImports(code, m, opts)
	code = rewriteBareImports(code, m, opts)

	return code
}

var (
	wrapImportNamedRe       = regexp.MustCompile(`\bimport\s+(?:type\s+)?\{([^}]*)\}\s*from\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapImportDefaultNamedRe = regexp.MustCompile(`\bimport\s+(\w+)\s*,\s*\{([^}]*)\}\s*from\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapImportNamespaceRe   = regexp.MustCompile(`\bimport\s*\*\s*as\s+(\w+)\s*from\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapImportDefaultRe     = regexp.MustCompile(`\bimport\s+(\w+)\s*from\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapImportBareRe        = regexp.MustCompile(`\bimport\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapRequireRe           = regexp.MustCompile(`\brequire\s*\(\s*(['"])([^'"]+)(['"])\s*\)`)
	wrapDynamicImportRe     = regexp.MustCompile(`\bimport\s*\(\s*(['"])([^'"]+)(['"])\s*\)`)

	wrapExportStarFromRe    = regexp.MustCompile(`\bexport\s*\*\s*from\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapExportNamedFromRe   = regexp.MustCompile(`\bexport\s*\{([^}]*)\}\s*from\s*(['"])([^'"]+)(['"])\s*;?`)
	wrapExportNamedRe       = regexp.MustCompile(`\bexport\s*\{([^}]*)\}\s*;?`)
	wrapExportConstLetVarRe = regexp.MustCompile(`\bexport\s+(?:const|let|var)\s+(\w+)`)
	wrapExportFunctionRe    = regexp.MustCompile(`\bexport\s+(?:async\s+)?function\s*\*?\s*(\w+)`)
	wrapExportClassRe       = regexp.MustCompile(`\bexport\s+class\s+(\w+)`)
	wrapExportDefaultRe     = regexp.MustCompile(`\bexport\s+default\s+`)

	stripExportPrefixRe = regexp.MustCompile(`^export\s+`)
)

// replaceMatches rewrites every non-overlapping match of re in code using
// build, which receives the match plus its capture groups (group 0 is the
// whole match) and returns its replacement text. Positions are all taken
// from the original code, so this is a single left-to-right pass, never a
// stale-offset splice.
func replaceMatches(code string, re *regexp.Regexp, build func(groups []string) string) string {
	locs := re.FindAllStringSubmatchIndex(code, -1)
	if locs == nil {
		return code
	}
	var out strings.Builder
	last := 0
	for _, loc := range locs {
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = code[loc[2*i]:loc[2*i+1]]
			}
		}
		out.WriteString(code[last:loc[0]])
		out.WriteString(build(groups))
		last = loc[1]
	}
	out.WriteString(code[last:])
	return out.String()
}

// depTarget finds the ResolvedImport m recorded for specifier, preferring a
// dep whose ImportKind is in kinds before falling back to any match (two
// distinct import statements of the same specifier collapse into one Dep
// during extraction, so kind is a preference, not a guarantee).
func depTarget(m *graph.Module, specifier string, kinds ...graph.ImportKind) (graph.ResolvedImport, bool) {
	for _, k := range kinds {
		for _, dep := range m.Deps {
			if dep.Specifier == specifier && dep.ImportKind == k {
				return dep, true
			}
		}
	}
	for _, dep := range m.Deps {
		if dep.Specifier == specifier {
			return dep, true
		}
	}
	return graph.ResolvedImport{}, false
}

// requireExpr renders the expression that should replace a reference to
// specifier: a __require() call against the shared registry for a resolved
// internal module, or a require() passthrough for an external one when
// opts.KeepExternal asks to preserve it.
func requireExpr(m *graph.Module, specifier string, opts ConcatOptions, kinds ...graph.ImportKind) (string, bool) {
	dep, ok := depTarget(m, specifier, kinds...)
	if !ok {
		return "", false
	}
	if dep.IsExternal {
		if !opts.KeepExternal {
			return "", false
		}
		return fmt.Sprintf("require(%q)", dep.ExternalName), true
	}
	return fmt.Sprintf("__require(%q)", string(dep.Resolved)), true
}

// --- export rewriting --------------------------------------------------

func rewriteExportStarFrom(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapExportStarFromRe, func(g []string) string {
		expr, ok := requireExpr(m, g[2], opts, graph.Static)
		if !ok {
			return g[0]
		}
		return "Object.assign(exports, " + expr + ");\n"
	})
}

func rewriteNamedExportsFrom(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapExportNamedFromRe, func(g []string) string {
		clause, specifier := g[1], g[3]
		expr, ok := requireExpr(m, specifier, opts, graph.Static)
		if !ok {
			return g[0]
		}
		var sb strings.Builder
		for _, part := range strings.Split(clause, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			remote, local := part, part
			if idx := strings.Index(part, " as "); idx >= 0 {
				remote = strings.TrimSpace(part[:idx])
				local = strings.TrimSpace(part[idx+4:])
			}
			sb.WriteString("exports." + local + " = " + expr + "." + remote + ";\n")
		}
		return sb.String()
	})
}

func rewriteNamedExports(code string) string {
	return replaceMatches(code, wrapExportNamedRe, func(g []string) string {
		var sb strings.Builder
		for _, part := range strings.Split(g[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			local, asName := part, part
			if idx := strings.Index(part, " as "); idx >= 0 {
				local = strings.TrimSpace(part[:idx])
				asName = strings.TrimSpace(part[idx+4:])
			}
			sb.WriteString("exports." + asName + " = " + local + ";\n")
		}
		return sb.String()
	})
}

// rewriteDeclExports handles "export const/let/var/function/class NAME"
// forms: re's one capture group (at nameGroup) names the export, and the
// producing statement can span many lines (a function or class body), so
// unlike the single-line forms above this walks one match at a time and
// extends it to the statement's real end via stmtEnd before replacing.
func rewriteDeclExports(code string, re *regexp.Regexp, nameGroup int) string {
	for {
		loc := re.FindStringSubmatchIndex(code)
		if loc == nil {
			return code
		}
		start := loc[0]
		name := code[loc[2*nameGroup]:loc[2*nameGroup+1]]
		end := stmtEnd(code, start)
		stmt := code[start:end]
		decl := stripExportPrefixRe.ReplaceAllString(stmt, "")
		replacement := decl + "\nexports." + name + " = " + name + ";"
		code = code[:start] + replacement + code[end:]
	}
}

// --- import rewriting ----------------------------------------------------

func rewriteDefaultNamedImports(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapImportDefaultNamedRe, func(g []string) string {
		defaultName, clause, specifier := g[1], g[2], g[4]
		expr, ok := requireExpr(m, specifier, opts, graph.Static, graph.TypeOnly)
		if !ok {
			return g[0]
		}
		out := "var " + defaultName + " = " + expr + ".default;"
		if d := destructureClause(clause); d != "" {
			out += "\nvar " + d + " = " + expr + ";"
		}
		return out
	})
}

func rewriteNamespaceImports(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapImportNamespaceRe, func(g []string) string {
		name, specifier := g[1], g[3]
		expr, ok := requireExpr(m, specifier, opts, graph.Static, graph.TypeOnly, graph.Dynamic)
		if !ok {
			return g[0]
		}
		return "var " + name + " = " + expr + ";"
	})
}

func rewriteDefaultImports(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapImportDefaultRe, func(g []string) string {
		name, specifier := g[1], g[3]
		expr, ok := requireExpr(m, specifier, opts, graph.Static, graph.TypeOnly)
		if !ok {
			return g[0]
		}
		return "var " + name + " = " + expr + ".default;"
	})
}

func rewriteNamedImports(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapImportNamedRe, func(g []string) string {
		clause, specifier := g[1], g[3]
		expr, ok := requireExpr(m, specifier, opts, graph.Static, graph.TypeOnly)
		if !ok {
			return g[0]
		}
		d := destructureClause(clause)
		if d == "" {
			return ""
		}
		return "var " + d + " = " + expr + ";"
	})
}

func rewriteBareImports(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapImportBareRe, func(g []string) string {
		expr, ok := requireExpr(m, g[2], opts, graph.SideEffectOnly)
		if !ok {
			return g[0]
		}
		return expr + ";"
	})
}

func rewriteRequireCalls(code string, m *graph.Module, opts ConcatOptions) string {
	return replaceMatches(code, wrapRequireRe, func(g []string) string {
		expr, ok := requireExpr(m, g[2], opts, graph.Static)
		if !ok {
			return g[0]
		}
		return expr
	})
}

// rewriteDynamicImports turns import("spec") into a __loadChunk() call
// against the chunk file the Chunker's dynamicChunkName would assign the
// target subgraph (spec.md §4.6: dynamic import sites are "referenced by a
// runtime loader"). With code splitting off the target is registered in the
// same (or an entry's) chunk, so the call resolves in place instead of
// fetching a file that was never emitted.
func rewriteDynamicImports(code string, m *graph.Module, g *graph.ModuleGraph, opts ConcatOptions) string {
	return replaceMatches(code, wrapDynamicImportRe, func(gr []string) string {
		specifier := gr[2]
		for _, dep := range m.Deps {
			if dep.Specifier != specifier || dep.ImportKind != graph.Dynamic || dep.IsExternal {
				continue
			}
			if !opts.CodeSplitting {
				return fmt.Sprintf("Promise.resolve(__require(%q))", string(dep.Resolved))
			}
			file := dynamicChunkName(closure(g, dep.Resolved, false)) + ".js"
			return fmt.Sprintf("__loadChunk(%q, %q)", file, string(dep.Resolved))
		}
		return gr[0]
	})
}

// destructureClause turns an import/export clause's inner text ("a, b as c")
// into a JS destructuring-pattern body ("a, b: c"), swapping "remote as
// local" into "remote: local" since object destructuring keys on the source
// name.
func destructureClause(clause string) string {
	var parts []string
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "type ")
		if part == "" {
			continue
		}
		remote, local := part, part
		if idx := strings.Index(part, " as "); idx >= 0 {
			remote = strings.TrimSpace(part[:idx])
			local = strings.TrimSpace(part[idx+4:])
		}
		if remote == local {
			parts = append(parts, local)
		} else {
			parts = append(parts, remote+": "+local)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// stmtEnd finds the end of the statement starting at start: the next
// top-level semicolon, or a matching closing brace for a block-bodied
// declaration, whichever applies. Mirrors transform.statementEnd, kept as
// its own copy since this package re-derives positions from the module's
// current (possibly tree-shaken) text rather than trusting offsets recorded
// before sweep.
func stmtEnd(code string, start int) int {
	depth := 0
	i := start
	for i < len(code) {
		c := code[i]
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth <= 0 {
				return i + 1
			}
		case ';':
			if depth == 0 {
				return i + 1
			}
		case '\n':
			if depth == 0 && stmtLooksComplete(code[start:i]) {
				return i
			}
		}
		i++
	}
	return len(code)
}

func stmtLooksComplete(stmt string) bool {
	s := strings.TrimSpace(stmt)
	return s != "" && !strings.HasSuffix(s, "{") && !strings.HasSuffix(s, ",") &&
		!strings.HasSuffix(s, "=") && !strings.Contains(s, "{")
}
