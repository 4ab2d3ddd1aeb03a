package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
)

// transformJS drives the Fast/Standard/Enhanced pipeline for JS/TS/JSX/TSX
// source (spec.md §4.3).
func transformJS(path string, kind graph.ModuleKind, source []byte, opts Options) Result {
	strategy := opts.Strategy
	if strategy == StrategyAuto {
		strategy = Select(StrategyAuto, map[graph.ModuleKind]bool{kind: true})
	}

	code := string(source)
	var diags []logger.Msg

	if strategy >= Standard {
		code = stripTypeScript(code)
	}
	if strategy >= Enhanced {
		var jsxDiags []logger.Msg
		code, jsxDiags = lowerJSX(path, code, opts)
		diags = append(diags, jsxDiags...)
	}

	if len(opts.Define) > 0 {
		code = substituteDefines(code, opts.Define)
	}

	deps := extractDeps([]byte(code))
	exports := extractExports([]byte(code))

	return Result{
		Output:      code,
		Deps:        deps,
		Exports:     exports,
		Diagnostics: diags,
	}
}

// --- dependency extraction --------------------------------------------------

var (
	importFromRe   = regexp.MustCompile(`\bimport\b[^'";]*?\bfrom\s*['"]([^'"]+)['"]`)
	bareImportRe   = regexp.MustCompile(`\bimport\s*['"]([^'"]+)['"]`)
	exportFromRe   = regexp.MustCompile(`\bexport\b[^'";]*?\bfrom\s*['"]([^'"]+)['"]`)
	dynamicImpRe   = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	requireRe      = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	namedClauseRe  = regexp.MustCompile(`\{([^}]*)\}`)
	namespaceRe    = regexp.MustCompile(`\*\s+as\s+(\w+)`)
	defaultNameRe  = regexp.MustCompile(`^\s*(\w+)\s*,?`)
)

// extractDeps extracts spec.md §3's ResolvedImport-shaped pre-resolution
// dependency list: static import/export-from, dynamic import(), side-effect
// import, and shallow require() calls (spec.md §9 open question #1: followed
// statically only when the argument is a string literal).
func extractDeps(code []byte) []Dep {
	scan := stripStringsAndComments(code)
	var deps []Dep
	seen := map[string]bool{}

	add := func(specifier string, kind graph.ImportKind, names graph.ImportedNames) {
		k := fmt.Sprintf("%d:%s", kind, specifier)
		if seen[k] {
			return
		}
		seen[k] = true
		deps = append(deps, Dep{Specifier: specifier, Kind: kind, Imported: names})
	}

	for _, m := range importFromRe.FindAllSubmatchIndex(scan, -1) {
		clause := string(code[m[0]:m[1]])
		names := parseImportClause(clause)
		kind := graph.Static
		if strings.Contains(clause, "import type") {
			kind = graph.TypeOnly
		}
		add(string(code[m[2]:m[3]]), kind, names)
	}
	for _, m := range bareImportRe.FindAllSubmatchIndex(scan, -1) {
		add(string(code[m[2]:m[3]]), graph.SideEffectOnly, graph.ImportedNames{})
	}
	for _, m := range exportFromRe.FindAllSubmatchIndex(scan, -1) {
		add(string(code[m[2]:m[3]]), graph.Static, graph.ImportedNames{Namespace: true})
	}
	for _, m := range dynamicImpRe.FindAllSubmatchIndex(scan, -1) {
		add(string(code[m[2]:m[3]]), graph.Dynamic, graph.ImportedNames{Namespace: true})
	}
	for _, m := range requireRe.FindAllSubmatchIndex(scan, -1) {
		add(string(code[m[2]:m[3]]), graph.Static, graph.ImportedNames{Namespace: true})
	}
	return deps
}

// parseImportClause pulls the imported-names shape out of the clause between
// "import" and "from", e.g. "import Foo, { a, b as c } from" or
// "import * as ns from".
func parseImportClause(clause string) graph.ImportedNames {
	names := graph.ImportedNames{}
	if m := namespaceRe.FindStringSubmatch(clause); m != nil {
		names.Namespace = true
		return names
	}
	if m := namedClauseRe.FindStringSubmatch(clause); m != nil {
		names.Names = map[string]bool{}
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if idx := strings.Index(part, " as "); idx >= 0 {
				part = strings.TrimSpace(part[:idx])
			}
			part = strings.TrimPrefix(part, "type ")
			names.Names[part] = true
		}
	}
	if m := defaultNameRe.FindStringSubmatch(strings.TrimPrefix(clause, "import")); m != nil && m[1] != "" && m[1] != "type" {
		names.Default = true
	}
	if names.Names == nil && !names.Default && !names.Namespace {
		names.Namespace = true
	}
	return names
}

// --- export extraction ------------------------------------------------------

var (
	exportConstLetVarRe = regexp.MustCompile(`\bexport\s+(?:const|let|var)\s+(\w+)`)
	exportFunctionRe    = regexp.MustCompile(`\bexport\s+(?:async\s+)?function\s*\*?\s*(\w+)`)
	exportClassRe       = regexp.MustCompile(`\bexport\s+class\s+(\w+)`)
	exportDefaultRe     = regexp.MustCompile(`\bexport\s+default\b`)
	exportNamedRe       = regexp.MustCompile(`\bexport\s*\{([^}]*)\}\s*(?:from\s*['"][^'"]+['"])?`)
	exportStarRe        = regexp.MustCompile(`\bexport\s*\*\s*(?:as\s+(\w+)\s+)?from`)
)

// extractExports implements spec.md §3's exports set with side-effect flags,
// and spec.md §4.5's statement-producing-name bookkeeping via StmtStart/End
// so the tree shaker can find and remove a specific statement.
func extractExports(code []byte) map[string]graph.ExportInfo {
	scan := stripStringsAndComments(code)
	exports := map[string]graph.ExportInfo{}

	record := func(name string, start int, sideEffect bool) {
		end := statementEnd(code, start)
		exports[name] = graph.ExportInfo{Name: name, SideEffect: sideEffect, StmtStart: start, StmtEnd: end}
	}

	for _, m := range exportConstLetVarRe.FindAllSubmatchIndex(scan, -1) {
		record(string(code[m[2]:m[3]]), m[0], false)
	}
	for _, m := range exportFunctionRe.FindAllSubmatchIndex(scan, -1) {
		record(string(code[m[2]:m[3]]), m[0], false)
	}
	for _, m := range exportClassRe.FindAllSubmatchIndex(scan, -1) {
		record(string(code[m[2]:m[3]]), m[0], false)
	}
	if m := exportDefaultRe.FindIndex(scan); m != nil {
		record("default", m[0], false)
	}
	for _, m := range exportNamedRe.FindAllSubmatchIndex(scan, -1) {
		clause := string(code[m[2]:m[3]])
		for _, part := range strings.Split(clause, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name := part
			if idx := strings.Index(part, " as "); idx >= 0 {
				name = strings.TrimSpace(part[idx+4:])
			}
			// A re-export via "export { x } from './y'" counts as a pass-through
			// export; it has no local producing statement, so it is always
			// considered used to avoid misclassifying re-export barrels as dead.
			exports[name] = graph.ExportInfo{Name: name, SideEffect: false, StmtStart: m[0], StmtEnd: m[1]}
		}
	}
	for _, m := range exportStarRe.FindAllSubmatchIndex(scan, -1) {
		name := "*"
		if m[2] != -1 {
			name = string(code[m[2]:m[3]])
		}
		exports[name] = graph.ExportInfo{Name: name, SideEffect: false, StmtStart: m[0], StmtEnd: m[1]}
	}
	return exports
}

// statementEnd finds the end of the statement starting at start: the next
// top-level semicolon, or a matching closing brace for a block-bodied
// declaration, whichever applies.
func statementEnd(code []byte, start int) int {
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
			if depth == 0 && looksComplete(code[start:i]) {
				return i
			}
		}
		i++
	}
	return len(code)
}

func looksComplete(stmt []byte) bool {
	s := strings.TrimSpace(string(stmt))
	return s != "" && !strings.HasSuffix(s, "{") && !strings.HasSuffix(s, ",") &&
		!strings.HasSuffix(s, "=") && !strings.Contains(s, "{")
}

// --- define substitution -----------------------------------------------------

// substituteDefines implements the `define` compile-time constant
// substitution from spec.md §6, plus process.env.X / import.meta.env.X from
// the .env loading rules.
func substituteDefines(code string, define map[string]string) string {
	for ident, literal := range define {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(ident) + `\b`)
		code = re.ReplaceAllString(code, literal)
	}
	return code
}
