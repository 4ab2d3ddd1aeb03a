// Package transform implements the Parser/Transformer component of spec.md
// §4.3: a strategy-selectable pipeline producing (output code, dependency
// list, export list, optional source-map segments).
package transform

import (
	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
)

// Strategy is the transform level selected for a build (spec.md glossary).
type Strategy uint8

const (
	StrategyAuto Strategy = iota
	Fast
	Standard
	Enhanced
)

func ParseStrategy(s string) Strategy {
	switch s {
	case "fast":
		return Fast
	case "standard":
		return Standard
	case "enhanced":
		return Enhanced
	default:
		return StrategyAuto
	}
}

// Options configures one Transform call.
type Options struct {
	Strategy     Strategy
	JSXFactory   string
	JSXFragment  string
	Define       map[string]string
	CSSModules   bool
	Minify       bool
	SourceMaps   bool
	CSSModuleScheme string // hash scheme name, for config_hash stability
}

// Dep is a pre-resolution dependency extracted from source text.
type Dep struct {
	Specifier string
	Kind      graph.ImportKind
	Imported  graph.ImportedNames
}

// Result is the Parser/Transformer's output (spec.md §4.3).
type Result struct {
	Output      string
	Deps        []Dep
	Exports     map[string]graph.ExportInfo
	Map         []byte
	Diagnostics []logger.Msg
	// ClassMap is populated for CSS Modules: the original class name to
	// scoped class name table that becomes the module's default JS export
	// (spec.md §4.3).
	ClassMap map[string]string
}

// Select implements the selector from spec.md §4.3: "has-jsx-inputs ->
// Enhanced; has-typescript-inputs -> Standard; else Fast", used whenever the
// build configuration leaves Strategy unspecified.
func Select(requested Strategy, kinds map[graph.ModuleKind]bool) Strategy {
	if requested != StrategyAuto {
		return requested
	}
	if kinds[graph.KindJsx] || kinds[graph.KindTsx] {
		return Enhanced
	}
	if kinds[graph.KindTypeScript] {
		return Standard
	}
	return Fast
}

// Transform dispatches to the per-kind transform. CSS, JSON, and WASM have
// their own paths independent of the JS strategy selector (spec.md §4.3).
func Transform(path string, kind graph.ModuleKind, source []byte, opts Options) Result {
	switch kind {
	case graph.KindCss, graph.KindCssModule, graph.KindSass:
		return transformCSS(path, kind, source, opts)
	case graph.KindJson:
		return transformJSON(source)
	case graph.KindWasm:
		return transformWasm(path, source)
	default:
		return transformJS(path, kind, source, opts)
	}
}
