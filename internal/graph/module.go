// Package graph holds the ModuleGraph data model (spec.md §3). The Graph
// Builder that materializes it (spec.md §4.2) lives in internal/graphbuild.
package graph

import (
	"sync"

	"github.com/bcentdev/soku/internal/fingerprint"
)

// ModuleId is the canonical absolute path after symlink resolution; it is
// the stable key used in every map throughout the pipeline.
type ModuleId string

// ModuleKind classifies a module by extension/content, per spec.md §3.
type ModuleKind uint8

const (
	KindJavaScript ModuleKind = iota
	KindTypeScript
	KindJsx
	KindTsx
	KindCss
	KindCssModule
	KindSass
	KindJson
	KindWasm
	KindHtml
)

func (k ModuleKind) String() string {
	switch k {
	case KindJavaScript:
		return "js"
	case KindTypeScript:
		return "ts"
	case KindJsx:
		return "jsx"
	case KindTsx:
		return "tsx"
	case KindCss:
		return "css"
	case KindCssModule:
		return "css-module"
	case KindSass:
		return "scss"
	case KindJson:
		return "json"
	case KindWasm:
		return "wasm"
	case KindHtml:
		return "html"
	default:
		return "unknown"
	}
}

// IsScript reports whether statements/exports/tree-shaking apply to this
// kind (as opposed to CSS, JSON-as-data, or binary WASM).
func (k ModuleKind) IsScript() bool {
	switch k {
	case KindJavaScript, KindTypeScript, KindJsx, KindTsx, KindWasm:
		return true
	default:
		return false
	}
}

func (k ModuleKind) IsStylesheet() bool {
	return k == KindCss || k == KindCssModule || k == KindSass
}

// ImportKind distinguishes how a specifier was referenced, per spec.md §3.
type ImportKind uint8

const (
	Static ImportKind = iota
	Dynamic
	SideEffectOnly
	TypeOnly
)

// ImportedNames is either a concrete set of names, the whole namespace, or
// the module's default export.
type ImportedNames struct {
	Names     map[string]bool
	Namespace bool
	Default   bool
}

// ResolvedImport is one edge out of a module, per spec.md §3.
type ResolvedImport struct {
	Specifier    string
	Resolved     ModuleId
	IsExternal   bool
	ExternalName string
	ImportKind   ImportKind
	Imported     ImportedNames
}

// ExportInfo records one exported symbol and whether producing it has
// observable side effects (relevant to tree shaking, spec.md §4.5).
type ExportInfo struct {
	Name        string
	SideEffect  bool
	StmtStart   int // byte offset of the producing statement in transformed_code
	StmtEnd     int
}

// Module is the node type of the ModuleGraph (spec.md §3).
type Module struct {
	Id     ModuleId
	Kind   ModuleKind
	Source []byte
	Hash   fingerprint.Hash

	TransformedCode string
	Deps            []ResolvedImport
	Exports         map[string]ExportInfo
	UsedExports     map[string]bool

	IsExternal   bool
	IsNodeModule bool

	// SideEffectFree is true when the module's owning package manifest
	// declares "sideEffects": false (or a list that doesn't cover this
	// file); the tree shaker then treats every top-level statement in the
	// module as pure (spec.md §4.5).
	SideEffectFree bool

	SourceMapSegments []byte // opaque pre-composed mapping payload

	// ClassMap holds a CSS Module's original->scoped class name table,
	// populated by the transformer and consumed by the Bundler when a JS
	// module imports this module's default export (spec.md §4.3).
	ClassMap map[string]string

	ModTimeUnix int64
	Size        int64

	// RemovedExports and SizeDelta are populated by the tree shaker's sweep
	// step (spec.md §4.5 step 3) for --analyze reporting.
	RemovedExports []string
	SizeDelta      int

	mu sync.Mutex
}

// Lock/Unlock make Module safe to mutate from its single owning stage at a
// time, per spec.md §9 ("module records themselves are owned by their
// inserter until the graph phase completes, then become read-only").
func (m *Module) Lock()   { m.mu.Lock() }
func (m *Module) Unlock() { m.mu.Unlock() }

// MarkUsed adds name to UsedExports and reports whether this is new
// information (the tree shaker's worklist algorithm needs this to decide
// whether to keep propagating, spec.md §4.5 step 2).
func (m *Module) MarkUsed(name string) (added bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsedExports == nil {
		m.UsedExports = map[string]bool{}
	}
	if m.UsedExports[name] {
		return false
	}
	m.UsedExports[name] = true
	return true
}

func (m *Module) IsUsed(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UsedExports[name]
}
