// Package resolver implements the (importer, specifier) -> ModuleId mapping
// described in spec.md §4.1: alias substitution, external matching, relative
// and bare-specifier resolution, and package-manifest lookup.
package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Outcome is the tagged result of Resolve, mirroring spec.md's
// ResolveOutcome ∈ { Resolved(ModuleId), External(specifier), Error(reason) }.
type Outcome struct {
	Resolved ModuleId
	External string
	IsExternal bool
	Err        *Error
}

type ModuleId = string

// ErrorReason enumerates the taxonomy from spec.md §4.1.
type ErrorReason uint8

const (
	ModuleNotFound ErrorReason = iota
	AmbiguousExports
	ExcludedByBrowserField
	AliasCycle
)

func (r ErrorReason) String() string {
	switch r {
	case ModuleNotFound:
		return "module not found"
	case AmbiguousExports:
		return "ambiguous exports"
	case ExcludedByBrowserField:
		return "excluded by browser field"
	case AliasCycle:
		return "alias cycle"
	default:
		return "unknown resolution error"
	}
}

type Error struct {
	Reason     ErrorReason
	Specifier  string
	Importer   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %q from %q", e.Reason, e.Specifier, e.Importer)
}

// DefaultConditions is the priority-ordered condition set used when selecting among
// package.json "exports" condition maps (spec.md §4.1 step 5).
var DefaultConditions = []string{"browser", "import", "require", "default"}

// extensionCandidates is the fixed, ordered extension list from spec.md
// §4.1 step 3; first existing file wins.
var extensionCandidates = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json", ".css", ".scss", ".wasm"}

// Options configures a Resolver instance for one build.
type Options struct {
	Root        string
	Alias       map[string]string // longest-prefix alias table
	External    []string          // exact or "pkg/*" prefix patterns
	Conditions  []string
	IsBrowser   bool
}

// Resolver is safe for concurrent use; it is invoked from every Graph Builder
// worker (spec.md §4.1: "called concurrently from many workers").
type Resolver struct {
	opts Options

	cacheMu sync.RWMutex
	cache   map[cacheKey]Outcome

	manifestMu sync.Mutex
	manifests  map[string]*packageManifest // dir -> parsed package.json
	inFlight   map[string]*sync.WaitGroup
}

type cacheKey struct {
	importerDir string
	specifier   string
	conditions  string
}

func New(opts Options) *Resolver {
	if len(opts.Conditions) == 0 {
		opts.Conditions = DefaultConditions
	}
	return &Resolver{
		opts:      opts,
		cache:     map[cacheKey]Outcome{},
		manifests: map[string]*packageManifest{},
		inFlight:  map[string]*sync.WaitGroup{},
	}
}

// InvalidateManifest drops any cached package.json parse for dir and every
// cached resolution, since a resolution from any importer may have traversed
// that manifest; called when a manifest file changes (spec.md §4.1: "Cache
// is invalidated when any package.json on the traversed chain changes").
func (r *Resolver) InvalidateManifest(dir string) {
	r.manifestMu.Lock()
	delete(r.manifests, dir)
	r.manifestMu.Unlock()

	r.cacheMu.Lock()
	r.cache = map[cacheKey]Outcome{}
	r.cacheMu.Unlock()
}

// Resolve implements the six-step algorithm of spec.md §4.1.
func (r *Resolver) Resolve(importer, specifier string, conditions []string) Outcome {
	if len(conditions) == 0 {
		conditions = r.opts.Conditions
	}
	importerDir := filepath.Dir(importer)
	key := cacheKey{importerDir, specifier, strings.Join(conditions, ",")}

	r.cacheMu.RLock()
	if cached, ok := r.cache[key]; ok {
		r.cacheMu.RUnlock()
		return cached
	}
	r.cacheMu.RUnlock()

	out := r.resolveUncached(importer, specifier, conditions, map[string]bool{})

	r.cacheMu.Lock()
	r.cache[key] = out
	r.cacheMu.Unlock()
	return out
}

func (r *Resolver) resolveUncached(importer, specifier string, conditions []string, aliasSeen map[string]bool) Outcome {
	// Step 1: alias, longest-prefix match, restart.
	if target, rest, ok := longestAliasMatch(r.opts.Alias, specifier); ok {
		if aliasSeen[specifier] {
			return Outcome{Err: &Error{Reason: AliasCycle, Specifier: specifier, Importer: importer}}
		}
		aliasSeen[specifier] = true
		return r.resolveUncached(importer, target+rest, conditions, aliasSeen)
	}

	// Step 2: external pattern match.
	if matchesExternal(r.opts.External, specifier) {
		return Outcome{IsExternal: true, External: specifier}
	}

	// Step 3: relative/absolute path.
	if isRelativeOrAbsolute(specifier) {
		base := specifier
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(importer), specifier)
		}
		if path, ok := resolveFileCandidates(base); ok {
			return Outcome{Resolved: canonical(path)}
		}
		return Outcome{Err: &Error{Reason: ModuleNotFound, Specifier: specifier, Importer: importer}}
	}

	// Step 4/5: bare specifier -> walk node_modules, apply manifest rules.
	pkgName, subpath := splitBareSpecifier(specifier)
	dir, pkgDir, ok := r.findPackageDir(filepath.Dir(importer), pkgName)
	if !ok {
		return Outcome{Err: &Error{Reason: ModuleNotFound, Specifier: specifier, Importer: importer}}
	}
	_ = dir

	manifest := r.loadManifest(pkgDir)
	target, err := r.resolveViaManifest(pkgDir, manifest, subpath, conditions)
	if err != nil {
		return Outcome{Err: err}
	}
	if target == "" {
		return Outcome{Err: &Error{Reason: ModuleNotFound, Specifier: specifier, Importer: importer}}
	}
	if path, ok := resolveFileCandidates(target); ok {
		return Outcome{Resolved: canonical(path)}
	}
	return Outcome{Err: &Error{Reason: ModuleNotFound, Specifier: specifier, Importer: importer}}
}

func longestAliasMatch(alias map[string]string, specifier string) (target, rest string, ok bool) {
	bestLen := -1
	for prefix, repl := range alias {
		if strings.HasPrefix(specifier, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			target = repl
			rest = specifier[len(prefix):]
			ok = true
		}
	}
	return
}

func matchesExternal(patterns []string, specifier string) bool {
	for _, p := range patterns {
		if p == specifier {
			return true
		}
		if strings.HasSuffix(p, "/*") {
			prefix := strings.TrimSuffix(p, "/*")
			if specifier == prefix || strings.HasPrefix(specifier, prefix+"/") {
				return true
			}
		}
		if ok, _ := doublestar.Match(p, specifier); ok {
			return true
		}
	}
	return false
}

func isRelativeOrAbsolute(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") ||
		specifier == "." || specifier == ".." || filepath.IsAbs(specifier)
}

// resolveFileCandidates tries base as-is, then with each extension, then as
// index.<ext> inside a directory, per spec.md §4.1 step 3.
func resolveFileCandidates(base string) (string, bool) {
	if fileExists(base) {
		return base, true
	}
	for _, ext := range extensionCandidates {
		if fileExists(base + ext) {
			return base + ext, true
		}
	}
	if dirExists(base) {
		for _, ext := range extensionCandidates {
			idx := filepath.Join(base, "index"+ext)
			if fileExists(idx) {
				return idx, true
			}
		}
	}
	return "", false
}

func splitBareSpecifier(specifier string) (pkgName, subpath string) {
	parts := strings.SplitN(specifier, "/", 2)
	if strings.HasPrefix(specifier, "@") && len(parts) > 0 {
		// scoped package: @scope/name[/subpath]
		scoped := strings.SplitN(specifier, "/", 3)
		if len(scoped) >= 2 {
			pkgName = scoped[0] + "/" + scoped[1]
			if len(scoped) == 3 {
				subpath = "./" + scoped[2]
			} else {
				subpath = "."
			}
			return
		}
	}
	pkgName = parts[0]
	if len(parts) == 2 {
		subpath = "./" + parts[1]
	} else {
		subpath = "."
	}
	return
}

// findPackageDir walks upward from startDir looking for node_modules/<name>
// (spec.md §4.1 step 4).
func (r *Resolver) findPackageDir(startDir, pkgName string) (nodeModulesDir, pkgDir string, ok bool) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, "node_modules", pkgName)
		if dirExists(candidate) {
			return filepath.Join(dir, "node_modules"), candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", false
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// packageManifest is the subset of package.json this resolver understands.
type packageManifest struct {
	Main    string                     `json:"main"`
	Module  string                     `json:"module"`
	Browser json.RawMessage            `json:"browser"`
	Exports json.RawMessage            `json:"exports"`
	SideEffects json.RawMessage        `json:"sideEffects"`
}

// loadManifest parses pkgDir's package.json at most once at a time: when a
// parse is already in flight for the same directory, other workers wait for
// it instead of redundantly re-reading the file (spec.md §5: "per-directory
// locking when a manifest parse is in flight").
func (r *Resolver) loadManifest(pkgDir string) *packageManifest {
	for {
		r.manifestMu.Lock()
		if m, ok := r.manifests[pkgDir]; ok {
			r.manifestMu.Unlock()
			return m
		}
		if wg, ok := r.inFlight[pkgDir]; ok {
			r.manifestMu.Unlock()
			wg.Wait()
			continue // re-check: the parse finished (or was invalidated)
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		r.inFlight[pkgDir] = wg
		r.manifestMu.Unlock()

		m := &packageManifest{}
		data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
		if err == nil {
			_ = json.Unmarshal(data, m)
		}

		r.manifestMu.Lock()
		r.manifests[pkgDir] = m
		delete(r.inFlight, pkgDir)
		r.manifestMu.Unlock()
		wg.Done()
		return m
	}
}

// SideEffectsFreePath reports whether the package manifest owning path
// declares its modules free of side effects (spec.md §4.5: a manifest with
// "sideEffects": false makes every top-level statement in that package's
// modules pure; a list restricts the exception). Walks upward from path's
// directory to the nearest package.json.
func (r *Resolver) SideEffectsFreePath(path string) bool {
	dir := filepath.Dir(path)
	for {
		if fileExists(filepath.Join(dir, "package.json")) {
			m := r.loadManifest(dir)
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return false
			}
			return SideEffectsFree(m.SideEffects, filepath.ToSlash(rel))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// resolveViaManifest applies spec.md §4.1 step 5: exports field first, else
// module/main fallback, then the browser-field replacement map.
func (r *Resolver) resolveViaManifest(pkgDir string, m *packageManifest, subpath string, conditions []string) (string, *Error) {
	if len(m.Exports) > 0 {
		target, err := resolveExportsField(m.Exports, subpath, conditions)
		if err != nil {
			return "", err
		}
		return filepath.Join(pkgDir, target), nil
	}

	target := m.Module
	if target == "" {
		target = m.Main
	}
	if target == "" {
		target = "index.js"
	}
	full := filepath.Join(pkgDir, target)
	full = applyBrowserField(pkgDir, m, full)
	return full, nil
}

func resolveExportsField(raw json.RawMessage, subpath string, conditions []string) (string, *Error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if subpath == "." {
			return asString, nil
		}
		return "", &Error{Reason: AmbiguousExports}
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return "", &Error{Reason: AmbiguousExports}
	}

	// Condition map at top level, no subpaths (all keys don't start with ".").
	hasSubpaths := false
	for k := range asMap {
		if strings.HasPrefix(k, ".") {
			hasSubpaths = true
			break
		}
	}
	if !hasSubpaths {
		if subpath != "." {
			return "", &Error{Reason: AmbiguousExports}
		}
		return selectCondition(asMap, conditions)
	}

	if leaf, ok := asMap[subpath]; ok {
		return leafToTarget(leaf, conditions)
	}
	// wildcard "./*" subpath expansion
	if leaf, ok := asMap["./*"]; ok {
		var tmpl string
		if err := json.Unmarshal(leaf, &tmpl); err == nil {
			rest := strings.TrimPrefix(subpath, "./")
			return strings.Replace(tmpl, "*", rest, 1), nil
		}
		target, err := leafToTarget(leaf, conditions)
		if err != nil {
			return "", err
		}
		rest := strings.TrimPrefix(subpath, "./")
		return strings.Replace(target, "*", rest, 1), nil
	}
	return "", &Error{Reason: AmbiguousExports}
}

func leafToTarget(leaf json.RawMessage, conditions []string) (string, *Error) {
	var asString string
	if err := json.Unmarshal(leaf, &asString); err == nil {
		return asString, nil
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(leaf, &asMap); err != nil {
		return "", &Error{Reason: AmbiguousExports}
	}
	return selectCondition(asMap, conditions)
}

func selectCondition(m map[string]json.RawMessage, conditions []string) (string, *Error) {
	for _, cond := range conditions {
		if v, ok := m[cond]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				return s, nil
			}
		}
	}
	if v, ok := m["default"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s, nil
		}
	}
	return "", &Error{Reason: AmbiguousExports}
}

func applyBrowserField(pkgDir string, m *packageManifest, target string) string {
	if len(m.Browser) == 0 {
		return target
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(m.Browser, &asMap); err != nil {
		return target
	}
	rel, err := filepath.Rel(pkgDir, target)
	if err != nil {
		return target
	}
	for key, v := range asMap {
		if key != rel && key != "./"+rel {
			continue
		}
		var asBool bool
		if err := json.Unmarshal(v, &asBool); err == nil && !asBool {
			return "" // excluded
		}
		var asString string
		if err := json.Unmarshal(v, &asString); err == nil {
			return filepath.Join(pkgDir, asString)
		}
	}
	return target
}

// SideEffectsFree reports whether m's manifest declares "sideEffects": false
// (or a glob list that covers relPath), used by the tree shaker (spec.md
// §4.5).
func SideEffectsFree(manifestSideEffects json.RawMessage, relPath string) bool {
	if len(manifestSideEffects) == 0 {
		return false
	}
	var asBool bool
	if err := json.Unmarshal(manifestSideEffects, &asBool); err == nil {
		return !asBool
	}
	var patterns []string
	if err := json.Unmarshal(manifestSideEffects, &patterns); err == nil {
		rel := strings.TrimPrefix(relPath, "./")
		for _, p := range patterns {
			p = strings.TrimPrefix(p, "./")
			if ok, _ := doublestar.Match(p, rel); ok {
				return false // this file is explicitly excluded from the "no side effects" claim
			}
			// "*.css"-style patterns are conventionally matched against the
			// basename too, the way npm tooling treats them.
			if ok, _ := doublestar.Match(p, filepath.Base(rel)); ok {
				return false
			}
		}
		return true
	}
	return false
}
