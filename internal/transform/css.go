package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

var cssImportRe = regexp.MustCompile(`@import\s+(?:url\()?['"]([^'")]+)['"]\)?\s*;?`)

// transformCSS implements spec.md §4.3's CSS path: @import resolution (left
// to the Graph Builder / linker to inline, here we only extract the
// dependency), CSS Modules class scoping, SCSS pass-through, and optional
// minification.
func transformCSS(path string, kind graph.ModuleKind, source []byte, opts Options) Result {
	code := string(source)
	var diags []logger.Msg

	if kind == graph.KindSass {
		code = compileScss(code)
	}

	// "*.module.*" covers more than the .css extension: a .module.scss file
	// is classified KindSass (it needs the SCSS pass first) but still gets
	// class scoping and the class-map default export.
	isModule := kind == graph.KindCssModule || opts.CSSModules ||
		strings.Contains(strings.ToLower(filepath.Base(path)), ".module.")

	deps := cssImportDeps(code)
	// Strip the @import directives themselves; the Chunker/Bundler inlines
	// the referenced stylesheet's transformed output in import order
	// (spec.md §4.6/§8 scenario 3), so the directive text has no runtime role
	// once dependency edges are recorded.
	code = cssImportRe.ReplaceAllString(code, "")

	var classMap map[string]string
	if isModule {
		code, classMap = scopeCSSModules(path, code)
	}

	if opts.Minify {
		code = vendorPrefix(code)
		if minified, err := minifyCSS(code); err == nil {
			code = minified
		} else {
			diags = append(diags, logger.Msg{
				Severity: logger.Warning, Kind: logger.KindTransform,
				Text: "css minification failed: " + err.Error(),
			})
		}
	}

	exports := map[string]graph.ExportInfo{}
	if isModule {
		exports["default"] = graph.ExportInfo{Name: "default", SideEffect: true}
	}

	return Result{
		Output:      code,
		Deps:        deps,
		Exports:     exports,
		Diagnostics: diags,
		ClassMap:    classMap,
	}
}

func cssImportDeps(code string) []Dep {
	var deps []Dep
	for _, m := range cssImportRe.FindAllStringSubmatch(code, -1) {
		deps = append(deps, Dep{Specifier: m[1], Kind: graph.Static, Imported: graph.ImportedNames{Namespace: true}})
	}
	return deps
}

var classSelectorRe = regexp.MustCompile(`\.([A-Za-z_][\w-]*)`)

// scopeCSSModules implements spec.md §4.3: for *.module.* files, ".name" ->
// ".<basename>_<name>_<hash5>", and the module's default export becomes the
// resulting JSON class map (represented here as a Go map literal comment for
// the bundler to re-serialize; see ClassMapJSON).
func scopeCSSModules(path, code string) (string, map[string]string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, ".module")
	classMap := map[string]string{}

	scoped := classSelectorRe.ReplaceAllStringFunc(code, func(m string) string {
		name := m[1:]
		scopedName, ok := classMap[name]
		if !ok {
			h := sha256.Sum256([]byte(path + ":" + name))
			scopedName = base + "_" + name + "_" + hex.EncodeToString(h[:])[:5]
			classMap[name] = scopedName
		}
		return "." + scopedName
	})
	return scoped, classMap
}

// ClassMapJSON renders a CSS Modules class map as a JSON object literal,
// consumed by the Bundler when synthesizing "export default {...}" for the
// module's JS-visible surface. Keys are emitted sorted so repeated builds
// stay byte-identical.
func ClassMapJSON(classMap map[string]string) string {
	keys := make([]string, 0, len(classMap))
	for k := range classMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(k) + ": " + strconv.Quote(classMap[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

// compileScss handles the subset of SCSS spec.md §4.3 requires support for
// before a file re-enters the plain-CSS path: nested selector flattening and
// "$variable" substitution. Full Sass semantics (mixins, @use, control flow)
// are out of scope per spec.md §1's non-goals around "a general-purpose
// compiler".
func compileScss(code string) string {
	vars := map[string]string{}
	varDeclRe := regexp.MustCompile(`(?m)^\s*\$([\w-]+)\s*:\s*([^;]+);`)
	code = varDeclRe.ReplaceAllStringFunc(code, func(m string) string {
		parts := varDeclRe.FindStringSubmatch(m)
		vars[parts[1]] = strings.TrimSpace(parts[2])
		return ""
	})
	varUseRe := regexp.MustCompile(`\$([\w-]+)`)
	code = varUseRe.ReplaceAllStringFunc(code, func(m string) string {
		name := m[1:]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
	return flattenNestedRules(code)
}

// flattenNestedRules performs a single pass of SCSS nesting flattening:
// "a { b { color: red } }" -> "a b { color: red }". Deeply nested (3+ level)
// selectors are handled by repeated application until no braces-within-rule
// remain.
func flattenNestedRules(code string) string {
	for i := 0; i < 8; i++ {
		next, changed := flattenOnce(code)
		code = next
		if !changed {
			break
		}
	}
	return code
}

func flattenOnce(code string) (string, bool) {
	ruleHeaderRe := regexp.MustCompile(`([^{}\n]+)\{`)
	changed := false
	var out strings.Builder
	pos := 0
	for pos < len(code) {
		loc := ruleHeaderRe.FindStringSubmatchIndex(code[pos:])
		if loc == nil {
			out.WriteString(code[pos:])
			break
		}
		selStart, braceEnd := pos+loc[2], pos+loc[1]
		selector := strings.TrimSpace(code[selStart : selStart+(loc[3]-loc[2])])
		bodyStart := braceEnd
		end := matchCSSBrace(code, bodyStart-1)
		body := code[bodyStart : end-1]

		if nested := ruleHeaderRe.FindStringIndex(body); nested != nil && strings.TrimSpace(selector) != "" && !strings.HasPrefix(strings.TrimSpace(selector), "@") {
			// The header match can reach back over same-line declarations
			// ("color: black; a {"); the nested selector starts after the
			// last ';'.
			headStart := nested[0]
			header := body[headStart : nested[1]-1]
			if cut := strings.LastIndexByte(header, ';'); cut >= 0 {
				headStart += cut + 1
				header = header[cut+1:]
			}
			innerSel := strings.TrimSpace(header)
			innerEnd := matchCSSBrace(body, nested[1]-1)
			innerBody := body[nested[1] : innerEnd-1]
			rest := body[:headStart] + body[innerEnd:]

			combined := combineSelectors(selector, innerSel)
			out.WriteString(selector + " { " + strings.TrimSpace(rest) + " }\n")
			out.WriteString(combined + " { " + strings.TrimSpace(innerBody) + " }\n")
			changed = true
		} else {
			out.WriteString(code[pos:end])
		}
		pos = end
	}
	return out.String(), changed
}

func combineSelectors(outer, inner string) string {
	var combos []string
	for _, o := range strings.Split(outer, ",") {
		for _, in := range strings.Split(inner, ",") {
			o, in = strings.TrimSpace(o), strings.TrimSpace(in)
			if strings.HasPrefix(in, "&") {
				combos = append(combos, strings.Replace(in, "&", o, 1))
			} else {
				combos = append(combos, o+" "+in)
			}
		}
	}
	return strings.Join(combos, ", ")
}

func matchCSSBrace(code string, open int) int {
	depth := 0
	for i := open; i < len(code); i++ {
		switch code[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(code)
}

// prefixTable maps properties that still need vendor prefixes across the
// conservative default browser target set (last two versions of the four
// evergreen engines) to the prefixes each requires.
var prefixTable = map[string][]string{
	"user-select":      {"-webkit-", "-moz-"},
	"appearance":       {"-webkit-", "-moz-"},
	"backdrop-filter":  {"-webkit-"},
	"text-size-adjust": {"-webkit-", "-moz-"},
	"mask":             {"-webkit-"},
	"mask-image":       {"-webkit-"},
	"box-decoration-break": {"-webkit-"},
}

var declRe = regexp.MustCompile(`(?m)([{;]\s*)([a-z-]+)(\s*:\s*[^;}]+)`)

// vendorPrefix inserts prefixed copies ahead of each declaration whose
// property appears in prefixTable, part of the minification pass (spec.md
// §4.3: "applies vendor-prefixing from a target-browser table"). Already
// prefixed declarations are left alone.
func vendorPrefix(code string) string {
	return declRe.ReplaceAllStringFunc(code, func(m string) string {
		parts := declRe.FindStringSubmatch(m)
		lead, prop, rest := parts[1], parts[2], parts[3]
		prefixes, ok := prefixTable[prop]
		if !ok {
			return m
		}
		value := strings.TrimSuffix(strings.TrimSpace(rest), ";")
		var sb strings.Builder
		sb.WriteString(lead)
		for _, p := range prefixes {
			sb.WriteString(p + prop + value + "; ")
		}
		sb.WriteString(prop + rest)
		return sb.String()
	})
}

// minifyCSS runs the optional minification pass via tdewolff/minify, the
// real third-party minifier the pack's esbuild-based bundlers pair with
// esbuild for exactly this step (danprince/sietch's go.mod).
func minifyCSS(code string) (string, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return m.String("text/css", code)
}
