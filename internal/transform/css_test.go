package transform

import (
	"strings"
	"testing"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformCSSExtractsImportDepsAndStripsDirective(t *testing.T) {
	res := Transform("a.css", graph.KindCss, []byte("@import './b.css';\n.x { color: red; }\n"), Options{})
	require.Len(t, res.Deps, 1)
	assert.Equal(t, "./b.css", res.Deps[0].Specifier)
	assert.NotContains(t, res.Output, "@import")
	assert.Contains(t, res.Output, ".x")
}

func TestTransformCSSModuleScopesClassesAndBuildsClassMap(t *testing.T) {
	res := Transform("/src/button.module.css", graph.KindCssModule,
		[]byte(".primary { color: red; }\n.primary:hover { color: blue; }\n"), Options{})

	require.Contains(t, res.ClassMap, "primary")
	scoped := res.ClassMap["primary"]
	assert.True(t, strings.HasPrefix(scoped, "button_primary_"), "scoped name = %q", scoped)
	assert.NotContains(t, res.Output, ".primary ")
	assert.Contains(t, res.Output, "."+scoped)

	// Both occurrences of the same class share one scoped name.
	assert.Equal(t, 2, strings.Count(res.Output, "."+scoped))

	require.Contains(t, res.Exports, "default")
}

func TestTransformSassModuleGetsScssPassAndScoping(t *testing.T) {
	src := "$accent: #f60;\n.tag { color: $accent; }\n"
	res := Transform("/src/tag.module.scss", graph.KindSass, []byte(src), Options{})

	require.Contains(t, res.ClassMap, "tag")
	assert.Contains(t, res.Output, "#f60", "expected $accent substituted")
	assert.NotContains(t, res.Output, "$accent")
}

func TestCompileScssFlattensNestedRules(t *testing.T) {
	out := compileScss("nav { color: black; a { color: blue; } }")
	assert.Contains(t, out, "nav a")
	assert.Contains(t, out, "color: blue")
}

func TestCompileScssParentSelector(t *testing.T) {
	out := compileScss("a { color: blue; &:hover { color: red; } }")
	assert.Contains(t, out, "a:hover")
}

func TestVendorPrefixAddsPrefixedCopies(t *testing.T) {
	out := vendorPrefix(".x { user-select: none; color: red; }")
	assert.Contains(t, out, "-webkit-user-select: none")
	assert.Contains(t, out, "-moz-user-select: none")
	assert.Contains(t, out, "user-select: none")
	// Unlisted properties are untouched.
	assert.Equal(t, 1, strings.Count(out, "color"))
}

func TestTransformCSSMinifyCollapsesWhitespace(t *testing.T) {
	res := Transform("a.css", graph.KindCss, []byte(".x {\n  color: red;\n}\n"), Options{Minify: true})
	assert.NotContains(t, res.Output, "\n  ")
	assert.Contains(t, res.Output, "color:red")
}

func TestClassMapJSONRendersQuotedPairs(t *testing.T) {
	out := ClassMapJSON(map[string]string{"a": "m_a_12345"})
	assert.Equal(t, `{"a": "m_a_12345"}`, out)
}
