package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStripTypeScriptInterfaceAndAnnotation mirrors spec.md §8 scenario 2:
// the interface disappears, the annotation disappears, and the object
// literal's values survive untouched.
func TestStripTypeScriptInterfaceAndAnnotation(t *testing.T) {
	src := "interface User { name: string }\nexport const u: User = { name: \"x\" };\n"
	out := stripTypeScript(src)

	assert.NotContains(t, out, "interface")
	assert.NotContains(t, out, ": User")
	assert.Contains(t, out, `export const u = { name: "x" };`)
}

func TestStripTypeScriptParameterAndReturnAnnotations(t *testing.T) {
	out := stripTypeScript("function add(a: number, b: number): number { return a + b; }")
	assert.Equal(t, "function add(a, b) { return a + b; }", out)
}

func TestStripTypeScriptKeepsTernary(t *testing.T) {
	out := stripTypeScript("const x = ok ? left : right;")
	assert.Contains(t, out, "ok ? left : right")
}

func TestStripTypeScriptKeepsSwitchLabels(t *testing.T) {
	src := "switch (n) { case 1: f(); break; default: g(); }"
	out := stripTypeScript(src)
	assert.Contains(t, out, "case 1: f()")
	assert.Contains(t, out, "default: g()")
}

func TestStripTypeScriptNonNullAssertion(t *testing.T) {
	out := stripTypeScript("const v = maybe!.value;")
	assert.Equal(t, "const v = maybe.value;", out)
}

func TestStripTypeScriptDeclareStatements(t *testing.T) {
	out := stripTypeScript("declare const win: Window;\nconst x = 1;\n")
	assert.NotContains(t, out, "declare")
	assert.Contains(t, out, "const x = 1;")
}

func TestStripTypeScriptTypeAlias(t *testing.T) {
	out := stripTypeScript("type Pair = [number, number];\nconst p = [1, 2];\n")
	assert.NotContains(t, out, "Pair")
	assert.Contains(t, out, "const p = [1, 2];")
}

func TestLowerEnumsToObjectLiteral(t *testing.T) {
	out := lowerEnums("export enum Color { Red, Green, Blue = 10 }")
	assert.Contains(t, out, "export const Color = {")
	assert.Contains(t, out, "Red: 0")
	assert.Contains(t, out, "Green: 1")
	assert.Contains(t, out, "Blue: 10")
	assert.NotContains(t, out, "enum")
}

func TestStripTypeScriptGenericDeclaration(t *testing.T) {
	out := stripTypeScript("function identity<T>(value: T): T { return value; }")
	assert.False(t, strings.Contains(out, "<T>"), "generic params must be removed, got %q", out)
	assert.Contains(t, out, "function identity(value) { return value; }")
}

func TestStripTypeScriptAsCast(t *testing.T) {
	out := stripTypeScript("const n = (raw as number) + 1;")
	assert.NotContains(t, out, " as ")
	assert.Contains(t, out, "(raw) + 1")
}

func TestStripTypeScriptClassFieldAnnotation(t *testing.T) {
	out := stripTypeScript("class Point { x: number; constructor(x: number) { this.x = x; } }")
	assert.NotContains(t, out, ": number")
	assert.Contains(t, out, "this.x = x")
}
