package graph

import (
	"path/filepath"
	"strings"
)

// KindFromPath infers a ModuleKind from extension and the ".module."
// infix, per spec.md §3: "inferred from extension and content."
func KindFromPath(path string) ModuleKind {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".ts":
		return KindTypeScript
	case ".tsx":
		return KindTsx
	case ".jsx":
		return KindJsx
	case ".js", ".mjs", ".cjs":
		return KindJavaScript
	case ".json":
		return KindJson
	case ".wasm":
		return KindWasm
	case ".html", ".htm":
		return KindHtml
	case ".scss", ".sass":
		return KindSass
	case ".css":
		if strings.Contains(strings.ToLower(base), ".module.") {
			return KindCssModule
		}
		return KindCss
	default:
		return KindJavaScript
	}
}
