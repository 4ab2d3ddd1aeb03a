package transform

import (
	"encoding/json"
	"fmt"

	"github.com/bcentdev/soku/internal/graph"
	"github.com/bcentdev/soku/internal/logger"
)

// transformJSON implements spec.md §4.3: "transformed to
// `export default <parsed JSON>`; deps empty."
func transformJSON(source []byte) Result {
	var v interface{}
	if err := json.Unmarshal(source, &v); err != nil {
		// Invalid JSON: still emit an empty default so downstream stages have
		// something to wrap; the parse failure itself is returned as a
		// KindParse error diagnostic, which the Graph Builder adds to the log.
		return Result{Output: "export default undefined;", Exports: map[string]graph.ExportInfo{
			"default": {Name: "default", SideEffect: false},
		}, Diagnostics: []logger.Msg{{Severity: logger.Error, Kind: logger.KindParse,
			Text: "invalid JSON: " + err.Error()}}}
	}
	reencoded, _ := json.Marshal(v)
	return Result{
		Output: "export default " + string(reencoded) + ";",
		Exports: map[string]graph.ExportInfo{
			"default": {Name: "default", SideEffect: false},
		},
	}
}

// transformWasm implements spec.md §4.3: "transformed to a JavaScript glue
// that fetches and instantiates the .wasm binary; exports reflect declared
// WASM exports when parsable, else Namespace."
func transformWasm(path string, source []byte) Result {
	names, ok := parseWasmExportNames(source)

	exports := map[string]graph.ExportInfo{}
	for _, n := range names {
		exports[n] = graph.ExportInfo{Name: n, SideEffect: false}
	}
	if !ok {
		exports["*"] = graph.ExportInfo{Name: "*", SideEffect: true}
	}

	glue := fmt.Sprintf(`const __wasmUrl = %q;
let __instancePromise;
async function __loadWasm() {
  if (!__instancePromise) {
    __instancePromise = fetch(__wasmUrl)
      .then(r => r.arrayBuffer())
      .then(bytes => WebAssembly.instantiate(bytes, {}));
  }
  return __instancePromise;
}
export default __loadWasm;
`, path)

	return Result{Output: glue, Exports: exports}
}

// parseWasmExportNames walks the WASM binary's export section if the module
// is well-formed enough to parse (magic number + version + a section 7), and
// reports false if it cannot be parsed (spec.md: "else Namespace").
func parseWasmExportNames(source []byte) ([]string, bool) {
	if len(source) < 8 || string(source[0:4]) != "\x00asm" {
		return nil, false
	}
	pos := 8
	var names []string
	for pos < len(source) {
		if pos >= len(source) {
			break
		}
		sectionID := source[pos]
		pos++
		size, n, ok := readULEB128(source, pos)
		if !ok {
			return nil, false
		}
		pos += n
		sectionEnd := pos + int(size)
		if sectionEnd > len(source) {
			return nil, false
		}
		if sectionID == 7 { // export section
			p := pos
			count, n2, ok := readULEB128(source, p)
			if !ok {
				return nil, false
			}
			p += n2
			for i := uint64(0); i < count; i++ {
				nameLen, n3, ok := readULEB128(source, p)
				if !ok {
					return nil, false
				}
				p += n3
				if p+int(nameLen) > len(source) {
					return nil, false
				}
				names = append(names, string(source[p:p+int(nameLen)]))
				p += int(nameLen)
				p += 1 // export kind byte
				_, n4, ok := readULEB128(source, p)
				if !ok {
					return nil, false
				}
				p += n4
			}
		}
		pos = sectionEnd
	}
	return names, true
}

func readULEB128(b []byte, pos int) (uint64, int, bool) {
	var result uint64
	var shift uint
	n := 0
	for pos+n < len(b) {
		byt := b[pos+n]
		result |= uint64(byt&0x7f) << shift
		n++
		if byt&0x80 == 0 {
			return result, n, true
		}
		shift += 7
		if shift > 63 {
			return 0, 0, false
		}
	}
	return 0, 0, false
}
