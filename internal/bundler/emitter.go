package bundler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bcentdev/soku/internal/graph"
)

// ManifestEntry describes one emitted chunk, per spec.md §4.6: "a JSON
// manifest enumerating {chunk_name, file, size, entry_points, imports}."
type ManifestEntry struct {
	ChunkName   string   `json:"chunk_name"`
	File        string   `json:"file"`
	Size        int      `json:"size"`
	EntryPoints []string `json:"entry_points,omitempty"`
	Imports     []string `json:"imports,omitempty"`
}

// Emitter writes artifacts and side files atomically to an output directory
// (spec.md §2/§4.6).
type Emitter struct {
	Outdir string
}

func NewEmitter(outdir string) *Emitter {
	return &Emitter{Outdir: outdir}
}

// WriteFile implements the atomic-per-file emission contract from spec.md
// §4.6: "writes each artifact to a temporary name then renames over the
// final name." Emission is single-writer (spec.md §5).
func (e *Emitter) WriteFile(relName string, contents []byte) (string, error) {
	if err := os.MkdirAll(e.Outdir, 0o755); err != nil {
		return "", fmt.Errorf("emit: %w", err)
	}
	final := filepath.Join(e.Outdir, relName)
	tmp := final + ".tmp-" + randomSuffix()

	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		return "", fmt.Errorf("emit: write %s: %w", relName, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("emit: rename %s: %w", relName, err)
	}
	return final, nil
}

// EmitChunks writes every chunk's JS artifact (and .map sidecar when
// present), plus one bundle.css aggregating the stylesheet modules of every
// chunk, and returns manifest
// entries for an optional manifest.json (spec.md §6: "--analyze").
func (e *Emitter) EmitChunks(g *graph.ModuleGraph, chunks []Chunk, opts ConcatOptions, analyze bool) ([]ManifestEntry, error) {
	var manifest []ManifestEntry
	var cssParts []string

	for _, c := range chunks {
		// Stylesheet modules are aggregated into bundle.css whichever chunk
		// they were placed in; a chunk with no script modules at all emits
		// no JS artifact.
		if css := CSSConcatenate(g, c); css != "" {
			cssParts = append(cssParts, css)
		}
		if chunkIsStylesheetOnly(g, c) {
			continue
		}

		artifact := Concatenate(g, c, opts)
		if _, err := e.WriteFile(c.FileName, []byte(artifact.Code)); err != nil {
			return nil, err
		}
		if opts.SourceMaps && len(artifact.Map) > 0 {
			mapName := c.FileName + ".map"
			if _, err := e.WriteFile(mapName, artifact.Map); err != nil {
				return nil, err
			}
			artifact.Code += "\n//# sourceMappingURL=" + mapName + "\n"
			if _, err := e.WriteFile(c.FileName, []byte(artifact.Code)); err != nil {
				return nil, err
			}
		}

		if analyze {
			manifest = append(manifest, ManifestEntry{
				ChunkName:   c.Name,
				File:        c.FileName,
				Size:        len(artifact.Code),
				EntryPoints: c.EntryNames,
				Imports:     crossChunkImports(g, c),
			})
		}
	}

	if len(cssParts) > 0 {
		var combined string
		for _, part := range cssParts {
			combined += part
		}
		if _, err := e.WriteFile("bundle.css", []byte(combined)); err != nil {
			return nil, err
		}
	}

	if analyze {
		data, err := json.MarshalIndent(struct {
			Chunks []ManifestEntry `json:"chunks"`
		}{manifest}, "", "  ")
		if err != nil {
			return nil, err
		}
		if _, err := e.WriteFile("manifest.json", data); err != nil {
			return nil, err
		}
	}

	return manifest, nil
}

func chunkIsStylesheetOnly(g *graph.ModuleGraph, c Chunk) bool {
	if len(c.Modules) == 0 {
		return false
	}
	for _, id := range c.Modules {
		m, ok := g.Get(id)
		if !ok || !m.Kind.IsStylesheet() {
			return false
		}
	}
	return true
}

func crossChunkImports(g *graph.ModuleGraph, c Chunk) []string {
	inChunk := map[graph.ModuleId]bool{}
	for _, id := range c.Modules {
		inChunk[id] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, id := range c.Modules {
		m, ok := g.Get(id)
		if !ok {
			continue
		}
		for _, dep := range m.Deps {
			if dep.IsExternal || inChunk[dep.Resolved] {
				continue
			}
			if !seen[string(dep.Resolved)] {
				seen[string(dep.Resolved)] = true
				out = append(out, string(dep.Resolved))
			}
		}
	}
	return out
}

var randCounter uint64

// randomSuffix generates a per-process-unique temp-file suffix without
// relying on math/rand's global seed or time.Now() (kept deterministic and
// dependency-free for the atomic-write path).
func randomSuffix() string {
	randCounter++
	return fmt.Sprintf("%d-%d", os.Getpid(), randCounter)
}
