package graph

import (
	"os"
	"path/filepath"
)

// CanonicalId resolves path to the ModuleId it would have as a graph key:
// absolute, with symlinks resolved, per spec.md §3's ModuleId definition.
// The Graph Builder applies it to entry paths; the Watcher and Incremental
// Engine use it to map a raw filesystem event path onto the graph's key
// space.
func CanonicalId(path string) ModuleId {
	abs := path
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			abs = filepath.Join(wd, path)
		}
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return ModuleId(abs)
}
