// Package fs implements the Loader component of spec.md §2: it reads a
// module's bytes via memory-mapped I/O and returns (bytes, mtime, size).
package fs

import (
	"os"
	"time"
)

// FileData is the Loader's output: (bytes, mtime, size) from spec.md §2.
type FileData struct {
	Contents []byte
	ModTime  time.Time
	Size     int64
}

// Loader owns the bounded I/O pool's blocking point: disk reads. On platforms
// with mmapRead wired up (see loader_unix.go) it maps files into memory
// instead of copying them; elsewhere it falls back to a plain read.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Read loads path's contents, preferring a memory-mapped read.
func (l *Loader) Read(path string) (FileData, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileData{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileData{}, err
	}

	size := info.Size()
	if size == 0 {
		return FileData{ModTime: info.ModTime()}, nil
	}

	if owned, ok := mmapRead(f, size); ok {
		return FileData{Contents: owned, ModTime: info.ModTime(), Size: size}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return FileData{}, err
	}
	return FileData{Contents: contents, ModTime: info.ModTime(), Size: int64(len(contents))}, nil
}

// Exists is a cheap existence probe used by the Resolver's extension/index
// candidate search (spec.md §4.1 step 3).
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// IsDir reports whether path names a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
