//go:build unix

package fs

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapRead maps f into memory and returns an owned copy of its bytes. The
// mapping is torn down before returning: callers hold the returned slice far
// longer than the mapping's natural lifetime (it becomes Module.source_bytes),
// so we pay one copy to avoid holding the mapping open indefinitely.
func mmapRead(f *os.File, size int64) ([]byte, bool) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, false
	}
	defer unix.Munmap(data)

	owned := make([]byte, len(data))
	copy(owned, data)
	return owned, true
}
