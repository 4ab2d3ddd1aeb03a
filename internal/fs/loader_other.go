//go:build !unix

package fs

import "os"

// mmapRead has no portable implementation outside unix; the caller falls
// back to a plain read.
func mmapRead(f *os.File, size int64) ([]byte, bool) {
	return nil, false
}
