// Package fingerprint computes the stable 256-bit content hashes that back
// every cache key in the system (spec.md §3, "Content Hasher").
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash is a 256-bit content fingerprint, comparable and usable as a map key.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h has never been assigned.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Of hashes a single byte sequence.
func Of(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// Combine folds several byte sequences into one fingerprint, each preceded by
// its own length so that "ab"+"c" and "a"+"bc" never collide.
func Combine(parts ...[]byte) Hash {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		putUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// CombineStrings is a convenience wrapper over Combine for string inputs,
// used to build cache keys such as H(source_bytes ∥ kind ∥ tool_version ∥
// config_hash) from spec.md §4.4.
func CombineStrings(strs ...string) Hash {
	parts := make([][]byte, len(strs))
	for i, s := range strs {
		parts[i] = []byte(s)
	}
	return Combine(parts...)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
