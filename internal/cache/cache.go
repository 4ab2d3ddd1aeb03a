// Package cache implements the Persistent Cache component of spec.md §4.4:
// a content-addressed store under .cache/ mapping fingerprints to transform
// results and serialized dependency graphs, surviving across invocations.
package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bcentdev/soku/internal/fingerprint"
	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries")
	graphBucket   = []byte("graph")
)

// Entry is the CacheEntry value from spec.md §3.
type Entry struct {
	TransformedCode string
	Deps            []byte // gob-encoded []transform.Dep-shaped data, owned by caller
	Exports         []byte
	SourceMap       []byte
	ClassMap        []byte
	Kind            uint8
	ToolVersion     string
	ConfigHash      string
}

// Store is the embedded ordered key-value store from spec.md §4.4, backed by
// go.etcd.io/bbolt (grounded on alephjs-esm.sh's go.mod, an esbuild-based
// bundler in the retrieval pack that persists its own module cache in
// bbolt). Bbolt's single-writer/multi-reader transaction model gives the
// "readers are lock-free" half of spec.md's concurrency requirement for
// free; the per-key-locking half is layered on top with a small stripe of
// mutexes keyed by key-prefix, matching "writers use per-key exclusive
// locking" without serializing unrelated writes.
type Store struct {
	db     *bolt.DB
	stripe [256]sync.Mutex
}

// Open opens (creating if absent) the cache store: a single bbolt file at
// <root>/.cache/store.db holding an "entries" bucket for transform results
// and a "graph" bucket for graph records.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, ".cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "store.db"), 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(graphBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) lockFor(key fingerprint.Hash) *sync.Mutex {
	return &s.stripe[key[0]]
}

// Key computes the cache key from spec.md §4.4:
// H(source_bytes ∥ kind ∥ tool_version ∥ config_hash).
func Key(sourceBytes []byte, kind uint8, toolVersion string, configHash fingerprint.Hash) fingerprint.Hash {
	return fingerprint.Combine(sourceBytes, []byte{kind}, []byte(toolVersion), configHash[:])
}

// Get looks up a transform-result entry. A corrupt record is treated as a
// miss with a warning-level signal via the bool return, per spec.md §7:
// "Cache-corruption errors are treated as cache misses with a warning; the
// entry is overwritten."
func (s *Store) Get(key fingerprint.Hash) (Entry, bool, error) {
	var entry Entry
	var found bool
	var corrupt bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		raw := b.Get(key[:])
		if raw == nil {
			return nil
		}
		if decodeErr := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry); decodeErr != nil {
			corrupt = true
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	if corrupt {
		return Entry{}, false, nil
	}
	return entry, found, nil
}

// Put writes an entry atomically: bbolt commits the whole transaction or not
// at all, satisfying spec.md §4.4's "writers commit atomically or not at
// all" / "must never serve a partial/torn value".
func (s *Store) Put(key fingerprint.Hash, entry Entry) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put(key[:], buf.Bytes())
	})
}

// GraphRecord is the serialized-graph record from spec.md §4.4: "the cache
// persists the resolved graph as a second record keyed by
// H(entries ∥ config_hash)".
type GraphRecord struct {
	ModuleFingerprints map[string]fingerprint.Hash // ModuleId -> content hash at last successful build
	ReverseDeps        map[string][]string
}

func GraphKey(entries map[string]string, configHash fingerprint.Hash) fingerprint.Hash {
	h := fnv.New64a()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte(entries[name]))
	}
	var buf [8]byte
	sum := h.Sum64()
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * i))
	}
	return fingerprint.Combine(buf[:], configHash[:])
}

func (s *Store) GetGraph(key fingerprint.Hash) (GraphRecord, bool) {
	var rec GraphRecord
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(graphBucket)
		raw := b.Get(key[:])
		if raw == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return rec, found
}

func (s *Store) PutGraph(key fingerprint.Hash, rec GraphRecord) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("cache: encode graph: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(graphBucket).Put(key[:], buf.Bytes())
	})
}
