package graph

import "sync"

// Entry names a traversal root: a build entry point (spec.md §3).
type Entry struct {
	Name string
	Id   ModuleId
}

// ModuleGraph is the shared-insert-mostly structure described in spec.md §3
// and §9: a concurrent key-addressed store with per-bucket locking during the
// build phase, then read-only through tree shaking, chunking, and emission.
type ModuleGraph struct {
	Entries []Entry

	shards    [numShards]shard
	reverseMu sync.RWMutex
	reverse   map[ModuleId]map[ModuleId]bool // b -> set of a, for edges a -> b
}

const numShards = 32

type shard struct {
	mu      sync.Mutex
	modules map[ModuleId]*Module
}

func shardFor(id ModuleId) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h % numShards
}

func NewModuleGraph() *ModuleGraph {
	g := &ModuleGraph{reverse: map[ModuleId]map[ModuleId]bool{}}
	for i := range g.shards {
		g.shards[i].modules = map[ModuleId]*Module{}
	}
	return g
}

// GetOrInsert returns the existing module for id if present, or installs the
// given module and returns (it, true) for "was newly inserted". First writer
// wins on a race, per spec.md §4.2: competing workers discard their result
// and adopt whatever is already there.
func (g *ModuleGraph) GetOrInsert(id ModuleId, fresh *Module) (*Module, bool) {
	s := &g.shards[shardFor(id)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.modules[id]; ok {
		return existing, false
	}
	s.modules[id] = fresh
	return fresh, true
}

func (g *ModuleGraph) Get(id ModuleId) (*Module, bool) {
	s := &g.shards[shardFor(id)]
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	return m, ok
}

// Delete removes a module from the graph. Its reverse-dependency edges are
// left as they are.
func (g *ModuleGraph) Delete(id ModuleId) {
	s := &g.shards[shardFor(id)]
	s.mu.Lock()
	delete(s.modules, id)
	s.mu.Unlock()
}

// All returns every module currently in the graph. Callers must not mutate
// the returned map's Module values concurrently with a build phase still in
// progress.
func (g *ModuleGraph) All() map[ModuleId]*Module {
	out := make(map[ModuleId]*Module)
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for id, m := range s.modules {
			out[id] = m
		}
		s.mu.Unlock()
	}
	return out
}

func (g *ModuleGraph) Len() int {
	n := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		n += len(s.modules)
		s.mu.Unlock()
	}
	return n
}

// AddEdge records a static dependency edge a -> b in reverse_deps, maintained
// as the exact transpose required by spec.md §3's invariant.
func (g *ModuleGraph) AddEdge(a, b ModuleId) {
	g.reverseMu.Lock()
	defer g.reverseMu.Unlock()
	set, ok := g.reverse[b]
	if !ok {
		set = map[ModuleId]bool{}
		g.reverse[b] = set
	}
	set[a] = true
}

// RemoveEdgesFrom drops every edge whose source is a, used when a is
// re-transformed and its dependency list changes shape during an incremental
// rebuild.
func (g *ModuleGraph) RemoveEdgesFrom(a ModuleId) {
	g.reverseMu.Lock()
	defer g.reverseMu.Unlock()
	for _, set := range g.reverse {
		delete(set, a)
	}
}

// ReverseDeps returns the set of modules that statically import b.
func (g *ModuleGraph) ReverseDeps(b ModuleId) []ModuleId {
	g.reverseMu.RLock()
	defer g.reverseMu.RUnlock()
	set := g.reverse[b]
	out := make([]ModuleId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// ReverseClosure walks reverse_deps transitively from roots, used by the
// Incremental Engine to compute the affected-module set (spec.md §4.4, §4.7).
func (g *ModuleGraph) ReverseClosure(roots ...ModuleId) map[ModuleId]bool {
	visited := map[ModuleId]bool{}
	queue := append([]ModuleId{}, roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, dep := range g.ReverseDeps(id) {
			if !visited[dep] {
				queue = append(queue, dep)
			}
		}
	}
	return visited
}
