/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package graph maintains the module dependency graph: nodes are resolved
// modules, edges are imports. The graph is built lazily by walking outward
// from entrypoints through the resolver and the transform adapter, and is
// kept current across file edits by invalidation and bounded recomputes.
//
// Resolution and transformation run on a worker pool; all structural
// mutation goes through a single applier, so node and edge storage needs no
// fine-grained locking. Walks and recomputes serialize: a second batch does
// not start until the prior one has been fully applied.
package graph

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"

	"lukechampine.com/blake3"

	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/transform"
)

// EdgeKind distinguishes static imports from dynamic import() expressions.
// Dynamic edges are chunk boundaries by construction and load lazily.
type EdgeKind int

const (
	EdgeStatic EdgeKind = iota
	EdgeDynamic
)

// String returns a human-readable name for the kind.
func (k EdgeKind) String() string {
	if k == EdgeDynamic {
		return "dynamic"
	}
	return "static"
}

// Edge is one import relationship, recorded in document order. Start and End
// delimit the specifier text in the importer's code so servers can rewrite
// it in place. Repeated imports of the same specifier produce repeated
// edges; consumers that need a set collapse them.
type Edge struct {
	From      module.ID
	To        module.ID
	Specifier string
	Kind      EdgeKind
	Line      int
	Start     uint32
	End       uint32
}

// Deferred is a dynamic-import resolution failure. Dynamic imports that
// cannot be resolved are not fatal at graph-build time; they surface as
// build warnings and as load-time errors in dev sessions.
type Deferred struct {
	Specifier string
	Line      int
	Err       error
}

// Node is one module in the graph. Nodes are created on first resolution
// and mutated in place on rebuild; the generation counter increases each
// time a rebuild actually changes the node's fingerprint.
type Node struct {
	ID   module.ID
	Code []byte
	// Edges holds outgoing imports in document order.
	Edges []Edge
	// Fingerprint hashes code, edges and hot-accept metadata.
	Fingerprint [32]byte
	Generation  uint64
	Dirty       bool
	// Entry marks modules registered as program entrypoints.
	Entry bool
	// AcceptsSelf and AcceptedDeps carry the adapter's hot-update contract.
	AcceptsSelf  bool
	AcceptedDeps []string
	// Deferred holds unresolved dynamic imports.
	Deferred []Deferred
	// Err holds the node's last rebuild failure, cleared by the next
	// successful rebuild. Dev sessions surface it without tearing down.
	Err error

	// acceptedTargets maps AcceptedDeps specifiers to their resolved edge
	// targets, for boundary searches.
	acceptedTargets map[module.ID]bool
}

// FingerprintHex returns the node fingerprint as lowercase hex.
func (n *Node) FingerprintHex() string {
	return hex.EncodeToString(n.Fingerprint[:])
}

// Accepts reports whether the node accepts hot replacements of the given
// direct dependency.
func (n *Node) Accepts(dep module.ID) bool {
	return n.acceptedTargets[dep]
}

// Resolver maps import specifiers to module identities. *resolver.Resolver
// satisfies this.
type Resolver interface {
	Resolve(specifier, importer string) (module.ID, error)
	InvalidatePath(path string)
}

// Logger receives diagnostic messages from graph operations.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warning(format string, args ...any) {}
func (noopLogger) Debug(format string, args ...any)   {}

// Graph owns all nodes keyed by module identity.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[module.ID]*Node
	dependents map[module.ID]map[module.ID]bool
	entries    []module.ID
	entrySet   map[module.ID]bool

	resolver Resolver
	adapter  transform.Adapter
	logger   Logger
	workers  int

	// batchMu serializes walks and recomputes end to end.
	batchMu sync.Mutex

	staleDiscards atomic.Uint64
}

// New creates an empty graph over the given resolver and transform adapter.
func New(r Resolver, adapter transform.Adapter) *Graph {
	return &Graph{
		nodes:      make(map[module.ID]*Node),
		dependents: make(map[module.ID]map[module.ID]bool),
		entrySet:   make(map[module.ID]bool),
		resolver:   r,
		adapter:    adapter,
		logger:     noopLogger{},
		workers:    10,
	}
}

// WithLogger returns the graph using the given logger.
func (g *Graph) WithLogger(logger Logger) *Graph {
	g.logger = logger
	return g
}

// WithWorkers returns the graph using a bounded pool of n workers for
// resolution and transformation.
func (g *Graph) WithWorkers(n int) *Graph {
	if n > 0 {
		g.workers = n
	}
	return g
}

// Node returns the node for an id.
func (g *Graph) Node(id module.ID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Entries returns the registered entrypoints in registration order.
func (g *Graph) Entries() []module.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]module.ID, len(g.entries))
	copy(out, g.entries)
	return out
}

// Modules returns all nodes sorted by id, for deterministic iteration.
func (g *Graph) Modules() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Dependents returns the modules that import id, sorted for determinism.
func (g *Graph) Dependents(id module.ID) []module.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(id)
}

func (g *Graph) dependentsLocked(id module.ID) []module.ID {
	set := g.dependents[id]
	out := make([]module.ID, 0, len(set))
	for from := range set {
		out = append(out, from)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// IDsForPath returns every module id backed by the given file path: the
// plain id plus any variants. A path may back several nodes.
func (g *Graph) IDsForPath(path string) []module.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []module.ID
	for id := range g.nodes {
		if id.Path == path {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// InvalidatePath drops resolver cache entries affected by a changed path and
// returns the module ids backed by it. The watcher calls this before
// Invalidate.
func (g *Graph) InvalidatePath(path string) []module.ID {
	g.resolver.InvalidatePath(path)
	return g.IDsForPath(path)
}

// StaleDiscards returns how many superseded rebuild results have been
// dropped by generation comparison.
func (g *Graph) StaleDiscards() uint64 {
	return g.staleDiscards.Load()
}

// fingerprint hashes everything dependents can observe about a node: its
// code, its edges in order, and its hot-accept contract.
func fingerprint(code []byte, edges []Edge, acceptsSelf bool, acceptedDeps []string) [32]byte {
	h := blake3.New(32, nil)
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(code)))
	h.Write(n[:])
	h.Write(code)
	for _, e := range edges {
		h.Write([]byte(e.Specifier))
		h.Write([]byte{0, byte(e.Kind)})
		h.Write([]byte(e.To.String()))
		h.Write([]byte{0})
	}
	if acceptsSelf {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, dep := range acceptedDeps {
		h.Write([]byte(dep))
		h.Write([]byte{0})
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}
