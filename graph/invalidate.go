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
package graph

import (
	"sort"

	"bennypowers.dev/grafo/module"
)

// Boundary is the contract between invalidation and the live-update engine:
// which nodes must be rebuilt, which modules can apply the update in place,
// and whether the session has to fall back to a full reload.
type Boundary struct {
	// Dirty lists the invalidated nodes, sorted. Recompute rebuilds
	// exactly these.
	Dirty []module.ID
	// Accepting lists the nearest hot-accepting modules covering the dirty
	// nodes, sorted. Empty when nothing accepts.
	Accepting []module.ID
	// NeedsFullReload is set when some propagation path reaches an
	// entrypoint without crossing an accepting module. Partial replacement
	// would be unsound on that path.
	NeedsFullReload bool
	// Covers maps each accepting module to the dirty roots it covers, both
	// sides sorted. The live-update engine skips replacements whose covered
	// roots turn out unchanged after recompute.
	Covers map[module.ID][]module.ID
	// ReloadRoots lists the dirty roots whose propagation escaped through
	// an entrypoint, sorted. A root that turns out unchanged does not force
	// the reload.
	ReloadRoots []module.ID
}

// Empty reports whether the boundary covers no known nodes.
func (b *Boundary) Empty() bool {
	return len(b.Dirty) == 0
}

// Invalidate marks the given modules dirty and computes their invalidation
// boundary. Generation counters are not touched; they advance when the nodes
// are actually rebuilt. Unknown ids are ignored.
func (g *Graph) Invalidate(ids ...module.ID) *Boundary {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := &Boundary{Covers: make(map[module.ID][]module.ID)}
	seen := make(map[module.ID]bool)
	for _, id := range ids {
		n, ok := g.nodes[id]
		if !ok || seen[id] {
			continue
		}
		n.Dirty = true
		seen[id] = true
		b.Dirty = append(b.Dirty, id)
	}
	sort.Slice(b.Dirty, func(i, j int) bool {
		return b.Dirty[i].String() < b.Dirty[j].String()
	})

	accepting := make(map[module.ID]bool)
	for _, id := range b.Dirty {
		rootAccepting := make(map[module.ID]bool)
		if g.findBoundary(id, rootAccepting) {
			b.NeedsFullReload = true
			b.ReloadRoots = append(b.ReloadRoots, id)
		}
		for a := range rootAccepting {
			accepting[a] = true
			b.Covers[a] = append(b.Covers[a], id)
		}
	}

	for id := range accepting {
		b.Accepting = append(b.Accepting, id)
	}
	sort.Slice(b.Accepting, func(i, j int) bool {
		return b.Accepting[i].String() < b.Accepting[j].String()
	})
	return b
}

// findBoundary walks upward from a changed node through back-references,
// collecting the nearest accepting modules. It reports whether the search
// escaped through an entrypoint that could not accept, which forces a full
// reload. A dead-end path (no dependents, not an entrypoint) covers no live
// session and contributes nothing.
func (g *Graph) findBoundary(start module.ID, accepting map[module.ID]bool) bool {
	type hop struct {
		id  module.ID
		via module.ID // the dependency the walk arrived from; zero at start
	}

	queue := []hop{{id: start}}
	visited := map[module.ID]bool{start: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		n, ok := g.nodes[cur.id]
		if !ok {
			continue
		}

		if n.AcceptsSelf || (!cur.via.IsZero() && n.acceptedTargets[cur.via]) {
			accepting[cur.id] = true
			continue
		}

		if n.Entry {
			return true
		}

		for _, dep := range g.dependentsLocked(cur.id) {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			queue = append(queue, hop{id: dep, via: cur.id})
		}
	}

	return false
}
