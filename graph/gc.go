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

// CollectGarbage removes nodes no longer reachable from any entrypoint.
// Dynamic-import targets stay alive through their importing edge, so a
// retained lazy route survives; modules orphaned by edits do not accumulate
// across a long dev session. Returns the removed ids, sorted.
func (g *Graph) CollectGarbage() []module.ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	live := make(map[module.ID]bool)
	stack := make([]module.ID, 0, len(g.entries))
	for _, id := range g.entries {
		if _, ok := g.nodes[id]; ok {
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if live[id] {
			continue
		}
		live[id] = true
		n := g.nodes[id]
		if n == nil {
			continue
		}
		for _, e := range n.Edges {
			if !live[e.To] {
				stack = append(stack, e.To)
			}
		}
	}

	var removed []module.ID
	for id := range g.nodes {
		if !live[id] {
			removed = append(removed, id)
		}
	}

	for _, id := range removed {
		n := g.nodes[id]
		for _, e := range n.Edges {
			if set := g.dependents[e.To]; set != nil {
				delete(set, id)
				if len(set) == 0 {
					delete(g.dependents, e.To)
				}
			}
		}
		delete(g.nodes, id)
		delete(g.dependents, id)
	}

	sort.Slice(removed, func(i, j int) bool {
		return removed[i].String() < removed[j].String()
	})
	if len(removed) > 0 {
		g.logger.Debug("collected %d unreachable modules", len(removed))
	}
	return removed
}
