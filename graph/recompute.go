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
	"context"
	"sort"

	"bennypowers.dev/grafo/module"
)

// RecomputeResult reports what a recompute actually did. Changed nodes were
// rebuilt with a new fingerprint and generation; Unchanged nodes were
// rebuilt but produced identical content (touch-only writes), so no update
// propagates from them. Errors holds per-node rebuild failures; the
// remaining session state is intact and a later successful rebuild clears
// them.
type RecomputeResult struct {
	Changed   []module.ID
	Unchanged []module.ID
	Errors    map[module.ID]error
}

// Recompute rebuilds exactly the boundary's dirty nodes. A node whose edge
// set changed has its new targets ensured in the same pass; a code-only
// change stops at the node itself. Errors are recorded per node rather than
// aborting, so one broken module does not tear down a dev session; build
// callers treat a non-empty Errors map as fatal.
func (g *Graph) Recompute(ctx context.Context, b *Boundary) (*RecomputeResult, error) {
	g.batchMu.Lock()
	defer g.batchMu.Unlock()

	result := &RecomputeResult{Errors: make(map[module.ID]error)}
	if b == nil || b.Empty() {
		return result, nil
	}

	force := make(map[module.ID]bool, len(b.Dirty))
	for _, id := range b.Dirty {
		force[id] = true
	}

	outcome, err := g.walk(ctx, b.Dirty, false, force)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Changed = outcome.changed
	result.Unchanged = outcome.unchanged
	result.Errors = outcome.errs
	sort.Slice(result.Changed, func(i, j int) bool {
		return result.Changed[i].String() < result.Changed[j].String()
	})
	sort.Slice(result.Unchanged, func(i, j int) bool {
		return result.Unchanged[i].String() < result.Unchanged[j].String()
	})
	return result, nil
}
