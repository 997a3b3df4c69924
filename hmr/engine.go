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
package hmr

import (
	"sort"
	"sync/atomic"

	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/module"
)

// Logger receives diagnostic messages from the engine and hub.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warning(format string, args ...any) {}
func (noopLogger) Debug(format string, args ...any)   {}

// Engine maps recompute outcomes onto ordered update messages. One engine
// serves one dev session graph; its batch sequence is monotonic for the
// process lifetime.
type Engine struct {
	root   string
	logger Logger
	seq    atomic.Uint64
}

// NewEngine creates an engine for a project root. The root anchors
// filesystem-to-web path mapping in outgoing messages.
func NewEngine(root string) *Engine {
	return &Engine{root: root, logger: noopLogger{}}
}

// WithLogger returns the engine using the given logger.
func (e *Engine) WithLogger(logger Logger) *Engine {
	e.logger = logger
	return e
}

// Seq returns the last issued batch sequence number.
func (e *Engine) Seq() uint64 {
	return e.seq.Load()
}

// Batch turns one invalidation boundary and its recompute outcome into the
// messages a session needs, stamped with a fresh sequence number. It
// returns nil when nothing observable changed, in which case no sequence
// number is consumed.
//
// Rules: every per-module rebuild failure becomes an error message. A
// reload root that actually changed degrades the whole batch to a full
// reload. Otherwise each accepting module covering a changed root gets a
// replace message, ordered dependencies before dependents.
func (e *Engine) Batch(g *graph.Graph, b *graph.Boundary, res *graph.RecomputeResult) []Message {
	if b == nil || res == nil {
		return nil
	}

	changed := make(map[module.ID]bool, len(res.Changed))
	for _, id := range res.Changed {
		changed[id] = true
	}

	var msgs []Message

	errIDs := make([]module.ID, 0, len(res.Errors))
	for id := range res.Errors {
		errIDs = append(errIDs, id)
	}
	sort.Slice(errIDs, func(i, j int) bool { return errIDs[i].String() < errIDs[j].String() })
	for _, id := range errIDs {
		msgs = append(msgs, Message{
			Type:     TypeError,
			ModuleID: module.WebPath(e.root, id),
			Message:  res.Errors[id].Error(),
		})
	}

	reload := false
	for _, root := range b.ReloadRoots {
		if changed[root] {
			reload = true
			break
		}
	}

	if reload {
		msgs = append(msgs, Message{Type: TypeFullReload})
	} else {
		var acceptors []module.ID
		for _, a := range b.Accepting {
			if res.Errors[a] != nil {
				continue
			}
			for _, root := range b.Covers[a] {
				if changed[root] {
					acceptors = append(acceptors, a)
					break
				}
			}
		}
		for _, a := range orderDependencyFirst(g, acceptors) {
			n, ok := g.Node(a)
			if !ok {
				continue
			}
			msgs = append(msgs, Message{
				Type:       TypeReplace,
				ModuleID:   module.WebPath(e.root, a),
				Code:       string(n.Code),
				Generation: n.Generation,
			})
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	seq := e.seq.Add(1)
	for i := range msgs {
		msgs[i].Seq = seq
	}
	e.logger.Debug("batch %d: %d message(s)", seq, len(msgs))
	return msgs
}

// orderDependencyFirst sorts ids so that any id reachable from another
// through the graph comes first. Reachability is transitive: two accepting
// modules linked through non-accepting intermediaries still order
// correctly. Cycles break on sorted id.
func orderDependencyFirst(g *graph.Graph, ids []module.ID) []module.ID {
	if len(ids) < 2 {
		return ids
	}

	set := make(map[module.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	prereqs := make(map[module.ID]map[module.ID]bool, len(ids))
	for _, id := range ids {
		visited := map[module.ID]bool{id: true}
		queue := []module.ID{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			n, ok := g.Node(cur)
			if !ok {
				continue
			}
			for _, e := range n.Edges {
				if visited[e.To] {
					continue
				}
				visited[e.To] = true
				queue = append(queue, e.To)
				if set[e.To] && e.To != id {
					if prereqs[id] == nil {
						prereqs[id] = make(map[module.ID]bool)
					}
					prereqs[id][e.To] = true
				}
			}
		}
	}

	ordered := make([]module.ID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	out := make([]module.ID, 0, len(ordered))
	emitted := make(map[module.ID]bool, len(ordered))
	for len(out) < len(ordered) {
		progressed := false
		for _, id := range ordered {
			if emitted[id] {
				continue
			}
			blocked := false
			for dep := range prereqs[id] {
				if !emitted[dep] {
					blocked = true
					break
				}
			}
			if !blocked {
				emitted[id] = true
				out = append(out, id)
				progressed = true
			}
		}
		if !progressed {
			// Mutually-accepting cycle; force the smallest pending id.
			for _, id := range ordered {
				if !emitted[id] {
					emitted[id] = true
					out = append(out, id)
					break
				}
			}
		}
	}
	return out
}
