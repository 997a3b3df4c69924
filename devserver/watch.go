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

package devserver

import (
	"context"
	"sort"
	"time"

	"bennypowers.dev/grafo/hmr"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/plugin"
)

// watchLoop polls the files backing graph modules and applies coalesced
// change batches. Polling keeps the watcher portable across the fs
// abstraction; the graph itself defines the watch set, so files join it
// as soon as they are imported.
func (s *Server) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	mtimes := make(map[string]int64)
	pending := make(map[string]bool)
	var flushAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range s.watchedPaths() {
				fi, err := s.fsys.Stat(p)
				if err != nil {
					// A deleted file counts as one change, then leaves the set.
					if _, seen := mtimes[p]; seen {
						delete(mtimes, p)
						pending[p] = true
						flushAt = now.Add(s.debounce)
					}
					continue
				}
				mt := fi.ModTime().UnixMilli()
				if prev, seen := mtimes[p]; seen && prev != mt {
					pending[p] = true
					flushAt = now.Add(s.debounce)
				}
				mtimes[p] = mt
			}
			if len(pending) > 0 && !now.Before(flushAt) {
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				sort.Strings(paths)
				pending = make(map[string]bool)
				s.ApplyChanges(ctx, paths...)
			}
		}
	}
}

// watchedPaths lists the distinct on-disk files behind current graph
// modules. Variants share their backing file and virtual modules have
// none.
func (s *Server) watchedPaths() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, n := range s.graph.Modules() {
		p := n.ID.Path
		if plugin.IsVirtual(p) || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths
}

// ApplyChanges invalidates the modules backed by the given file paths,
// rebuilds them, and broadcasts the resulting update batch to connected
// pages. It returns the broadcast messages so callers driving changes
// directly can inspect the outcome.
func (s *Server) ApplyChanges(ctx context.Context, paths ...string) []hmr.Message {
	s.init()
	var ids []module.ID
	for _, p := range paths {
		ids = append(ids, s.graph.InvalidatePath(p)...)
	}
	if len(ids) == 0 {
		return nil
	}
	boundary := s.graph.Invalidate(ids...)
	res, err := s.graph.Recompute(ctx, boundary)
	if err != nil {
		s.logger.Warning("rebuild aborted: %v", err)
		return nil
	}
	msgs := s.engine.Batch(s.graph, boundary, res)
	s.hub.Broadcast(msgs)
	s.logger.Debug("%d changed files, %d update messages", len(paths), len(msgs))
	return msgs
}
