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
package build

import (
	"fmt"
	"strings"

	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/module"
)

// IssueType categorizes the kind of build issue found.
type IssueType int

const (
	// DynamicUnresolved indicates a dynamic import whose specifier
	// could not be resolved. The import is kept in the output and
	// will fail at runtime if it is ever reached.
	DynamicUnresolved IssueType = iota
	// CircularImport indicates a static import cycle. Cycles load
	// correctly but can surface undefined bindings when a module
	// uses an import before its dependency finished evaluating.
	CircularImport
)

// String returns a human-readable name for the issue type.
func (t IssueType) String() string {
	switch t {
	case DynamicUnresolved:
		return "dynamic-unresolved"
	case CircularImport:
		return "circular-import"
	default:
		return "unknown"
	}
}

// Issue represents a non-fatal problem found while validating the
// module graph before writing output.
type Issue struct {
	// File is the web path of the importing module
	File string
	// Line is the 1-based line number of the import, 0 if unknown
	Line int
	// Specifier is the import specifier as written
	Specifier string
	// Type categorizes the issue
	Type IssueType
	// Detail is a human-readable description
	Detail string
}

// Validate inspects the module graph for conditions that produce
// working but suspicious output. Issues are returned in a
// deterministic order: deferred dynamic imports first, then import
// cycles, each sorted by module id.
func Validate(g *graph.Graph, root string) []Issue {
	var issues []Issue

	for _, node := range g.Modules() {
		for _, d := range node.Deferred {
			issues = append(issues, Issue{
				File:      module.WebPath(root, node.ID),
				Line:      d.Line,
				Specifier: d.Specifier,
				Type:      DynamicUnresolved,
				Detail:    fmt.Sprintf("dynamic import %q could not be resolved: %v", d.Specifier, d.Err),
			})
		}
	}

	issues = append(issues, findCycles(g, root)...)
	return issues
}

// findCycles walks static edges depth-first and reports one issue per
// back edge. Module ids are visited in sorted order so repeated runs
// report the same cycles with the same entry points.
func findCycles(g *graph.Graph, root string) []Issue {
	const (
		white = iota
		gray
		black
	)

	color := make(map[module.ID]int)
	var issues []Issue

	// Iterative DFS. onStack tracks the gray path so the cycle can
	// be printed from the point of re-entry.
	var stack []module.ID
	onStack := make(map[module.ID]int)

	visit := func(start module.ID) {
		type frame struct {
			id   module.ID
			next int
		}
		frames := []frame{{id: start}}
		color[start] = gray
		onStack[start] = 0
		stack = append(stack, start)

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			node, ok := g.Node(f.id)
			if !ok || f.next >= len(node.Edges) {
				color[f.id] = black
				delete(onStack, f.id)
				stack = stack[:len(stack)-1]
				frames = frames[:len(frames)-1]
				continue
			}
			e := node.Edges[f.next]
			f.next++
			if e.Kind != graph.EdgeStatic {
				continue
			}
			switch color[e.To] {
			case white:
				color[e.To] = gray
				onStack[e.To] = len(stack)
				stack = append(stack, e.To)
				frames = append(frames, frame{id: e.To})
			case gray:
				issues = append(issues, Issue{
					File:      module.WebPath(root, e.From),
					Line:      e.Line,
					Specifier: e.Specifier,
					Type:      CircularImport,
					Detail:    fmt.Sprintf("import cycle: %s", cyclePath(root, stack[onStack[e.To]:], e.To)),
				})
			}
		}
	}

	for _, n := range g.Modules() {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
	return issues
}

// cyclePath renders the gray path from the re-entered module back to
// itself, e.g. "/src/a.js -> /src/b.js -> /src/a.js".
func cyclePath(root string, loop []module.ID, back module.ID) string {
	var sb strings.Builder
	for _, id := range loop {
		sb.WriteString(module.WebPath(root, id))
		sb.WriteString(" -> ")
	}
	sb.WriteString(module.WebPath(root, back))
	return sb.String()
}
