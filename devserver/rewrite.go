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
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/module"
)

// rewriteImports replaces each import specifier in a node's code with the
// dev URL of its resolved target. Specifier offsets come from the graph
// edges and delimit the bare specifier text, so surrounding quotes and
// syntax survive untouched. Deferred specifiers have no edge and pass
// through as written.
func (s *Server) rewriteImports(n *graph.Node) []byte {
	if len(n.Edges) == 0 {
		return n.Code
	}
	edges := make([]graph.Edge, len(n.Edges))
	copy(edges, n.Edges)
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Start < edges[j].Start
	})

	var buf bytes.Buffer
	buf.Grow(len(n.Code))
	prev := uint32(0)
	for _, e := range edges {
		if e.End <= e.Start || e.Start < prev || int(e.End) > len(n.Code) {
			continue
		}
		buf.Write(n.Code[prev:e.Start])
		buf.WriteString(s.devURL(e.To))
		prev = e.End
	}
	buf.Write(n.Code[prev:])
	return buf.Bytes()
}

// devURL renders a module id as a browser URL carrying the target's
// current generation, so rebuilt modules bust the browser cache while
// unchanged ones keep their cached instance.
func (s *Server) devURL(id module.ID) string {
	web := module.WebPath(s.root, id)
	gen := uint64(0)
	if n, ok := s.graph.Node(id); ok {
		gen = n.Generation
	}
	sep := "?"
	if strings.Contains(web, "?") {
		sep = "&"
	}
	return web + sep + "v=" + strconv.FormatUint(gen, 10)
}

// hotPreamble wires import.meta.hot for a module before its own code runs.
func hotPreamble(webPath string) []byte {
	return []byte(fmt.Sprintf(
		"import { createHotContext as __grafoHot } from %q;\nimport.meta.hot = __grafoHot(%q);\n",
		clientPath, webPath))
}
