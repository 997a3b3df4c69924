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
package transform

import (
	"fmt"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// Import is one specifier found in module source, in document order.
// Start and End delimit the specifier text inside the source (without its
// quotes), so servers can splice rewritten specifiers in place.
type Import struct {
	Specifier string // as written, e.g. "lit" or "./foo.js"
	Dynamic   bool   // true for import() expressions
	Line      int    // 1-indexed source line, for error reports
	Start     uint32 // byte offset of the specifier text
	End       uint32 // byte offset one past the specifier text
}

// HotAccept describes a module's hot-update contract: whether it accepts
// replacements of itself, and which dependency specifiers it accepts
// replacements for.
type HotAccept struct {
	Self bool
	Deps []string
}

// ExtractImports parses JavaScript/TypeScript content and returns its import
// specifiers. Type-only imports are dropped since they vanish at runtime, and
// dynamic imports are only reported when their specifier is a string literal.
func ExtractImports(content []byte, dialect string) ([]Import, error) {
	qm, err := GetQueryManager()
	if err != nil {
		return nil, err
	}

	parser := getParser(dialect)
	defer putParser(dialect, parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse content")
	}
	defer tree.Close()

	query, err := qm.Query(dialect, "imports")
	if err != nil {
		return nil, err
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	var found []Import
	var offsets []uint32
	typeOnly := make(map[uint32]bool)

	matches := cursor.Matches(query, tree.RootNode(), content)
	captureNames := query.CaptureNames()

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		for _, capture := range match.Captures {
			name := captureNames[capture.Index]
			text := capture.Node.Utf8Text(content)
			line := int(capture.Node.StartPosition().Row) + 1 // 1-indexed
			start := uint32(capture.Node.StartByte())
			end := uint32(capture.Node.EndByte())

			switch name {
			case "import.spec", "reexport.spec":
				found = append(found, Import{Specifier: text, Line: line, Start: start, End: end})
				offsets = append(offsets, start)
			case "dynamicImport.spec":
				found = append(found, Import{Specifier: text, Dynamic: true, Line: line, Start: start, End: end})
				offsets = append(offsets, start)
			case "typeOnly.spec":
				typeOnly[start] = true
			}
		}
	}

	var imports []Import
	for i, imp := range found {
		if typeOnly[offsets[i]] {
			continue
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

// ExtractHotAccept parses JavaScript/TypeScript content and returns the
// module's import.meta.hot.accept contract. A call with no leading dependency
// literal (bare or callback-only) accepts the module itself; a call whose
// first argument is a string or array of strings accepts those dependencies
// instead.
func ExtractHotAccept(content []byte, dialect string) (HotAccept, error) {
	qm, err := GetQueryManager()
	if err != nil {
		return HotAccept{}, err
	}

	parser := getParser(dialect)
	defer putParser(dialect, parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return HotAccept{}, fmt.Errorf("failed to parse content")
	}
	defer tree.Close()

	query, err := qm.Query(dialect, "hmr")
	if err != nil {
		return HotAccept{}, err
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	// The broad pattern matches every accept call; the dependency patterns
	// additionally match calls whose first argument is a literal. Keying by
	// the arguments node merges the two views of the same call.
	calls := make(map[uint32][]string)
	var order []uint32

	matches := cursor.Matches(query, tree.RootNode(), content)
	captureNames := query.CaptureNames()

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		var prop, method, dep string
		var args uint32
		var hasArgs, hasDep bool

		for _, capture := range match.Captures {
			name := captureNames[capture.Index]
			text := capture.Node.Utf8Text(content)
			switch {
			case strings.HasSuffix(name, ".prop"):
				prop = text
			case strings.HasSuffix(name, ".method"):
				method = text
			case strings.HasSuffix(name, ".spec"):
				dep = text
				hasDep = true
			case strings.HasSuffix(name, ".args"):
				args = uint32(capture.Node.StartByte())
				hasArgs = true
			}
		}

		if !hasArgs || prop != "hot" || method != "accept" {
			continue
		}
		if _, ok := calls[args]; !ok {
			calls[args] = nil
			order = append(order, args)
		}
		if hasDep {
			calls[args] = append(calls[args], dep)
		}
	}

	var accept HotAccept
	seen := make(map[string]bool)
	for _, off := range order {
		deps := calls[off]
		if len(deps) == 0 {
			accept.Self = true
			continue
		}
		for _, dep := range deps {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			accept.Deps = append(accept.Deps, dep)
		}
	}
	return accept, nil
}
