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
	"regexp"
	"slices"
	"strings"
)

// Template represents an output filename template with variable
// placeholders. Supported variables:
//   - {name} - Chunk name (entry name, dynamic import stem, or shared id)
//   - {hash} - Short content hash of the chunk
//   - {kind} - Chunk kind: entry, dynamic or shared
type Template struct {
	pattern   string
	variables []string
}

var variablePattern = regexp.MustCompile(`\{(\w+)\}`)

// ParseTemplate parses an output filename template pattern.
func ParseTemplate(pattern string) (*Template, error) {
	if pattern == "" {
		return nil, fmt.Errorf("template pattern cannot be empty")
	}

	matches := variablePattern.FindAllStringSubmatch(pattern, -1)
	var variables []string
	for _, match := range matches {
		variables = append(variables, match[1])
	}

	validVars := map[string]bool{
		"name": true,
		"hash": true,
		"kind": true,
	}
	for _, v := range variables {
		if !validVars[v] {
			return nil, fmt.Errorf("unknown template variable: {%s}", v)
		}
	}

	return &Template{
		pattern:   pattern,
		variables: variables,
	}, nil
}

// Expand substitutes variables in the template with actual values.
func (t *Template) Expand(name, hash, kind string) string {
	result := t.pattern
	result = strings.ReplaceAll(result, "{name}", name)
	result = strings.ReplaceAll(result, "{hash}", hash)
	result = strings.ReplaceAll(result, "{kind}", kind)
	return result
}

// Pattern returns the original template pattern.
func (t *Template) Pattern() string {
	return t.pattern
}

// Variables returns the list of variables used in the template.
func (t *Template) Variables() []string {
	return t.variables
}

// HasHash returns true if the template contains a {hash} variable.
// Filenames without it are not cache-bustable across builds.
func (t *Template) HasHash() bool {
	return slices.Contains(t.variables, "hash")
}

// DefaultTemplate is the default output filename pattern.
const DefaultTemplate = "{name}.{hash}.js"
