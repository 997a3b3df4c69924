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

// Package manifest describes the index a build writes alongside its output
// files, keyed by chunk name. Deploy tooling and server-side templates use
// it to map stable names onto hashed filenames.
package manifest

import "encoding/json"

// Entry records one output chunk.
type Entry struct {
	// File is the output filename relative to the output directory.
	File string `json:"file"`
	// Kind is the chunk kind: entry, dynamic or shared.
	Kind string `json:"kind"`
	// IsEntry marks chunks a page loads eagerly.
	IsEntry bool `json:"isEntry,omitempty"`
	// Hash is the full content hash the filename's short hash is cut from.
	Hash string `json:"hash"`
	// Imports names the chunks that must be loadable before this one runs.
	Imports []string `json:"imports,omitempty"`
	// DynamicImports names the chunks this one requests on demand.
	DynamicImports []string `json:"dynamicImports,omitempty"`
	// Modules lists member source files as web paths, execution order.
	Modules []string `json:"modules,omitempty"`
}

// Manifest maps chunk names to their output entries.
type Manifest map[string]*Entry

// Parse parses JSON data into a Manifest.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// File returns the output filename for a chunk name, or an empty string.
func (m Manifest) File(name string) string {
	if e, ok := m[name]; ok {
		return e.File
	}
	return ""
}

// ToJSON converts the manifest to an indented JSON string. Keys marshal
// sorted, so identical manifests produce identical bytes. Returns an empty
// string when there is nothing to write.
func (m Manifest) ToJSON() string {
	if len(m) == 0 {
		return ""
	}
	bytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ""
	}
	return string(bytes)
}
