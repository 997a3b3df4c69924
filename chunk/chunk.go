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

// Package chunk partitions a module graph into named, hash-identified
// output chunks. Assignment is a global function of the graph: chunks are
// recomputed whole per build or per invalidation batch, never mutated
// incrementally.
package chunk

import (
	"fmt"
	"path/filepath"
	"strings"

	"bennypowers.dev/grafo/module"
)

// Kind classifies how a chunk is loaded.
type Kind int

const (
	// KindEntry chunks are loaded eagerly by the page.
	KindEntry Kind = iota
	// KindDynamic chunks are loaded lazily through a dynamic import.
	KindDynamic
	// KindShared chunks hold modules hoisted out of several seed chunks.
	KindShared
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindDynamic:
		return "dynamic"
	case KindShared:
		return "shared"
	default:
		return "unknown"
	}
}

// Chunk is one deliverable output unit.
type Chunk struct {
	Name string
	Kind Kind
	// Seeds are the modules this chunk was grown from. Entry and dynamic
	// chunks start with one; cycle merging can union several.
	Seeds []module.ID
	// Modules lists members dependency-first. Order is stable across runs
	// so chunk hashes are reproducible.
	Modules []module.ID
	// Imports names the chunks this chunk needs loaded before it runs,
	// sorted. These stay acyclic.
	Imports []string
	// DynamicImports names the chunks this chunk requests on demand,
	// sorted. Async loading tolerates cycles, so these never force a
	// merge.
	DynamicImports []string
	// Hash is the hex content hash over member fingerprints in order.
	Hash string
}

// ShortHash returns the filename-friendly hash prefix.
func (c *Chunk) ShortHash() string {
	if len(c.Hash) < 8 {
		return c.Hash
	}
	return c.Hash[:8]
}

// Graph is the finished chunk assignment: every live module appears in at
// least one chunk, and inter-chunk imports form a directed acyclic graph.
type Graph struct {
	Chunks []*Chunk

	byName map[string]*Chunk
	owners map[module.ID][]string
}

// Chunk returns a chunk by name.
func (cg *Graph) Chunk(name string) (*Chunk, bool) {
	c, ok := cg.byName[name]
	return c, ok
}

// Len returns the number of chunks.
func (cg *Graph) Len() int {
	return len(cg.Chunks)
}

// Owners returns the names of the chunks containing a module, sorted. A
// module duplicated below the hoisting threshold has several owners.
func (cg *Graph) Owners(id module.ID) []string {
	return cg.owners[id]
}

// Policy tunes chunk assignment.
type Policy struct {
	// HoistThreshold is how many seed chunks must reach a module before it
	// hoists into a shared chunk instead of being duplicated into each.
	// Zero means DefaultHoistThreshold.
	HoistThreshold int
	// MaxMergePasses bounds cycle-merge iterations. Zero means
	// defaultMergePasses.
	MaxMergePasses int
	// EntryNames overrides the file-stem name of entry chunks.
	EntryNames map[module.ID]string
}

// DefaultHoistThreshold hoists modules shared by two or more seeds.
const DefaultHoistThreshold = 2

const defaultMergePasses = 8

// CycleOverflowError reports a cross-chunk cycle that survived the
// bounded merge passes. The merge policy converges on well-formed
// graphs.
type CycleOverflowError struct {
	Chunks []string
	Passes int
}

func (e *CycleOverflowError) Error() string {
	return fmt.Sprintf("chunk cycle unresolved after %d merge passes: %s",
		e.Passes, strings.Join(e.Chunks, ", "))
}

// stem returns the chunk name for a module path: the base name without
// its extension.
func stem(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "chunk"
	}
	return base
}
