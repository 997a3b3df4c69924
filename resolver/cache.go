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
package resolver

import (
	"path/filepath"
	"sync"

	"bennypowers.dev/grafo/module"
)

// specifierCache caches successful resolutions keyed by (specifier, importer
// directory). Resolution is pure, so concurrent walk workers share it with
// last-writer-wins semantics. Misses and failures are never cached: a later
// file creation must be able to change the answer without an explicit signal.
// Has a maximum size with LRU eviction to prevent unbounded memory growth
// across long dev sessions.
type specifierCache struct {
	mu      sync.RWMutex
	entries map[string]module.ID
	order   []string // LRU order tracking
	maxSize int
}

const defaultCacheSize = 4096

func newSpecifierCache(maxSize int) *specifierCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &specifierCache{
		entries: make(map[string]module.ID),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func cacheKey(specifier, importerDir string) string {
	return specifier + "\x00" + importerDir
}

// Get retrieves a cached resolution.
func (c *specifierCache) Get(specifier, importerDir string) (module.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[cacheKey(specifier, importerDir)]
	return id, ok
}

// Set stores a resolution in the cache.
func (c *specifierCache) Set(specifier, importerDir string, id module.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(specifier, importerDir)

	// Update existing entry and refresh LRU order
	if _, exists := c.entries[key]; exists {
		c.entries[key] = id
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		c.order = append(c.order, key)
		return
	}

	// Evict oldest if at capacity
	if len(c.entries) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = id
	c.order = append(c.order, key)
}

// DropPath removes entries tied to the given file path: resolutions cached
// for importers in the path's directory, and resolutions that answered with
// the path itself. Called when the watcher reports a change or removal.
func (c *specifierCache) DropPath(path string) {
	dir := filepath.Dir(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, key := range c.order {
		id := c.entries[key]
		importerDir := key[indexNul(key)+1:]
		if importerDir == dir || id.Path == path {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// Reset drops every entry, for resolution-affecting configuration changes.
func (c *specifierCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]module.ID)
	c.order = c.order[:0]
}

// Len reports the number of cached resolutions.
func (c *specifierCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func indexNul(key string) int {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return i
		}
	}
	return -1
}
