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
package packagejson

import "sync"

// Cache memoizes parsed package.json files by path. Graph walks resolve many
// specifiers against the same packages from parallel workers; the cache
// collapses concurrent loads of one path into a single parse, and the watcher
// invalidates entries when a package.json changes on disk.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*loadState
}

// loadState tracks one path through loading and into the cache. The done
// channel closes when the load finishes; waiters read pkg/err afterwards.
type loadState struct {
	done chan struct{}
	pkg  *PackageJSON
	err  error
}

// NewCache creates an empty package.json cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*loadState)}
}

// GetOrLoad returns the cached package for path, running loader on first
// use. Concurrent callers for the same path share one loader invocation.
// Failed loads are not retained, so a later call retries.
func (c *Cache) GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error) {
	c.mu.Lock()
	if st, ok := c.entries[path]; ok {
		c.mu.Unlock()
		<-st.done
		return st.pkg, st.err
	}
	st := &loadState{done: make(chan struct{})}
	c.entries[path] = st
	c.mu.Unlock()

	st.pkg, st.err = loader()
	close(st.done)

	if st.err != nil {
		c.mu.Lock()
		// Retry on the next call, unless Invalidate already replaced us.
		if c.entries[path] == st {
			delete(c.entries, path)
		}
		c.mu.Unlock()
	}
	return st.pkg, st.err
}

// Invalidate drops the entry for path. In-flight loads finish for their
// current waiters but no longer populate the cache.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Len reports the number of cached or loading entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
