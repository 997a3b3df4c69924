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
// Package plugin provides resolve/load/transform extension hooks for the
// build pipeline. Plugins implement Name plus any subset of the capability
// interfaces; the registry runs them in registration order.
package plugin

import (
	"fmt"
	"strings"
	"sync"
)

// VirtualPrefix namespaces module ids served from memory rather than disk.
// The NUL byte keeps virtual ids from colliding with real paths and from
// being probed against the filesystem.
const VirtualPrefix = "\x00virtual:"

// Context carries project information into hooks.
type Context struct {
	// Root is the absolute project root directory.
	Root string
}

// Plugin is the base interface all plugins implement.
type Plugin interface {
	// Name identifies the plugin in logs and error messages.
	Name() string
}

// Resolver is the capability for plugins that claim import specifiers.
type Resolver interface {
	// ResolveID maps a specifier to a module id. Returning ("", nil)
	// passes the specifier to the next plugin.
	ResolveID(specifier, importer string, ctx *Context) (string, error)
}

// Loader is the capability for plugins that provide module content.
type Loader interface {
	// Load returns the source for a module id. Returning (nil, nil)
	// passes the id to the next plugin.
	Load(id string, ctx *Context) ([]byte, error)
}

// Transformer is the capability for plugins that rewrite module code.
type Transformer interface {
	// Transform rewrites code for a module id. Returning (nil, nil)
	// leaves the code unchanged for this plugin.
	Transform(code []byte, id string, ctx *Context) ([]byte, error)
}

// Registry holds an ordered list of plugins and dispatches hooks.
// Registration happens before any pipeline work starts; dispatch is
// read-only and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	ctx     Context
}

// NewRegistry creates a registry rooted at the given project directory.
func NewRegistry(root string) *Registry {
	return &Registry{ctx: Context{Root: root}}
}

// Register appends a plugin to the chain.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, p)
}

// Names returns the registered plugin names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		names = append(names, p.Name())
	}
	return names
}

// ResolveID runs resolver hooks in order; the first plugin that claims the
// specifier wins. Returns ("", nil) when no plugin claims it.
func (r *Registry) ResolveID(specifier, importer string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		res, ok := p.(Resolver)
		if !ok {
			continue
		}
		id, err := res.ResolveID(specifier, importer, &r.ctx)
		if err != nil {
			return "", fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}

// Load runs loader hooks in order; the first plugin that produces content
// wins. Returns (nil, nil) when no plugin claims the id.
func (r *Registry) Load(id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		loader, ok := p.(Loader)
		if !ok {
			continue
		}
		content, err := loader.Load(id, &r.ctx)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		if content != nil {
			return content, nil
		}
	}
	return nil, nil
}

// Transform chains transformer hooks over the code in registration order.
func (r *Registry) Transform(code []byte, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current := code
	for _, p := range r.plugins {
		tr, ok := p.(Transformer)
		if !ok {
			continue
		}
		next, err := tr.Transform(current, id, &r.ctx)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// IsVirtual reports whether a module id lives in the virtual namespace.
func IsVirtual(id string) bool {
	return strings.HasPrefix(id, VirtualPrefix)
}

// Virtual serves modules from an in-memory table. Specifiers added with Add
// resolve to VirtualPrefix-tagged ids and load their registered source.
type Virtual struct {
	mu      sync.RWMutex
	modules map[string]string
}

// NewVirtual creates an empty virtual module plugin.
func NewVirtual() *Virtual {
	return &Virtual{modules: make(map[string]string)}
}

// Add registers source for a virtual specifier.
func (v *Virtual) Add(specifier, source string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modules[specifier] = source
}

// Name implements Plugin.
func (v *Virtual) Name() string { return "virtual" }

// ResolveID implements Resolver.
func (v *Virtual) ResolveID(specifier, importer string, ctx *Context) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.modules[specifier]; ok {
		return VirtualPrefix + specifier, nil
	}
	return "", nil
}

// Load implements Loader.
func (v *Virtual) Load(id string, ctx *Context) ([]byte, error) {
	if !IsVirtual(id) {
		return nil, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if source, ok := v.modules[strings.TrimPrefix(id, VirtualPrefix)]; ok {
		return []byte(source), nil
	}
	return nil, nil
}
