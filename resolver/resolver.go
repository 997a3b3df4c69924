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
// Package resolver maps import specifiers to canonical module identities.
//
// Resolution follows a fixed category precedence; the first matching
// category answers and there is no backtracking across categories:
//
//  1. plugin/virtual specifiers claimed by a ResolveID hook
//  2. relative specifiers ("./", "../"), resolved against the importer
//  3. root-absolute specifiers ("/"), resolved against the project root
//  4. bare specifiers, resolved through node_modules walk-up and
//     package.json exports
//
// Extensionless paths probe extensions in the order js, ts, jsx, tsx, mjs,
// cjs, json, css, then directory index files in the same order.
package resolver

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/packagejson"
	"bennypowers.dev/grafo/plugin"
)

// Logger is an interface for logging messages during resolution.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warning(format string, args ...any) {}
func (noopLogger) Debug(format string, args ...any)   {}

// probeExtensions is the extension probing order for extensionless
// specifiers and directory indexes.
var probeExtensions = []string{".js", ".ts", ".jsx", ".tsx", ".mjs", ".cjs", ".json", ".css"}

// Resolver maps specifiers to module identities. Aside from its caches it is
// stateless; Resolve is safe for concurrent use from walk workers.
type Resolver struct {
	fs         fs.FileSystem
	rootDir    string
	conditions []string
	plugins    *plugin.Registry
	logger     Logger

	// pkgCache memoizes parsed package.json files; cache holds successful
	// specifier resolutions. Both are pointers so With* copies share them.
	pkgCache *packagejson.Cache
	cache    *specifierCache
}

// New creates a Resolver for the project rooted at rootDir.
func New(fsys fs.FileSystem, rootDir string) *Resolver {
	return &Resolver{
		fs:       fsys,
		rootDir:  rootDir,
		logger:   noopLogger{},
		pkgCache: packagejson.NewCache(),
		cache:    newSpecifierCache(0),
	}
}

// WithConditions returns a new Resolver that resolves package.json
// conditional exports with the given condition priority.
func (r *Resolver) WithConditions(conditions []string) *Resolver {
	next := *r
	next.conditions = conditions
	// Cached answers may depend on the old conditions.
	next.cache = newSpecifierCache(0)
	return &next
}

// WithPlugins returns a new Resolver that consults the registry's ResolveID
// hooks before any path-based category.
func (r *Resolver) WithPlugins(plugins *plugin.Registry) *Resolver {
	next := *r
	next.plugins = plugins
	return &next
}

// WithLogger returns a new Resolver that logs through l.
func (r *Resolver) WithLogger(l Logger) *Resolver {
	next := *r
	next.logger = l
	return &next
}

// Root returns the project root the resolver was created with.
func (r *Resolver) Root() string {
	return r.rootDir
}

// Resolve maps a specifier written in the importer module to a module
// identity. A "?variant" suffix on the specifier carries over to the
// returned ID's variant tag; the path part resolves normally.
func (r *Resolver) Resolve(specifier, importer string) (module.ID, error) {
	specPath, variant := module.SplitVariant(specifier)
	importerDir := filepath.Dir(importer)

	if id, ok := r.cache.Get(specifier, importerDir); ok {
		return id, nil
	}

	if r.plugins != nil {
		pluginID, err := r.plugins.ResolveID(specifier, importer)
		if err != nil {
			return module.ID{}, err
		}
		if pluginID != "" {
			id := module.ParseID(pluginID)
			r.cache.Set(specifier, importerDir, id)
			return id, nil
		}
	}

	var resolved string
	var err error
	switch {
	case specPath == "":
		err = &NotFoundError{Specifier: specifier, Importer: importer}
	case strings.HasPrefix(specPath, "./"), strings.HasPrefix(specPath, "../"):
		resolved, err = r.probePath(filepath.Join(importerDir, specPath), specifier, importer)
	case strings.HasPrefix(specPath, "/"):
		resolved, err = r.probePath(filepath.Join(r.rootDir, specPath), specifier, importer)
	case isBareSpecifier(specPath):
		resolved, err = r.resolveBare(specPath, importerDir, specifier, importer)
	default:
		// URL schemes and other non-file specifiers have no module identity.
		err = &NotFoundError{Specifier: specifier, Importer: importer}
	}
	if err != nil {
		return module.ID{}, err
	}

	id := module.ID{Path: resolved, Variant: variant}
	r.cache.Set(specifier, importerDir, id)
	r.logger.Debug("resolved %q from %s -> %s", specifier, importer, id)
	return id, nil
}

// InvalidatePath drops cached state tied to a changed or removed file.
// package.json changes flush the whole specifier cache since any bare
// resolution may now answer differently.
func (r *Resolver) InvalidatePath(path string) {
	if filepath.Base(path) == "package.json" {
		r.pkgCache.Invalidate(path)
		r.cache.Reset()
		return
	}
	r.cache.DropPath(path)
}

// Reset drops every cached resolution. Callers signal this when
// resolution-affecting configuration changes.
func (r *Resolver) Reset() {
	r.cache.Reset()
}

// CacheLen reports the number of cached specifier resolutions.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

// probePath resolves a joined filesystem path to a concrete file: the exact
// path first, then appended extensions, then directory index files. A
// specifier backed by both a probed extension file and a directory index is
// ambiguous.
func (r *Resolver) probePath(base, specifier, importer string) (string, error) {
	if fi, err := r.fs.Stat(base); err == nil && !fi.IsDir() {
		return base, nil
	}

	tried := []string{base}

	var extHit string
	for _, ext := range probeExtensions {
		candidate := base + ext
		tried = append(tried, candidate)
		if fi, err := r.fs.Stat(candidate); err == nil && !fi.IsDir() {
			extHit = candidate
			break
		}
	}

	var indexHit string
	if fi, err := r.fs.Stat(base); err == nil && fi.IsDir() {
		for _, ext := range probeExtensions {
			candidate := filepath.Join(base, "index"+ext)
			tried = append(tried, candidate)
			if fi, err := r.fs.Stat(candidate); err == nil && !fi.IsDir() {
				indexHit = candidate
				break
			}
		}
	}

	switch {
	case extHit != "" && indexHit != "":
		return "", &AmbiguousError{
			Specifier:  specifier,
			Importer:   importer,
			Candidates: []string{extHit, indexHit},
		}
	case extHit != "":
		return extHit, nil
	case indexHit != "":
		return indexHit, nil
	}

	return "", &NotFoundError{Specifier: specifier, Importer: importer, Tried: tried}
}

// resolveBare resolves a bare specifier by walking node_modules directories
// from the importer up to the filesystem root. The first level where the
// package has a package.json answers terminally (resolve or fail); package
// directories without one fall back to plain path probing at that level.
func (r *Resolver) resolveBare(spec, importerDir, specifier, importer string) (string, error) {
	pkgName := packageName(spec)
	subpath := strings.TrimPrefix(spec, pkgName)
	if subpath == "" {
		subpath = "."
	} else {
		subpath = "." + subpath
	}

	tried := []string{}
	for dir := importerDir; ; {
		pkgDir := filepath.Join(dir, "node_modules", pkgName)
		pkgJSONPath := filepath.Join(pkgDir, "package.json")

		if r.fs.Exists(pkgJSONPath) {
			pkg, err := r.pkgCache.GetOrLoad(pkgJSONPath, func() (*packagejson.PackageJSON, error) {
				return packagejson.ParseFile(r.fs, pkgJSONPath)
			})
			if err != nil {
				return "", fmt.Errorf("parsing %s: %w", pkgJSONPath, err)
			}
			return r.resolvePackageSubpath(pkg, pkgDir, subpath, specifier, importer)
		}

		if fi, err := r.fs.Stat(pkgDir); err == nil && fi.IsDir() {
			if resolved, err := r.probePath(filepath.Join(dir, "node_modules", spec), specifier, importer); err == nil {
				return resolved, nil
			}
		}
		tried = append(tried, pkgDir)

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", &NotFoundError{Specifier: specifier, Importer: importer, Tried: tried}
}

// resolvePackageSubpath resolves a subpath within a package directory, using
// exports resolution first. Packages that declare exports enforce them;
// packages without exports fall back to direct path probing.
func (r *Resolver) resolvePackageSubpath(pkg *packagejson.PackageJSON, pkgDir, subpath, specifier, importer string) (string, error) {
	opts := &packagejson.ResolveOptions{Conditions: r.conditions}

	target, err := pkg.ResolveExport(subpath, opts)
	if err != nil {
		if pkg.Exports != nil {
			return "", &NotFoundError{
				Specifier: specifier,
				Importer:  importer,
				Tried:     []string{fmt.Sprintf("%s (subpath %s not exported)", pkgDir, subpath)},
			}
		}
		// No exports and no entry fields: probe the directory itself so
		// bare "pkg" still finds pkg/index.js.
		return r.probePath(filepath.Join(pkgDir, strings.TrimPrefix(subpath, "./")), specifier, importer)
	}

	return r.probePath(filepath.Join(pkgDir, target), specifier, importer)
}

// isBareSpecifier returns true if the specifier is a bare module specifier
// (needs to be resolved via node_modules).
func isBareSpecifier(specifier string) bool {
	// Bare specifiers don't start with ./, ../, or /
	if specifier == "" {
		return false
	}
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		return false
	}
	if strings.HasPrefix(specifier, "/") {
		return false
	}
	// Check for URL schemes
	if strings.Contains(specifier, "://") {
		return false
	}
	return true
}

// packageName extracts the package name from a bare specifier.
func packageName(specifier string) string {
	// Handle scoped packages: @scope/package/path -> @scope/package
	if strings.HasPrefix(specifier, "@") {
		parts := strings.SplitN(specifier, "/", 3)
		if len(parts) >= 2 {
			return path.Join(parts[0], parts[1])
		}
		return specifier
	}
	// Regular package: package/path -> package
	parts := strings.SplitN(specifier, "/", 2)
	return parts[0]
}
