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
// Package packagejson provides parsing and export resolution for package.json files.
package packagejson

import (
	"encoding/json"
	"errors"
	"strings"

	"bennypowers.dev/grafo/fs"
)

// ErrNotExported is returned when a subpath is not exported by the package.
var ErrNotExported = errors.New("not exported by package.json")

// DefaultConditions is the default export condition priority for browser environments.
var DefaultConditions = []string{"browser", "import", "default"}

// ResolveOptions configures how conditional exports are resolved.
type ResolveOptions struct {
	// Conditions is the ordered list of conditions to try when resolving exports.
	// If nil, defaults to DefaultConditions.
	Conditions []string
}

// PackageJSON represents the subset of package.json relevant for specifier
// resolution.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Main            string            `json:"main,omitempty"`
	Module          string            `json:"module,omitempty"`
	Exports         any               `json:"exports,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// Parse parses package.json data.
func Parse(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ParseFile parses a package.json file.
func ParseFile(fs fs.FileSystem, path string) (*PackageJSON, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// EntrypointTarget returns the package's main entry for subpath ".", without
// consulting the exports field: the "module" field first (ESM builds), then
// "main". Returns ErrNotExported when neither is set.
func (pkg *PackageJSON) EntrypointTarget() (string, error) {
	if pkg.Module != "" {
		return trimDotSlash(pkg.Module), nil
	}
	if pkg.Main != "" {
		return trimDotSlash(pkg.Main), nil
	}
	return "", ErrNotExported
}

// ResolveExport resolves a subpath export to its target file path.
// The subpath should be "." for the main export or "./subpath" for subpath
// exports. Exact subpath entries are tried first, then wildcard patterns
// (e.g. "./*" -> "dist/*"). When the package has no exports field the
// "module"/"main" fields answer for "." and every other subpath maps
// directly into the package directory.
// Returns the resolved path without leading "./".
// Pass nil for opts to use DefaultConditions.
func (pkg *PackageJSON) ResolveExport(subpath string, opts *ResolveOptions) (string, error) {
	if pkg.Exports == nil {
		if subpath == "." {
			return pkg.EntrypointTarget()
		}
		// Packages without exports expose their whole tree.
		return trimDotSlash(subpath), nil
	}

	// Handle string export (simple case)
	if exportStr, ok := pkg.Exports.(string); ok {
		if subpath == "." {
			return trimDotSlash(exportStr), nil
		}
		return "", ErrNotExported
	}

	// Handle exports map
	exportsMap, ok := pkg.Exports.(map[string]any)
	if !ok {
		return "", ErrNotExported
	}

	// Check if this is a condition-only export (no subpaths)
	hasSubpaths := false
	for key := range exportsMap {
		if strings.HasPrefix(key, ".") {
			hasSubpaths = true
			break
		}
	}

	if !hasSubpaths {
		// This is a condition-only export for the main entry
		if subpath == "." {
			return resolveConditionsWithOpts(exportsMap, opts)
		}
		return "", ErrNotExported
	}

	// Exact subpath entry wins over wildcard patterns.
	if exportValue, ok := exportsMap[subpath]; ok {
		return resolveExportValueWithOpts(exportValue, opts)
	}

	return pkg.resolveWildcard(exportsMap, subpath, opts)
}

// resolveWildcard matches subpath against wildcard export patterns and
// substitutes the captured segment into the target. The longest matching
// pattern prefix wins, mirroring Node's pattern specificity rule.
func (pkg *PackageJSON) resolveWildcard(exportsMap map[string]any, subpath string, opts *ResolveOptions) (string, error) {
	bestPrefixLen := -1
	bestTarget := ""
	bestCapture := ""

	for pattern, targetValue := range exportsMap {
		starIdx := strings.Index(pattern, "*")
		if starIdx < 0 {
			continue
		}

		prefix := pattern[:starIdx]
		suffix := pattern[starIdx+1:]
		if !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		if len(subpath) < len(prefix)+len(suffix) {
			continue
		}
		if len(prefix) <= bestPrefixLen {
			continue
		}

		target, err := resolveExportValueWithOpts(targetValue, opts)
		if err != nil || !strings.Contains(target, "*") {
			continue
		}

		bestPrefixLen = len(prefix)
		bestTarget = target
		bestCapture = subpath[len(prefix) : len(subpath)-len(suffix)]
	}

	if bestPrefixLen < 0 {
		return "", ErrNotExported
	}
	return strings.Replace(bestTarget, "*", bestCapture, 1), nil
}

// resolveExportValueWithOpts resolves an export value with custom conditions.
func resolveExportValueWithOpts(value any, opts *ResolveOptions) (string, error) {
	switch v := value.(type) {
	case string:
		return trimDotSlash(v), nil
	case map[string]any:
		return resolveConditionsWithOpts(v, opts)
	case []any:
		// Fallback array - first resolvable entry wins.
		for _, item := range v {
			if result, err := resolveExportValueWithOpts(item, opts); err == nil {
				return result, nil
			}
		}
	}
	return "", ErrNotExported
}

// resolveConditionsWithOpts resolves a conditional export map to a path.
// Tries each condition in opts.Conditions order, recursing into nested maps.
func resolveConditionsWithOpts(conditions map[string]any, opts *ResolveOptions) (string, error) {
	conditionList := DefaultConditions
	if opts != nil && len(opts.Conditions) > 0 {
		conditionList = opts.Conditions
	}

	for _, cond := range conditionList {
		if value, ok := conditions[cond]; ok {
			if valueMap, ok := value.(map[string]any); ok {
				if result, err := resolveConditionsWithOpts(valueMap, opts); err == nil {
					return result, nil
				}
			} else if valueStr, ok := value.(string); ok {
				return trimDotSlash(valueStr), nil
			}
		}
	}

	return "", ErrNotExported
}

// trimDotSlash removes a leading "./" from a path.
func trimDotSlash(path string) string {
	return strings.TrimPrefix(path, "./")
}
