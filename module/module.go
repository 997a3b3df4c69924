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

// Package module defines module identity and kind classification shared by
// the resolver, the graph, and the chunker.
package module

import (
	"path"
	"strings"
)

// ID is the canonical identity of one resolved module variant: an absolute
// path plus an optional variant tag (a query-parameterized instance of the
// same file, e.g. "?inline"). Two imports that resolve to the same ID refer
// to the same graph node. Equality is structural, so ID is usable as a map key.
type ID struct {
	Path    string
	Variant string
}

// NewID returns the ID for a plain (untagged) module path.
func NewID(path string) ID {
	return ID{Path: path}
}

// ParseID parses the string form produced by String, splitting an optional
// "?variant" suffix off the path.
func ParseID(s string) ID {
	p, variant := SplitVariant(s)
	return ID{Path: p, Variant: variant}
}

// String renders the ID as "path" or "path?variant".
func (id ID) String() string {
	if id.Variant == "" {
		return id.Path
	}
	return id.Path + "?" + id.Variant
}

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool {
	return id.Path == ""
}

// SplitVariant splits a specifier or id string into its path part and variant
// tag. The variant is everything after the first "?", without the "?".
func SplitVariant(s string) (string, string) {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Kind classifies a module by the treatment its source needs before the
// graph can consume it. The graph itself is agnostic to kind; only the
// transform layer dispatches on it.
type Kind int

const (
	// KindJS covers plain JavaScript (.js, .mjs, .cjs).
	KindJS Kind = iota
	// KindTS covers TypeScript (.ts, .mts, .cts).
	KindTS
	// KindJSX covers JSX (.jsx).
	KindJSX
	// KindTSX covers TSX (.tsx).
	KindTSX
	// KindCSS covers stylesheets (.css, .scss, .sass, .less).
	KindCSS
	// KindJSON covers JSON documents (.json).
	KindJSON
	// KindHTML covers HTML documents (.html, .htm).
	KindHTML
	// KindAsset covers everything else (served verbatim, never parsed).
	KindAsset
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindJS:
		return "js"
	case KindTS:
		return "ts"
	case KindJSX:
		return "jsx"
	case KindTSX:
		return "tsx"
	case KindCSS:
		return "css"
	case KindJSON:
		return "json"
	case KindHTML:
		return "html"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Scriptable reports whether modules of this kind can carry import edges.
func (k Kind) Scriptable() bool {
	switch k {
	case KindJS, KindTS, KindJSX, KindTSX:
		return true
	default:
		return false
	}
}

// KindForPath classifies a path by its extension.
func KindForPath(p string) Kind {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs", ".cjs":
		return KindJS
	case ".ts", ".mts", ".cts":
		return KindTS
	case ".jsx":
		return KindJSX
	case ".tsx":
		return KindTSX
	case ".css", ".scss", ".sass", ".less":
		return KindCSS
	case ".json":
		return KindJSON
	case ".html", ".htm":
		return KindHTML
	default:
		return KindAsset
	}
}

// Kind returns the kind of the module identified by id, from its path
// extension. Variants do not change the kind.
func (id ID) Kind() Kind {
	return KindForPath(id.Path)
}

// virtualMarker encodes the NUL byte that namespaces in-memory module ids
// into a form that survives a URL.
const virtualMarker = "__x00__"

// WebPath returns the server-relative form of an id rooted at root, with the
// variant tag restored as a query suffix. In-memory module ids are surfaced
// under "/@id/" with their NUL marker encoded.
func WebPath(root string, id ID) string {
	if strings.HasPrefix(id.Path, "\x00") {
		web := "/@id/" + virtualMarker + id.Path[1:]
		if id.Variant != "" {
			web += "?" + id.Variant
		}
		return web
	}
	rel := strings.TrimPrefix(id.Path, strings.TrimSuffix(root, "/"))
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	if id.Variant != "" {
		rel += "?" + id.Variant
	}
	return rel
}

// IDFromWebPath maps a server path back to the module id it was produced
// from. It is the inverse of WebPath for paths under root.
func IDFromWebPath(root, web string) ID {
	p, variant := SplitVariant(web)
	if rest, ok := strings.CutPrefix(p, "/@id/"+virtualMarker); ok {
		return ID{Path: "\x00" + rest, Variant: variant}
	}
	return ID{Path: path.Join(strings.TrimSuffix(root, "/"), p), Variant: variant}
}
