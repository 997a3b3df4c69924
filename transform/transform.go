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

// Package transform turns raw module sources into graph-consumable results:
// executable code, the ordered import list, and the module's hot-update
// contract. The graph depends only on the Adapter interface; Pipeline is the
// default tree-sitter based implementation.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/plugin"
)

// Logger receives diagnostic messages from the pipeline.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warning(format string, args ...any) {}
func (noopLogger) Debug(format string, args ...any)   {}

// Result is the transform output for one module.
type Result struct {
	// Code is the executable JavaScript for the module.
	Code []byte
	// Imports lists the specifiers the code depends on, in document order.
	Imports []Import
	// AcceptsSelf reports whether the module accepts hot replacement of
	// itself.
	AcceptsSelf bool
	// AcceptedDeps lists dependency specifiers the module accepts hot
	// replacements for.
	AcceptedDeps []string
}

// Adapter converts one module id into a Result. Implementations must be safe
// for concurrent use; the graph calls Transform from its worker pool.
type Adapter interface {
	Transform(ctx context.Context, id module.ID) (*Result, error)
}

// Pipeline is the default Adapter. It loads sources through plugin hooks with
// a filesystem fallback, then dispatches on module kind: scriptable sources
// pass through with their imports extracted, stylesheets become style-inject
// modules, JSON becomes a default export, and anything else exports its URL.
type Pipeline struct {
	fs      fs.FileSystem
	root    string
	plugins *plugin.Registry
	logger  Logger
}

// New creates a Pipeline rooted at the given project directory.
func New(fsys fs.FileSystem, root string) *Pipeline {
	return &Pipeline{fs: fsys, root: root, logger: noopLogger{}}
}

// WithPlugins returns a copy of the pipeline using the given plugin registry.
func (p *Pipeline) WithPlugins(registry *plugin.Registry) *Pipeline {
	clone := *p
	clone.plugins = registry
	return &clone
}

// WithLogger returns a copy of the pipeline using the given logger.
func (p *Pipeline) WithLogger(logger Logger) *Pipeline {
	clone := *p
	clone.logger = logger
	return &clone
}

// Transform implements Adapter.
func (p *Pipeline) Transform(ctx context.Context, id module.ID) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := p.load(id)
	if err != nil {
		return nil, err
	}

	if p.plugins != nil {
		source, err = p.plugins.Transform(source, id.String())
		if err != nil {
			return nil, err
		}
	}

	kind := kindFor(id)
	p.logger.Debug("transform %s as %s", id, kind)

	switch {
	case id.Variant == "url":
		return urlResult(p.root, id), nil
	case kind.Scriptable():
		return scriptResult(source, dialectFor(kind))
	case kind == module.KindCSS:
		if id.Variant == "inline" {
			return inlineResult(source), nil
		}
		return cssResult(p.root, id, source), nil
	case kind == module.KindJSON:
		return jsonResult(id, source)
	default:
		return urlResult(p.root, id), nil
	}
}

// load produces raw source for an id: plugin loaders first, then the
// filesystem. Ids in the virtual namespace never touch disk.
func (p *Pipeline) load(id module.ID) ([]byte, error) {
	if p.plugins != nil {
		content, err := p.plugins.Load(id.String())
		if err != nil {
			return nil, err
		}
		if content != nil {
			return content, nil
		}
	}
	if plugin.IsVirtual(id.Path) {
		return nil, fmt.Errorf("no loader for virtual module %s", id.Path)
	}
	return p.fs.ReadFile(id.Path)
}

// kindFor classifies an id, defaulting extensionless virtual modules to
// JavaScript.
func kindFor(id module.ID) module.Kind {
	if plugin.IsVirtual(id.Path) {
		k := module.KindForPath(strings.TrimPrefix(id.Path, plugin.VirtualPrefix))
		if k == module.KindAsset {
			return module.KindJS
		}
		return k
	}
	return id.Kind()
}

// dialectFor picks the grammar for a scriptable kind. JSX-bearing kinds need
// the TSX grammar; angle brackets parse as type assertions otherwise.
func dialectFor(kind module.Kind) string {
	switch kind {
	case module.KindJSX, module.KindTSX:
		return DialectTSX
	default:
		return DialectTypescript
	}
}

func scriptResult(source []byte, dialect string) (*Result, error) {
	imports, err := ExtractImports(source, dialect)
	if err != nil {
		return nil, err
	}
	accept, err := ExtractHotAccept(source, dialect)
	if err != nil {
		return nil, err
	}
	return &Result{
		Code:         source,
		Imports:      imports,
		AcceptsSelf:  accept.Self,
		AcceptedDeps: accept.Deps,
	}, nil
}

// cssResult wraps a stylesheet in a module that swaps a keyed <style>
// element into the document. Re-executing the module replaces the previous
// element, so stylesheet modules accept their own hot replacements.
func cssResult(root string, id module.ID, source []byte) *Result {
	webPath := module.WebPath(root, id)
	var b strings.Builder
	fmt.Fprintf(&b, "const id = %q;\n", webPath)
	fmt.Fprintf(&b, "const css = `%s`;\n", escapeTemplate(string(source)))
	b.WriteString("const prev = document.querySelector(`style[data-grafo-id=\"${id}\"]`);\n")
	b.WriteString("if (prev) prev.remove();\n")
	b.WriteString("const el = document.createElement('style');\n")
	b.WriteString("el.setAttribute('data-grafo-id', id);\n")
	b.WriteString("el.textContent = css;\n")
	b.WriteString("document.head.appendChild(el);\n")
	b.WriteString("export default css;\n")
	return &Result{Code: []byte(b.String()), AcceptsSelf: true}
}

// inlineResult exports the raw text of a module as its default export.
func inlineResult(source []byte) *Result {
	code := fmt.Sprintf("export default `%s`;\n", escapeTemplate(string(source)))
	return &Result{Code: []byte(code)}
}

// jsonResult re-exports a JSON document as a JavaScript value.
func jsonResult(id module.ID, source []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(source)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid JSON in %s", id.Path)
	}
	var b bytes.Buffer
	b.WriteString("export default ")
	b.Write(trimmed)
	b.WriteString(";\n")
	return &Result{Code: b.Bytes()}, nil
}

// urlResult exports the served URL of a module. Used for assets and for any
// module requested with the "url" variant.
func urlResult(root string, id module.ID) *Result {
	webPath := module.WebPath(root, module.ID{Path: id.Path})
	code := fmt.Sprintf("export default %q;\n", webPath)
	return &Result{Code: []byte(code)}
}

// escapeTemplate makes text safe inside a JavaScript template literal.
var templateEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"${", "\\${",
)

func escapeTemplate(s string) string {
	return templateEscaper.Replace(s)
}
