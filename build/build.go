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

// Package build orchestrates production builds: it grows a module graph
// from the configured entrypoints, assigns modules to chunks, validates
// the result and writes hashed chunk files plus an optional manifest.
package build

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"bennypowers.dev/grafo/chunk"
	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/manifest"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/plugin"
	"bennypowers.dev/grafo/resolver"
	"bennypowers.dev/grafo/transform"
)

// Logger receives diagnostic messages from build runs.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warning(format string, args ...any) {}
func (noopLogger) Debug(format string, args ...any)   {}

// Builder owns one build session. The module graph persists across Run
// calls, so a second Run after InvalidatePaths rebuilds only what
// changed. A Builder is not safe for concurrent Run calls.
type Builder struct {
	fsys       fs.FileSystem
	root       string
	logger     Logger
	plugins    *plugin.Registry
	conditions []string
	workers    int

	graph *graph.Graph
}

// New creates a builder rooted at the given project directory.
func New(fsys fs.FileSystem, root string) *Builder {
	return &Builder{
		fsys:   fsys,
		root:   root,
		logger: noopLogger{},
	}
}

// WithLogger returns the builder using the given logger.
func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// WithPlugins returns the builder with a plugin registry wired into
// resolution and transformation.
func (b *Builder) WithPlugins(reg *plugin.Registry) *Builder {
	b.plugins = reg
	return b
}

// WithConditions returns the builder resolving package exports with the
// given conditions.
func (b *Builder) WithConditions(conditions []string) *Builder {
	b.conditions = conditions
	return b
}

// WithWorkers returns the builder using n graph workers.
func (b *Builder) WithWorkers(n int) *Builder {
	b.workers = n
	return b
}

// Options configures a single build run.
type Options struct {
	// Entrypoints maps chunk names to source file paths. Relative paths
	// are resolved against the project root.
	Entrypoints map[string]string
	// OutDir is where chunk files are written. Empty means "dist" under
	// the project root; relative paths are resolved against the root.
	OutDir string
	// Template is the output filename pattern. Empty means
	// DefaultTemplate.
	Template string
	// HoistThreshold is how many chunks must share a module before it
	// hoists into a common chunk. Zero means the chunker default.
	HoistThreshold int
	// Manifest writes manifest.json into OutDir.
	Manifest bool
	// Clean removes top-level files from OutDir before writing, so
	// hashed filenames from earlier builds do not accumulate. Hidden
	// files and subdirectories are kept.
	Clean bool
}

// OutputFile describes one chunk file written to OutDir.
type OutputFile struct {
	// Name is the filename within OutDir
	Name string
	// Path is the full path the file was written to
	Path string
	// Chunk is the name of the chunk this file holds
	Chunk string
	// Size is the file size in bytes
	Size int
	// GzipSize is the gzip-compressed size in bytes
	GzipSize int
	// Hash is the short content hash embedded in the filename
	Hash string
}

// Result reports what a build run produced.
type Result struct {
	Chunks *chunk.Graph
	Files  []OutputFile
	Issues []Issue
	// ManifestPath is where manifest.json was written, empty when the
	// manifest was not requested.
	ManifestPath string
}

// Graph exposes the builder's module graph, nil before the first Run.
func (b *Builder) Graph() *graph.Graph {
	return b.graph
}

// InvalidatePaths marks the modules backed by changed files dirty so
// the next Run rebuilds them. It returns the affected module ids.
func (b *Builder) InvalidatePaths(paths ...string) []module.ID {
	if b.graph == nil {
		return nil
	}
	var ids []module.ID
	for _, p := range paths {
		ids = append(ids, b.graph.InvalidatePath(p)...)
	}
	if len(ids) > 0 {
		b.graph.Invalidate(ids...)
	}
	return ids
}

// Run executes a build: ensure every entrypoint, rebuild anything left
// dirty from earlier invalidations, drop unreachable modules, compute
// chunks and write output files. Any resolution or transform failure is
// fatal and aborts the run with the file intact on disk.
func (b *Builder) Run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Entrypoints) == 0 {
		return nil, fmt.Errorf("no entrypoints configured")
	}

	pattern := opts.Template
	if pattern == "" {
		pattern = DefaultTemplate
	}
	tpl, err := ParseTemplate(pattern)
	if err != nil {
		return nil, err
	}
	if !tpl.HasHash() {
		b.logger.Warning("output template %q has no {hash}; filenames will collide across builds", pattern)
	}

	if b.graph == nil {
		res := resolver.New(b.fsys, b.root)
		if len(b.conditions) > 0 {
			res = res.WithConditions(b.conditions)
		}
		pipe := transform.New(b.fsys, b.root)
		if b.plugins != nil {
			res = res.WithPlugins(b.plugins)
			pipe = pipe.WithPlugins(b.plugins)
		}
		b.graph = graph.New(res, pipe).
			WithLogger(b.logger).
			WithWorkers(b.workers)
	}
	g := b.graph

	names := make([]string, 0, len(opts.Entrypoints))
	for name := range opts.Entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)

	entryNames := make(map[module.ID]string, len(names))
	entries := make([]module.ID, 0, len(names))
	for _, name := range names {
		p := opts.Entrypoints[name]
		if !filepath.IsAbs(p) {
			p = filepath.Join(b.root, p)
		}
		id := module.NewID(p)
		if err := g.EnsureEntry(ctx, id); err != nil {
			return nil, fmt.Errorf("entrypoint %s: %w", name, err)
		}
		entries = append(entries, id)
		entryNames[id] = name
	}

	if err := b.recomputeDirty(ctx, g); err != nil {
		return nil, err
	}

	if removed := g.CollectGarbage(); len(removed) > 0 {
		b.logger.Debug("dropped %d unreachable modules", len(removed))
	}

	cg, err := chunk.Compute(g, entries, chunk.Policy{
		HoistThreshold: opts.HoistThreshold,
		EntryNames:     entryNames,
	})
	if err != nil {
		return nil, err
	}

	issues := Validate(g, b.root)
	for _, issue := range issues {
		b.logger.Warning("%s: %s:%d: %s", issue.Type, issue.File, issue.Line, issue.Detail)
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = "dist"
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(b.root, outDir)
	}
	if err := b.fsys.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if opts.Clean {
		if err := b.cleanOutDir(outDir); err != nil {
			return nil, err
		}
	}

	// Filenames are computed up front so manifest imports can reference
	// sibling chunks by key regardless of write order.
	fileNames := make(map[string]string, cg.Len())
	for _, c := range cg.Chunks {
		fileNames[c.Name] = tpl.Expand(c.Name, c.ShortHash(), c.Kind.String())
	}

	man := manifest.Manifest{}
	files := make([]OutputFile, 0, cg.Len())
	for _, c := range cg.Chunks {
		data := b.renderChunk(g, c)
		name := fileNames[c.Name]
		path := filepath.Join(outDir, name)
		if err := b.fsys.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
		files = append(files, OutputFile{
			Name:     name,
			Path:     path,
			Chunk:    c.Name,
			Size:     len(data),
			GzipSize: gzipSize(data),
			Hash:     c.ShortHash(),
		})

		webPaths := make([]string, len(c.Modules))
		for i, id := range c.Modules {
			webPaths[i] = module.WebPath(b.root, id)
		}
		man[c.Name] = &manifest.Entry{
			File:           name,
			Kind:           c.Kind.String(),
			IsEntry:        c.Kind == chunk.KindEntry,
			Hash:           c.Hash,
			Imports:        c.Imports,
			DynamicImports: c.DynamicImports,
			Modules:        webPaths,
		}
	}

	result := &Result{Chunks: cg, Files: files, Issues: issues}
	if opts.Manifest {
		path := filepath.Join(outDir, "manifest.json")
		if err := b.fsys.WriteFile(path, []byte(man.ToJSON()), 0o644); err != nil {
			return nil, fmt.Errorf("writing manifest: %w", err)
		}
		result.ManifestPath = path
	}
	return result, nil
}

// recomputeDirty rebuilds modules invalidated between runs. Rebuild
// errors are fatal here; dev sessions tolerate them but a build must
// not write output from a graph with broken nodes.
func (b *Builder) recomputeDirty(ctx context.Context, g *graph.Graph) error {
	var dirty []module.ID
	for _, n := range g.Modules() {
		if n.Dirty {
			dirty = append(dirty, n.ID)
		}
	}
	if len(dirty) == 0 {
		return nil
	}
	boundary := g.Invalidate(dirty...)
	res, err := g.Recompute(ctx, boundary)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		ids := make([]module.ID, 0, len(res.Errors))
		for id := range res.Errors {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return ids[i].String() < ids[j].String()
		})
		return fmt.Errorf("rebuilding %s: %w", ids[0].String(), res.Errors[ids[0]])
	}
	b.logger.Debug("rebuilt %d changed, %d unchanged", len(res.Changed), len(res.Unchanged))
	return nil
}

// cleanOutDir removes stale files from a previous build run.
func (b *Builder) cleanOutDir(dir string) error {
	entries, err := b.fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cleaning output directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := b.fsys.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("cleaning output directory: %w", err)
		}
	}
	return nil
}

// renderChunk concatenates member modules dependency-first, each under
// a provenance banner naming its source module.
func (b *Builder) renderChunk(g *graph.Graph, c *chunk.Chunk) []byte {
	var buf bytes.Buffer
	for _, id := range c.Modules {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "// module: %s\n", module.WebPath(b.root, id))
		buf.Write(n.Code)
		if !bytes.HasSuffix(n.Code, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

type countingWriter struct {
	n int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

// gzipSize reports the compressed size of data at the highest level,
// matching what a static file server would transfer.
func gzipSize(data []byte) int {
	var cw countingWriter
	zw, err := gzip.NewWriterLevel(&cw, gzip.BestCompression)
	if err != nil {
		return 0
	}
	if _, err := zw.Write(data); err != nil {
		return 0
	}
	if err := zw.Close(); err != nil {
		return 0
	}
	return cw.n
}
