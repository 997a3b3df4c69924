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

// Package graph provides the graph command for grafo.
package graph

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/grafo/chunk"
	"bennypowers.dev/grafo/config"
	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/internal/output"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/resolver"
	"bennypowers.dev/grafo/transform"
)

// Cmd is the graph cobra command that resolves a module graph and prints
// it for inspection.
var Cmd = &cobra.Command{
	Use:   "graph [file...]",
	Short: "Resolve a module graph and print it",
	Long: `Graph resolves the module graph from entry files and prints every module
with its imports. Entry files come from arguments, --glob, or the
[entrypoints] table in grafo.toml when neither is given.`,
	Example: `  # Graph the configured entrypoints
  grafo graph

  # Graph specific entry files
  grafo graph src/main.js src/admin.js

  # Graph every page script under a directory
  grafo graph --glob "src/pages/**/*.js"

  # Chunk assignment for the same graph
  grafo graph --format chunks

  # Graphviz rendering
  grafo graph --format dot | dot -Tsvg > graph.svg`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("format", "f", "json", "Output format (json, ndjson, dot, chunks)")
	Cmd.Flags().String("glob", "", "Glob pattern for entry files (e.g., \"src/pages/**/*.js\")")
	Cmd.Flags().Int("hoist-threshold", 0, "Shared-chunk hoist threshold for --format chunks")
	Cmd.Flags().StringSlice("conditions", nil, "Export condition priority (e.g., production,browser,import,default)")
	Cmd.Flags().IntP("jobs", "j", 0, "Number of graph workers")
}

type entryFile struct {
	name string
	path string
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOS()

	absRoot, err := filepath.Abs(viper.GetString("root"))
	if err != nil {
		return fmt.Errorf("invalid project directory: %w", err)
	}

	cfg, err := config.Load(absRoot, osfs)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json", "ndjson", "dot", "chunks":
	default:
		return fmt.Errorf("invalid format %q: must be one of json, ndjson, dot, chunks", format)
	}

	// Collect entry files from args and glob, deduplicating by absolute path
	seen := make(map[string]struct{})
	var entries []entryFile

	for _, arg := range args {
		absPath, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid file path %q: %w", arg, err)
		}
		if _, exists := seen[absPath]; !exists {
			seen[absPath] = struct{}{}
			entries = append(entries, entryFile{name: entryName(cfg.Root, absPath), path: absPath})
		}
	}

	globPattern, _ := cmd.Flags().GetString("glob")
	if globPattern != "" {
		matches, err := doublestar.FilepathGlob(globPattern)
		if err != nil {
			return fmt.Errorf("invalid glob pattern: %w", err)
		}
		for _, match := range matches {
			absPath, err := filepath.Abs(match)
			if err != nil {
				return fmt.Errorf("invalid file path %q: %w", match, err)
			}
			if _, exists := seen[absPath]; !exists {
				seen[absPath] = struct{}{}
				entries = append(entries, entryFile{name: entryName(cfg.Root, absPath), path: absPath})
			}
		}
	}

	// Fall back to the configured entrypoints
	if len(entries) == 0 {
		names := make([]string, 0, len(cfg.Entrypoints))
		for name := range cfg.Entrypoints {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := cfg.Entrypoints[name]
			if !filepath.IsAbs(p) {
				p = filepath.Join(cfg.Root, p)
			}
			if _, exists := seen[p]; !exists {
				seen[p] = struct{}{}
				entries = append(entries, entryFile{name: name, path: p})
			}
		}
	}

	if len(entries) == 0 {
		return fmt.Errorf("no entry files: pass file arguments, use --glob, or configure [entrypoints] in %s", config.FileName)
	}

	workers := cfg.Workers
	if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
		workers = jobs
	}
	conditions := cfg.Conditions
	if cmd.Flags().Changed("conditions") {
		conditions, _ = cmd.Flags().GetStringSlice("conditions")
	}

	res := resolver.New(osfs, cfg.Root)
	if len(conditions) > 0 {
		res = res.WithConditions(conditions)
	}
	g := graph.New(res, transform.New(osfs, cfg.Root)).
		WithLogger(output.Logger{Verbose: viper.GetBool("verbose")}).
		WithWorkers(workers)

	ids := make([]module.ID, 0, len(entries))
	names := make(map[module.ID]string, len(entries))
	for _, e := range entries {
		id := module.NewID(e.path)
		ids = append(ids, id)
		names[id] = e.name
		if err := g.EnsureEntry(cmd.Context(), id); err != nil {
			return fmt.Errorf("entry %s: %w", e.name, err)
		}
	}

	switch format {
	case "dot":
		return output.Write(osfs, renderDot(g, cfg.Root))
	case "chunks":
		hoist, _ := cmd.Flags().GetInt("hoist-threshold")
		cg, err := chunk.Compute(g, ids, chunk.Policy{HoistThreshold: hoist, EntryNames: names})
		if err != nil {
			return err
		}
		out, err := renderChunks(cg, cfg.Root)
		if err != nil {
			return err
		}
		return output.Write(osfs, out)
	case "ndjson":
		out, err := renderNDJSON(g, cfg.Root)
		if err != nil {
			return err
		}
		return output.Write(osfs, out)
	default:
		out, err := renderModules(g, cfg.Root)
		if err != nil {
			return err
		}
		return output.Write(osfs, out)
	}
}

// entryName derives a stable chunk name for an entry file: its
// root-relative path without the extension, or the bare filename for
// files outside the root.
func entryName(root, p string) string {
	name := filepath.Base(p)
	if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
		name = rel
	}
	return filepath.ToSlash(strings.TrimSuffix(name, filepath.Ext(name)))
}

type edgeReport struct {
	Specifier string `json:"specifier"`
	To        string `json:"to"`
	Kind      string `json:"kind"`
	Line      int    `json:"line,omitempty"`
}

type moduleReport struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Entry       bool         `json:"entry,omitempty"`
	AcceptsSelf bool         `json:"acceptsSelf,omitempty"`
	Imports     []edgeReport `json:"imports,omitempty"`
	Deferred    []string     `json:"deferred,omitempty"`
}

func moduleReports(g *graph.Graph, root string) []moduleReport {
	reports := make([]moduleReport, 0, g.Len())
	for _, n := range g.Modules() {
		r := moduleReport{
			ID:          module.WebPath(root, n.ID),
			Kind:        n.ID.Kind().String(),
			Entry:       n.Entry,
			AcceptsSelf: n.AcceptsSelf,
		}
		for _, e := range n.Edges {
			r.Imports = append(r.Imports, edgeReport{
				Specifier: e.Specifier,
				To:        module.WebPath(root, e.To),
				Kind:      e.Kind.String(),
				Line:      e.Line,
			})
		}
		for _, d := range n.Deferred {
			r.Deferred = append(r.Deferred, d.Specifier)
		}
		reports = append(reports, r)
	}
	return reports
}

func renderModules(g *graph.Graph, root string) (string, error) {
	out, err := json.MarshalIndent(moduleReports(g, root), "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func renderNDJSON(g *graph.Graph, root string) (string, error) {
	var b strings.Builder
	for _, r := range moduleReports(g, root) {
		line, err := json.Marshal(r)
		if err != nil {
			return "", err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

type chunkReport struct {
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	Hash           string   `json:"hash"`
	Modules        []string `json:"modules"`
	Imports        []string `json:"imports,omitempty"`
	DynamicImports []string `json:"dynamicImports,omitempty"`
}

func renderChunks(cg *chunk.Graph, root string) (string, error) {
	reports := make([]chunkReport, 0, cg.Len())
	for _, c := range cg.Chunks {
		r := chunkReport{
			Name:           c.Name,
			Kind:           c.Kind.String(),
			Hash:           c.ShortHash(),
			Imports:        c.Imports,
			DynamicImports: c.DynamicImports,
		}
		for _, id := range c.Modules {
			r.Modules = append(r.Modules, module.WebPath(root, id))
		}
		reports = append(reports, r)
	}
	out, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func renderDot(g *graph.Graph, root string) string {
	var b strings.Builder
	b.WriteString("digraph modules {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range g.Modules() {
		web := module.WebPath(root, n.ID)
		if n.Entry {
			fmt.Fprintf(&b, "  %q [shape=box];\n", web)
		}
		for _, e := range n.Edges {
			attr := ""
			if e.Kind == graph.EdgeDynamic {
				attr = " [style=dashed]"
			}
			fmt.Fprintf(&b, "  %q -> %q%s;\n", web, module.WebPath(root, e.To), attr)
		}
	}
	b.WriteString("}")
	return b.String()
}
