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

// Package build provides the build command for grafo.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/grafo/build"
	"bennypowers.dev/grafo/config"
	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/internal/output"
)

// Cmd is the build cobra command that resolves the module graph from the
// configured entrypoints and writes hashed chunk files.
var Cmd = &cobra.Command{
	Use:   "build",
	Short: "Build the module graph into hashed chunk files",
	Long: `Build resolves the module graph from the configured entrypoints, splits it
into chunks along entry and dynamic-import boundaries, and writes
content-hashed files plus a manifest into the output directory.

Entrypoints come from the [entrypoints] table in grafo.toml; --entrypoint
flags add to or override them.`,
	Example: `  # Build using grafo.toml
  grafo build

  # Add an entrypoint on the command line
  grafo build --entrypoint admin=src/admin.js

  # Custom output directory and filename template
  grafo build --outdir public/assets --template "{kind}/{name}.{hash}.js"

  # Skip the manifest and keep stale files
  grafo build --manifest=false --clean=false`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	Cmd.Flags().StringArray("entrypoint", nil, "Entrypoint as name=path (can be repeated)")
	Cmd.Flags().String("outdir", "", "Output directory (default: dist under the project root)")
	Cmd.Flags().String("template", "", "Output filename template (default: "+build.DefaultTemplate+")")
	Cmd.Flags().Int("hoist-threshold", 0, "How many chunks must share a module before it hoists")
	Cmd.Flags().Bool("manifest", true, "Write manifest.json into the output directory")
	Cmd.Flags().Bool("clean", true, "Remove stale files from the output directory first")
	Cmd.Flags().StringSlice("conditions", nil, "Export condition priority (e.g., production,browser,import,default)")
	Cmd.Flags().IntP("jobs", "j", 0, "Number of graph workers")
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

	entrypoints := make(map[string]string, len(cfg.Entrypoints))
	for name, p := range cfg.Entrypoints {
		entrypoints[name] = p
	}
	pairs, _ := cmd.Flags().GetStringArray("entrypoint")
	for _, pair := range pairs {
		name, p, ok := strings.Cut(pair, "=")
		if !ok || name == "" || p == "" {
			return fmt.Errorf("invalid entrypoint %q: expected name=path", pair)
		}
		entrypoints[name] = p
	}
	if len(entrypoints) == 0 {
		return fmt.Errorf("no entrypoints: add an [entrypoints] table to %s or pass --entrypoint name=path", config.FileName)
	}

	opts := build.Options{
		Entrypoints:    entrypoints,
		OutDir:         cfg.Build.OutDir,
		Template:       cfg.Build.Template,
		HoistThreshold: cfg.Build.HoistThreshold,
		Manifest:       cfg.Build.Manifest,
		Clean:          cfg.Build.Clean,
	}
	if cmd.Flags().Changed("outdir") {
		opts.OutDir, _ = cmd.Flags().GetString("outdir")
	}
	if cmd.Flags().Changed("template") {
		opts.Template, _ = cmd.Flags().GetString("template")
	}
	if cmd.Flags().Changed("hoist-threshold") {
		opts.HoistThreshold, _ = cmd.Flags().GetInt("hoist-threshold")
	}
	if cmd.Flags().Changed("manifest") {
		opts.Manifest, _ = cmd.Flags().GetBool("manifest")
	}
	if cmd.Flags().Changed("clean") {
		opts.Clean, _ = cmd.Flags().GetBool("clean")
	}

	workers := cfg.Workers
	if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
		workers = jobs
	}
	conditions := cfg.Conditions
	if cmd.Flags().Changed("conditions") {
		conditions, _ = cmd.Flags().GetStringSlice("conditions")
	}

	builder := build.New(osfs, cfg.Root).
		WithLogger(output.Logger{Verbose: viper.GetBool("verbose")}).
		WithWorkers(workers)
	if len(conditions) > 0 {
		builder = builder.WithConditions(conditions)
	}

	result, err := builder.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	fmt.Printf("%d modules in %d chunks\n", builder.Graph().Len(), result.Chunks.Len())
	output.BuildReport(os.Stdout, result)
	return nil
}
