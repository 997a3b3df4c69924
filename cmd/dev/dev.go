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

// Package dev provides the dev command for grafo.
package dev

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/grafo/config"
	"bennypowers.dev/grafo/devserver"
	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/internal/output"
)

// Cmd is the dev cobra command that serves the project with on-demand
// transforms and hot updates.
var Cmd = &cobra.Command{
	Use:   "dev",
	Short: "Start the development server",
	Long: `Dev serves the project's modules transformed on demand, watches their
backing files, and pushes hot updates to connected pages over a
websocket.

Pages register their module scripts as graph entries when first served,
so configuring [entrypoints] is optional; configured entries are built
eagerly on startup.`,
	Example: `  # Serve the current directory
  grafo dev

  # Different address
  grafo dev --host 0.0.0.0 --port 3000

  # Build an entry eagerly on startup
  grafo dev --entrypoint main=src/main.js`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	Cmd.Flags().String("host", "", "Host to listen on")
	Cmd.Flags().Int("port", 0, "Port to listen on")
	Cmd.Flags().StringArray("entrypoint", nil, "Entrypoint as name=path (can be repeated)")
	Cmd.Flags().StringSlice("conditions", nil, "Export condition priority (e.g., development,browser,import,default)")
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

	host := cfg.Dev.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Dev.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	workers := cfg.Workers
	if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
		workers = jobs
	}
	conditions := cfg.Conditions
	if cmd.Flags().Changed("conditions") {
		conditions, _ = cmd.Flags().GetStringSlice("conditions")
	}

	srv := devserver.New(osfs, cfg.Root).
		WithLogger(output.Logger{Verbose: viper.GetBool("verbose")}).
		WithAddr(addr).
		WithDebounce(cfg.Dev.Debounce).
		WithPollInterval(cfg.Dev.PollInterval).
		WithWorkers(workers)
	if len(entrypoints) > 0 {
		srv = srv.WithEntrypoints(entrypoints)
	}
	if len(conditions) > 0 {
		srv = srv.WithConditions(conditions)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("serving %s on http://%s\n", cfg.Root, addr)
	return srv.Start(ctx)
}
