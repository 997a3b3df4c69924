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

// Package config loads project configuration from grafo.toml.
//
// A full configuration looks like:
//
//	[project]
//	root = "."
//	workers = 8
//	conditions = ["browser", "import", "default"]
//
//	[entrypoints]
//	main = "src/main.js"
//	admin = "src/admin.js"
//
//	[build]
//	outdir = "dist"
//	template = "{name}.{hash}.js"
//	hoist_threshold = 2
//	manifest = true
//	clean = true
//
//	[dev]
//	host = "localhost"
//	port = 8080
//	debounce = "100ms"
//	poll_interval = "100ms"
//
// Every key can be overridden through the environment with a GRAFO_
// prefix and underscores for section separators, e.g. GRAFO_DEV_PORT.
// Durations are strings in Go syntax. Entry names are case-insensitive
// and read back lowercased.
package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bennypowers.dev/grafo/fs"
)

// FileName is the configuration file looked up in the project root.
const FileName = "grafo.toml"

// Config is the loaded project configuration.
type Config struct {
	// Root is the absolute project root directory.
	Root string
	// Workers bounds the graph worker pool, 0 for the graph default.
	Workers int
	// Conditions orders package.json export conditions for resolution.
	Conditions []string
	// Entrypoints maps chunk names to source paths relative to Root.
	Entrypoints map[string]string

	Build BuildConfig
	Dev   DevConfig
}

// BuildConfig holds the [build] section.
type BuildConfig struct {
	OutDir         string
	Template       string
	HoistThreshold int
	Manifest       bool
	Clean          bool
}

// DevConfig holds the [dev] section.
type DevConfig struct {
	Host string
	Port int
	// Debounce is how long the watcher coalesces file events before
	// rebuilding.
	Debounce time.Duration
	// PollInterval is how often the watcher scans for modified files.
	PollInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project.root", ".")
	v.SetDefault("project.workers", 0)
	v.SetDefault("build.outdir", "dist")
	v.SetDefault("build.template", "")
	v.SetDefault("build.hoist_threshold", 0)
	v.SetDefault("build.manifest", true)
	v.SetDefault("build.clean", true)
	v.SetDefault("dev.host", "localhost")
	v.SetDefault("dev.port", 8080)
	v.SetDefault("dev.debounce", "100ms")
	v.SetDefault("dev.poll_interval", "100ms")
}

// Load reads grafo.toml from dir, layering environment overrides on
// top. A missing file is not an error; defaults and environment apply.
// dir should be absolute; a relative project.root is resolved against
// it.
func Load(dir string, fsys fs.FileSystem) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix("GRAFO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(dir, FileName)
	if fsys.Exists(path) {
		data, err := fsys.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	root := v.GetString("project.root")
	if !filepath.IsAbs(root) {
		root = filepath.Join(dir, root)
	}

	cfg := &Config{
		Root:        root,
		Workers:     v.GetInt("project.workers"),
		Conditions:  v.GetStringSlice("project.conditions"),
		Entrypoints: v.GetStringMapString("entrypoints"),
		Build: BuildConfig{
			OutDir:         v.GetString("build.outdir"),
			Template:       v.GetString("build.template"),
			HoistThreshold: v.GetInt("build.hoist_threshold"),
			Manifest:       v.GetBool("build.manifest"),
			Clean:          v.GetBool("build.clean"),
		},
		Dev: DevConfig{
			Host:         v.GetString("dev.host"),
			Port:         v.GetInt("dev.port"),
			Debounce:     v.GetDuration("dev.debounce"),
			PollInterval: v.GetDuration("dev.poll_interval"),
		},
	}
	return cfg, nil
}

// Addr returns the dev server listen address.
func (d DevConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}
