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
package resolver_test

import (
	"errors"
	"testing"

	"bennypowers.dev/grafo/internal/mapfs"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/plugin"
	"bennypowers.dev/grafo/resolver"
	"bennypowers.dev/grafo/testutil"
)

func projectWithNodeModules(t *testing.T) *mapfs.MapFileSystem {
	t.Helper()
	return testutil.ProjectFS(t, "/app", map[string]string{
		"src/main.js":       `import "./app.js";`,
		"src/app.js":        `export const app = 1;`,
		"src/util.ts":       `export const util = 1;`,
		"src/theme.css":     `body { margin: 0 }`,
		"src/widgets/index.js": `export * from "./button.js";`,
		"src/widgets/button.js": `export const button = 1;`,
		"src/pages/home.js": `export const home = 1;`,
		"node_modules/lit/package.json": `{
			"name": "lit",
			"exports": {
				".": {"browser": "./index.browser.js", "default": "./index.js"},
				"./decorators": "./decorators.js",
				"./directives/*": "./directives/*.js"
			}
		}`,
		"node_modules/lit/index.browser.js":     `export const lit = 1;`,
		"node_modules/lit/index.js":             `export const lit = 1;`,
		"node_modules/lit/decorators.js":        `export const dec = 1;`,
		"node_modules/lit/directives/cache.js":  `export const cache = 1;`,
		"node_modules/@scope/kit/package.json":  `{"name": "@scope/kit", "module": "dist/index.mjs"}`,
		"node_modules/@scope/kit/dist/index.mjs": `export const kit = 1;`,
		"node_modules/plain/index.js":           `export const plain = 1;`,
	})
}

func TestResolveRelative(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	tests := []struct {
		name      string
		specifier string
		importer  string
		want      string
	}{
		{"exact", "./app.js", "/app/src/main.js", "/app/src/app.js"},
		{"extension probing", "./util", "/app/src/main.js", "/app/src/util.ts"},
		{"directory index", "./widgets", "/app/src/main.js", "/app/src/widgets/index.js"},
		{"parent traversal", "../util", "/app/src/pages/home.js", "/app/src/util.ts"},
		{"css", "./theme.css", "/app/src/main.js", "/app/src/theme.css"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(tt.specifier, tt.importer)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if id.Path != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, id.Path)
			}
		})
	}
}

func TestResolveRootAbsolute(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	id, err := r.Resolve("/src/app.js", "/app/src/pages/home.js")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.Path != "/app/src/app.js" {
		t.Errorf("Expected root-absolute resolution, got %s", id.Path)
	}
}

func TestResolveBare(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	tests := []struct {
		name      string
		specifier string
		want      string
	}{
		{"conditional exports", "lit", "/app/node_modules/lit/index.browser.js"},
		{"subpath export", "lit/decorators", "/app/node_modules/lit/decorators.js"},
		{"wildcard export", "lit/directives/cache", "/app/node_modules/lit/directives/cache.js"},
		{"scoped module field", "@scope/kit", "/app/node_modules/@scope/kit/dist/index.mjs"},
		{"no package.json", "plain", "/app/node_modules/plain/index.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(tt.specifier, "/app/src/main.js")
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if id.Path != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, id.Path)
			}
		})
	}
}

func TestResolveBareNotExported(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	_, err := r.Resolve("lit/internal", "/app/src/main.js")
	var notFound *resolver.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError for unexported subpath, got %v", err)
	}
}

func TestResolveBareWalkUp(t *testing.T) {
	mfs := testutil.ProjectFS(t, "/app", map[string]string{
		"node_modules/a/package.json":                `{"name":"a","main":"index.js"}`,
		"node_modules/a/index.js":                    `import "b";`,
		"node_modules/a/node_modules/b/package.json": `{"name":"b","main":"nested.js"}`,
		"node_modules/a/node_modules/b/nested.js":    `export const b = 1;`,
		"node_modules/c/package.json":                `{"name":"c","main":"hoisted.js"}`,
		"node_modules/c/hoisted.js":                  `export const c = 1;`,
	})
	r := resolver.New(mfs, "/app")

	// Nearest node_modules wins.
	id, err := r.Resolve("b", "/app/node_modules/a/index.js")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.Path != "/app/node_modules/a/node_modules/b/nested.js" {
		t.Errorf("Expected nested resolution, got %s", id.Path)
	}

	// Hoisted packages resolve by walking up.
	id, err = r.Resolve("c", "/app/node_modules/a/index.js")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.Path != "/app/node_modules/c/hoisted.js" {
		t.Errorf("Expected hoisted resolution, got %s", id.Path)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	mfs := testutil.ProjectFS(t, "/app", map[string]string{
		"src/main.js":         `import "./shared";`,
		"src/shared.js":       `export const a = 1;`,
		"src/shared/index.js": `export const b = 2;`,
	})
	r := resolver.New(mfs, "/app")

	_, err := r.Resolve("./shared", "/app/src/main.js")
	var ambiguous *resolver.AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("Expected AmbiguousError, got %v", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Errorf("Expected two candidates, got %v", ambiguous.Candidates)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	_, err := r.Resolve("./missing", "/app/src/main.js")
	var notFound *resolver.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if len(notFound.Tried) == 0 {
		t.Error("Expected probed candidates in the error")
	}

	if _, err := r.Resolve("https://cdn.example.com/x.js", "/app/src/main.js"); err == nil {
		t.Error("Expected URL specifiers to fail resolution")
	}
}

func TestResolveVariant(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	id, err := r.Resolve("./theme.css?inline", "/app/src/main.js")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := module.ID{Path: "/app/src/theme.css", Variant: "inline"}
	if id != want {
		t.Errorf("Expected %v, got %v", want, id)
	}

	// The untagged form is a distinct identity.
	plain, err := r.Resolve("./theme.css", "/app/src/main.js")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if plain == id {
		t.Error("Expected variant to produce a distinct module identity")
	}
}

func TestResolvePluginVirtual(t *testing.T) {
	v := plugin.NewVirtual()
	v.Add("virtual:config", `export default {};`)
	reg := plugin.NewRegistry("/app")
	reg.Register(v)

	r := resolver.New(projectWithNodeModules(t), "/app").WithPlugins(reg)

	id, err := r.Resolve("virtual:config", "/app/src/main.js")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !plugin.IsVirtual(id.Path) {
		t.Errorf("Expected virtual id, got %s", id.Path)
	}
}

func TestResolveCaching(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	if _, err := r.Resolve("./app.js", "/app/src/main.js"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.CacheLen() != 1 {
		t.Fatalf("Expected one cached resolution, got %d", r.CacheLen())
	}

	// A second resolution of the same pair hits the cache.
	if _, err := r.Resolve("./app.js", "/app/src/main.js"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.CacheLen() != 1 {
		t.Errorf("Expected cache to stay at one entry, got %d", r.CacheLen())
	}

	// Failures are not cached.
	r.Resolve("./missing", "/app/src/main.js")
	if r.CacheLen() != 1 {
		t.Errorf("Expected failures to stay uncached, got %d entries", r.CacheLen())
	}
}

func TestInvalidatePath(t *testing.T) {
	r := resolver.New(projectWithNodeModules(t), "/app")

	if _, err := r.Resolve("./app.js", "/app/src/main.js"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := r.Resolve("../util", "/app/src/pages/home.js"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Changing a sibling source file drops entries for importers in its
	// directory but not unrelated ones.
	r.InvalidatePath("/app/src/app.js")
	if r.CacheLen() != 1 {
		t.Errorf("Expected only importer-directory entries dropped, got %d remaining", r.CacheLen())
	}

	// package.json changes flush everything.
	if _, err := r.Resolve("lit", "/app/src/main.js"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	r.InvalidatePath("/app/node_modules/lit/package.json")
	if r.CacheLen() != 0 {
		t.Errorf("Expected full flush after package.json change, got %d", r.CacheLen())
	}
}
