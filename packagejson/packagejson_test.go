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
package packagejson_test

import (
	"errors"
	"testing"

	"bennypowers.dev/grafo/packagejson"
	"bennypowers.dev/grafo/testutil"
)

func TestParseFile(t *testing.T) {
	mfs := testutil.ProjectFS(t, "/test", map[string]string{
		"package.json": `{
			"name": "widgets",
			"version": "2.1.0",
			"module": "dist/index.mjs",
			"main": "dist/index.cjs",
			"dependencies": {"tslib": "^2.0.0"}
		}`,
	})

	pkg, err := packagejson.ParseFile(mfs, "/test/package.json")
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	if pkg.Name != "widgets" {
		t.Errorf("Expected name widgets, got %q", pkg.Name)
	}
	if pkg.Module != "dist/index.mjs" {
		t.Errorf("Expected module field, got %q", pkg.Module)
	}
	if pkg.Dependencies["tslib"] != "^2.0.0" {
		t.Errorf("Expected tslib dependency, got %v", pkg.Dependencies)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := packagejson.Parse([]byte("{not json")); err == nil {
		t.Fatal("Expected parse error for invalid JSON")
	}
}

func TestEntrypointTarget(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"module preferred", `{"name":"a","module":"./esm/index.js","main":"lib/index.js"}`, "esm/index.js"},
		{"main fallback", `{"name":"a","main":"lib/index.js"}`, "lib/index.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := packagejson.Parse([]byte(tt.json))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			got, err := pkg.EntrypointTarget()
			if err != nil {
				t.Fatalf("EntrypointTarget failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("neither field", func(t *testing.T) {
		pkg, _ := packagejson.Parse([]byte(`{"name":"bare"}`))
		if _, err := pkg.EntrypointTarget(); !errors.Is(err, packagejson.ErrNotExported) {
			t.Errorf("Expected ErrNotExported, got %v", err)
		}
	})
}

func TestResolveExport(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		subpath string
		want    string
		wantErr bool
	}{
		{
			"string export",
			`{"name":"a","exports":"./index.js"}`,
			".", "index.js", false,
		},
		{
			"subpath export",
			`{"name":"a","exports":{".":"./index.js","./button":"./src/button.js"}}`,
			"./button", "src/button.js", false,
		},
		{
			"conditional export",
			`{"name":"a","exports":{".":{"browser":"./browser.js","import":"./index.mjs","default":"./index.js"}}}`,
			".", "browser.js", false,
		},
		{
			"nested conditions",
			`{"name":"a","exports":{".":{"import":{"browser":"./b.mjs","default":"./d.mjs"}}}}`,
			".", "b.mjs", false,
		},
		{
			"condition-only map",
			`{"name":"a","exports":{"import":"./index.mjs","default":"./index.js"}}`,
			".", "index.mjs", false,
		},
		{
			"fallback array",
			`{"name":"a","exports":{".":[{"unknown-cond":"./x.js"},"./y.js"]}}`,
			".", "y.js", false,
		},
		{
			"wildcard export",
			`{"name":"a","exports":{"./*":"./dist/*.js"}}`,
			"./button", "dist/button.js", false,
		},
		{
			"wildcard specificity",
			`{"name":"a","exports":{"./*":"./dist/*","./icons/*":"./assets/icons/*"}}`,
			"./icons/check.svg", "assets/icons/check.svg", false,
		},
		{
			"not exported subpath",
			`{"name":"a","exports":{".":"./index.js"}}`,
			"./hidden", "", true,
		},
		{
			"no exports main fallback",
			`{"name":"a","main":"lib/main.js"}`,
			".", "lib/main.js", false,
		},
		{
			"no exports subpath passthrough",
			`{"name":"a","main":"lib/main.js"}`,
			"./lib/util.js", "lib/util.js", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := packagejson.Parse([]byte(tt.json))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			got, err := pkg.ResolveExport(tt.subpath, nil)
			if tt.wantErr {
				if !errors.Is(err, packagejson.ErrNotExported) {
					t.Fatalf("Expected ErrNotExported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveExport failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveExportCustomConditions(t *testing.T) {
	pkg, err := packagejson.Parse([]byte(
		`{"name":"a","exports":{".":{"development":"./dev.js","default":"./prod.js"}}}`,
	))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	opts := &packagejson.ResolveOptions{Conditions: []string{"development", "default"}}
	got, err := pkg.ResolveExport(".", opts)
	if err != nil {
		t.Fatalf("ResolveExport failed: %v", err)
	}
	if got != "dev.js" {
		t.Errorf("Expected dev.js under development condition, got %q", got)
	}
}
