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
package hmr_test

import (
	"context"
	"testing"

	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/hmr"
	"bennypowers.dev/grafo/internal/mapfs"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/resolver"
	"bennypowers.dev/grafo/testutil"
	"bennypowers.dev/grafo/transform"
)

func devGraph(t *testing.T, files map[string]string, entry string) (*graph.Graph, *mapfs.MapFileSystem) {
	t.Helper()
	mfs := testutil.ProjectFS(t, "/app", files)
	r := resolver.New(mfs, "/app")
	g := graph.New(r, transform.New(mfs, "/app")).WithWorkers(4)
	if err := g.EnsureEntry(context.Background(), module.NewID(entry)); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	return g, mfs
}

// edit rewrites a file and runs one invalidation batch over it.
func edit(t *testing.T, g *graph.Graph, mfs *mapfs.MapFileSystem, path, content string) (*graph.Boundary, *graph.RecomputeResult) {
	t.Helper()
	mfs.WriteFile(path, []byte(content), 0o644)
	b := g.Invalidate(g.InvalidatePath(path)...)
	res, err := g.Recompute(context.Background(), b)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	return b, res
}

func TestBatchReplacesAcceptingParent(t *testing.T) {
	g, mfs := devGraph(t, map[string]string{
		"src/main.js": `import "./leaf.js";`,
		"src/leaf.js": `import styles from "./leaf.css?inline";
import.meta.hot.accept();
export const leaf = styles.length;`,
		"src/leaf.css": `.leaf { color: tomato }`,
	}, "/app/src/main.js")
	engine := hmr.NewEngine("/app")

	b, res := edit(t, g, mfs, "/app/src/leaf.css", `.leaf { color: rebeccapurple }`)
	msgs := engine.Batch(g, b, res)

	if len(msgs) != 1 {
		t.Fatalf("Expected exactly one message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Type != hmr.TypeReplace {
		t.Fatalf("Expected replace, got %s", m.Type)
	}
	if m.ModuleID != "/src/leaf.js" {
		t.Errorf("Expected replacement of the accepting importer, got %s", m.ModuleID)
	}
	if m.Seq != 1 {
		t.Errorf("Expected batch sequence 1, got %d", m.Seq)
	}
	n, _ := g.Node(module.NewID("/app/src/leaf.js"))
	if m.Generation != n.Generation {
		t.Errorf("Expected generation %d, got %d", n.Generation, m.Generation)
	}
	if m.Code != string(n.Code) {
		t.Error("Expected the node's current code on the wire")
	}
}

func TestBatchFullReloadWhenNothingAccepts(t *testing.T) {
	g, mfs := devGraph(t, map[string]string{
		"src/main.js": `import { leaf } from "./leaf.js"; leaf();`,
		"src/leaf.js": `export const leaf = () => {};`,
	}, "/app/src/main.js")
	engine := hmr.NewEngine("/app")

	b, res := edit(t, g, mfs, "/app/src/leaf.js", `export const leaf = () => 1;`)
	msgs := engine.Batch(g, b, res)

	if len(msgs) != 1 {
		t.Fatalf("Expected exactly one message, got %d", len(msgs))
	}
	if msgs[0].Type != hmr.TypeFullReload {
		t.Errorf("Expected full-reload, got %s", msgs[0].Type)
	}
	for _, m := range msgs {
		if m.Type == hmr.TypeReplace {
			t.Error("Expected no replace without an accepting chain")
		}
	}
}

func TestBatchTouchOnlyEmitsNothing(t *testing.T) {
	g, mfs := devGraph(t, map[string]string{
		"src/main.js": `import "./util.js";`,
		"src/util.js": `export const u = 1;`,
	}, "/app/src/main.js")
	engine := hmr.NewEngine("/app")

	if err := mfs.Touch("/app/src/util.js"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	b := g.Invalidate(g.InvalidatePath("/app/src/util.js")...)
	res, err := g.Recompute(context.Background(), b)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if msgs := engine.Batch(g, b, res); msgs != nil {
		t.Errorf("Expected no messages for a touch-only write, got %v", msgs)
	}
	if engine.Seq() != 0 {
		t.Errorf("Expected no sequence consumed, got %d", engine.Seq())
	}
}

func TestBatchErrorScopedAndRecovered(t *testing.T) {
	g, mfs := devGraph(t, map[string]string{
		"src/main.js":   `import "./widget.js";`,
		"src/widget.js": `import.meta.hot.accept(); export const w = 1;`,
	}, "/app/src/main.js")
	engine := hmr.NewEngine("/app")

	b, res := edit(t, g, mfs, "/app/src/widget.js",
		`import "./gone.js"; import.meta.hot.accept(); export const w = 2;`)
	msgs := engine.Batch(g, b, res)

	if len(msgs) != 1 {
		t.Fatalf("Expected exactly one message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Type != hmr.TypeError {
		t.Fatalf("Expected error message, got %s", m.Type)
	}
	if m.ModuleID != "/src/widget.js" {
		t.Errorf("Expected error scoped to widget, got %s", m.ModuleID)
	}
	if m.Message == "" {
		t.Error("Expected a failure description")
	}

	// A successful edit to the same module turns into a replace.
	b, res = edit(t, g, mfs, "/app/src/widget.js",
		`import.meta.hot.accept(); export const w = 3;`)
	msgs = engine.Batch(g, b, res)
	if len(msgs) != 1 || msgs[0].Type != hmr.TypeReplace {
		t.Fatalf("Expected a single replace after the fix, got %v", msgs)
	}
	if msgs[0].Seq != 2 {
		t.Errorf("Expected batch sequence 2, got %d", msgs[0].Seq)
	}
}

func TestBatchDependencyFirstOrder(t *testing.T) {
	g, mfs := devGraph(t, map[string]string{
		"src/main.js": `import "./a.js";`,
		"src/a.js":    `import "./b.js"; import.meta.hot.accept(); export const a = 1;`,
		"src/b.js":    `import.meta.hot.accept(); export const b = 1;`,
	}, "/app/src/main.js")
	engine := hmr.NewEngine("/app")

	mfs.WriteFile("/app/src/a.js", []byte(`import "./b.js"; import.meta.hot.accept(); export const a = 2;`), 0o644)
	mfs.WriteFile("/app/src/b.js", []byte(`import.meta.hot.accept(); export const b = 2;`), 0o644)
	b := g.Invalidate(module.NewID("/app/src/a.js"), module.NewID("/app/src/b.js"))
	res, err := g.Recompute(context.Background(), b)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	msgs := engine.Batch(g, b, res)
	if len(msgs) != 2 {
		t.Fatalf("Expected two replaces, got %v", msgs)
	}
	if msgs[0].ModuleID != "/src/b.js" || msgs[1].ModuleID != "/src/a.js" {
		t.Errorf("Expected dependency before dependent, got %s then %s",
			msgs[0].ModuleID, msgs[1].ModuleID)
	}
	if msgs[0].Seq != msgs[1].Seq {
		t.Errorf("Expected one batch sequence, got %d and %d", msgs[0].Seq, msgs[1].Seq)
	}
}

func TestBatchSequenceMonotonic(t *testing.T) {
	g, mfs := devGraph(t, map[string]string{
		"src/main.js":   `import "./widget.js";`,
		"src/widget.js": `import.meta.hot.accept(); export const w = 1;`,
	}, "/app/src/main.js")
	engine := hmr.NewEngine("/app")

	b, res := edit(t, g, mfs, "/app/src/widget.js", `import.meta.hot.accept(); export const w = 2;`)
	first := engine.Batch(g, b, res)
	b, res = edit(t, g, mfs, "/app/src/widget.js", `import.meta.hot.accept(); export const w = 3;`)
	second := engine.Batch(g, b, res)

	if first[0].Seq != 1 || second[0].Seq != 2 {
		t.Errorf("Expected sequences 1 then 2, got %d then %d", first[0].Seq, second[0].Seq)
	}
	if engine.Seq() != 2 {
		t.Errorf("Expected engine at sequence 2, got %d", engine.Seq())
	}
}
