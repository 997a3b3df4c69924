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
package graph_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/internal/mapfs"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/resolver"
	"bennypowers.dev/grafo/testutil"
	"bennypowers.dev/grafo/transform"
)

// countingAdapter wraps the real pipeline and counts transforms per module.
type countingAdapter struct {
	inner  transform.Adapter
	mu     sync.Mutex
	counts map[module.ID]int
}

func (c *countingAdapter) Transform(ctx context.Context, id module.ID) (*transform.Result, error) {
	c.mu.Lock()
	c.counts[id]++
	c.mu.Unlock()
	return c.inner.Transform(ctx, id)
}

func (c *countingAdapter) count(id module.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

func newTestGraph(t *testing.T, files map[string]string) (*graph.Graph, *mapfs.MapFileSystem, *countingAdapter) {
	t.Helper()
	mfs := testutil.ProjectFS(t, "/app", files)
	r := resolver.New(mfs, "/app")
	adapter := &countingAdapter{
		inner:  transform.New(mfs, "/app"),
		counts: make(map[module.ID]int),
	}
	g := graph.New(r, adapter).WithWorkers(4)
	return g, mfs, adapter
}

func TestEnsureWalksReachable(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js":   `import "./a.js"; import "./b.js";`,
		"src/a.js":      `import { s } from "./shared.js"; export const a = s;`,
		"src/b.js":      `import { s } from "./shared.js"; export const b = s;`,
		"src/shared.js": `export const s = 1;`,
	})
	main := module.NewID("/app/src/main.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if g.Len() != 4 {
		t.Errorf("Expected 4 modules, got %d", g.Len())
	}

	n, ok := g.Node(main)
	if !ok {
		t.Fatal("Expected main to be present")
	}
	if !n.Entry {
		t.Error("Expected main marked as entrypoint")
	}
	if len(n.Edges) != 2 {
		t.Fatalf("Expected 2 edges, got %d", len(n.Edges))
	}
	if n.Edges[0].To.Path != "/app/src/a.js" || n.Edges[1].To.Path != "/app/src/b.js" {
		t.Errorf("Expected edges in document order, got %v then %v", n.Edges[0].To, n.Edges[1].To)
	}

	deps := g.Dependents(module.NewID("/app/src/shared.js"))
	if len(deps) != 2 {
		t.Fatalf("Expected 2 dependents of shared, got %v", deps)
	}
	if deps[0].Path != "/app/src/a.js" || deps[1].Path != "/app/src/b.js" {
		t.Errorf("Expected sorted dependents a then b, got %v", deps)
	}
}

func TestEnsureVisitsEachModuleOnce(t *testing.T) {
	g, _, adapter := newTestGraph(t, map[string]string{
		"src/main.js":   `import "./a.js"; import "./b.js";`,
		"src/a.js":      `import "./shared.js";`,
		"src/b.js":      `import "./shared.js";`,
		"src/shared.js": `export const s = 1;`,
	})
	main := module.NewID("/app/src/main.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	shared := module.NewID("/app/src/shared.js")
	if got := adapter.count(shared); got != 1 {
		t.Errorf("Expected shared transformed once, got %d", got)
	}

	// A second ensure traverses clean nodes without rework.
	if err := g.Ensure(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	for _, path := range []string{"/app/src/main.js", "/app/src/a.js", "/app/src/b.js", "/app/src/shared.js"} {
		if got := adapter.count(module.NewID(path)); got != 1 {
			t.Errorf("Expected %s transformed once after re-ensure, got %d", path, got)
		}
	}
}

func TestEnsureConcurrentEntries(t *testing.T) {
	g, _, adapter := newTestGraph(t, map[string]string{
		"src/one.js":    `import "./shared.js"; export const one = 1;`,
		"src/two.js":    `import "./shared.js"; export const two = 2;`,
		"src/shared.js": `export const s = 1;`,
	})
	one := module.NewID("/app/src/one.js")
	two := module.NewID("/app/src/two.js")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Go(func() { errs[0] = g.EnsureEntry(context.Background(), one) })
	wg.Go(func() { errs[1] = g.EnsureEntry(context.Background(), two) })
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
	}

	if g.Len() != 3 {
		t.Errorf("Expected 3 modules, got %d", g.Len())
	}
	for _, path := range []string{"/app/src/one.js", "/app/src/two.js", "/app/src/shared.js"} {
		if got := adapter.count(module.NewID(path)); got != 1 {
			t.Errorf("Expected %s transformed once across concurrent walks, got %d", path, got)
		}
	}
	shared, ok := g.Node(module.NewID("/app/src/shared.js"))
	if !ok {
		t.Fatal("Expected shared to be present")
	}
	if shared.Generation != 1 {
		t.Errorf("Expected generation 1 after concurrent ensure, got %d", shared.Generation)
	}
}

func TestEnsureCycle(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/a.js": `import { b } from "./b.js"; export const a = 1;`,
		"src/b.js": `import { a } from "./a.js"; export const b = 2;`,
	})
	a := module.NewID("/app/src/a.js")
	b := module.NewID("/app/src/b.js")

	if err := g.Ensure(context.Background(), a); err != nil {
		t.Fatalf("Ensure failed on cycle: %v", err)
	}

	if g.Len() != 2 {
		t.Fatalf("Expected exactly 2 modules, got %d", g.Len())
	}
	na, _ := g.Node(a)
	nb, _ := g.Node(b)
	if len(na.Edges) != 1 || na.Edges[0].To != b {
		t.Errorf("Expected a -> b edge, got %v", na.Edges)
	}
	if len(nb.Edges) != 1 || nb.Edges[0].To != a {
		t.Errorf("Expected b -> a edge, got %v", nb.Edges)
	}
	if deps := g.Dependents(a); len(deps) != 1 || deps[0] != b {
		t.Errorf("Expected a's dependents [b], got %v", deps)
	}
}

func TestEnsureResolutionError(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./a.js";`,
		"src/a.js":    `import "./missing.js";`,
	})
	main := module.NewID("/app/src/main.js")

	err := g.EnsureEntry(context.Background(), main)
	if err == nil {
		t.Fatal("Expected unresolvable static import to fail")
	}

	var resErr *graph.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected ResolutionError, got %v", err)
	}
	if resErr.Specifier != "./missing.js" {
		t.Errorf("Expected specifier ./missing.js, got %s", resErr.Specifier)
	}
	if len(resErr.Chain) != 2 || resErr.Chain[0] != main {
		t.Errorf("Expected import chain from entrypoint, got %v", resErr.Chain)
	}
}

func TestEnsureDynamicImportDeferred(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js": `const load = () => import("./missing.js"); export { load };`,
	})
	main := module.NewID("/app/src/main.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Expected dynamic resolution failure to defer, got %v", err)
	}

	n, _ := g.Node(main)
	if len(n.Deferred) != 1 || n.Deferred[0].Specifier != "./missing.js" {
		t.Errorf("Expected one deferred dynamic import, got %v", n.Deferred)
	}
	if len(n.Edges) != 0 {
		t.Errorf("Expected no edges for failed dynamic import, got %v", n.Edges)
	}
}

func TestInvalidateSelfAcceptingBoundary(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./widget.js";`,
		"src/widget.js": `export function widget() {}
if (import.meta.hot) { import.meta.hot.accept(); }`,
	})
	main := module.NewID("/app/src/main.js")
	widget := module.NewID("/app/src/widget.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	b := g.Invalidate(widget)
	if b.NeedsFullReload {
		t.Error("Expected no full reload for a self-accepting module")
	}
	if len(b.Accepting) != 1 || b.Accepting[0] != widget {
		t.Errorf("Expected accepting [widget], got %v", b.Accepting)
	}
	if roots := b.Covers[widget]; len(roots) != 1 || roots[0] != widget {
		t.Errorf("Expected widget to cover itself, got %v", roots)
	}
	n, _ := g.Node(widget)
	if !n.Dirty {
		t.Error("Expected widget marked dirty")
	}
}

func TestInvalidateAcceptingParentBoundary(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./panel.js";`,
		"src/panel.js": `import { data } from "./data.js";
import.meta.hot.accept("./data.js", (mod) => { render(mod.data); });
export function render() {}`,
		"src/data.js": `export const data = [1, 2, 3];`,
	})
	main := module.NewID("/app/src/main.js")
	panel := module.NewID("/app/src/panel.js")
	data := module.NewID("/app/src/data.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	n, _ := g.Node(panel)
	if !n.Accepts(data) {
		t.Fatal("Expected panel to accept ./data.js updates")
	}

	b := g.Invalidate(data)
	if b.NeedsFullReload {
		t.Error("Expected no full reload when a parent accepts the change")
	}
	if len(b.Accepting) != 1 || b.Accepting[0] != panel {
		t.Errorf("Expected accepting [panel], got %v", b.Accepting)
	}
	if roots := b.Covers[panel]; len(roots) != 1 || roots[0] != data {
		t.Errorf("Expected panel to cover the data root, got %v", roots)
	}
}

func TestInvalidateReachesEntrypoint(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import { u } from "./util.js"; u();`,
		"src/util.js": `export const u = () => {};`,
	})
	main := module.NewID("/app/src/main.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	util := module.NewID("/app/src/util.js")
	b := g.Invalidate(util)
	if !b.NeedsFullReload {
		t.Error("Expected full reload when no ancestor accepts")
	}
	if len(b.Accepting) != 0 {
		t.Errorf("Expected no accepting modules, got %v", b.Accepting)
	}
	if len(b.ReloadRoots) != 1 || b.ReloadRoots[0] != util {
		t.Errorf("Expected util as the reload root, got %v", b.ReloadRoots)
	}
}

func TestRecomputeCodeOnlyChange(t *testing.T) {
	g, mfs, adapter := newTestGraph(t, map[string]string{
		"src/main.js": `import { u } from "./util.js";`,
		"src/util.js": `export const u = 1;`,
	})
	main := module.NewID("/app/src/main.js")
	util := module.NewID("/app/src/util.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	mfs.WriteFile("/app/src/util.js", []byte(`export const u = 2;`), 0o644)
	ids := g.InvalidatePath("/app/src/util.js")
	if len(ids) != 1 || ids[0] != util {
		t.Fatalf("Expected [util] for changed path, got %v", ids)
	}

	res, err := g.Recompute(context.Background(), g.Invalidate(ids...))
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(res.Changed) != 1 || res.Changed[0] != util {
		t.Errorf("Expected changed [util], got %v", res.Changed)
	}

	// A code-only change must not re-transform dependents.
	if got := adapter.count(main); got != 1 {
		t.Errorf("Expected main untouched by dependency edit, got %d transforms", got)
	}
	n, _ := g.Node(util)
	if n.Generation != 2 {
		t.Errorf("Expected generation 2 after rebuild, got %d", n.Generation)
	}
	if n.Dirty {
		t.Error("Expected dirty flag cleared after recompute")
	}
}

func TestRecomputeTouchOnlyWrite(t *testing.T) {
	g, mfs, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./util.js";`,
		"src/util.js": `export const u = 1;`,
	})
	main := module.NewID("/app/src/main.js")
	util := module.NewID("/app/src/util.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if err := mfs.Touch("/app/src/util.js"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	res, err := g.Recompute(context.Background(), g.Invalidate(util))
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if len(res.Changed) != 0 {
		t.Errorf("Expected no changes for touch-only write, got %v", res.Changed)
	}
	if len(res.Unchanged) != 1 || res.Unchanged[0] != util {
		t.Errorf("Expected unchanged [util], got %v", res.Unchanged)
	}
	n, _ := g.Node(util)
	if n.Generation != 1 {
		t.Errorf("Expected generation to stay at 1, got %d", n.Generation)
	}
	if n.Dirty {
		t.Error("Expected dirty flag cleared")
	}
}

func TestRecomputeEdgeChange(t *testing.T) {
	g, mfs, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./util.js";`,
		"src/util.js": `export const u = 1;`,
	})
	main := module.NewID("/app/src/main.js")
	util := module.NewID("/app/src/util.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	// The edit introduces a new import; recompute walks into it.
	mfs.WriteFile("/app/src/extra.js", []byte(`export const x = 1;`), 0o644)
	mfs.WriteFile("/app/src/util.js", []byte(`import { x } from "./extra.js"; export const u = x;`), 0o644)

	res, err := g.Recompute(context.Background(), g.Invalidate(util))
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(res.Changed) == 0 {
		t.Fatal("Expected util to change")
	}

	extra := module.NewID("/app/src/extra.js")
	if _, ok := g.Node(extra); !ok {
		t.Fatal("Expected new import target materialized")
	}
	if deps := g.Dependents(extra); len(deps) != 1 || deps[0] != util {
		t.Errorf("Expected extra's dependents [util], got %v", deps)
	}
}

func TestRecomputeErrorRecovery(t *testing.T) {
	g, mfs, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./util.js";`,
		"src/util.js": `export const u = 1;`,
	})
	main := module.NewID("/app/src/main.js")
	util := module.NewID("/app/src/util.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	mfs.WriteFile("/app/src/util.js", []byte(`import "./gone.js";`), 0o644)
	res, err := g.Recompute(context.Background(), g.Invalidate(util))
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if res.Errors[util] == nil {
		t.Fatal("Expected a per-module error for the broken edit")
	}
	n, _ := g.Node(util)
	if n.Err == nil {
		t.Error("Expected error recorded on the node")
	}
	if !n.Dirty {
		t.Error("Expected node to stay dirty until a successful rebuild")
	}

	// The rest of the graph is still intact.
	if _, ok := g.Node(main); !ok {
		t.Fatal("Expected main to survive a scoped failure")
	}

	// A successful edit clears the error state.
	mfs.WriteFile("/app/src/util.js", []byte(`export const u = 2;`), 0o644)
	res, err = g.Recompute(context.Background(), g.Invalidate(util))
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Expected no errors after fix, got %v", res.Errors)
	}
	n, _ = g.Node(util)
	if n.Err != nil || n.Dirty {
		t.Error("Expected error and dirty state cleared after fix")
	}
}

func TestCollectGarbage(t *testing.T) {
	g, mfs, _ := newTestGraph(t, map[string]string{
		"src/main.js": `import "./a.js"; import "./b.js";`,
		"src/a.js":    `import "./c.js";`,
		"src/b.js":    `export const b = 1;`,
		"src/c.js":    `export const c = 1;`,
	})
	main := module.NewID("/app/src/main.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if g.Len() != 4 {
		t.Fatalf("Expected 4 modules, got %d", g.Len())
	}

	// Dropping the a import orphans a and its private dependency c.
	mfs.WriteFile("/app/src/main.js", []byte(`import "./b.js";`), 0o644)
	if _, err := g.Recompute(context.Background(), g.Invalidate(main)); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	removed := g.CollectGarbage()
	if len(removed) != 2 {
		t.Fatalf("Expected 2 removals, got %v", removed)
	}
	if removed[0].Path != "/app/src/a.js" || removed[1].Path != "/app/src/c.js" {
		t.Errorf("Expected sorted removals [a, c], got %v", removed)
	}
	if g.Len() != 2 {
		t.Errorf("Expected 2 surviving modules, got %d", g.Len())
	}
	if deps := g.Dependents(module.NewID("/app/src/c.js")); len(deps) != 0 {
		t.Errorf("Expected no dependents left for removed module, got %v", deps)
	}
}

func TestVariantsShareAPath(t *testing.T) {
	g, _, _ := newTestGraph(t, map[string]string{
		"src/main.js":   `import theme from "./theme.css"; import raw from "./theme.css?inline";`,
		"src/theme.css": `body { margin: 0 }`,
	})
	main := module.NewID("/app/src/main.js")

	if err := g.EnsureEntry(context.Background(), main); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("Expected 3 modules (two css variants), got %d", g.Len())
	}

	ids := g.IDsForPath("/app/src/theme.css")
	if len(ids) != 2 {
		t.Fatalf("Expected both variants for the path, got %v", ids)
	}

	b := g.Invalidate(ids...)
	if len(b.Dirty) != 2 {
		t.Errorf("Expected both variants invalidated, got %v", b.Dirty)
	}
}
