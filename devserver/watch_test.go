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
package devserver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bennypowers.dev/grafo/testutil"
)

type stubConn struct {
	mu      sync.Mutex
	frames  int
	closed  bool
	closeCh chan struct{}
}

func newStubConn() *stubConn {
	return &stubConn{closeCh: make(chan struct{})}
}

func (c *stubConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return nil
}

func (c *stubConn) ReadMessage() (int, []byte, error) {
	<-c.closeCh
	return 0, nil, errors.New("connection closed")
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *stubConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func TestWatchLoopAppliesEdits(t *testing.T) {
	mfs := testutil.ProjectFS(t, "/app", map[string]string{
		"src/main.js": `import { u } from "./util.js";
export const m = u;`,
		"src/util.js": `export const u = 1;`,
	})
	s := New(mfs, "/app").
		WithEntrypoints(map[string]string{"main": "src/main.js"}).
		WithDebounce(time.Millisecond).
		WithPollInterval(2 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.EnsureEntrypoints(ctx); err != nil {
		t.Fatalf("EnsureEntrypoints failed: %v", err)
	}
	conn := newStubConn()
	if _, err := s.hub.Register(conn, 0); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	go s.watchLoop(ctx)

	// Give the first tick a chance to seed the mtime table.
	time.Sleep(20 * time.Millisecond)
	mfs.WriteFile("/app/src/util.js", []byte(`export const u = 2;`), 0o644)

	deadline := time.Now().Add(2 * time.Second)
	for conn.frameCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if conn.frameCount() < 2 {
		t.Error("Expected an update frame after the edit")
	}
}

func TestWatchLoopCoalescesEdits(t *testing.T) {
	mfs := testutil.ProjectFS(t, "/app", map[string]string{
		"src/main.js": `import { u } from "./util.js";
export const m = u;`,
		"src/util.js": `export const u = 1;`,
	})
	s := New(mfs, "/app").
		WithEntrypoints(map[string]string{"main": "src/main.js"}).
		WithDebounce(100 * time.Millisecond).
		WithPollInterval(2 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.EnsureEntrypoints(ctx); err != nil {
		t.Fatalf("EnsureEntrypoints failed: %v", err)
	}
	conn := newStubConn()
	if _, err := s.hub.Register(conn, 0); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	go s.watchLoop(ctx)

	// Give the first tick a chance to seed the mtime table.
	time.Sleep(20 * time.Millisecond)

	// Two edits inside one debounce window coalesce into a single batch.
	mfs.WriteFile("/app/src/util.js", []byte(`export const u = 2;`), 0o644)
	time.Sleep(10 * time.Millisecond)
	mfs.WriteFile("/app/src/util.js", []byte(`export const u = 3;`), 0o644)

	deadline := time.Now().Add(2 * time.Second)
	for conn.frameCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if conn.frameCount() < 2 {
		t.Fatal("Expected an update frame after the edits")
	}

	// No further batch may arrive once the window has flushed.
	time.Sleep(300 * time.Millisecond)
	if got := conn.frameCount(); got != 2 {
		t.Errorf("Expected exactly 1 update frame after the greeting, got %d frames", got)
	}
}

func TestWatchedPathsDeduplicatesVariants(t *testing.T) {
	mfs := testutil.ProjectFS(t, "/app", map[string]string{
		"src/main.js": `import "./theme.css";
import inlined from "./theme.css?inline";
export { inlined };`,
		"src/theme.css": `body { color: red }`,
	})
	s := New(mfs, "/app").
		WithEntrypoints(map[string]string{"main": "src/main.js"})

	if err := s.EnsureEntrypoints(context.Background()); err != nil {
		t.Fatalf("EnsureEntrypoints failed: %v", err)
	}
	if s.graph.Len() != 3 {
		t.Fatalf("Expected 3 graph nodes across both css variants, got %d", s.graph.Len())
	}

	paths := s.watchedPaths()
	seen := make(map[string]int)
	for _, p := range paths {
		seen[p]++
	}
	if seen["/app/src/theme.css"] != 1 {
		t.Errorf("Expected the variants' backing file watched once, got %d", seen["/app/src/theme.css"])
	}
	if seen["/app/src/main.js"] != 1 {
		t.Errorf("Expected the entry watched once, got %d", seen["/app/src/main.js"])
	}
}
