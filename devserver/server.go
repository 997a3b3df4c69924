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

// Package devserver serves a project's modules transformed on demand and
// pushes hot updates to connected pages over a websocket.
package devserver

import (
	"context"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"lukechampine.com/blake3"

	"bennypowers.dev/grafo/fs"
	"bennypowers.dev/grafo/graph"
	"bennypowers.dev/grafo/hmr"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/plugin"
	"bennypowers.dev/grafo/resolver"
	"bennypowers.dev/grafo/transform"
)

// Logger receives diagnostic messages from the dev server.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warning(format string, args ...any) {}
func (noopLogger) Debug(format string, args ...any)   {}

const (
	// wsPath is where pages open their hot-update connection.
	wsPath = "/__grafo__/hmr"
	// clientPath serves the embedded browser runtime.
	clientPath = "/__grafo__/client.js"
)

//go:embed client.js
var clientJS []byte

// Server is one dev session: an incrementally maintained module graph, an
// HTTP surface serving its nodes, and a hub pushing update batches to
// connected pages.
type Server struct {
	fsys       fs.FileSystem
	root       string
	logger     Logger
	plugins    *plugin.Registry
	conditions []string
	workers    int
	addr       string

	entrypoints map[string]string
	debounce    time.Duration
	poll        time.Duration

	initOnce sync.Once
	graph    *graph.Graph
	engine   *hmr.Engine
	hub      *hmr.Hub

	upgrader websocket.Upgrader
	srv      *http.Server
}

// New creates a dev server rooted at the given project directory.
func New(fsys fs.FileSystem, root string) *Server {
	return &Server{
		fsys:     fsys,
		root:     root,
		logger:   noopLogger{},
		addr:     "localhost:8080",
		debounce: 100 * time.Millisecond,
		poll:     100 * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}
}

// WithLogger returns the server using the given logger.
func (s *Server) WithLogger(l Logger) *Server {
	s.logger = l
	return s
}

// WithPlugins returns the server with a plugin registry wired into
// resolution and transformation.
func (s *Server) WithPlugins(reg *plugin.Registry) *Server {
	s.plugins = reg
	return s
}

// WithConditions returns the server resolving package exports with the
// given conditions.
func (s *Server) WithConditions(conditions []string) *Server {
	s.conditions = conditions
	return s
}

// WithWorkers returns the server using n graph workers.
func (s *Server) WithWorkers(n int) *Server {
	s.workers = n
	return s
}

// WithAddr returns the server listening on addr.
func (s *Server) WithAddr(addr string) *Server {
	s.addr = addr
	return s
}

// WithEntrypoints returns the server with named entry modules, paths
// relative to the project root. Entrypoints anchor full-reload decisions
// and are built eagerly on startup.
func (s *Server) WithEntrypoints(entries map[string]string) *Server {
	s.entrypoints = entries
	return s
}

// WithDebounce returns the server coalescing file changes for d before
// rebuilding.
func (s *Server) WithDebounce(d time.Duration) *Server {
	if d > 0 {
		s.debounce = d
	}
	return s
}

// WithPollInterval returns the server scanning for file changes every d.
func (s *Server) WithPollInterval(d time.Duration) *Server {
	if d > 0 {
		s.poll = d
	}
	return s
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		res := resolver.New(s.fsys, s.root)
		if len(s.conditions) > 0 {
			res = res.WithConditions(s.conditions)
		}
		pipe := transform.New(s.fsys, s.root)
		if s.plugins != nil {
			res = res.WithPlugins(s.plugins)
			pipe = pipe.WithPlugins(s.plugins)
		}
		s.graph = graph.New(res, pipe).
			WithLogger(s.logger).
			WithWorkers(s.workers)
		s.engine = hmr.NewEngine(s.root).WithLogger(s.logger)
		s.hub = hmr.NewHub().WithLogger(s.logger)
	})
}

// Graph exposes the session's module graph.
func (s *Server) Graph() *graph.Graph {
	s.init()
	return s.graph
}

// Hub exposes the session's connection hub.
func (s *Server) Hub() *hmr.Hub {
	s.init()
	return s.hub
}

// EnsureEntrypoints builds the configured entry modules. Failures are
// fatal here: a dev session that cannot build its entrypoints has nothing
// to serve.
func (s *Server) EnsureEntrypoints(ctx context.Context) error {
	s.init()
	names := make([]string, 0, len(s.entrypoints))
	for name := range s.entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := s.entrypoints[name]
		if !strings.HasPrefix(p, "/") {
			p = path.Join(s.root, p)
		}
		if err := s.graph.EnsureEntry(ctx, module.NewID(p)); err != nil {
			return fmt.Errorf("entrypoint %s: %w", name, err)
		}
	}
	return nil
}

// Start builds the entrypoints, starts the file watcher, and serves HTTP
// until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.init()
	if err := s.EnsureEntrypoints(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchLoop(runCtx)

	s.srv = &http.Server{Addr: s.addr, Handler: s}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warning("shutdown: %v", err)
		}
		s.hub.Close()
	}()

	s.logger.Debug("dev server listening on %s", s.addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeHTTP routes requests: the hot-update websocket and client runtime
// under /__grafo__/, HTML documents with the client injected, graph
// modules transformed and rewritten, and everything else as static files.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.init()
	p := r.URL.Path
	switch p {
	case wsPath:
		s.serveWS(w, r)
		return
	case clientPath:
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(clientJS)
		return
	}

	if p == "/" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}

	switch {
	case module.KindForPath(p) == module.KindHTML:
		s.serveHTML(w, r, p)
	case s.isModuleRequest(p, r.URL.RawQuery):
		s.serveModule(w, r, p)
	default:
		s.serveStatic(w, r, p)
	}
}

// isModuleRequest reports whether a request should go through the module
// pipeline. Assets pass through raw unless a variant tag asks for module
// treatment.
func (s *Server) isModuleRequest(p, rawQuery string) bool {
	if strings.HasPrefix(p, "/@id/") {
		return true
	}
	if module.KindForPath(p) != module.KindAsset {
		return true
	}
	variant, _ := splitBustParam(rawQuery)
	return variant != ""
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warning("websocket upgrade failed: %v", err)
		return
	}
	session, err := s.hub.Register(conn, s.engine.Seq())
	if err != nil {
		conn.Close()
		return
	}
	// The handler goroutine is the read loop; it returns on disconnect.
	s.hub.ReadLoop(session)
}

// serveModule ensures the requested module and serves its code with import
// specifiers rewritten to dev URLs and a hot context preamble for
// scriptable sources.
func (s *Server) serveModule(w http.ResponseWriter, r *http.Request, p string) {
	variant, _ := splitBustParam(r.URL.RawQuery)
	web := p
	if variant != "" {
		web += "?" + variant
	}
	id := module.IDFromWebPath(s.root, web)

	if err := s.graph.Ensure(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n, ok := s.graph.Node(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if n.Err != nil {
		http.Error(w, n.Err.Error(), http.StatusInternalServerError)
		return
	}

	code := s.rewriteImports(n)
	if id.Kind().Scriptable() {
		code = append(hotPreamble(module.WebPath(s.root, id)), code...)
	}

	sum := blake3.Sum256(code)
	etag := `W/"` + hex.EncodeToString(sum[:8]) + `"`
	w.Header().Set("Etag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(code)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, p string) {
	data, err := s.fsys.ReadFile(path.Join(s.root, p))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", http.DetectContentType(data))
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// splitBustParam strips the cache-busting "v" parameter from a raw query,
// returning the remaining variant tag and the stripped value. Variants are
// opaque tags, not key-value pairs, so this works on raw segments.
func splitBustParam(rawQuery string) (variant, bust string) {
	if rawQuery == "" {
		return "", ""
	}
	var kept []string
	for _, seg := range strings.Split(rawQuery, "&") {
		if v, ok := strings.CutPrefix(seg, "v="); ok {
			bust = v
			continue
		}
		if seg != "" {
			kept = append(kept, seg)
		}
	}
	return strings.Join(kept, "&"), bust
}
