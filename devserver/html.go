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
	"bytes"
	"net/http"
	"path"
	"strings"

	"golang.org/x/net/html"

	"bennypowers.dev/grafo/module"
)

// serveHTML serves a page with the hot-update client injected. Module
// scripts on the page register as graph entries, so the watcher and the
// full-reload boundary know about them before the browser requests them.
func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, p string) {
	data, err := s.fsys.ReadFile(path.Join(s.root, p))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	for _, src := range moduleScriptSrcs(data) {
		id, ok := s.pageModuleID(p, src)
		if !ok {
			continue
		}
		if err := s.graph.EnsureEntry(r.Context(), id); err != nil {
			s.logger.Warning("page %s entry %s: %v", p, src, err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(injectClient(data))
}

// injectClient inserts the hot-update client script before </head>,
// falling back to </body>, appending when the page has neither. Raw token
// bytes pass through unchanged so the page keeps its exact markup.
func injectClient(doc []byte) []byte {
	snippet := []byte(`<script type="module" src="` + clientPath + `"></script>`)
	var buf bytes.Buffer
	buf.Grow(len(doc) + len(snippet))
	z := html.NewTokenizer(bytes.NewReader(doc))
	injected := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if !injected && tt == html.EndTagToken {
			name, _ := z.TagName()
			tag := string(name)
			if tag == "head" || tag == "body" {
				buf.Write(snippet)
				injected = true
			}
		}
		buf.Write(z.Raw())
	}
	if !injected {
		buf.Write(snippet)
	}
	return buf.Bytes()
}

// moduleScriptSrcs collects the src attributes of module scripts on a
// page.
func moduleScriptSrcs(doc []byte) []string {
	var srcs []string
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return srcs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "script" || !hasAttr {
			continue
		}
		var typ, src string
		for {
			k, v, more := z.TagAttr()
			switch string(k) {
			case "type":
				typ = string(v)
			case "src":
				src = string(v)
			}
			if !more {
				break
			}
		}
		if typ == "module" && src != "" {
			srcs = append(srcs, src)
		}
	}
}

// pageModuleID maps a script src on a page to a module id. Remote scripts
// and non-scriptable targets stay out of the graph.
func (s *Server) pageModuleID(pagePath, src string) (module.ID, bool) {
	if strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "//") {
		return module.ID{}, false
	}
	web := src
	if !strings.HasPrefix(web, "/") {
		web = path.Join(path.Dir(pagePath), web)
	}
	id := module.IDFromWebPath(s.root, web)
	if !id.Kind().Scriptable() {
		return module.ID{}, false
	}
	return id, true
}
