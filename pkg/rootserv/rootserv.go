// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rootserv

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"kilnctl/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// RootServer holds a mux and the list of attached sub-handlers.
type RootServer struct {
	log  *logger.Logger
	addr string
	mux  *http.ServeMux

	mu         sync.RWMutex
	subservers map[string]string // path -> description
	mainPage   http.Handler      // optional subserver for '/'
}

// New creates a new RootServer bound to an address.
func New(addr string) *RootServer {
	ms := &RootServer{
		addr:       addr,
		mux:        http.NewServeMux(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
	ms.mux.HandleFunc("/index", ms.handleIndex)
	ms.mux.HandleFunc("/", ms.handleRoot)
	return ms
}

// Attach registers a new subserver under a path.
// If path == "/", it becomes the main page and can handle its own subpaths.
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	ms.log.Info("Attach: %s", path)

	if path == "/" {
		ms.mu.Lock()
		ms.mainPage = handler
		ms.mu.Unlock()
		return
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	strip := strings.TrimRight(path, "/")

	ms.mu.Lock()
	ms.subservers[strip] = desc
	ms.mu.Unlock()

	// the subserver sees paths relative to its mount point
	ms.mux.Handle(strip+"/", http.StripPrefix(strip, handler))
}

// Handler exposes the mux, for tests.
func (ms *RootServer) Handler() http.Handler {
	return ms.mux
}

// handleRoot delegates to the main page, or the index when none is set.
func (ms *RootServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	ms.mu.RLock()
	main := ms.mainPage
	ms.mu.RUnlock()

	if main != nil {
		main.ServeHTTP(w, r)
		return
	}
	http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
}

// handleIndex generates the HTML index page listing all subservers.
func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	fmt.Fprintln(w, "<!DOCTYPE html><html><head><title>Kiln Controller</title></head><body>")
	fmt.Fprintln(w, "<h1>Available Sub-Servers</h1><ul>")

	ms.mu.RLock()
	paths := make([]string, 0, len(ms.subservers))
	for path := range ms.subservers {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Fprintf(w, `<li><a href="%s/">%s</a> - %s</li>`, path, path, ms.subservers[path])
	}
	ms.mu.RUnlock()

	fmt.Fprintln(w, "</ul></body></html>")
}

// Run starts serving and blocks until the context is canceled.
func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("Running on %s", ms.addr)

	srv := &http.Server{
		Addr:              ms.addr,
		Handler:           ms.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		ms.log.Info("Stopped")
	case err := <-errCh:
		ms.log.Error("Stopped: %T %+v", err, err)
	}
}
