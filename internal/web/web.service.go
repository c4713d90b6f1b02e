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

// Package web serves the kiln dashboard, the JSON control API and a
// websocket that pushes status as it changes.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"kilnctl/internal/config"
	"kilnctl/internal/controller"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/events"
	"kilnctl/pkg/eventbus"
	"kilnctl/pkg/logger"

	"github.com/gorilla/websocket"
)

//go:embed www
var assets embed.FS

const commandTimeout = 2 * time.Second

// Kiln is the controller as seen by the web layer.
type Kiln interface {
	Submit(ctx context.Context, cmd controller.Command) error
	Status() controller.Status
	Presets() []schedule.Preset
}

// wsMessage is pushed to websocket clients, either a status or the
// result of a command the client sent.
type wsMessage struct {
	Type   string             `json:"type"`
	Status *controller.Status `json:"status,omitempty"`
	Result *ControlResult     `json:"result,omitempty"`
}

type ClientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func newClientSync() *ClientSync {
	return &ClientSync{clients: make(map[*websocket.Conn]bool)}
}

func (c *ClientSync) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Debug("dropping client: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

// send writes to one client. Writes share the broadcast lock since a
// websocket connection allows only one concurrent writer.
func (c *ClientSync) send(ws *websocket.Conn, v any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return ws.WriteJSON(v)
}

func (c *ClientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *ClientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *ClientSync) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

func (c *ClientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

type Server struct {
	kiln    Kiln
	bus     *eventbus.Bus
	clients *ClientSync
	log     *logger.Logger

	httpHandler http.Handler
}

func New(conf *config.Config, kiln Kiln) *Server {
	s := &Server{
		kiln:    kiln,
		bus:     conf.EventBus,
		clients: newClientSync(),
		log:     logger.New("KilnWeb"),
	}
	s.httpHandler = s.buildHTTPHandler()
	return s
}

// Run pushes every published status to the websocket clients.
func (s *Server) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")
	defer s.clients.closeAll()

	statusCh, unsub := s.bus.Subscribe(ctx, events.TopicStatus, true)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-statusCh:
			if !ok {
				return
			}
			st, ok := ev.(controller.Status)
			if !ok || s.clients.count() == 0 {
				continue
			}
			s.broadcast(st)
		}
	}
}

func (s *Server) broadcast(st controller.Status) {
	data, err := json.Marshal(wsMessage{Type: "status", Status: &st})
	if err != nil {
		s.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		s.log.Error("failed to prepare message: %v", err)
		return
	}
	s.clients.broadcast(pm, s.log)
}

func (s *Server) buildHTTPHandler() http.Handler {
	www, err := fs.Sub(assets, "www")
	if err != nil {
		s.log.Fatal("embedded assets: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/control", s.handleControl)
	mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	mux.HandleFunc("/ws", s.serveWebSockets())
	mux.Handle("/", http.FileServerFS(www))
	return mux
}

func (s *Server) serveWebSockets() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			s.log.Debug("checking origin: %s", r.Header.Get("Origin"))
			return sameOrigin(r, false)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Error("failed to upgrade websocket: %v", err)
			return
		}
		s.clients.add(ws)
		defer func() {
			s.clients.remove(ws)
			ws.Close()
		}()

		st := s.kiln.Status()
		if err := s.clients.send(ws, wsMessage{Type: "status", Status: &st}); err != nil {
			return
		}

		for {
			var cmd controller.Command
			if err := ws.ReadJSON(&cmd); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debug("ws ReadJSON: %v", err)
				}
				return
			}
			res, _ := s.submit(r.Context(), cmd)
			if err := s.clients.send(ws, wsMessage{Type: "result", Result: &res}); err != nil {
				return
			}
		}
	}
}

// sameOrigin reports whether the Origin header, or the Referer when
// there is none, names this server's host exactly. Requests carrying
// neither are allowed only when allowMissing is set, which lets
// non-browser clients such as curl through.
func sameOrigin(r *http.Request, allowMissing bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Referer()
	}
	if origin == "" {
		return allowMissing
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpHandler.ServeHTTP(w, r)
}
