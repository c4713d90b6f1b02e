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

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"kilnctl/internal/config"
	"kilnctl/internal/controller"
	"kilnctl/internal/controller/safety"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/events"
	"kilnctl/pkg/eventbus"

	"github.com/gorilla/websocket"
)

type fakeKiln struct {
	mu     sync.Mutex
	status controller.Status
	cmds   []controller.Command
	err    error
}

func (f *fakeKiln) Submit(ctx context.Context, cmd controller.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func (f *fakeKiln) Status() controller.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeKiln) Presets() []schedule.Preset {
	return schedule.DefaultPresets()
}

func (f *fakeKiln) last() controller.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cmds) == 0 {
		return controller.Command{}
	}
	return f.cmds[len(f.cmds)-1]
}

func newTestServer(t *testing.T, kiln *fakeKiln) (*Server, *eventbus.Bus) {
	t.Helper()
	conf := config.Default()
	conf.EventBus = eventbus.New()
	t.Cleanup(conf.EventBus.Close)
	return New(conf, kiln), conf.EventBus
}

func postControl(t *testing.T, s *Server, form url.Values) (*httptest.ResponseRecorder, ControlResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var res ControlResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, res
}

func TestStatusEndpoint(t *testing.T) {
	kiln := &fakeKiln{status: controller.Status{Temp1: 812.5, Temp2: 808, State: safety.Heating, Setpoint: 900}}
	s, _ := newTestServer(t, kiln)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["state"] != "heating" || got["temp1"] != 812.5 || got["setpoint"] != 900.0 {
		t.Errorf("unexpected status: %v", got)
	}
}

func TestControlParsesActions(t *testing.T) {
	tests := []struct {
		form url.Values
		want controller.Command
	}{
		{url.Values{"action": {"start"}}, controller.Start()},
		{url.Values{"action": {"stop"}}, controller.Stop()},
		{url.Values{"action": {"emergency"}}, controller.EmergencyStop()},
		{url.Values{"action": {"reset"}}, controller.Reset()},
		{url.Values{"action": {"settemp"}, "value": {"950"}}, controller.SetSetpoint(950)},
		{url.Values{"action": {"schedule"}, "index": {"1"}}, controller.SelectSchedule(1)},
	}

	for _, tt := range tests {
		kiln := &fakeKiln{}
		s, _ := newTestServer(t, kiln)
		rec, res := postControl(t, s, tt.form)
		if rec.Code != http.StatusOK || !res.Success {
			t.Errorf("%v: code=%d result=%+v", tt.form, rec.Code, res)
			continue
		}
		if got := kiln.last(); got != tt.want {
			t.Errorf("%v: submitted %+v, want %+v", tt.form, got, tt.want)
		}
	}
}

func TestControlBadInput(t *testing.T) {
	tests := []struct {
		form   url.Values
		reason string
	}{
		{url.Values{"action": {"settemp"}, "value": {"hot"}}, controller.ReasonOutOfRange},
		{url.Values{"action": {"schedule"}, "index": {"first"}}, controller.ReasonInvalidIndex},
		{url.Values{"action": {"preheat"}}, controller.ReasonUnknownCommand},
	}

	for _, tt := range tests {
		kiln := &fakeKiln{}
		s, _ := newTestServer(t, kiln)
		rec, res := postControl(t, s, tt.form)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%v: code %d, want 400", tt.form, rec.Code)
		}
		if res.Success || res.Reason != tt.reason {
			t.Errorf("%v: got %+v, want reason %s", tt.form, res, tt.reason)
		}
		if len(kiln.cmds) != 0 {
			t.Errorf("%v: bad input reached the controller", tt.form)
		}
	}
}

func TestControlRejected(t *testing.T) {
	kiln := &fakeKiln{err: &controller.RejectError{Action: controller.ActionStart, Reason: controller.ReasonNoSetpoint}}
	s, _ := newTestServer(t, kiln)

	rec, res := postControl(t, s, url.Values{"action": {"start"}})
	if rec.Code != http.StatusConflict {
		t.Errorf("code %d, want 409", rec.Code)
	}
	if res.Success || res.Reason != controller.ReasonNoSetpoint {
		t.Errorf("got %+v", res)
	}
}

func TestControlUnavailable(t *testing.T) {
	kiln := &fakeKiln{err: context.DeadlineExceeded}
	s, _ := newTestServer(t, kiln)

	rec, res := postControl(t, s, url.Values{"action": {"stop"}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code %d, want 503", rec.Code)
	}
	if res.Reason != controller.ReasonUnavailable {
		t.Errorf("reason %q", res.Reason)
	}
}

func TestSchedulesEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeKiln{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedules", nil))

	var got []schedule.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(schedule.DefaultPresets()) {
		t.Fatalf("got %d summaries", len(got))
	}
	if got[0].Name != "Bisque Fire" || got[0].DurationMinutes != 418 {
		t.Errorf("first summary: %+v", got[0])
	}
}

func TestControlSchedulesAction(t *testing.T) {
	s, _ := newTestServer(t, &fakeKiln{})

	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader("action=schedules"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var got struct {
		Success   bool               `json:"success"`
		Schedules []schedule.Summary `json:"schedules"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if !got.Success || len(got.Schedules) != len(schedule.DefaultPresets()) {
		t.Fatalf("got %+v", got)
	}
	if got.Schedules[2].Name != "Test Fire" || got.Schedules[2].Index != 2 {
		t.Errorf("third schedule: %+v", got.Schedules[2])
	}
}

func TestControlOrigin(t *testing.T) {
	tests := []struct {
		header string
		value  string
		want   int
	}{
		{"", "", http.StatusOK},
		{"Origin", "http://example.com", http.StatusOK},
		{"Referer", "http://example.com/", http.StatusOK},
		{"Origin", "http://localhost.attacker.example", http.StatusForbidden},
		{"Origin", "http://example.com.attacker.example", http.StatusForbidden},
		{"Referer", "http://attacker.example/example.com", http.StatusForbidden},
		{"Origin", "null", http.StatusForbidden},
	}

	for _, tt := range tests {
		kiln := &fakeKiln{}
		s, _ := newTestServer(t, kiln)

		req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader("action=start"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if tt.header != "" {
			req.Header.Set(tt.header, tt.value)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%s %q: code %d, want %d", tt.header, tt.value, rec.Code, tt.want)
		}
		if submitted := len(kiln.cmds) > 0; submitted != (tt.want == http.StatusOK) {
			t.Errorf("%s %q: submitted=%v", tt.header, tt.value, submitted)
		}
	}
}

func TestIndexServed(t *testing.T) {
	s, _ := newTestServer(t, &fakeKiln{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Kiln Controller") {
		t.Errorf("index: code %d", rec.Code)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {srv.URL}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func TestWebSocketCommands(t *testing.T) {
	kiln := &fakeKiln{status: controller.Status{Temp1: 21}}
	s, _ := newTestServer(t, kiln)
	srv := httptest.NewServer(s)
	defer srv.Close()

	ws := dial(t, srv)

	var msg wsMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "status" || msg.Status == nil || msg.Status.Temp1 != 21 {
		t.Fatalf("first message: %+v", msg)
	}

	if err := ws.WriteJSON(controller.SetSetpoint(600)); err != nil {
		t.Fatal(err)
	}
	msg = wsMessage{}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "result" || msg.Result == nil || !msg.Result.Success {
		t.Fatalf("result message: %+v", msg)
	}
	if got := kiln.last(); got != controller.SetSetpoint(600) {
		t.Errorf("submitted %+v", got)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	s, bus := newTestServer(t, &fakeKiln{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ws := dial(t, srv)
	var msg wsMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}

	bus.Publish(events.TopicStatus, controller.Status{Temp1: 455, State: safety.Heating})

	msg = wsMessage{}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "status" || msg.Status.Temp1 != 455 || msg.Status.State != safety.Heating {
		t.Errorf("broadcast: %+v", msg)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	kiln := &fakeKiln{}
	s, _ := newTestServer(t, kiln)
	srv := httptest.NewServer(s)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	for _, origin := range []string{
		"http://evil.example.com",
		"http://localhost.attacker.example",
		srv.URL + ".attacker.example",
	} {
		ws, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {origin}})
		if err == nil {
			ws.WriteJSON(controller.Start())
			ws.Close()
			t.Errorf("%s: handshake accepted", origin)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %v", origin, resp)
		}
	}
	if len(kiln.cmds) != 0 {
		t.Errorf("foreign origin reached the controller: %+v", kiln.cmds)
	}
}
