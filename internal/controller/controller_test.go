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

package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kilnctl/internal/config"
	"kilnctl/internal/controller/safety"
	"kilnctl/internal/events"
	"kilnctl/internal/thermo"
	"kilnctl/pkg/eventbus"
)

type fakeActuator struct {
	mu      sync.Mutex
	outputs []float64
}

func (f *fakeActuator) SetOutput(output float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, output)
}

func (f *fakeActuator) last() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) == 0 {
		return -1
	}
	return f.outputs[len(f.outputs)-1]
}

func startService(t *testing.T) (*Service, *fakeActuator, *eventbus.Bus, context.CancelFunc) {
	t.Helper()
	conf := config.Default()
	conf.EventBus = eventbus.New()

	act := &fakeActuator{}
	svc := New(conf, NewLoop(thermo.Constant(22, 22), time.Now()), act)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		conf.EventBus.Close()
	})
	return svc, act, conf.EventBus, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServiceCommands(t *testing.T) {
	svc, act, _, _ := startService(t)
	ctx := context.Background()

	if err := svc.Submit(ctx, Start()); ReasonOf(err) != ReasonNoSetpoint {
		t.Errorf("start without setpoint: got %v", err)
	}
	if err := svc.Submit(ctx, SetSetpoint(200)); err != nil {
		t.Fatalf("setpoint: %v", err)
	}
	if err := svc.Submit(ctx, Start()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "heating output", func() bool {
		st := svc.Status()
		return st.State == safety.Heating && st.Output > 0 && act.last() > 0
	})

	if err := svc.Submit(ctx, SetSetpoint(500)); ReasonOf(err) != ReasonHeatingActive {
		t.Errorf("setpoint while heating: got %v", err)
	}

	if err := svc.Submit(ctx, Stop()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st := svc.Status()
	if st.State != safety.Ready || st.Output != 0 {
		t.Errorf("after stop: state %v output %v", st.State, st.Output)
	}
	if act.last() != 0 {
		t.Errorf("actuator still driven: %v", act.last())
	}
}

func TestServicePublishes(t *testing.T) {
	svc, _, bus, _ := startService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	statusCh, unsub := bus.Subscribe(ctx, events.TopicStatus, true)
	defer unsub()
	eventsCh, unsubEv := bus.Subscribe(ctx, events.TopicEvents, false)
	defer unsubEv()

	select {
	case ev := <-statusCh:
		if _, ok := ev.(Status); !ok {
			t.Fatalf("status topic carried %T", ev)
		}
	case <-ctx.Done():
		t.Fatal("no status published")
	}

	if err := svc.Submit(ctx, EmergencyStop()); err != nil {
		t.Fatalf("emergency: %v", err)
	}
	select {
	case ev := <-eventsCh:
		evs, ok := ev.([]events.Event)
		if !ok || len(evs) == 0 || evs[0].Kind != events.KindEmergency {
			t.Errorf("events: got %#v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event published")
	}
	if !svc.Status().Emergency {
		t.Error("status not updated after emergency")
	}
}

func TestSubmitHonoursContext(t *testing.T) {
	conf := config.Default()
	svc := New(conf, NewLoop(thermo.Constant(22, 22), time.Now()), &fakeActuator{})

	// fill the queue, nothing is draining it
	for range commandQueueSize {
		svc.cmds <- request{cmd: Stop(), reply: make(chan error, 1)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Submit(ctx, Stop()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestStatusGetData(t *testing.T) {
	l := NewLoop(thermo.Constant(100, 110), t0)
	l.Tick(t0)
	data := l.Status(t0).GetData()
	if data["kiln_avg_temp"] != 105 || data["kiln_temp2"] != 110 {
		t.Errorf("got %v", data)
	}
	if _, ok := data["kiln_segment"]; ok {
		t.Error("segment reported without an active schedule")
	}
}
