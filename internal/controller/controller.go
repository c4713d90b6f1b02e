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
	"sync"
	"time"

	"kilnctl/internal/config"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/events"
	"kilnctl/pkg/eventbus"
	"kilnctl/pkg/logger"
)

const (
	DefaultTickPeriod = 10 * time.Millisecond
	commandQueueSize  = 16
)

// Actuator receives the heater command after every change, see ssr.
type Actuator interface {
	SetOutput(output float64)
}

type request struct {
	cmd   Command
	reply chan error
}

// Service owns the Loop. Ticks and commands run on the Run goroutine
// only, everything else reads the published Status copy.
type Service struct {
	loop     *Loop
	bus      *eventbus.Bus
	actuator Actuator
	cmds     chan request

	tickPeriod time.Duration
	lastOutput float64

	mu     sync.RWMutex
	status Status

	log *logger.Logger
}

func New(conf *config.Config, loop *Loop, actuator Actuator) *Service {
	return &Service{
		loop:       loop,
		bus:        conf.EventBus,
		actuator:   actuator,
		cmds:       make(chan request, commandQueueSize),
		tickPeriod: DefaultTickPeriod,
		status:     loop.Status(time.Now()),
		log:        logger.New("Controller"),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")

	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()
	defer s.actuator.SetOutput(0)

	s.tick(time.Now())

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			s.tick(now)

		case req := <-s.cmds:
			now := time.Now()
			err := s.loop.Apply(now, req.cmd)
			req.reply <- err
			if err != nil {
				s.log.Info("%v", err)
				continue
			}
			s.log.Debug("applied %s", req.cmd.Action)
			s.actuate()
			s.publish(now)
		}
	}
}

func (s *Service) tick(now time.Time) {
	res := s.loop.Tick(now)
	s.actuate()
	if res.Sampled {
		s.publish(now)
	} else {
		s.flushEvents()
	}
}

func (s *Service) actuate() {
	out := s.loop.Output()
	if out == s.lastOutput {
		return
	}
	s.lastOutput = out
	s.actuator.SetOutput(out)
}

func (s *Service) publish(now time.Time) {
	st := s.loop.Status(now)
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.TopicStatus, st)
	}
	s.flushEvents()
}

func (s *Service) flushEvents() {
	evs := s.loop.TakeEvents()
	if len(evs) == 0 || s.bus == nil {
		return
	}
	s.bus.Publish(events.TopicEvents, evs)
}

// Submit queues cmd for the control goroutine and waits for the result.
// A rejected command returns a *RejectError.
func (s *Service) Submit(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case s.cmds <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the last published snapshot.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Presets are fixed at construction.
func (s *Service) Presets() []schedule.Preset {
	return s.loop.Presets()
}

// GetData feeds the data logger.
func (s *Service) GetData() map[string]float64 {
	return s.Status().GetData()
}
