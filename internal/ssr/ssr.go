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

// Package ssr drives the heater solid state relay with time
// proportioning: within each window the relay is on for output/255 of
// the window.
package ssr

import (
	"context"
	"time"

	"kilnctl/pkg/logger"
)

const DefaultWindow = 2 * time.Second

// Actuator is a callback to switch the relay
type Actuator func(on bool) error

// Discard accepts every switch, for running without a relay.
func Discard(on bool) error { return nil }

// Controller turns a 0..255 heater command into relay on/off time
type Controller struct {
	actuate Actuator
	window  time.Duration

	output      float64
	on          bool
	synced      bool // relay known to match 'on'
	windowStart time.Time
	updateCh    chan float64

	log *logger.Logger
}

func NewActuator(actuate Actuator, window time.Duration) *Controller {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Controller{
		actuate:  actuate,
		window:   window,
		updateCh: make(chan float64, 1),
		log:      logger.New("SSR"),
	}
}

// SetOutput changes the heater command (0..255). Only the latest value
// is kept if Run has not picked up the previous one yet.
func (c *Controller) SetOutput(output float64) {
	output = min(max(output, 0), 255)
	select {
	case c.updateCh <- output:
	default:
		select {
		case <-c.updateCh:
		default:
		}
		c.updateCh <- output
	}
}

// Run switches the relay until ctx is cancelled, then leaves it off.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("Running, window=%v", c.window)
	defer c.log.Info("Stopped")

	ticker := time.NewTicker(max(c.window/40, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.output = 0
			c.setRelay(false)
			return

		case out := <-c.updateCh:
			c.apply(time.Now(), out)

		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *Controller) apply(now time.Time, output float64) {
	if output > 0 && c.output <= 0 {
		// start a fresh window so the first pulse is not cut short
		c.windowStart = now
	}
	if output != c.output {
		c.log.Debug("output %.1f -> %.1f", c.output, output)
	}
	c.output = output
	c.tick(now)
}

// tick decides whether the relay should be on at this moment
func (c *Controller) tick(now time.Time) {
	if c.output <= 0 {
		c.setRelay(false)
		return
	}
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= c.window {
		c.windowStart = now
	}
	c.setRelay(now.Sub(c.windowStart) < OnTime(c.output, c.window))
}

// OnTime is how long the relay stays on per window.
func OnTime(output float64, window time.Duration) time.Duration {
	output = min(max(output, 0), 255)
	return time.Duration(output / 255 * float64(window))
}

// setRelay calls the actuator when the state changes. A failed switch
// is retried on the next tick.
func (c *Controller) setRelay(on bool) {
	if c.synced && c.on == on {
		return
	}
	c.on = on
	if err := c.actuate(on); err != nil {
		c.log.Error("actuator error: %v", err)
		c.synced = false
		return
	}
	c.synced = true
}

func (c *Controller) On() bool {
	return c.on
}
