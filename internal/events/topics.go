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

package events

import (
	"time"

	"kilnctl/pkg/eventbus"
)

var (
	// TopicStatus carries controller.Status snapshots.
	TopicStatus eventbus.Topic = "status"

	// TopicEvents carries Event transitions.
	TopicEvents eventbus.Topic = "events"
)

type Kind string

const (
	KindStarted           Kind = "started"
	KindStopped           Kind = "stopped"
	KindEmergency         Kind = "emergency"
	KindReset             Kind = "reset"
	KindSetpoint          Kind = "setpoint"
	KindScheduleStarted   Kind = "schedule_started"
	KindSegmentAdvanced   Kind = "segment_advanced"
	KindScheduleCompleted Kind = "schedule_completed"
)

// Event is a controller state transition.
type Event struct {
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	State    string    `json:"state"`
	Reason   string    `json:"reason,omitempty"`
	Setpoint float64   `json:"setpoint"`
	Detail   string    `json:"detail,omitempty"`
}
