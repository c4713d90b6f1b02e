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

// Package mqtt publishes kiln status and transitions to a broker.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"kilnctl/internal/controller"
	"kilnctl/internal/events"
)

const (
	SuffixStatus       = "/status"
	SuffixEvents       = "/events"
	SuffixAvailability = "/availability"
)

// Publisher sends a message to the broker.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close() error
}

type StatusPayload struct {
	Timestamp string  `json:"timestamp"`
	Temp1     float64 `json:"temp1"`
	Temp2     float64 `json:"temp2"`
	AvgTemp   float64 `json:"avgTemp"`
	Setpoint  float64 `json:"setpoint"`
	Power     float64 `json:"power"`
	State     string  `json:"state"`
	Emergency bool    `json:"emergency"`
	Reason    string  `json:"reason,omitempty"`
	Schedule  string  `json:"schedule,omitempty"`
	Segment   int     `json:"segment,omitempty"`
	Segments  int     `json:"segments,omitempty"`
}

// FormatStatus leaves out the telemetry history.
func FormatStatus(st controller.Status) ([]byte, error) {
	p := StatusPayload{
		Timestamp: st.Time.UTC().Format(time.RFC3339),
		Temp1:     round1(st.Temp1),
		Temp2:     round1(st.Temp2),
		AvgTemp:   round1(st.AvgTemp),
		Setpoint:  st.Setpoint,
		Power:     round1(st.Power),
		State:     st.State.String(),
		Emergency: st.Emergency,
		Reason:    string(st.EmergencyReason),
	}
	if st.Schedule != nil && st.Schedule.Active {
		p.Schedule = st.Schedule.Name
		p.Segment = st.Schedule.Segment
		p.Segments = st.Schedule.Total
	}
	return json.Marshal(p)
}

type EventPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	State     string  `json:"state"`
	Reason    string  `json:"reason,omitempty"`
	Setpoint  float64 `json:"setpoint"`
	Detail    string  `json:"detail,omitempty"`
}

func FormatEvent(ev events.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Timestamp: ev.Time.UTC().Format(time.RFC3339),
		Event:     string(ev.Kind),
		State:     ev.State,
		Reason:    ev.Reason,
		Setpoint:  ev.Setpoint,
		Detail:    ev.Detail,
	})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
