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
	"time"

	"kilnctl/internal/controller/safety"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/telemetry"
)

type ScheduleStatus struct {
	Name          string  `json:"name"`
	Segment       int     `json:"segment"` // 1-based
	Total         int     `json:"total"`
	Target        float64 `json:"target"`
	Soaking       bool    `json:"soaking"`
	SoakRemaining float64 `json:"soakRemaining"` // seconds
	Active        bool    `json:"active"`
}

// Status is a read-only snapshot of the controller.
type Status struct {
	Time            time.Time          `json:"time"`
	Temp1           float64            `json:"temp1"`
	Temp2           float64            `json:"temp2"`
	AvgTemp         float64            `json:"avgTemp"`
	SensorFault     bool               `json:"sensorFault"`
	Setpoint        float64            `json:"setpoint"`
	Output          float64            `json:"output"` // 0..255
	Power           float64            `json:"power"`  // percent
	State           safety.State       `json:"state"`
	Enabled         bool               `json:"enabled"`
	Emergency       bool               `json:"emergency"`
	EmergencyReason safety.Reason      `json:"emergencyReason,omitempty"`
	EmergencyDetail string             `json:"emergencyDetail,omitempty"`
	HeatingFor      float64            `json:"heatingFor"` // seconds
	Uptime          float64            `json:"uptime"`     // seconds
	Version         string             `json:"version"`
	Schedule        *ScheduleStatus    `json:"schedule,omitempty"`
	LastScheduleEnd schedule.EndReason `json:"lastScheduleEnd,omitempty"`
	Telemetry       []telemetry.Point  `json:"telemetry"`
}

// GetData flattens the status for the data logger.
func (s Status) GetData() map[string]float64 {
	data := map[string]float64{
		"kiln_temp1":    s.Temp1,
		"kiln_temp2":    s.Temp2,
		"kiln_avg_temp": s.AvgTemp,
		"kiln_setpoint": s.Setpoint,
		"kiln_output":   s.Power,
		"kiln_state":    float64(s.State),
	}
	if s.Schedule != nil && s.Schedule.Active {
		data["kiln_segment"] = float64(s.Schedule.Segment)
	}
	return data
}
