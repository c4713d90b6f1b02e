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
	"errors"
	"fmt"
)

type Action string

const (
	ActionStart          Action = "start"
	ActionStop           Action = "stop"
	ActionEmergency      Action = "emergency"
	ActionReset          Action = "reset"
	ActionSetSetpoint    Action = "settemp"
	ActionSelectSchedule Action = "schedule"
)

// Command is a request to change controller state. Value is used by
// ActionSetSetpoint, Index by ActionSelectSchedule.
type Command struct {
	Action Action  `json:"command"`
	Value  float64 `json:"value,omitempty"`
	Index  int     `json:"index,omitempty"`
}

func Start() Command                { return Command{Action: ActionStart} }
func Stop() Command                 { return Command{Action: ActionStop} }
func EmergencyStop() Command        { return Command{Action: ActionEmergency} }
func Reset() Command                { return Command{Action: ActionReset} }
func SetSetpoint(v float64) Command { return Command{Action: ActionSetSetpoint, Value: v} }
func SelectSchedule(i int) Command  { return Command{Action: ActionSelectSchedule, Index: i} }

// Rejection reasons.
const (
	ReasonEmergencyActive = "emergency_active"
	ReasonNoSetpoint      = "no_setpoint"
	ReasonHeatingActive   = "heating_active"
	ReasonOutOfRange      = "out_of_range"
	ReasonInvalidIndex    = "invalid_index"
	ReasonUnknownCommand  = "unknown_command"
	ReasonUnavailable     = "unavailable"
)

// RejectError is returned when a command is not valid in the current
// state. Nothing was changed.
type RejectError struct {
	Action Action
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Reason)
}

func reject(a Action, reason string) error {
	return &RejectError{Action: a, Reason: reason}
}

// ReasonOf returns the rejection reason of err, or "" if err is not a
// RejectError.
func ReasonOf(err error) string {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
