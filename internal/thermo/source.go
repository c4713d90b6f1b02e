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

// Package thermo produces the two kiln zone temperatures.
// Hardware reads thermocouple amplifiers, Simulated runs a thermal
// model for development, Scripted replays readings in tests.
package thermo

import "time"

// Reading is one sample of both zones.
type Reading struct {
	Time       time.Time `json:"time"`
	Temp1      float64   `json:"temp1"`
	Temp2      float64   `json:"temp2"`
	Fault1     bool      `json:"fault1"`
	Fault2     bool      `json:"fault2"`
	FaultCode1 uint8     `json:"fault_code1,omitempty"`
	FaultCode2 uint8     `json:"fault_code2,omitempty"`
}

// Avg is the controller input, the mean of both zones.
func (r Reading) Avg() float64 {
	return (r.Temp1 + r.Temp2) / 2
}

func (r Reading) Faulted() bool {
	return r.Fault1 || r.Fault2
}

// Source is sampled by the control loop at a fixed interval.
type Source interface {
	Sample(now time.Time) Reading
}

// Driven is implemented by sources that react to the heater command.
type Driven interface {
	Drive(output float64, heating bool)
}
