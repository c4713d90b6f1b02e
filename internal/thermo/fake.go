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

package thermo

import "time"

// Scripted is a test double that replays readings. Each Sample consumes
// the next reading; once exhausted the last one repeats.
type Scripted struct {
	Readings []Reading
	index    int

	// Samples counts Sample calls
	Samples int
}

func NewScripted(readings ...Reading) *Scripted {
	return &Scripted{Readings: readings}
}

// Constant returns a source that always reads t1/t2.
func Constant(t1, t2 float64) *Scripted {
	return NewScripted(Reading{Temp1: t1, Temp2: t2})
}

func (s *Scripted) Sample(now time.Time) Reading {
	s.Samples++
	if len(s.Readings) == 0 {
		return Reading{Time: now}
	}
	r := s.Readings[s.index]
	if s.index < len(s.Readings)-1 {
		s.index++
	}
	r.Time = now
	return r
}

// Set replaces the script with a single repeating reading.
func (s *Scripted) Set(r Reading) {
	s.Readings = []Reading{r}
	s.index = 0
}

// FakeChannel is a scripted Channel for Hardware tests.
type FakeChannel struct {
	TempC     float64
	FaultCode uint8
	Err       error
}

func (c *FakeChannel) Read() (float64, uint8, error) {
	return c.TempC, c.FaultCode, c.Err
}
