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

package ssr

import "sync"

// Recorder is an Actuator that records every switch.
type Recorder struct {
	mu       sync.Mutex
	switches []bool
	Err      error
}

func (r *Recorder) Actuate(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.switches = append(r.switches, on)
	return nil
}

func (r *Recorder) Switches() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.switches...)
}

// Last reports the most recent switch, false if none.
func (r *Recorder) Last() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.switches) == 0 {
		return false
	}
	return r.switches[len(r.switches)-1]
}
