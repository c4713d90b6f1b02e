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

// Package telemetry keeps a bounded window of recent kiln samples.
package telemetry

import "time"

// DefaultCapacity is the number of points kept when none is configured.
const DefaultCapacity = 200

type Point struct {
	Time          time.Time `json:"time"`
	Temp1         float64   `json:"temp1"`
	Temp2         float64   `json:"temp2"`
	Setpoint      float64   `json:"setpoint"`
	OutputPercent float64   `json:"output_percent"`
}

// Log is a fixed-capacity ring of points that overwrites the oldest
// entry once full. Not safe for concurrent use, the owner synchronizes.
type Log struct {
	buf   []Point
	head  int // next write position
	count int // slots holding real data, saturates at len(buf)
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]Point, capacity)}
}

// Append stores p, dropping the oldest point when the ring is full.
func (l *Log) Append(p Point) {
	l.buf[l.head] = p
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// ReadRecent returns up to n of the most recent points, oldest first.
func (l *Log) ReadRecent(n int) []Point {
	if n > l.count {
		n = l.count
	}
	if n <= 0 {
		return nil
	}

	out := make([]Point, n)
	start := (l.head - n + len(l.buf)) % len(l.buf)
	for i := range n {
		out[i] = l.buf[(start+i)%len(l.buf)]
	}
	return out
}

func (l *Log) Len() int {
	return l.count
}

func (l *Log) Cap() int {
	return len(l.buf)
}
