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

// Package schedule runs multi-segment firing schedules. Each segment
// holds its target until the kiln reaches it, soaks, then advances.
// The ramp rate is only used to draw the projected curve.
package schedule

import "time"

const (
	MaxSegments       = 10
	DefaultToleranceC = 5.0
)

type Segment struct {
	TargetC      float64 `yaml:"target_c" json:"targetC"`
	RampCPerHour int     `yaml:"ramp_c_per_hour" json:"rampCPerHour"` // 0 = unconstrained
	SoakMinutes  int     `yaml:"soak_minutes" json:"soakMinutes"`
	Completed    bool    `yaml:"-" json:"completed"`
}

func (s Segment) Soak() time.Duration {
	return time.Duration(s.SoakMinutes) * time.Minute
}

// EndReason tells why the last schedule stopped running.
type EndReason string

const (
	EndNone      EndReason = ""
	EndCompleted EndReason = "completed"
	EndStopped   EndReason = "stopped"
	EndEmergency EndReason = "emergency"
)

// Schedule is the active copy of a preset.
type Schedule struct {
	Name             string
	Segments         []Segment
	Current          int
	Active           bool
	StartedAt        time.Time
	SegmentStartedAt time.Time

	soaking       bool
	soakStartedAt time.Time
}

// Step is what one executor tick decided.
type Step struct {
	Setpoint    float64
	SoakStarted bool
	Advanced    bool // a segment completed this tick
	Finished    bool // the last segment completed this tick
}

// Step runs the executor once. avg is the average of both channels.
func (s *Schedule) Step(now time.Time, avg, toleranceC float64) Step {
	if !s.Active || s.Current >= len(s.Segments) {
		return Step{}
	}

	seg := &s.Segments[s.Current]
	step := Step{Setpoint: seg.TargetC}

	if !s.soaking && avg >= seg.TargetC-toleranceC {
		s.soaking = true
		s.soakStartedAt = now
		step.SoakStarted = true
	}
	if !s.soaking || now.Sub(s.soakStartedAt) < seg.Soak() {
		return step
	}

	seg.Completed = true
	s.Current++
	s.soaking = false
	s.soakStartedAt = time.Time{}
	s.SegmentStartedAt = now
	step.Advanced = true

	if s.Current == len(s.Segments) {
		s.Active = false
		step.Finished = true
		return step
	}
	step.Setpoint = s.Segments[s.Current].TargetC
	return step
}

// Deactivate stops the schedule where it is.
func (s *Schedule) Deactivate() {
	s.Active = false
	s.soaking = false
	s.soakStartedAt = time.Time{}
}

func (s *Schedule) Soaking() bool {
	return s.soaking
}

// SoakRemaining is zero unless the current segment is soaking.
func (s *Schedule) SoakRemaining(now time.Time) time.Duration {
	if !s.soaking || s.Current >= len(s.Segments) {
		return 0
	}
	left := s.Segments[s.Current].Soak() - now.Sub(s.soakStartedAt)
	return max(left, 0)
}

// Target of the current segment, zero once every segment is done.
func (s *Schedule) Target() float64 {
	if s.Current >= len(s.Segments) {
		return 0
	}
	return s.Segments[s.Current].TargetC
}
