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

package schedule

import (
	"math"
	"time"
)

type ProjectedPoint struct {
	Minutes float64 `json:"minutes"`
	TempC   float64 `json:"tempC"`
}

// Projection draws the curve the ramp rates describe, starting from
// startC. Unconstrained segments jump straight to their target.
func (p Preset) Projection(startC float64) []ProjectedPoint {
	points := []ProjectedPoint{{Minutes: 0, TempC: startC}}
	var elapsed time.Duration
	temp := startC

	for _, seg := range p.Segments {
		if seg.RampCPerHour > 0 {
			hours := math.Abs(seg.TargetC-temp) / float64(seg.RampCPerHour)
			elapsed += time.Duration(hours * float64(time.Hour))
		}
		temp = seg.TargetC
		points = append(points, ProjectedPoint{Minutes: elapsed.Minutes(), TempC: temp})

		if seg.SoakMinutes > 0 {
			elapsed += seg.Soak()
			points = append(points, ProjectedPoint{Minutes: elapsed.Minutes(), TempC: temp})
		}
	}
	return points
}

type Summary struct {
	Index           int              `json:"index"`
	Name            string           `json:"name"`
	Segments        int              `json:"segments"`
	MaxTempC        float64          `json:"maxTemp"`
	DurationMinutes float64          `json:"durationMinutes"`
	Curve           []ProjectedPoint `json:"curve"`
}

func Summarize(presets []Preset, startC float64) []Summary {
	out := make([]Summary, 0, len(presets))
	for i, p := range presets {
		curve := p.Projection(startC)
		s := Summary{
			Index:    i,
			Name:     p.Name,
			Segments: len(p.Segments),
			Curve:    curve,
		}
		for _, seg := range p.Segments {
			s.MaxTempC = max(s.MaxTempC, seg.TargetC)
		}
		s.DurationMinutes = curve[len(curve)-1].Minutes
		out = append(out, s)
	}
	return out
}
