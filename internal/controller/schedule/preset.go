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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Preset is an immutable schedule template.
type Preset struct {
	Name     string    `yaml:"name" json:"name"`
	Segments []Segment `yaml:"segments" json:"segments"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

func DefaultPresets() []Preset {
	return []Preset{
		{
			Name: "Bisque Fire",
			Segments: []Segment{
				{TargetC: 200, RampCPerHour: 100, SoakMinutes: 30},
				{TargetC: 600, RampCPerHour: 150},
				{TargetC: 950, RampCPerHour: 200, SoakMinutes: 15},
			},
		},
		{
			Name: "Glaze Fire",
			Segments: []Segment{
				{TargetC: 200, RampCPerHour: 100, SoakMinutes: 30},
				{TargetC: 600, RampCPerHour: 150},
				{TargetC: 1000, RampCPerHour: 200},
				{TargetC: 1180, RampCPerHour: 100, SoakMinutes: 20},
			},
		},
		{
			Name: "Test Fire",
			Segments: []Segment{
				{TargetC: 100, SoakMinutes: 5},
				{TargetC: 200, SoakMinutes: 10},
			},
		},
	}
}

// Instantiate returns a fresh active copy. The preset is never modified.
func (p Preset) Instantiate(now time.Time) *Schedule {
	segs := slices.Clone(p.Segments)
	for i := range segs {
		segs[i].Completed = false
	}
	return &Schedule{
		Name:             p.Name,
		Segments:         segs,
		Active:           true,
		StartedAt:        now,
		SegmentStartedAt: now,
	}
}

func (p Preset) Validate(maxTempC float64) error {
	if p.Name == "" {
		return errors.New("preset name is required")
	}
	if len(p.Segments) == 0 || len(p.Segments) > MaxSegments {
		return fmt.Errorf("preset %q: %d segments, want 1..%d", p.Name, len(p.Segments), MaxSegments)
	}
	for i, seg := range p.Segments {
		switch {
		case seg.TargetC <= 0 || seg.TargetC > maxTempC:
			return fmt.Errorf("preset %q segment %d: target %.0f°C outside (0, %.0f]", p.Name, i+1, seg.TargetC, maxTempC)
		case seg.RampCPerHour < 0:
			return fmt.Errorf("preset %q segment %d: negative ramp rate", p.Name, i+1)
		case seg.SoakMinutes < 0:
			return fmt.Errorf("preset %q segment %d: negative soak", p.Name, i+1)
		}
	}
	return nil
}

func ParsePresets(data []byte, maxTempC float64) ([]Preset, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	if len(file.Presets) == 0 {
		return nil, errors.New("no presets defined")
	}
	for _, p := range file.Presets {
		if err := p.Validate(maxTempC); err != nil {
			return nil, err
		}
	}
	return file.Presets, nil
}

// LoadPresets reads the presets file, falling back to the built-in
// presets when the file does not exist.
func LoadPresets(path string, maxTempC float64) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPresets(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	return ParsePresets(data, maxTempC)
}
