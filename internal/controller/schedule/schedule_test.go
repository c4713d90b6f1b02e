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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func TestSoakStartsOnReachAndAdvances(t *testing.T) {
	s := DefaultPresets()[0].Instantiate(t0)

	step := s.Step(t0, 205, DefaultToleranceC)
	if !step.SoakStarted || step.Advanced {
		t.Fatalf("first tick: got %+v, want soak started without advance", step)
	}
	if step.Setpoint != 200 {
		t.Errorf("setpoint: got %v, want 200", step.Setpoint)
	}
	if !s.Soaking() {
		t.Error("expected soaking")
	}
	if got := s.SoakRemaining(t0.Add(10 * time.Minute)); got != 20*time.Minute {
		t.Errorf("SoakRemaining: got %v, want 20m", got)
	}

	step = s.Step(t0.Add(29*time.Minute), 205, DefaultToleranceC)
	if step.Advanced || s.Current != 0 {
		t.Fatalf("advanced before soak elapsed: %+v", step)
	}

	at := t0.Add(30 * time.Minute)
	step = s.Step(at, 205, DefaultToleranceC)
	if !step.Advanced || s.Current != 1 {
		t.Fatalf("soak elapsed: got %+v current %d, want advance to 1", step, s.Current)
	}
	if !s.Segments[0].Completed {
		t.Error("segment 0 not marked completed")
	}
	if !s.SegmentStartedAt.Equal(at) {
		t.Errorf("SegmentStartedAt: got %v, want %v", s.SegmentStartedAt, at)
	}
	if step.Setpoint != 600 {
		t.Errorf("setpoint after advance: got %v, want 600", step.Setpoint)
	}
	if s.Soaking() {
		t.Error("soak timer not reset")
	}
}

func TestToleranceBand(t *testing.T) {
	s := Preset{Name: "t", Segments: []Segment{{TargetC: 500, SoakMinutes: 5}}}.Instantiate(t0)
	if step := s.Step(t0, 494.9, 5); step.SoakStarted {
		t.Error("soak started below tolerance band")
	}
	if step := s.Step(t0, 495, 5); !step.SoakStarted {
		t.Error("soak did not start at target - tolerance")
	}
}

func TestZeroSoakCompletesImmediately(t *testing.T) {
	s := Preset{Name: "t", Segments: []Segment{
		{TargetC: 100},
		{TargetC: 150},
	}}.Instantiate(t0)

	step := s.Step(t0, 100, 5)
	if !step.Advanced || step.Finished || s.Current != 1 {
		t.Fatalf("got %+v current %d", step, s.Current)
	}
	step = s.Step(t0.Add(time.Second), 120, 5)
	if step.Advanced {
		t.Fatal("advanced below target")
	}
	step = s.Step(t0.Add(2*time.Second), 148, 5)
	if !step.Finished || s.Active {
		t.Fatalf("expected finished and inactive, got %+v active=%v", step, s.Active)
	}
	if s.Current != len(s.Segments) {
		t.Errorf("Current: got %d, want %d", s.Current, len(s.Segments))
	}
	if s.Target() != 0 {
		t.Errorf("Target after finish: got %v, want 0", s.Target())
	}

	// inactive schedules do nothing
	if step := s.Step(t0.Add(time.Hour), 500, 5); step != (Step{}) {
		t.Errorf("inactive step: got %+v", step)
	}
}

func TestInstantiateIsDeepCopy(t *testing.T) {
	presets := DefaultPresets()
	s := presets[2].Instantiate(t0)
	s.Step(t0, 100, 5)
	s.Step(t0.Add(5*time.Minute), 100, 5)

	if presets[2].Segments[0].Completed {
		t.Error("running the schedule modified the preset")
	}
	again := presets[2].Instantiate(t0)
	if again.Current != 0 || again.Segments[0].Completed || !again.Active {
		t.Errorf("fresh instance not reset: %+v", again)
	}
}

func TestDeactivate(t *testing.T) {
	s := DefaultPresets()[0].Instantiate(t0)
	s.Step(t0, 205, 5)
	s.Deactivate()
	if s.Active || s.Soaking() {
		t.Errorf("active=%v soaking=%v after Deactivate", s.Active, s.Soaking())
	}
	if s.SoakRemaining(t0) != 0 {
		t.Error("soak remaining after deactivate")
	}
}

func TestDefaultPresetsValid(t *testing.T) {
	for _, p := range DefaultPresets() {
		if err := p.Validate(1200); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		preset Preset
		errHas string
	}{
		{"no name", Preset{Segments: []Segment{{TargetC: 100}}}, "name"},
		{"no segments", Preset{Name: "x"}, "segments"},
		{"too many", Preset{Name: "x", Segments: make([]Segment, 11)}, "segments"},
		{"zero target", Preset{Name: "x", Segments: []Segment{{TargetC: 0}}}, "target"},
		{"over max", Preset{Name: "x", Segments: []Segment{{TargetC: 1250}}}, "target"},
		{"negative ramp", Preset{Name: "x", Segments: []Segment{{TargetC: 100, RampCPerHour: -1}}}, "ramp"},
		{"negative soak", Preset{Name: "x", Segments: []Segment{{TargetC: 100, SoakMinutes: -1}}}, "soak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.preset.Validate(1200)
			if err == nil || !strings.Contains(err.Error(), tt.errHas) {
				t.Errorf("got %v, want error containing %q", err, tt.errHas)
			}
		})
	}
}

func TestLoadPresets(t *testing.T) {
	dir := t.TempDir()

	presets, err := LoadPresets(filepath.Join(dir, "missing.yml"), 1200)
	if err != nil || len(presets) != len(DefaultPresets()) {
		t.Fatalf("missing file: got %d presets, err %v", len(presets), err)
	}

	path := filepath.Join(dir, "schedules.yml")
	data := `
presets:
  - name: Cone 06
    segments:
      - {target_c: 600, ramp_c_per_hour: 120}
      - {target_c: 999, ramp_c_per_hour: 150, soak_minutes: 10}
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	presets, err = LoadPresets(path, 1200)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if len(presets) != 1 || presets[0].Name != "Cone 06" || presets[0].Segments[1].SoakMinutes != 10 {
		t.Errorf("got %+v", presets)
	}

	if err := os.WriteFile(path, []byte("presets: [{name: hot, segments: [{target_c: 1500}]}]"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPresets(path, 1200); err == nil {
		t.Error("expected validation error for 1500°C target")
	}
}

func TestProjection(t *testing.T) {
	curve := DefaultPresets()[0].Projection(20)
	// start, seg1 ramp, seg1 soak, seg2 ramp, seg3 ramp, seg3 soak
	if len(curve) != 6 {
		t.Fatalf("points: got %d, want 6", len(curve))
	}
	want := []ProjectedPoint{
		{0, 20}, {108, 200}, {138, 200}, {298, 600}, {403, 950}, {418, 950},
	}
	for i, p := range curve {
		if math.Abs(p.Minutes-want[i].Minutes) > 0.01 || p.TempC != want[i].TempC {
			t.Errorf("point %d: got %+v, want %+v", i, p, want[i])
		}
	}
}

func TestSummarize(t *testing.T) {
	sums := Summarize(DefaultPresets(), 20)
	if len(sums) != 3 {
		t.Fatalf("got %d summaries", len(sums))
	}
	glaze := sums[1]
	if glaze.Index != 1 || glaze.Name != "Glaze Fire" || glaze.Segments != 4 || glaze.MaxTempC != 1180 {
		t.Errorf("glaze summary: %+v", glaze)
	}
	// unconstrained test fire only soaks
	if got := sums[2].DurationMinutes; got != 15 {
		t.Errorf("test fire duration: got %v, want 15", got)
	}
}
