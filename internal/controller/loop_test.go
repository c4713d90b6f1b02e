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
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"kilnctl/internal/controller/safety"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/events"
	"kilnctl/internal/thermo"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func mustApply(t *testing.T, l *Loop, now time.Time, cmd Command) {
	t.Helper()
	if err := l.Apply(now, cmd); err != nil {
		t.Fatalf("%s: %v", cmd.Action, err)
	}
}

func wantReject(t *testing.T, l *Loop, now time.Time, cmd Command, reason string) {
	t.Helper()
	err := l.Apply(now, cmd)
	if got := ReasonOf(err); got != reason {
		t.Errorf("%s: got %v, want rejection %q", cmd.Action, err, reason)
	}
}

// A cold kiln with a setpoint heats on the very first tick.
func TestStartFromAmbientHeats(t *testing.T) {
	l := NewLoop(thermo.Constant(22, 22), t0)
	mustApply(t, l, t0, SetSetpoint(200))
	mustApply(t, l, t0, Start())

	res := l.Tick(t0)
	if res.State != safety.Heating {
		t.Fatalf("state: got %v, want heating", res.State)
	}
	if res.Output <= 0 {
		t.Errorf("output: got %v, want > 0", res.Output)
	}
}

func TestStartBetweenSamplesHeatsNextTick(t *testing.T) {
	src := thermo.Constant(22, 22)
	l := NewLoop(src, t0)
	l.Tick(t0)

	mustApply(t, l, t0.Add(ms(20)), SetSetpoint(200))
	mustApply(t, l, t0.Add(ms(20)), Start())
	res := l.Tick(t0.Add(ms(30)))
	if res.Sampled {
		t.Fatal("tick should not have been a sample tick")
	}
	if res.Output <= 0 {
		t.Errorf("output: got %v, want > 0", res.Output)
	}
}

// A reading over the limit latches the emergency stop before the PID runs.
func TestOverTemperatureTripsSameTick(t *testing.T) {
	src := thermo.Constant(500, 500)
	l := NewLoop(src, t0)
	mustApply(t, l, t0, SetSetpoint(900))
	mustApply(t, l, t0, Start())
	if res := l.Tick(t0); res.Output <= 0 {
		t.Fatalf("expected heating output, got %v", res.Output)
	}

	src.Set(thermo.Reading{Temp1: 1250, Temp2: 1180})
	res := l.Tick(t0.Add(ms(250)))
	if res.State != safety.EmergencyStop {
		t.Fatalf("state: got %v, want emergency_stop", res.State)
	}
	if res.Output != 0 || l.Output() != 0 {
		t.Errorf("output: got %v, want 0", res.Output)
	}
	st := l.Status(t0.Add(ms(250)))
	if !st.Emergency || st.EmergencyReason != safety.ReasonOverTemperature || st.Enabled {
		t.Errorf("status: emergency=%v reason=%q enabled=%v", st.Emergency, st.EmergencyReason, st.Enabled)
	}
}

// Once the target is reached the soak timer runs, then the next segment starts.
func TestScheduleSoaksThenAdvances(t *testing.T) {
	cfg := thermo.DefaultSimConfig()
	cfg.InitialC = [2]float64{205, 205}
	l := NewLoop(thermo.NewSimulated(cfg), t0)

	mustApply(t, l, t0, SelectSchedule(0))
	l.Tick(t0)

	st := l.Status(t0)
	if st.Schedule == nil || st.Schedule.Name != "Bisque Fire" {
		t.Fatalf("schedule: got %+v", st.Schedule)
	}
	if !st.Schedule.Soaking || st.Schedule.Segment != 1 {
		t.Fatalf("expected soaking in segment 1, got %+v", st.Schedule)
	}
	if st.Setpoint != 200 {
		t.Errorf("setpoint: got %v, want 200", st.Setpoint)
	}

	end := t0.Add(30 * time.Minute)
	l.Tick(end)
	st = l.Status(end)
	if st.Schedule.Segment != 2 {
		t.Errorf("segment: got %d, want 2", st.Schedule.Segment)
	}
	if st.Setpoint != 600 || st.Schedule.Target != 600 {
		t.Errorf("setpoint: got %v target %v, want 600", st.Setpoint, st.Schedule.Target)
	}
	if st.State != safety.Heating {
		t.Errorf("state: got %v, want heating", st.State)
	}
}

// Changing the setpoint mid-firing is refused and leaves the setpoint alone.
func TestSetpointRejectedWhileHeating(t *testing.T) {
	l := NewLoop(thermo.Constant(22, 22), t0)
	mustApply(t, l, t0, SetSetpoint(200))
	mustApply(t, l, t0, Start())
	l.Tick(t0)

	wantReject(t, l, t0, SetSetpoint(500), ReasonHeatingActive)
	if st := l.Status(t0); st.Setpoint != 200 {
		t.Errorf("setpoint changed to %v", st.Setpoint)
	}
}

// Finishing the last segment returns to Ready with a completed end reason.
func TestScheduleCompletesToReady(t *testing.T) {
	src := thermo.Constant(160, 160)
	l := NewLoop(src, t0).WithPresets([]schedule.Preset{{
		Name: "Two Step",
		Segments: []schedule.Segment{
			{TargetC: 100},
			{TargetC: 150, SoakMinutes: 1},
		},
	}})

	mustApply(t, l, t0, SelectSchedule(0))
	l.Tick(t0)              // segment 1 reached, no soak
	l.Tick(t0.Add(ms(250))) // segment 2 reached, soak starts
	res := l.Tick(t0.Add(ms(250) + time.Minute))

	if res.State != safety.Ready || res.Output != 0 {
		t.Fatalf("got state %v output %v, want ready/0", res.State, res.Output)
	}
	st := l.Status(t0.Add(time.Minute))
	if st.Emergency {
		t.Error("emergency flag set after completion")
	}
	if st.Schedule == nil || st.Schedule.Active {
		t.Errorf("schedule should be inactive: %+v", st.Schedule)
	}
	if st.LastScheduleEnd != schedule.EndCompleted {
		t.Errorf("LastScheduleEnd: got %q, want %q", st.LastScheduleEnd, schedule.EndCompleted)
	}

	var kinds []events.Kind
	for _, ev := range l.TakeEvents() {
		kinds = append(kinds, ev.Kind)
	}
	want := []events.Kind{events.KindScheduleStarted, events.KindSegmentAdvanced, events.KindScheduleCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("events: got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestOutputZeroUnlessHeating(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	sim := thermo.DefaultSimConfig()
	l := NewLoop(thermo.NewSimulated(sim), t0)

	cmds := []func() Command{
		Start, Stop, EmergencyStop, Reset,
		func() Command { return SetSetpoint(rng.Float64() * 1300) },
		func() Command { return SelectSchedule(rng.IntN(4)) },
	}

	now := t0
	for i := range 5000 {
		now = now.Add(ms(10))
		if rng.IntN(20) == 0 {
			_ = l.Apply(now, cmds[rng.IntN(len(cmds))]())
		}
		res := l.Tick(now)
		if res.State != safety.Heating && res.Output != 0 {
			t.Fatalf("tick %d: state %v with output %v", i, res.State, res.Output)
		}
		if res.Output < 0 || res.Output > 255 {
			t.Fatalf("tick %d: output %v out of range", i, res.Output)
		}
	}
}

func TestEmergencyLatchedUntilReset(t *testing.T) {
	l := NewLoop(thermo.Constant(300, 300), t0)
	mustApply(t, l, t0, SetSetpoint(500))
	mustApply(t, l, t0, Start())
	l.Tick(t0)
	mustApply(t, l, t0, EmergencyStop())

	for i := range 5 {
		now := t0.Add(time.Duration(i+1) * time.Second)
		wantReject(t, l, now, Start(), ReasonEmergencyActive)
		wantReject(t, l, now, SetSetpoint(200), ReasonEmergencyActive)
		wantReject(t, l, now, SelectSchedule(0), ReasonEmergencyActive)
		mustApply(t, l, now, Stop())
		if res := l.Tick(now); res.State != safety.EmergencyStop || res.Output != 0 {
			t.Fatalf("got state %v output %v", res.State, res.Output)
		}
	}

	mustApply(t, l, t0.Add(time.Minute), Reset())
	if l.State() != safety.Ready {
		t.Errorf("state after reset: got %v", l.State())
	}
	mustApply(t, l, t0.Add(time.Minute), Start())
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewLoop(thermo.Constant(100, 100), t0)
	mustApply(t, l, t0, SelectSchedule(0))
	l.Tick(t0)

	mustApply(t, l, t0, Stop())
	once := l.Status(t0)
	mustApply(t, l, t0, Stop())
	twice := l.Status(t0)

	if once.State != safety.Ready || once.Output != 0 {
		t.Errorf("after stop: state %v output %v", once.State, once.Output)
	}
	if once.State != twice.State || once.Setpoint != twice.Setpoint ||
		once.LastScheduleEnd != twice.LastScheduleEnd || *once.Schedule != *twice.Schedule {
		t.Errorf("second stop changed status:\n%+v\n%+v", once, twice)
	}
	if once.LastScheduleEnd != schedule.EndStopped {
		t.Errorf("LastScheduleEnd: got %q, want %q", once.LastScheduleEnd, schedule.EndStopped)
	}
}

func TestEmergencyEndsSchedule(t *testing.T) {
	l := NewLoop(thermo.Constant(100, 100), t0)
	mustApply(t, l, t0, SelectSchedule(1))
	l.Tick(t0)
	mustApply(t, l, t0, EmergencyStop())

	st := l.Status(t0)
	if st.LastScheduleEnd != schedule.EndEmergency || st.Schedule.Active {
		t.Errorf("got end %q active %v", st.LastScheduleEnd, st.Schedule.Active)
	}
	if st.EmergencyReason != safety.ReasonManual {
		t.Errorf("reason: got %q, want %q", st.EmergencyReason, safety.ReasonManual)
	}
}

func TestCommandValidation(t *testing.T) {
	l := NewLoop(thermo.Constant(22, 22), t0)

	wantReject(t, l, t0, Start(), ReasonNoSetpoint)
	wantReject(t, l, t0, SetSetpoint(-1), ReasonOutOfRange)
	wantReject(t, l, t0, SetSetpoint(1201), ReasonOutOfRange)
	wantReject(t, l, t0, SetSetpoint(math.NaN()), ReasonOutOfRange)
	wantReject(t, l, t0, SelectSchedule(-1), ReasonInvalidIndex)
	wantReject(t, l, t0, SelectSchedule(3), ReasonInvalidIndex)
	wantReject(t, l, t0, Command{Action: "boost"}, ReasonUnknownCommand)

	mustApply(t, l, t0, SetSetpoint(0))
	mustApply(t, l, t0, SetSetpoint(1200))
	mustApply(t, l, t0, Reset())
	mustApply(t, l, t0, Start())

	wantReject(t, l, t0, Reset(), ReasonHeatingActive)
	wantReject(t, l, t0, SelectSchedule(0), ReasonHeatingActive)
	mustApply(t, l, t0, Start())

	if l.State() != safety.Heating {
		t.Errorf("rejections changed state to %v", l.State())
	}
}

func TestRejectedScheduleLeavesNothingBehind(t *testing.T) {
	l := NewLoop(thermo.Constant(22, 22), t0)
	mustApply(t, l, t0, SetSetpoint(300))
	mustApply(t, l, t0, Start())
	wantReject(t, l, t0, SelectSchedule(0), ReasonHeatingActive)

	st := l.Status(t0)
	if st.Schedule != nil || st.Setpoint != 300 {
		t.Errorf("got schedule %+v setpoint %v", st.Schedule, st.Setpoint)
	}
}

func TestMaxDurationTrips(t *testing.T) {
	l := NewLoop(thermo.Constant(400, 400), t0).
		WithLimits(safety.Limits{MaxTempC: 1200, MaxHeatingTime: time.Hour})
	mustApply(t, l, t0, SetSetpoint(500))
	mustApply(t, l, t0, Start())
	l.Tick(t0)

	if res := l.Tick(t0.Add(time.Hour)); res.State != safety.Heating {
		t.Fatalf("tripped at exactly the limit")
	}
	res := l.Tick(t0.Add(time.Hour + time.Second))
	if res.State != safety.EmergencyStop || l.Status(t0).EmergencyReason != safety.ReasonMaxDuration {
		t.Errorf("got state %v reason %q", res.State, l.Status(t0).EmergencyReason)
	}
}

func TestSensorFaultTripsFromReady(t *testing.T) {
	src := thermo.NewHardware(&thermo.FakeChannel{TempC: 20}, &thermo.FakeChannel{FaultCode: thermo.FaultOpenCircuit})
	l := NewLoop(src, t0)

	res := l.Tick(t0)
	if res.State != safety.EmergencyStop {
		t.Fatalf("state: got %v, want emergency_stop", res.State)
	}
	st := l.Status(t0)
	if st.EmergencyReason != safety.ReasonSensorFault || !st.SensorFault {
		t.Errorf("reason %q fault %v", st.EmergencyReason, st.SensorFault)
	}
}

func TestSamplingCadence(t *testing.T) {
	src := thermo.Constant(22, 22)
	l := NewLoop(src, t0)
	for i := range 25 {
		l.Tick(t0.Add(ms(10 * i)))
	}
	if src.Samples != 1 {
		t.Errorf("samples after 240ms: got %d, want 1", src.Samples)
	}
	if res := l.Tick(t0.Add(ms(250))); !res.Sampled || src.Samples != 2 {
		t.Errorf("sample at 250ms: sampled=%v samples=%d", res.Sampled, src.Samples)
	}
}

func TestTelemetryInterval(t *testing.T) {
	l := NewLoop(thermo.Constant(50, 60), t0)
	for i := range 41 {
		l.Tick(t0.Add(ms(250 * i)))
	}
	st := l.Status(t0.Add(10 * time.Second))
	if len(st.Telemetry) != 6 {
		t.Fatalf("telemetry points: got %d, want 6", len(st.Telemetry))
	}
	for i, p := range st.Telemetry {
		want := t0.Add(time.Duration(2*i) * time.Second)
		if !p.Time.Equal(want) || p.Temp1 != 50 || p.Temp2 != 60 {
			t.Errorf("point %d: got %+v", i, p)
		}
	}
}

func TestStatusHasNoSideEffects(t *testing.T) {
	src := thermo.Constant(22, 22)
	l := NewLoop(src, t0)
	l.Tick(t0)
	before := src.Samples
	a := l.Status(t0.Add(time.Second))
	b := l.Status(t0.Add(time.Second))
	if src.Samples != before {
		t.Error("Status sampled the source")
	}
	if a.Uptime != 1 || a.Temp1 != b.Temp1 || len(a.Telemetry) != len(b.Telemetry) {
		t.Errorf("snapshots differ: %+v vs %+v", a, b)
	}
}

func TestDrivesSimulatedSource(t *testing.T) {
	cfg := thermo.DefaultSimConfig()
	cfg.NoiseC = 0
	l := NewLoop(thermo.NewSimulated(cfg), t0)
	mustApply(t, l, t0, SetSetpoint(600))
	mustApply(t, l, t0, Start())

	now := t0
	for range 400 {
		now = now.Add(ms(250))
		l.Tick(now)
	}
	if avg := l.Status(now).AvgTemp; avg <= 30 {
		t.Errorf("simulated kiln did not heat: avg %.1f°C", avg)
	}
}
