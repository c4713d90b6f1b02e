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
	"math"
	"time"

	"kilnctl/internal/controller/pidctrl"
	"kilnctl/internal/controller/safety"
	"kilnctl/internal/controller/schedule"
	"kilnctl/internal/events"
	"kilnctl/internal/telemetry"
	"kilnctl/internal/thermo"
	"kilnctl/pkg/logger"
)

const (
	DefaultSampleInterval    = 250 * time.Millisecond
	DefaultTelemetryInterval = 2 * time.Second
	DefaultStatusHistory     = 60
)

// TickResult is what one Tick did.
type TickResult struct {
	Sampled bool
	State   safety.State
	Output  float64
}

// Loop is the control kernel. It is not safe for concurrent use, the
// Service owns it and serializes ticks and commands.
type Loop struct {
	source    thermo.Source
	pid       *pidctrl.PIDController
	safety    *safety.Monitor
	presets   []schedule.Preset
	telemetry *telemetry.Log
	log       *logger.Logger

	sampleInterval    time.Duration
	telemetryInterval time.Duration
	toleranceC        float64
	statusHistory     int
	version           string

	bootedAt      time.Time
	reading       thermo.Reading
	sampled       bool
	lastSample    time.Time
	lastTelemetry time.Time

	setpoint   float64
	output     float64
	wasHeating bool

	active  *schedule.Schedule
	lastEnd schedule.EndReason

	pending []events.Event
}

func NewLoop(source thermo.Source, now time.Time) *Loop {
	return &Loop{
		source:            source,
		pid:               pidctrl.NewPIDController(50, 10, 5).WithAntiWindup(true),
		safety:            safety.New(safety.DefaultLimits()),
		presets:           schedule.DefaultPresets(),
		telemetry:         telemetry.New(telemetry.DefaultCapacity),
		log:               logger.New("Kiln"),
		sampleInterval:    DefaultSampleInterval,
		telemetryInterval: DefaultTelemetryInterval,
		toleranceC:        schedule.DefaultToleranceC,
		statusHistory:     DefaultStatusHistory,
		bootedAt:          now,
	}
}

func (l *Loop) WithPID(pid *pidctrl.PIDController) *Loop {
	l.pid = pid
	return l
}

func (l *Loop) WithLimits(limits safety.Limits) *Loop {
	l.safety = safety.New(limits)
	return l
}

func (l *Loop) WithPresets(presets []schedule.Preset) *Loop {
	l.presets = presets
	return l
}

func (l *Loop) WithTelemetry(log *telemetry.Log, interval time.Duration) *Loop {
	l.telemetry = log
	if interval > 0 {
		l.telemetryInterval = interval
	}
	return l
}

func (l *Loop) WithSampleInterval(d time.Duration) *Loop {
	if d > 0 {
		l.sampleInterval = d
	}
	return l
}

func (l *Loop) WithTolerance(c float64) *Loop {
	l.toleranceC = c
	return l
}

func (l *Loop) WithStatusHistory(n int) *Loop {
	l.statusHistory = n
	return l
}

func (l *Loop) WithVersion(v string) *Loop {
	l.version = v
	return l
}

func (l *Loop) Presets() []schedule.Preset {
	return l.presets
}

// Tick runs one control cycle in a fixed order: sample, safety,
// schedule, PID.
func (l *Loop) Tick(now time.Time) TickResult {
	res := TickResult{}

	// 1. sample
	if !l.sampled || now.Sub(l.lastSample) >= l.sampleInterval {
		l.reading = l.source.Sample(now)
		l.sampled = true
		l.lastSample = now
		res.Sampled = true

		if l.lastTelemetry.IsZero() || now.Sub(l.lastTelemetry) >= l.telemetryInterval {
			l.telemetry.Append(telemetry.Point{
				Time:          now,
				Temp1:         l.reading.Temp1,
				Temp2:         l.reading.Temp2,
				Setpoint:      l.setpoint,
				OutputPercent: percent(l.output),
			})
			l.lastTelemetry = now
		}
	}

	// 2. safety
	before := l.safety.State()
	state := l.safety.Check(now, l.reading)
	if state == safety.EmergencyStop && before != safety.EmergencyStop {
		l.endSchedule(schedule.EndEmergency)
		l.emit(now, events.KindEmergency, string(l.safety.Reason()), l.safety.Detail())
	}

	// 3. schedule
	if l.active != nil && l.active.Active && state == safety.Heating {
		step := l.active.Step(now, l.reading.Avg(), l.toleranceC)
		l.setpoint = step.Setpoint
		switch {
		case step.Finished:
			l.lastEnd = schedule.EndCompleted
			l.safety.Stop()
			state = l.safety.State()
			l.log.Info("schedule %q completed", l.active.Name)
			l.emit(now, events.KindScheduleCompleted, string(schedule.EndCompleted), l.active.Name)
		case step.Advanced:
			l.log.Info("schedule %q: segment %d/%d, target %.0f°C",
				l.active.Name, l.active.Current+1, len(l.active.Segments), step.Setpoint)
			l.emit(now, events.KindSegmentAdvanced, "", fmt.Sprintf("segment %d/%d", l.active.Current+1, len(l.active.Segments)))
		}
	}

	// 4. PID, or off
	if state == safety.Heating {
		if res.Sampled || !l.wasHeating {
			l.output = l.pid.Compute(l.reading.Avg(), l.setpoint)
		}
	} else {
		l.output = 0
		l.pid.Reset()
	}
	l.wasHeating = state == safety.Heating

	if d, ok := l.source.(thermo.Driven); ok {
		d.Drive(l.output, l.wasHeating)
	}

	res.State = state
	res.Output = l.output
	return res
}

// Apply validates and applies cmd. A rejected command changes nothing
// and returns a *RejectError.
func (l *Loop) Apply(now time.Time, cmd Command) error {
	switch cmd.Action {
	case ActionStart:
		if err := l.safety.Start(now, l.setpoint); err != nil {
			return reject(cmd.Action, safetyReason(err))
		}
		l.emit(now, events.KindStarted, "", "")

	case ActionStop:
		wasHeating := l.safety.State() == safety.Heating
		l.endSchedule(schedule.EndStopped)
		l.safety.Stop()
		l.off()
		if wasHeating {
			l.emit(now, events.KindStopped, "", "")
		}

	case ActionEmergency:
		already := l.safety.State() == safety.EmergencyStop
		l.safety.Trip(now, safety.ReasonManual, "operator emergency stop")
		l.endSchedule(schedule.EndEmergency)
		l.off()
		if !already {
			l.emit(now, events.KindEmergency, string(safety.ReasonManual), l.safety.Detail())
		}

	case ActionReset:
		wasEmergency := l.safety.State() == safety.EmergencyStop
		if err := l.safety.Reset(); err != nil {
			return reject(cmd.Action, safetyReason(err))
		}
		if wasEmergency {
			l.emit(now, events.KindReset, "", "")
		}

	case ActionSetSetpoint:
		if err := l.requireReady(); err != nil {
			return reject(cmd.Action, safetyReason(err))
		}
		limit := l.safety.Limits().MaxTempC
		if math.IsNaN(cmd.Value) || cmd.Value < 0 || cmd.Value > limit {
			return reject(cmd.Action, ReasonOutOfRange)
		}
		l.setpoint = cmd.Value
		l.emit(now, events.KindSetpoint, "", "")

	case ActionSelectSchedule:
		if cmd.Index < 0 || cmd.Index >= len(l.presets) {
			return reject(cmd.Action, ReasonInvalidIndex)
		}
		if err := l.requireReady(); err != nil {
			return reject(cmd.Action, safetyReason(err))
		}
		sched := l.presets[cmd.Index].Instantiate(now)
		if err := l.safety.Start(now, sched.Target()); err != nil {
			return reject(cmd.Action, safetyReason(err))
		}
		l.active = sched
		l.setpoint = sched.Target()
		l.lastEnd = schedule.EndNone
		l.log.Info("schedule %q selected, %d segments", sched.Name, len(sched.Segments))
		l.emit(now, events.KindScheduleStarted, "", sched.Name)

	default:
		return reject(cmd.Action, ReasonUnknownCommand)
	}
	return nil
}

func (l *Loop) requireReady() error {
	switch l.safety.State() {
	case safety.Heating:
		return safety.ErrHeatingActive
	case safety.EmergencyStop:
		return safety.ErrEmergencyActive
	}
	return nil
}

func (l *Loop) off() {
	l.output = 0
	l.wasHeating = false
	l.pid.Reset()
	if d, ok := l.source.(thermo.Driven); ok {
		d.Drive(0, false)
	}
}

// endSchedule deactivates a running schedule.
func (l *Loop) endSchedule(reason schedule.EndReason) {
	if l.active == nil || !l.active.Active {
		return
	}
	l.active.Deactivate()
	l.lastEnd = reason
	l.log.Info("schedule %q ended: %s", l.active.Name, reason)
}

func (l *Loop) emit(now time.Time, kind events.Kind, reason, detail string) {
	l.pending = append(l.pending, events.Event{
		Time:     now,
		Kind:     kind,
		State:    l.safety.State().String(),
		Reason:   reason,
		Setpoint: l.setpoint,
		Detail:   detail,
	})
}

// TakeEvents returns the transitions since the last call.
func (l *Loop) TakeEvents() []events.Event {
	ev := l.pending
	l.pending = nil
	return ev
}

// Output is the current actuator command, 0..255.
func (l *Loop) Output() float64 {
	return l.output
}

func (l *Loop) State() safety.State {
	return l.safety.State()
}

// Status returns a snapshot. It does not change the loop.
func (l *Loop) Status(now time.Time) Status {
	state := l.safety.State()
	st := Status{
		Time:            now,
		Temp1:           l.reading.Temp1,
		Temp2:           l.reading.Temp2,
		AvgTemp:         l.reading.Avg(),
		SensorFault:     l.reading.Faulted(),
		Setpoint:        l.setpoint,
		Output:          l.output,
		Power:           percent(l.output),
		State:           state,
		Enabled:         state == safety.Heating,
		Emergency:       state == safety.EmergencyStop,
		EmergencyReason: l.safety.Reason(),
		EmergencyDetail: l.safety.Detail(),
		Uptime:          now.Sub(l.bootedAt).Seconds(),
		Version:         l.version,
		LastScheduleEnd: l.lastEnd,
		Telemetry:       l.telemetry.ReadRecent(l.statusHistory),
	}
	if state == safety.Heating {
		st.HeatingFor = now.Sub(l.safety.HeatingStartedAt()).Seconds()
	}
	if s := l.active; s != nil {
		st.Schedule = &ScheduleStatus{
			Name:          s.Name,
			Segment:       min(s.Current+1, len(s.Segments)),
			Total:         len(s.Segments),
			Target:        s.Target(),
			Soaking:       s.Soaking(),
			SoakRemaining: s.SoakRemaining(now).Seconds(),
			Active:        s.Active,
		}
	}
	return st
}

func safetyReason(err error) string {
	switch {
	case errors.Is(err, safety.ErrEmergencyActive):
		return ReasonEmergencyActive
	case errors.Is(err, safety.ErrHeatingActive):
		return ReasonHeatingActive
	case errors.Is(err, safety.ErrNoSetpoint):
		return ReasonNoSetpoint
	}
	return err.Error()
}

func percent(output float64) float64 {
	return output / 255 * 100
}
