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

// Package safety holds the kiln interlock state machine. Once an
// emergency stop is latched, only an explicit Reset clears it.
package safety

import (
	"errors"
	"fmt"
	"time"

	"kilnctl/internal/thermo"
	"kilnctl/pkg/logger"
)

type State int

const (
	Ready State = iota
	Heating
	EmergencyStop
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Heating:
		return "heating"
	case EmergencyStop:
		return "emergency_stop"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Ready, Heating, EmergencyStop} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Reason records why the emergency stop was latched.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonOverTemperature Reason = "over_temperature"
	ReasonMaxDuration     Reason = "max_duration"
	ReasonSensorFault     Reason = "sensor_fault"
	ReasonManual          Reason = "manual"
)

var (
	ErrEmergencyActive = errors.New("emergency_active")
	ErrHeatingActive   = errors.New("heating_active")
	ErrNoSetpoint      = errors.New("no_setpoint")
)

const (
	DefaultMaxTempC       = 1200.0
	DefaultMaxHeatingTime = 4 * time.Hour
)

type Limits struct {
	MaxTempC       float64
	MaxHeatingTime time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxTempC:       DefaultMaxTempC,
		MaxHeatingTime: DefaultMaxHeatingTime,
	}
}

type Monitor struct {
	limits Limits

	state            State
	reason           Reason
	detail           string
	trippedAt        time.Time
	heatingStartedAt time.Time

	log *logger.Logger
}

func New(limits Limits) *Monitor {
	if limits.MaxTempC <= 0 {
		limits.MaxTempC = DefaultMaxTempC
	}
	if limits.MaxHeatingTime <= 0 {
		limits.MaxHeatingTime = DefaultMaxHeatingTime
	}
	return &Monitor{
		limits: limits,
		state:  Ready,
		log:    logger.New("Safety"),
	}
}

// Start moves Ready to Heating. Starting while already heating keeps
// the original heating start time.
func (m *Monitor) Start(now time.Time, setpoint float64) error {
	if m.state == EmergencyStop {
		return ErrEmergencyActive
	}
	if setpoint <= 0 {
		return ErrNoSetpoint
	}
	if m.state == Heating {
		return nil
	}
	m.state = Heating
	m.heatingStartedAt = now
	m.log.Info("heating started, setpoint=%.1f°C", setpoint)
	return nil
}

// Stop is an operator stop. It never clears a latched emergency.
func (m *Monitor) Stop() {
	if m.state == Heating {
		m.state = Ready
		m.log.Info("heating stopped")
	}
	m.heatingStartedAt = time.Time{}
}

// Reset clears a latched emergency. Refused while heating.
func (m *Monitor) Reset() error {
	if m.state == Heating {
		return ErrHeatingActive
	}
	if m.state == EmergencyStop {
		m.log.Info("emergency cleared (was %s)", m.reason)
	}
	m.state = Ready
	m.reason = ReasonNone
	m.detail = ""
	m.trippedAt = time.Time{}
	return nil
}

// Trip latches the emergency stop. The first cause is kept.
func (m *Monitor) Trip(now time.Time, reason Reason, detail string) {
	if m.state == EmergencyStop {
		return
	}
	m.state = EmergencyStop
	m.reason = reason
	m.detail = detail
	m.trippedAt = now
	m.heatingStartedAt = time.Time{}
	m.log.Error("EMERGENCY STOP: %s: %s", reason, detail)
}

// Check runs the interlocks against the latest reading and returns the
// state after the check.
func (m *Monitor) Check(now time.Time, r thermo.Reading) State {
	switch {
	case r.Faulted():
		m.Trip(now, ReasonSensorFault, fmt.Sprintf("fault codes ch1=0x%02x ch2=0x%02x", r.FaultCode1, r.FaultCode2))
	case r.Temp1 > m.limits.MaxTempC || r.Temp2 > m.limits.MaxTempC:
		m.Trip(now, ReasonOverTemperature, fmt.Sprintf("ch1=%.1f°C ch2=%.1f°C limit=%.0f°C", r.Temp1, r.Temp2, m.limits.MaxTempC))
	case m.state == Heating && now.Sub(m.heatingStartedAt) > m.limits.MaxHeatingTime:
		m.Trip(now, ReasonMaxDuration, fmt.Sprintf("heating for %v, limit %v", now.Sub(m.heatingStartedAt).Truncate(time.Second), m.limits.MaxHeatingTime))
	}
	return m.state
}

func (m *Monitor) State() State {
	return m.state
}

func (m *Monitor) Reason() Reason {
	return m.reason
}

func (m *Monitor) Detail() string {
	return m.detail
}

func (m *Monitor) TrippedAt() time.Time {
	return m.trippedAt
}

func (m *Monitor) HeatingStartedAt() time.Time {
	return m.heatingStartedAt
}

func (m *Monitor) Limits() Limits {
	return m.limits
}
