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

package pidctrl

import (
	"kilnctl/pkg/logger"
	"time"
)

type PIDController struct {
	Kp, Ki, Kd   float64
	OutputMin    float64
	OutputMax    float64
	SamplePeriod time.Duration
	AntiWindup   bool

	integral  float64
	prevInput float64
	hasPrev   bool
	terms     Terms

	log *logger.Logger
}

// Terms holds the contribution of each term from the last Compute.
type Terms struct {
	P, I, D float64
	Error   float64
	Output  float64
}

// Compute returns the heater command for the given measurement. The
// sample period is fixed, callers must invoke it once per period.
func (pid *PIDController) Compute(input, setpoint float64) float64 {
	dt := pid.SamplePeriod.Seconds()
	err := setpoint - input

	// --- Integral term, bounded so Ki*integral stays inside the output range ---
	integral := pid.integral + err*dt
	if pid.Ki > 0 {
		integral = clamp(integral, pid.OutputMin/pid.Ki, pid.OutputMax/pid.Ki)
	}

	// --- Derivative on measurement, no kick on setpoint changes ---
	var deriv float64
	if pid.hasPrev && dt > 0 {
		deriv = (input - pid.prevInput) / dt
	}

	raw := pid.Kp*err + pid.Ki*integral - pid.Kd*deriv
	output := clamp(raw, pid.OutputMin, pid.OutputMax)

	// Roll back the integral step only when it pushes further into saturation,
	// so it keeps unwinding as soon as the error changes sign.
	if pid.AntiWindup && ((raw > pid.OutputMax && err > 0) || (raw < pid.OutputMin && err < 0)) {
		integral = pid.integral
	}

	pid.integral = integral
	pid.prevInput = input
	pid.hasPrev = true
	pid.terms = Terms{
		P:      pid.Kp * err,
		I:      pid.Ki * integral,
		D:      -pid.Kd * deriv,
		Error:  err,
		Output: output,
	}

	pid.log.Debug("err=%.2f°C, P=%.1f I=%.1f D=%.1f, output=%.1f", err, pid.terms.P, pid.terms.I, pid.terms.D, output)
	return output
}

// Reset clears integral and derivative memory so no stale term spikes
// the output when heating resumes.
func (pid *PIDController) Reset() {
	pid.integral = 0
	pid.prevInput = 0
	pid.hasPrev = false
	pid.terms = Terms{}
}

func (pid *PIDController) Terms() Terms {
	return pid.terms
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

// --- Fluent "With" setters ---

func NewPIDController(kp, ki, kd float64) *PIDController {
	return &PIDController{
		Kp:           kp,
		Ki:           ki,
		Kd:           kd,
		OutputMin:    0,
		OutputMax:    255,
		SamplePeriod: 250 * time.Millisecond,
		log:          logger.New("PID Control"),
	}
}

func (pid *PIDController) WithOutputLimits(min, max float64) *PIDController {
	pid.OutputMin = min
	pid.OutputMax = max
	return pid
}

func (pid *PIDController) WithSamplePeriod(period time.Duration) *PIDController {
	pid.SamplePeriod = period
	return pid
}

func (pid *PIDController) WithAntiWindup(enabled bool) *PIDController {
	pid.AntiWindup = enabled
	return pid
}
