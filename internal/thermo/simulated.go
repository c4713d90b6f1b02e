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

package thermo

import (
	"math"
	"math/rand/v2"
	"time"
)

// MaxSimTempC bounds the simulated kiln.
const MaxSimTempC = 1300.0

type SimConfig struct {
	AmbientC float64

	// heating: next = prev*HeatLoss + (heatInput + ambient)*ThermalMass + noise
	HeatLoss    float64
	ThermalMass float64

	// cooling: next = prev*CoolingRate + ambient*(1-CoolingRate)
	CoolingRate float64

	// heat input at full output (255), scaled per zone
	MaxHeatInputC float64
	ZoneGain      [2]float64

	NoiseC float64
	Seed   uint64

	// starting temperatures, zero means ambient
	InitialC [2]float64
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		AmbientC:      22,
		HeatLoss:      0.999,
		ThermalMass:   0.001,
		CoolingRate:   0.995,
		MaxHeatInputC: 1300,
		ZoneGain:      [2]float64{1.0, 0.96},
		NoiseC:        0.5,
		Seed:          1,
	}
}

// Simulated is a two-zone thermal model. Given the same seed and drive
// sequence it produces the same readings.
type Simulated struct {
	cfg     SimConfig
	temps   [2]float64
	output  float64
	heating bool
	rng     *rand.Rand
}

func NewSimulated(cfg SimConfig) *Simulated {
	s := &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	for i := range s.temps {
		s.temps[i] = cfg.InitialC[i]
		if s.temps[i] == 0 {
			s.temps[i] = cfg.AmbientC
		}
	}
	return s
}

// Drive feeds the latest heater command into the model.
func (s *Simulated) Drive(output float64, heating bool) {
	s.output = output
	s.heating = heating
}

// Sample advances the model one step and returns the new temperatures.
func (s *Simulated) Sample(now time.Time) Reading {
	for i := range s.temps {
		s.temps[i] = s.step(s.temps[i], s.cfg.ZoneGain[i])
	}
	return Reading{
		Time:  now,
		Temp1: s.temps[0],
		Temp2: s.temps[1],
	}
}

func (s *Simulated) step(prev, gain float64) float64 {
	ambient := s.cfg.AmbientC
	if !s.heating {
		next := prev*s.cfg.CoolingRate + ambient*(1-s.cfg.CoolingRate)
		return math.Max(next, ambient)
	}

	heatInput := s.output / 255 * s.cfg.MaxHeatInputC * gain
	noise := (s.rng.Float64()*2 - 1) * s.cfg.NoiseC
	next := prev*s.cfg.HeatLoss + (heatInput+ambient)*s.cfg.ThermalMass + noise
	return math.Min(math.Max(next, ambient), MaxSimTempC)
}
