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
	"time"

	"kilnctl/pkg/logger"
)

// Fault codes. The low three bits follow the MAX31855 layout.
const (
	FaultNone        uint8 = 0
	FaultOpenCircuit uint8 = 0x01
	FaultShortGND    uint8 = 0x02
	FaultShortVCC    uint8 = 0x04
	FaultGeneric     uint8 = 0x08
	FaultReadError   uint8 = 0x80
)

// Channel is one thermocouple amplifier. A non-zero fault code marks
// the temperature as unusable.
type Channel interface {
	Read() (tempC float64, faultCode uint8, err error)
}

// Hardware samples two independent channels. Both zones belong to one
// firing, so a fault on either channel faults the whole reading.
type Hardware struct {
	ch1, ch2 Channel
	log      *logger.Logger
}

func NewHardware(ch1, ch2 Channel) *Hardware {
	return &Hardware{
		ch1: ch1,
		ch2: ch2,
		log: logger.New("Thermocouples"),
	}
}

func (h *Hardware) Sample(now time.Time) Reading {
	t1, f1 := h.read(1, h.ch1)
	t2, f2 := h.read(2, h.ch2)

	faulted := f1 != FaultNone || f2 != FaultNone
	return Reading{
		Time:       now,
		Temp1:      t1,
		Temp2:      t2,
		Fault1:     faulted,
		Fault2:     faulted,
		FaultCode1: f1,
		FaultCode2: f2,
	}
}

func (h *Hardware) read(n int, ch Channel) (float64, uint8) {
	temp, code, err := ch.Read()
	if err != nil {
		h.log.Error("channel %d: %v", n, err)
		return temp, code | FaultReadError
	}
	if code != FaultNone {
		h.log.Debug("channel %d: fault code 0x%02x", n, code)
	}
	return temp, code
}
