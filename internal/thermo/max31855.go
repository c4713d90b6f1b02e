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

import "fmt"

// FrameReader returns raw 32-bit MAX31855 conversion frames.
type FrameReader interface {
	ReadFrame() (uint32, error)
}

// MAX31855 is a Channel backed by a MAX31855 thermocouple amplifier.
type MAX31855 struct {
	dev FrameReader
}

func NewMAX31855(dev FrameReader) *MAX31855 {
	return &MAX31855{dev: dev}
}

func (m *MAX31855) Read() (float64, uint8, error) {
	frame, err := m.dev.ReadFrame()
	if err != nil {
		return 0, FaultNone, fmt.Errorf("max31855: read frame: %w", err)
	}
	temp, code := DecodeMAX31855(frame)
	return temp, code, nil
}

// DecodeMAX31855 extracts the thermocouple temperature (14-bit signed,
// 0.25°C steps, bits 31..18) and the fault bits. Bit 16 flags a fault,
// bits 2..0 give short-to-VCC, short-to-GND and open circuit.
func DecodeMAX31855(frame uint32) (float64, uint8) {
	if frame&(1<<16) != 0 {
		code := uint8(frame & 0x07)
		if code == FaultNone {
			code = FaultGeneric
		}
		return 0, code
	}
	raw := int32(frame) >> 18
	return float64(raw) * 0.25, FaultNone
}
