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

// RegisterReader reads a named register, see pkg/modbus.
type RegisterReader interface {
	ReadValue(name string) (any, error)
}

// ModbusChannel reads one zone from a Modbus thermocouple input module.
// The status register is optional; any non-zero value is a fault.
type ModbusChannel struct {
	client    RegisterReader
	tempReg   string
	statusReg string
}

func NewModbusChannel(client RegisterReader, tempReg, statusReg string) *ModbusChannel {
	return &ModbusChannel{
		client:    client,
		tempReg:   tempReg,
		statusReg: statusReg,
	}
}

func (c *ModbusChannel) Read() (float64, uint8, error) {
	if c.statusReg != "" {
		v, err := c.client.ReadValue(c.statusReg)
		if err != nil {
			return 0, FaultNone, fmt.Errorf("modbus %s: %w", c.statusReg, err)
		}
		status, ok := asFloat(v)
		if !ok {
			return 0, FaultNone, fmt.Errorf("modbus %s: unexpected type %T", c.statusReg, v)
		}
		if status != 0 {
			code := uint8(status)
			if code == FaultNone {
				code = FaultGeneric
			}
			return 0, code, nil
		}
	}

	v, err := c.client.ReadValue(c.tempReg)
	if err != nil {
		return 0, FaultNone, fmt.Errorf("modbus %s: %w", c.tempReg, err)
	}
	temp, ok := asFloat(v)
	if !ok {
		return 0, FaultNone, fmt.Errorf("modbus %s: unexpected type %T", c.tempReg, v)
	}
	return temp, FaultNone, nil
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
