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

package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReadTyped reads a register value and converts it into the requested type T.
// Supported T: float32, float64, int16, uint16, int, bool
func ReadTyped[T any](c *Client, name string) (T, error) {
	var zero T

	val, err := c.ReadValue(name)
	if err != nil {
		return zero, err
	}

	switch any(zero).(type) {

	case float32:
		switch v := val.(type) {
		case float32:
			return any(v).(T), nil
		case int16:
			return any(float32(v)).(T), nil
		case uint16:
			return any(float32(v)).(T), nil
		}
		return zero, fmt.Errorf("cannot convert %T to float32", val)

	case float64:
		switch v := val.(type) {
		case float32:
			return any(float64(v)).(T), nil
		case int16:
			return any(float64(v)).(T), nil
		case uint16:
			return any(float64(v)).(T), nil
		}
		return zero, fmt.Errorf("cannot convert %T to float64", val)

	case int16:
		switch v := val.(type) {
		case float32:
			return any(int16(math.Round(float64(v)))).(T), nil
		case int16:
			return any(v).(T), nil
		default:
			return zero, fmt.Errorf("cannot convert %T to int16", val)
		}

	case uint16:
		switch v := val.(type) {
		case float32:
			return any(uint16(math.Round(float64(v)))).(T), nil
		case uint16:
			return any(v).(T), nil
		default:
			return zero, fmt.Errorf("cannot convert %T to uint16", val)
		}

	case int:
		switch v := val.(type) {
		case float32:
			return any(int(math.Round(float64(v)))).(T), nil
		case int16:
			return any(int(v)).(T), nil
		case uint16:
			return any(int(v)).(T), nil
		default:
			return zero, fmt.Errorf("cannot convert %T to int", val)
		}

	case bool:
		b, ok := val.(bool)
		if !ok {
			return zero, fmt.Errorf("cannot convert %T to bool", val)
		}
		return any(b).(T), nil

	default:
		return zero, fmt.Errorf("unsupported type parameter %T", zero)
	}
}

// ReadValue reads a register by name and returns its decoded value as `any`.
// Supported return types:
//   - float32 (for float32 or scaled int16/uint16 registers)
//   - int16   (for int16 registers without scaling)
//   - uint16  (for uint16 registers without scaling)
//   - bool    (for bool registers)
func (c *Client) ReadValue(name string) (any, error) {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return nil, fmt.Errorf("register %q not configured", name)
	}

	nregisters, err := registerCount(regDef.DataType)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}

	var raw []byte
	if regDef.Type == "input" {
		raw, err = c.ReadInputRegisters(c.ctx, regDef.Address, nregisters)
	} else {
		raw, err = c.ReadRegisters(c.ctx, regDef.Address, nregisters)
	}
	if err != nil {
		return nil, fmt.Errorf("register read failed for %s: %w", name, err)
	}

	return decode(regDef, raw)
}

func decode(regDef RegisterDef, raw []byte) (any, error) {
	n, err := registerCount(regDef.DataType)
	if err != nil {
		return nil, err
	}
	if len(raw) < int(n*2) {
		return nil, fmt.Errorf("insufficient data: got %d bytes, want %d", len(raw), n*2)
	}

	var valf64 float64
	switch regDef.DataType {
	case "float32":
		valf64 = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
		if regDef.Scale == 0 {
			return float32(valf64), nil
		}

	case "int16":
		valf64 = float64(int16(binary.BigEndian.Uint16(raw)))
		if regDef.Scale == 0 {
			return int16(valf64), nil
		}

	case "uint16":
		valf64 = float64(binary.BigEndian.Uint16(raw))
		if regDef.Scale == 0 {
			return uint16(valf64), nil
		}

	case "bool", "binary":
		return binary.BigEndian.Uint16(raw) != 0, nil
	}

	// if requires scaling, always return float32
	valf64 = valf64*regDef.Scale + regDef.Offset
	return float32(valf64), nil
}

func registerCount(dt string) (uint16, error) {
	switch dt {
	case "uint16", "int16", "bool", "binary":
		return 1, nil
	case "float32":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", dt)
	}
}
