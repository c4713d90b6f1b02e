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

//go:build linux

package ssr

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIO is a relay wired to a GPIO line.
type GPIO struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

func OpenGPIO(chipName string, offset int, activeLow bool) (*GPIO, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chipName, err)
	}

	off := 0
	if activeLow {
		off = 1
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(off), gpiocdev.WithConsumer("kilnctl-ssr"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	return &GPIO{chip: chip, line: line, activeLow: activeLow}, nil
}

func (g *GPIO) Set(on bool) error {
	v := 0
	if on != g.activeLow {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *GPIO) Close() error {
	var lineErr error
	if g.line != nil {
		_ = g.Set(false)
		lineErr = g.line.Close()
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			return err
		}
	}
	return lineErr
}
