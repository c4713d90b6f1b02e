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

//go:build !linux

package thermo

import "errors"

// SPIDev is not available on non-Linux platforms.
type SPIDev struct{}

func OpenSPIDev(path string, speedHz int) (*SPIDev, error) {
	return nil, errors.New("spidev: not supported on this platform (requires Linux)")
}

func (d *SPIDev) ReadFrame() (uint32, error) {
	return 0, errors.New("spidev: not supported")
}

func (d *SPIDev) Close() error {
	return nil
}
