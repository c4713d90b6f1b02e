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

package thermo

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// spidev ioctl requests, _IOW('k', nr, size)
const (
	spiIocWrMode        = 0x40016b01
	spiIocWrBitsPerWord = 0x40016b03
	spiIocWrMaxSpeedHz  = 0x40046b04
)

// SPIDev reads 4-byte frames from a Linux spidev node.
type SPIDev struct {
	path string
	fd   int
}

// OpenSPIDev opens e.g. /dev/spidev0.0 in mode 0 at speedHz.
func OpenSPIDev(path string, speedHz int) (*SPIDev, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIocWrMode, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: set mode: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIocWrBitsPerWord, 8); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: set bits per word: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIocWrMaxSpeedHz, speedHz); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: set speed: %w", path, err)
	}
	return &SPIDev{path: path, fd: fd}, nil
}

func (d *SPIDev) ReadFrame() (uint32, error) {
	buf := make([]byte, 4)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", d.path, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("%s: short read (%d bytes)", d.path, n)
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (d *SPIDev) Close() error {
	return unix.Close(d.fd)
}
