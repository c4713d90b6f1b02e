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

package sysmon

import "golang.org/x/sys/unix"

// diskUsage reports the filesystem holding path the way df does: free
// is what an unprivileged process may still use, used excludes the
// reserved blocks.
func diskUsage(path string) (diskStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return diskStats{}, err
	}
	frag := uint64(st.Frsize)
	if frag == 0 {
		frag = uint64(st.Bsize)
	}
	return diskStats{
		Total: st.Blocks * frag,
		Free:  st.Bavail * frag,
		Used:  (st.Blocks - st.Bfree) * frag,
	}, nil
}
