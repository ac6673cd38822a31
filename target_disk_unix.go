// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build linux || darwin

package carve

import (
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// CreateNode creates a fifo, socket, block or character device at path. The node
// type is taken from the type bits of mode. Creating devices requires root privileges.
func (d *TargetDisk) CreateNode(path string, mode fs.FileMode, major, minor uint32, overwrite bool) error {
	if err := removeExisting(d, path, overwrite); err != nil {
		return err
	}

	var typ uint32
	switch {
	case mode&fs.ModeNamedPipe != 0:
		if err := unix.Mkfifo(path, uint32(mode.Perm())); err != nil {
			return fmt.Errorf("failed to create fifo: %w", err)
		}
		return nil
	case mode&fs.ModeSocket != 0:
		typ = unix.S_IFSOCK
	case mode&fs.ModeCharDevice != 0:
		typ = unix.S_IFCHR
	case mode&fs.ModeDevice != 0:
		typ = unix.S_IFBLK
	default:
		return fmt.Errorf("%w: %s", errUnsupportedNode, mode.Type())
	}

	dev := unix.Mkdev(major, minor)
	if err := unix.Mknod(path, typ|uint32(mode.Perm()), int(dev)); err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// lchtimes modifies the access and modified timestamps on a target path
// This capability is only available on unix as of now.
func lchtimes(path string, atime, mtime time.Time) error {
	return unix.Lutimes(path, []unix.Timeval{
		unixTimeval(atime),
		unixTimeval(mtime),
	})
}

// unixTimeval converts a time.Time to a unix.Timeval. Note that it always rounds
// up to the nearest microsecond, so even one nanosecond past the previous nanosecond
// will be rounded up to the next microsecond.
func unixTimeval(t time.Time) unix.Timeval {
	return unix.NsecToTimeval(t.UnixNano())
}

// openNoFollow makes opening a file fail if its last path element is a symlink.
const openNoFollow = unix.O_NOFOLLOW

// canMaintainSymlinkTimestamps determines whether is is possible to change
// timestamps on symlinks for the the current platform.
const canMaintainSymlinkTimestamps = true
