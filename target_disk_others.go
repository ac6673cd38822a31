// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build !linux && !darwin

package carve

import (
	"fmt"
	"io/fs"
	"runtime"
	"time"
)

// CreateNode is not supported on this platform.
func (d *TargetDisk) CreateNode(path string, mode fs.FileMode, major, minor uint32, overwrite bool) error {
	return fmt.Errorf("%w on this platform (%s)", errUnsupportedNode, runtime.GOOS)
}

// lchtimes modifies the access and modified timestamps on a target path
// This capability is only available on unix as of now.
func lchtimes(_ string, _, _ time.Time) error {
	return fmt.Errorf("Lchtimes is not supported on this platform (%s)", runtime.GOOS)
}

// openNoFollow is not available on this platform.
const openNoFollow = 0

// canMaintainSymlinkTimestamps determines whether is is possible to change
// timestamps on symlinks for the the current platform.
const canMaintainSymlinkTimestamps = false
