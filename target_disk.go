// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// TargetDisk is the struct type that holds all information for interacting with the filesystem
type TargetDisk struct{}

// NewTargetDisk creates a new target for the local filesystem
func NewTargetDisk() *TargetDisk {
	return &TargetDisk{}
}

// CreateDir creates a directory at the specified path with the specified mode. If the directory already
// exists, nothing is done.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory (%w)", err)
	}
	return nil
}

// CreateFile creates a file at the specified path with src as content.
// If the file already exists and overwrite is false, an error is returned.
// An existing fifo, device or symlink is replaced and never opened.
// At most maxSize bytes are written, if maxSize < 0, the file size is not limited.
func (d *TargetDisk) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	if err := replaceExisting(d, path, overwrite, os.Remove); err != nil {
		return 0, err
	}

	dstFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|openNoFollow, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer dstFile.Close()

	n, err := io.Copy(limitWriter(dstFile, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// AppendFile appends src to the file at path and creates the file with mode if needed.
// Only regular files are appended to.
func (d *TargetDisk) AppendFile(path string, src io.Reader, mode fs.FileMode, maxSize int64) (int64, error) {
	if err := checkRegular(d, path); err != nil {
		return 0, err
	}

	dstFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND|openNoFollow, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to open file for append: %w", err)
	}
	defer dstFile.Close()

	n, err := io.Copy(limitWriter(dstFile, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("failed to append to file: %w", err)
	}
	return n, nil
}

// CreateSymlink creates a symbolic link from newname to oldname. If
// newname already exists and overwrite is false, an error is returned.
func (d *TargetDisk) CreateSymlink(oldname string, newname string, overwrite bool) error {
	if err := removeExisting(d, newname, overwrite); err != nil {
		return err
	}
	if err := os.Symlink(oldname, newname); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

// Lstat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

// Chmod changes the mode of the named file to mode.
func (d *TargetDisk) Chmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode.Perm())
}

// Chtimes changes the access and modification times of the named file.
func (d *TargetDisk) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Lchtimes changes the access and modification times of the named symlink.
// On platforms without support, nothing is done.
func (d *TargetDisk) Lchtimes(name string, atime, mtime time.Time) error {
	if canMaintainSymlinkTimestamps {
		return lchtimes(name, atime, mtime)
	}
	return nil
}

// replaceExisting returns an error if path exists and must not be overwritten.
// Anything at path that is not a regular file is removed, so that opening path
// for writing cannot block on a fifo or write into a device.
func replaceExisting(t Target, path string, overwrite bool, remove func(string) error) error {
	fi, err := t.Lstat(path)
	if isNotExist(err) {
		return nil
	}

	// something wrong with path
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if !overwrite {
		return fmt.Errorf("file already exists")
	}
	if fi.Mode().IsRegular() {
		return nil
	}
	if err := remove(path); err != nil {
		return fmt.Errorf("failed to overwrite %s: %w", fi.Mode().Type(), err)
	}
	return nil
}

// checkRegular returns an error if path exists and is not a regular file.
func checkRegular(t Target, path string) error {
	fi, err := t.Lstat(path)
	if isNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", fi.Mode().Type())
	}
	return nil
}

// removeExisting removes path if it exists and may be overwritten.
func removeExisting(t Target, path string, overwrite bool) error {
	if _, err := t.Lstat(path); !isNotExist(err) {
		if !overwrite {
			return fmt.Errorf("file already exists")
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to overwrite file: %w", err)
		}
	}
	return nil
}
