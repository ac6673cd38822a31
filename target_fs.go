// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/afero"
)

// TargetFs is a [Target] that writes to an [afero.Fs], for example an in-memory
// filesystem for dry runs or an [afero.BasePathFs] for an additional root guard.
// Symlinks are only supported if the filesystem implements [afero.Linker]. Fifos,
// sockets and devices are not supported.
type TargetFs struct {
	fs afero.Fs
}

// NewTargetFs creates a new target that writes to fs.
func NewTargetFs(fs afero.Fs) *TargetFs {
	return &TargetFs{fs: fs}
}

// NewTargetMemory creates a new target that keeps all output in memory.
func NewTargetMemory() *TargetFs {
	return NewTargetFs(afero.NewMemMapFs())
}

// Fs returns the underlying filesystem.
func (t *TargetFs) Fs() afero.Fs {
	return t.fs
}

// CreateFile creates a file at the specified path with src as content.
func (t *TargetFs) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	if err := replaceExisting(t, path, overwrite, t.fs.Remove); err != nil {
		return 0, err
	}

	f, err := t.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(limitWriter(f, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// AppendFile appends src to the file at path and creates the file with mode if needed.
func (t *TargetFs) AppendFile(path string, src io.Reader, mode fs.FileMode, maxSize int64) (int64, error) {
	if err := checkRegular(t, path); err != nil {
		return 0, err
	}

	f, err := t.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to open file for append: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(limitWriter(f, maxSize), src)
	if err != nil {
		return n, fmt.Errorf("failed to append to file: %w", err)
	}
	return n, nil
}

// CreateDir creates a directory at the specified path with the specified mode.
func (t *TargetFs) CreateDir(path string, mode fs.FileMode) error {
	if err := t.fs.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory (%w)", err)
	}
	return nil
}

// CreateSymlink creates a symbolic link from newname to oldname if the
// underlying filesystem supports symlinks.
func (t *TargetFs) CreateSymlink(oldname string, newname string, overwrite bool) error {
	linker, ok := t.fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("symlinks not supported by %s", t.fs.Name())
	}

	if _, err := t.Lstat(newname); err == nil {
		if !overwrite {
			return fmt.Errorf("file already exists")
		}
		if err := t.fs.Remove(newname); err != nil {
			return fmt.Errorf("failed to overwrite file: %w", err)
		}
	}

	if err := linker.SymlinkIfPossible(oldname, newname); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

// CreateNode is not supported by afero filesystems.
func (t *TargetFs) CreateNode(path string, mode fs.FileMode, major, minor uint32, overwrite bool) error {
	return fmt.Errorf("%w: %s", errUnsupportedNode, t.fs.Name())
}

// Lstat returns the FileInfo of path without following a final symlink, if
// the filesystem supports it.
func (t *TargetFs) Lstat(path string) (fs.FileInfo, error) {
	if lstater, ok := t.fs.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(path)
		return fi, err
	}
	return t.fs.Stat(path)
}

// Chmod changes the mode of the named file to mode.
func (t *TargetFs) Chmod(name string, mode fs.FileMode) error {
	return t.fs.Chmod(name, mode.Perm())
}

// Chtimes changes the access and modification times of the named file.
func (t *TargetFs) Chtimes(name string, atime, mtime time.Time) error {
	return t.fs.Chtimes(name, atime, mtime)
}

// Lchtimes is a no-op, afero has no notion of symlink timestamps.
func (t *TargetFs) Lchtimes(name string, atime, mtime time.Time) error {
	return nil
}

// isNotExist reports whether err tells that a path does not exist on any target.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
