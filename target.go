// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"errors"
	"io"
	"io/fs"
	"time"
)

// errUnsupportedNode is returned by targets that cannot create fifos, sockets or devices.
var errUnsupportedNode = errors.New("node creation not supported by target")

// Target specifies all functions that are needed to write extracted content. Paths
// handed to a Target are already resolved and confined by a [Sandbox].
type Target interface {
	// CreateFile creates a file at the specified path with src as content. The mode parameter is the file mode that
	// should be set on the file. If the file already exists and overwrite is false, an error should be returned. The
	// size of the file should not exceed maxSize. The number of bytes written is returned, also in case of an error.
	// If maxSize < 0, the file size is not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error)

	// AppendFile appends src to the file at the specified path, creating it with mode if it does not exist.
	// At most maxSize bytes are appended; if maxSize < 0, the size is not limited. The number of bytes
	// written is returned, also in case of an error. The file is closed before AppendFile returns.
	AppendFile(path string, src io.Reader, mode fs.FileMode, maxSize int64) (int64, error)

	// CreateDir creates a directory at the specified path with the specified mode. If the directory
	// already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// CreateSymlink creates a symbolic link from newname to oldname. If newname already exists and overwrite
	// is false, the function returns an error.
	CreateSymlink(oldname string, newname string, overwrite bool) error

	// CreateNode creates a fifo, socket, block or character device at path. The type is taken from the
	// type bits of mode, major and minor are only used for devices. If path already exists and overwrite
	// is false, the function returns an error.
	CreateNode(path string, mode fs.FileMode, major, minor uint32, overwrite bool) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the extraction path.
	Lstat(path string) (fs.FileInfo, error)

	// Chmod see docs for os.Chmod.
	Chmod(name string, mode fs.FileMode) error

	// Chtimes see docs for os.Chtimes.
	Chtimes(name string, atime, mtime time.Time) error

	// Lchtimes changes the times of a symlink itself instead of its target.
	Lchtimes(name string, atime, mtime time.Time) error
}
