// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// errUnsupportedEntry is returned for archive entries of an unknown type.
var errUnsupportedEntry = errors.New("unsupported entry type")

// EntryType is the type of an archive entry.
type EntryType int

const (
	EntryUnknown EntryType = iota
	EntryRegular
	EntryDirectory
	EntrySymlink
	EntryBlockDevice
	EntryCharDevice
	EntryFifo
	EntrySocket
)

// String returns the name of the entry type.
func (t EntryType) String() string {
	switch t {
	case EntryRegular:
		return "regular file"
	case EntryDirectory:
		return "directory"
	case EntrySymlink:
		return "symlink"
	case EntryBlockDevice:
		return "block device"
	case EntryCharDevice:
		return "character device"
	case EntryFifo:
		return "fifo"
	case EntrySocket:
		return "socket"
	default:
		return "unknown"
	}
}

// archiveWalker is an interface that represents a file walker in an archive
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file in an archive
type archiveEntry interface {
	Dev() (major uint32, minor uint32)
	IsExecutable() bool
	Linkname() (string, error)
	ModTime() time.Time
	Name() string
	Type() EntryType
	Carve(sb *Sandbox) error
}

// extractEntries materializes every entry of w in sb and returns the number of
// entries that were created. A failing entry does not stop the extraction of
// the following entries.
func extractEntries(ctx context.Context, w archiveWalker, sb *Sandbox, cfg *Config, m *TelemetryData) int {
	extracted := 0
	for {
		// check if context is canceled
		if err := ctx.Err(); err != nil {
			recordError(m, fmt.Errorf("context error: %w", err))
			cfg.Logger().Error("extraction canceled", "format", w.Type(), "error", err)
			return extracted
		}

		ae, err := w.Next()
		if errors.Is(err, io.EOF) {
			return extracted
		}
		if err != nil {
			recordError(m, err)
			cfg.Logger().Error("cannot read entry", "format", w.Type(), "error", err)
			return extracted
		}

		err = extractEntry(sb, ae, m)
		switch {
		case err == nil:
			extracted++
		case errors.Is(err, errSymlinkDenied), errors.Is(err, errUnsupportedEntry):
			m.UnsupportedFiles++
			m.LastUnsupportedFile = ae.Name()
			cfg.Logger().Warn("skipped unsupported entry", "format", w.Type(), "name", ae.Name(), "type", ae.Type().String(), "reason", err)
		default:
			recordError(m, err)
			cfg.Logger().Error("cannot extract entry", "format", w.Type(), "name", ae.Name(), "type", ae.Type().String(), "error", err)
		}
	}
}

// extractEntry creates ae in sb according to its type.
func extractEntry(sb *Sandbox, ae archiveEntry, m *TelemetryData) error {
	name := ae.Name()

	switch ae.Type() {
	case EntryDirectory:
		if err := sb.CreateDirectory(name); err != nil {
			return err
		}
		m.ExtractedDirs++
		return nil

	case EntryRegular:
		if err := ae.Carve(sb); err != nil {
			return err
		}
		if ae.IsExecutable() {
			if err := sb.MakeExecutable(name); err != nil {
				return fmt.Errorf("cannot make executable: %w", err)
			}
		}
		m.ExtractedFiles++

	case EntrySymlink:
		target, err := ae.Linkname()
		if err != nil {
			return err
		}
		if err := sb.CreateSymlink(name, target); err != nil {
			return err
		}
		m.ExtractedSymlinks++

	case EntryFifo:
		if err := sb.CreateFifo(name); err != nil {
			return err
		}
		m.ExtractedNodes++

	case EntrySocket:
		if err := sb.CreateSocket(name); err != nil {
			return err
		}
		m.ExtractedNodes++

	case EntryBlockDevice:
		major, minor := ae.Dev()
		if err := sb.CreateBlockDevice(name, major, minor); err != nil {
			return err
		}
		m.ExtractedNodes++

	case EntryCharDevice:
		major, minor := ae.Dev()
		if err := sb.CreateCharDevice(name, major, minor); err != nil {
			return err
		}
		m.ExtractedNodes++

	default:
		return errUnsupportedEntry
	}

	// restore modification time of files, links and nodes
	if mtime := ae.ModTime(); !mtime.IsZero() {
		if err := sb.SetModTime(name, mtime); err != nil {
			sb.cfg.Logger().Debug("cannot restore modification time", "name", name, "error", err)
		}
	}
	return nil
}
