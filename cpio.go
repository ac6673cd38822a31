// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

// formatCPIO is the format name for newc cpio archives.
const formatCPIO = "cpio"

// ExtractCPIO walks the newc cpio archive at offset in data. The archive is
// only valid if its trailer is found; the consumed size then spans every entry
// including the trailer. If dst is set, all entries of a valid archive are
// created in the sandbox rooted at dst. If no entry can be created, the
// extraction fails even though the archive itself is valid.
func ExtractCPIO(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	cfg, m := prepare(cfg, formatCPIO, data, offset)

	// prepare telemetry capturing
	var res ExtractionResult
	defer cfg.TelemetryHook()(ctx, m)
	defer captureExtractionDuration(m, now())
	defer captureResult(m, &res)

	if offset < 0 || offset >= len(data) {
		cfg.Logger().Debug("offset beyond input", "format", formatCPIO, "offset", offset, "size", len(data))
		return res
	}
	if err := cfg.CheckInputSize(int64(len(data))); err != nil {
		recordError(m, err)
		cfg.Logger().Error("input too large", "format", formatCPIO, "size", len(data), "error", err)
		return res
	}

	cfg.Logger().Info("extract", "format", formatCPIO, "offset", offset)

	entries, total, ok := walkCPIO(ctx, data, offset, cfg, m)
	if !ok {
		cfg.Logger().Debug("no cpio trailer found", "offset", offset, "entries", len(entries))
		return res
	}
	res.Success = true
	res.Size = int64(total)

	// dry run
	if len(dst) == 0 {
		return res
	}

	sb, err := NewSandbox(dst, cfg)
	if err != nil {
		recordError(m, err)
		cfg.Logger().Error("cannot prepare output", "dst", dst, "error", err)
		res.Success = false
		return res
	}
	defer func() { m.ExtractionSize = sb.Written() }()

	if extracted := extractEntries(ctx, &cpioWalker{entries: entries}, sb, cfg, m); extracted == 0 {
		cfg.Logger().Warn("no cpio entry extracted", "offset", offset, "entries", len(entries))
		res.Success = false
	}
	return res
}

// walkCPIO parses the entry headers starting at offset until the trailer is
// found. It returns the entries before the trailer, the size of all entries
// including the trailer and whether the trailer was found.
func walkCPIO(ctx context.Context, data []byte, offset int, cfg *Config, m *TelemetryData) ([]*cpioEntry, int, bool) {
	var entries []*cpioEntry
	total := 0
	next, previous := offset, -1

	for isOffsetSafe(len(data), next, previous) {

		// check if context is canceled
		if err := ctx.Err(); err != nil {
			recordError(m, fmt.Errorf("context error: %w", err))
			return entries, total, false
		}

		h, err := ParseCPIOEntryHeader(data[next:])
		if err != nil {
			recordError(m, err)
			cfg.Logger().Debug("stop at invalid cpio header", "offset", next, "error", err)
			return entries, total, false
		}

		total += h.HeaderSize + h.DataSize
		if h.Name == cpioTrailer {
			return entries, total, true
		}

		// check if maximum of files is exceeded
		if err := cfg.CheckMaxFiles(int64(len(entries) + 1)); err != nil {
			recordError(m, err)
			cfg.Logger().Error("too many cpio entries", "max", cfg.MaxFiles(), "error", err)
			return entries, total, false
		}

		entries = append(entries, &cpioEntry{
			data:       data,
			dataOffset: next + h.HeaderSize,
			size:       h.FileSize,
			header:     h,
		})

		previous = next
		next += h.HeaderSize + h.DataSize
	}

	return entries, total, false
}

// isOffsetSafe reports if next lies within a buffer of length size and
// advances beyond previous. A negative previous means there is none.
func isOffsetSafe(size, next, previous int) bool {
	return next < size && next > previous
}

// cpioWalker walks over the entries found by walkCPIO.
type cpioWalker struct {
	entries []*cpioEntry
	fp      int
}

func (w *cpioWalker) Type() string {
	return formatCPIO
}

func (w *cpioWalker) Next() (archiveEntry, error) {
	if w.fp >= len(w.entries) {
		return nil, io.EOF
	}
	defer func() { w.fp++ }()
	return w.entries[w.fp], nil
}

// cpioEntry is an entry of a cpio archive with its data in the source buffer.
type cpioEntry struct {
	data       []byte
	dataOffset int
	size       int
	header     *CPIOEntryHeader
}

func (e *cpioEntry) Dev() (uint32, uint32) {
	return e.header.DevMajor, e.header.DevMinor
}

func (e *cpioEntry) IsExecutable() bool {
	return e.header.IsExecutable()
}

// Linkname returns the symlink target stored as entry data, up to the first null byte.
func (e *cpioEntry) Linkname() (string, error) {
	if e.dataOffset > len(e.data) || e.size > len(e.data)-e.dataOffset {
		return "", fmt.Errorf("symlink target: %w", errOutOfBounds)
	}
	target := e.data[e.dataOffset : e.dataOffset+e.size]
	if i := bytes.IndexByte(target, 0); i >= 0 {
		target = target[:i]
	}
	if !utf8.Valid(target) {
		return "", fmt.Errorf("symlink target is not valid utf-8")
	}
	return string(target), nil
}

func (e *cpioEntry) ModTime() time.Time {
	return e.header.ModTime
}

func (e *cpioEntry) Name() string {
	return e.header.Name
}

func (e *cpioEntry) Type() EntryType {
	return e.header.Type
}

func (e *cpioEntry) Carve(sb *Sandbox) error {
	return sb.CarveFile(e.header.Name, e.data, e.dataOffset, e.size)
}
