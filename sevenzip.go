// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"time"

	"github.com/bodgit/sevenzip"
)

// format7zip is the format name for 7zip archives
const format7zip = "7z"

// magicBytes7zip are the magic bytes for 7zip files
var magicBytes7zip = [][]byte{
	{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C},
}

const (
	// sevenZipSignatureHeaderLen is the length of the signature header at the
	// start of every 7zip archive
	sevenZipSignatureHeaderLen = 32

	// sevenZipMaxLinkLen limits the size of symlink targets read from an archive
	sevenZipMaxLinkLen = 4096
)

// sevenZipSignatureHeader is the fixed header at the start of a 7zip archive.
type sevenZipSignatureHeader struct {
	Major, Minor     byte
	NextHeaderOffset uint64
	NextHeaderSize   uint64
}

// size returns the size of the archive, which ends with the next header.
func (h sevenZipSignatureHeader) size() uint64 {
	return sevenZipSignatureHeaderLen + h.NextHeaderOffset + h.NextHeaderSize
}

// parseSevenZipSignatureHeader parses and verifies the signature header at the
// start of data. The archive it describes must lie completely within data.
func parseSevenZipSignatureHeader(data []byte) (sevenZipSignatureHeader, error) {
	var h sevenZipSignatureHeader
	if len(data) < sevenZipSignatureHeaderLen {
		return h, fmt.Errorf("%w: %d bytes are too short", ErrInvalidHeader, len(data))
	}
	if !matchesMagicBytes(data, 0, magicBytes7zip) {
		return h, fmt.Errorf("%w: magic bytes mismatch", ErrInvalidHeader)
	}
	if crc32.ChecksumIEEE(data[12:32]) != binary.LittleEndian.Uint32(data[8:12]) {
		return h, fmt.Errorf("%w: start header checksum mismatch", ErrInvalidHeader)
	}

	h.Major, h.Minor = data[6], data[7]
	h.NextHeaderOffset = binary.LittleEndian.Uint64(data[12:20])
	h.NextHeaderSize = binary.LittleEndian.Uint64(data[20:28])

	// check bounds before the sum can overflow
	available := uint64(len(data) - sevenZipSignatureHeaderLen)
	if h.NextHeaderOffset > available || h.NextHeaderSize > available-h.NextHeaderOffset {
		return h, fmt.Errorf("%w: next header exceeds data", ErrInvalidHeader)
	}

	next := data[sevenZipSignatureHeaderLen+h.NextHeaderOffset : h.size()]
	if crc32.ChecksumIEEE(next) != binary.LittleEndian.Uint32(data[28:32]) {
		return h, fmt.Errorf("%w: next header checksum mismatch", ErrInvalidHeader)
	}

	return h, nil
}

// Extract7Zip extracts the 7zip archive at offset in data. The consumed size
// is taken from the signature header. If dst is set, directories, regular files
// and symlinks are created in the sandbox rooted at dst. If no entry can be
// created, the extraction fails.
func Extract7Zip(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	cfg, m := prepare(cfg, format7zip, data, offset)

	// prepare telemetry capturing
	var res ExtractionResult
	defer cfg.TelemetryHook()(ctx, m)
	defer captureExtractionDuration(m, now())
	defer captureResult(m, &res)

	if offset < 0 || offset >= len(data) {
		cfg.Logger().Debug("offset beyond input", "format", format7zip, "offset", offset, "size", len(data))
		return res
	}
	if err := cfg.CheckInputSize(int64(len(data))); err != nil {
		recordError(m, err)
		cfg.Logger().Error("input too large", "format", format7zip, "size", len(data), "error", err)
		return res
	}

	cfg.Logger().Info("extract", "format", format7zip, "offset", offset)

	h, err := parseSevenZipSignatureHeader(data[offset:])
	if err != nil {
		recordError(m, err)
		cfg.Logger().Error("cannot parse 7zip header", "offset", offset, "error", err)
		return res
	}
	size := int64(h.size())

	// create 7zip reader on the archive span
	reader, err := sevenzip.NewReader(bytes.NewReader(data[offset:offset+int(size)]), size)
	if err != nil {
		recordError(m, err)
		cfg.Logger().Error("cannot create 7zip reader", "offset", offset, "error", err)
		return res
	}

	// check if maximum of files is exceeded
	if err := cfg.CheckMaxFiles(int64(len(reader.File))); err != nil {
		recordError(m, err)
		cfg.Logger().Error("too many 7zip entries", "max", cfg.MaxFiles(), "error", err)
		return res
	}

	res.Success = true
	res.Size = size

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

	if extracted := extractEntries(ctx, &sevenZipWalker{r: reader}, sb, cfg, m); extracted == 0 {
		cfg.Logger().Warn("no 7zip entry extracted", "offset", offset, "entries", len(reader.File))
		res.Success = false
	}
	return res
}

type sevenZipWalker struct {
	r  *sevenzip.Reader
	fp int
}

func (z *sevenZipWalker) Type() string {
	return format7zip
}

func (z *sevenZipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.r.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &sevenZipEntry{z.r.File[z.fp]}, nil
}

type sevenZipEntry struct {
	f *sevenzip.File
}

func (z *sevenZipEntry) Carve(sb *Sandbox) error {
	rc, err := z.f.Open()
	if err != nil {
		return fmt.Errorf("cannot open entry: %w", err)
	}
	defer rc.Close()
	return sb.CopyFile(z.f.Name, rc)
}

// Dev returns no device numbers, 7zip does not store devices.
func (z *sevenZipEntry) Dev() (uint32, uint32) {
	return 0, 0
}

func (z *sevenZipEntry) IsExecutable() bool {
	return z.f.FileInfo().Mode().Perm()&0o111 != 0
}

// Linkname reads the symlink target, which is stored as entry content.
func (z *sevenZipEntry) Linkname() (string, error) {
	rc, err := z.f.Open()
	if err != nil {
		return "", fmt.Errorf("cannot open entry: %w", err)
	}
	defer rc.Close()

	target, err := io.ReadAll(io.LimitReader(rc, sevenZipMaxLinkLen))
	if err != nil {
		return "", fmt.Errorf("cannot read symlink target: %w", err)
	}
	return string(target), nil
}

func (z *sevenZipEntry) ModTime() time.Time {
	return z.f.FileInfo().ModTime()
}

func (z *sevenZipEntry) Name() string {
	return z.f.Name
}

func (z *sevenZipEntry) Type() EntryType {
	mode := z.f.FileInfo().Mode()
	switch {
	case mode.IsDir():
		return EntryDirectory
	case mode&fs.ModeSymlink != 0:
		return EntrySymlink
	case mode.IsRegular():
		return EntryRegular
	default:
		return EntryUnknown
	}
}
