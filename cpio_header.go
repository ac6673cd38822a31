// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// ErrInvalidHeader is returned if an archive entry header cannot be parsed.
var ErrInvalidHeader = errors.New("invalid header")

// cpioHeaderLen is the length of the fixed part of a newc entry header.
const cpioHeaderLen = 110

// cpioTrailer is the name of the entry that terminates a cpio archive.
const cpioTrailer = "TRAILER!!!"

// magicBytesCPIO are the magic bytes of cpio newc archives, without and with checksums.
// reference https://man.archlinux.org/man/cpio.5
var magicBytesCPIO = [][]byte{
	[]byte("070701"),
	[]byte("070702"),
}

// file type bits of the mode field
const (
	cpioModeTypeMask = 0o170000
	cpioModeSocket   = 0o140000
	cpioModeSymlink  = 0o120000
	cpioModeRegular  = 0o100000
	cpioModeBlock    = 0o060000
	cpioModeDir      = 0o040000
	cpioModeChar     = 0o020000
	cpioModeFifo     = 0o010000
)

// cpioFileType classifies the file type bits of mode.
func cpioFileType(mode uint32) EntryType {
	switch mode & cpioModeTypeMask {
	case cpioModeRegular:
		return EntryRegular
	case cpioModeDir:
		return EntryDirectory
	case cpioModeSymlink:
		return EntrySymlink
	case cpioModeBlock:
		return EntryBlockDevice
	case cpioModeChar:
		return EntryCharDevice
	case cpioModeFifo:
		return EntryFifo
	case cpioModeSocket:
		return EntrySocket
	default:
		return EntryUnknown
	}
}

// CPIOEntryHeader is the parsed header of one entry of a newc cpio archive.
type CPIOEntryHeader struct {
	Magic []byte
	Mode  uint32

	// DevMajor and DevMinor are the device numbers of block and character devices
	DevMajor uint32
	DevMinor uint32

	// ModTime is zero if the header carries no valid modification time
	ModTime time.Time

	// FileSize is the size of the entry data without padding
	FileSize int

	// DataSize is the size of the entry data including padding to 4 bytes
	DataSize int

	// HeaderSize is the size of the header including name and padding to 4 bytes
	HeaderSize int

	Name string
	Type EntryType
}

// IsExecutable reports if any execute bit is set in the mode of the entry.
func (h *CPIOEntryHeader) IsExecutable() bool {
	return h.Mode&0o111 != 0
}

// ParseCPIOEntryHeader parses the newc entry header at the start of data.
// All header fields are hexadecimal ASCII numbers. If any of the fields that
// are used is not, or if data is too short, an error wrapping [ErrInvalidHeader]
// is returned.
func ParseCPIOEntryHeader(data []byte) (*CPIOEntryHeader, error) {
	if len(data) <= cpioHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes are too short", ErrInvalidHeader, len(data))
	}

	if _, err := cpioHexField(data, 0, 6); err != nil {
		return nil, fmt.Errorf("magic: %w", err)
	}
	mode, err := cpioHexField(data, 14, 22)
	if err != nil {
		return nil, fmt.Errorf("mode: %w", err)
	}
	devMajor, err := cpioHexField(data, 78, 86)
	if err != nil {
		return nil, fmt.Errorf("device major: %w", err)
	}
	devMinor, err := cpioHexField(data, 86, 94)
	if err != nil {
		return nil, fmt.Errorf("device minor: %w", err)
	}
	fileSize, err := cpioHexField(data, 54, 62)
	if err != nil {
		return nil, fmt.Errorf("file size: %w", err)
	}
	nameSize, err := cpioHexField(data, 94, 102)
	if err != nil {
		return nil, fmt.Errorf("name size: %w", err)
	}

	// the name is terminated by a null byte that is not part of the name
	if nameSize == 0 {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidHeader)
	}
	nameEnd := cpioHeaderLen + int(nameSize) - 1
	if nameEnd > len(data) {
		return nil, fmt.Errorf("%w: name exceeds data", ErrInvalidHeader)
	}
	name := data[cpioHeaderLen:nameEnd]
	if !utf8.Valid(name) {
		return nil, fmt.Errorf("%w: name is not valid utf-8", ErrInvalidHeader)
	}

	h := &CPIOEntryHeader{
		Magic:      data[0:6],
		Mode:       uint32(mode),
		DevMajor:   uint32(devMajor),
		DevMinor:   uint32(devMinor),
		FileSize:   int(fileSize),
		DataSize:   align4(int(fileSize)),
		HeaderSize: align4(cpioHeaderLen + int(nameSize)),
		Name:       string(name),
		Type:       cpioFileType(uint32(mode)),
	}

	// the modification time is optional
	if mtime, err := cpioHexField(data, 46, 54); err == nil && mtime > 0 {
		h.ModTime = time.Unix(int64(mtime), 0)
	}

	return h, nil
}

// cpioHexField decodes the hexadecimal ASCII number in data[start:end].
func cpioHexField(data []byte, start, end int) (uint64, error) {
	field := data[start:end]
	if !utf8.Valid(field) {
		return 0, fmt.Errorf("%w: field is not valid utf-8", ErrInvalidHeader)
	}
	v, err := strconv.ParseUint(string(field), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	return v, nil
}

// align4 rounds n up to the next multiple of 4.
func align4(n int) int {
	if rem := n % 4; rem != 0 {
		return n + 4 - rem
	}
	return n
}
