// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
	"testing"
)

// sevenZipTestArchive returns a signature header followed by nextOffset filler
// bytes and the next header.
func sevenZipTestArchive(nextOffset uint64, next []byte) []byte {
	data := make([]byte, sevenZipSignatureHeaderLen)
	copy(data, magicBytes7zip[0])
	data[6], data[7] = 0, 4
	binary.LittleEndian.PutUint64(data[12:20], nextOffset)
	binary.LittleEndian.PutUint64(data[20:28], uint64(len(next)))
	binary.LittleEndian.PutUint32(data[28:32], crc32.ChecksumIEEE(next))
	binary.LittleEndian.PutUint32(data[8:12], crc32.ChecksumIEEE(data[12:32]))

	data = append(data, make([]byte, nextOffset)...)
	return append(data, next...)
}

func TestParseSevenZipSignatureHeader(t *testing.T) {
	archive := sevenZipTestArchive(5, []byte{0x01, 0x02, 0x03})

	h, err := parseSevenZipSignatureHeader(append(archive, "trailing data"...))
	if err != nil {
		t.Fatalf("parseSevenZipSignatureHeader() error = %v", err)
	}
	if h.Major != 0 || h.Minor != 4 {
		t.Errorf("version = %d.%d, want 0.4", h.Major, h.Minor)
	}
	if h.NextHeaderOffset != 5 || h.NextHeaderSize != 3 {
		t.Errorf("next header = %d+%d, want 5+3", h.NextHeaderOffset, h.NextHeaderSize)
	}
	if h.size() != uint64(len(archive)) {
		t.Errorf("size() = %d, want %d", h.size(), len(archive))
	}
}

func TestParseSevenZipSignatureHeaderInvalid(t *testing.T) {
	valid := sevenZipTestArchive(0, []byte{0x01, 0x00})

	// modify returns a copy of the valid archive changed by fn
	modify := func(fn func(b []byte)) []byte {
		b := append([]byte{}, valid...)
		fn(b)
		return b
	}

	// overflow has a consistent start header with an offset that overflows the size
	overflow := modify(func(b []byte) {
		binary.LittleEndian.PutUint64(b[12:20], math.MaxUint64-1)
		binary.LittleEndian.PutUint32(b[8:12], crc32.ChecksumIEEE(b[12:32]))
	})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: valid[:31]},
		{name: "magic mismatch", data: modify(func(b []byte) { b[0] = 'X' })},
		{name: "start header checksum mismatch", data: modify(func(b []byte) { b[8] ^= 0xff })},
		{name: "next header checksum mismatch", data: modify(func(b []byte) { b[len(b)-1] ^= 0xff })},
		{name: "next header exceeds data", data: valid[:len(valid)-1]},
		{name: "offset overflow", data: overflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseSevenZipSignatureHeader(tt.data); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("parseSevenZipSignatureHeader() error = %v, want %v", err, ErrInvalidHeader)
			}
		})
	}
}
