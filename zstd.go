// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"io"

	"github.com/klauspost/compress/zstd"
)

// formatZstd is the format name for zstandard frames.
const formatZstd = "zstd"

// magicBytesZstd is the magic bytes for zstandard files.
// reference: https://www.rfc-editor.org/rfc/rfc8878.html
var magicBytesZstd = [][]byte{
	{0x28, 0xb5, 0x2f, 0xfd},
}

// zstdBlockReserved is the block type that must not appear in a valid frame
const zstdBlockReserved = 3

var codecZstd = codec{
	format:       formatZstd,
	memberLength: zstdMemberLength,
	decompress:   decompressZstdStream,
}

// ExtractZstd decompresses the concatenated zstandard frames at offset in data.
func ExtractZstd(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	return decompress(ctx, data, offset, dst, cfg, codecZstd)
}

// decompressZstdStream returns an io.Reader that decompresses src with zstandard algorithm
func decompressZstdStream(src io.Reader) (io.Reader, error) {
	d, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// zstdMemberLength walks the frame header and the block headers of the
// zstandard frame at the start of data and returns the length of the frame.
func zstdMemberLength(data []byte) int {
	if !matchesMagicBytes(data, 0, magicBytesZstd) || len(data) < 5 {
		return -1
	}

	// frame header descriptor
	fhd := data[4]
	if fhd&0x08 != 0 {
		return -1 // reserved bit
	}
	singleSegment := fhd&0x20 != 0
	checksum := fhd&0x04 != 0

	pos := 5
	if !singleSegment {
		pos++ // window descriptor
	}
	pos += [4]int{0, 1, 2, 4}[fhd&0x03] // dictionary id
	switch fhd >> 6 {
	case 0:
		if singleSegment {
			pos++
		}
	case 1:
		pos += 2
	case 2:
		pos += 4
	case 3:
		pos += 8
	}

	// blocks
	for {
		if pos+3 > len(data) {
			return -1
		}
		header := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16
		pos += 3

		last := header&1 != 0
		size := int(header >> 3)
		switch (header >> 1) & 0x03 {
		case 1:
			size = 1 // rle block stores a single byte
		case zstdBlockReserved:
			return -1
		}
		pos += size
		if pos > len(data) {
			return -1
		}
		if last {
			break
		}
	}

	if checksum {
		pos += 4
	}
	if pos > len(data) {
		return -1
	}
	return pos
}
