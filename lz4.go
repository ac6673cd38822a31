// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"
)

// formatLZ4 is the format name for LZ4 frames.
const formatLZ4 = "lz4"

// magicBytesLZ4 is the magic bytes for LZ4 files.
// reference https://android.googlesource.com/platform/external/lz4/+/HEAD/doc/lz4_Frame_format.md
var magicBytesLZ4 = [][]byte{
	{0x04, 0x22, 0x4D, 0x18},
}

const (
	lz4FlagBlockChecksum   = 0x10
	lz4FlagContentSize     = 0x08
	lz4FlagContentChecksum = 0x04
	lz4FlagDictID          = 0x01

	// lz4BlockUncompressed is set in the size of blocks stored as is
	lz4BlockUncompressed = 0x80000000
)

var codecLZ4 = codec{
	format:       formatLZ4,
	memberLength: lz4MemberLength,
	decompress:   decompressLZ4Stream,
}

// ExtractLZ4 decompresses the concatenated LZ4 frames at offset in data.
func ExtractLZ4(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	return decompress(ctx, data, offset, dst, cfg, codecLZ4)
}

// decompressLZ4Stream returns an io.Reader that decompresses src with lz4 algorithm
func decompressLZ4Stream(src io.Reader) (io.Reader, error) {
	return lz4.NewReader(src), nil
}

// lz4MemberLength walks the frame descriptor and the blocks of the LZ4 frame at
// the start of data and returns the length of the frame.
func lz4MemberLength(data []byte) int {
	if !matchesMagicBytes(data, 0, magicBytesLZ4) || len(data) < 7 {
		return -1
	}

	flg := data[4]
	if flg>>6 != 1 {
		return -1 // version
	}

	// magic, flags, block descriptor and header checksum
	pos := 7
	if flg&lz4FlagContentSize != 0 {
		pos += 8
	}
	if flg&lz4FlagDictID != 0 {
		pos += 4
	}

	for {
		if pos+4 > len(data) {
			return -1
		}
		size := binary.LittleEndian.Uint32(data[pos:])
		pos += 4
		if size == 0 {
			break // end mark
		}
		pos += int(size &^ lz4BlockUncompressed)
		if flg&lz4FlagBlockChecksum != 0 {
			pos += 4
		}
		if pos > len(data) {
			return -1
		}
	}

	if flg&lz4FlagContentChecksum != 0 {
		pos += 4
	}
	if pos > len(data) {
		return -1
	}
	return pos
}
