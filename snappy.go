// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"io"

	"github.com/klauspost/compress/snappy"
)

// formatSnappy is the format name for framed snappy streams.
const formatSnappy = "snappy"

// magicBytesSnappy is the magic bytes for snappy files.
var magicBytesSnappy = [][]byte{
	append([]byte{0xff, 0x06, 0x00, 0x00}, []byte("sNaPpY")...),
}

// snappy chunk types
// reference https://github.com/google/snappy/blob/main/framing_format.txt
const (
	snappyChunkCompressed   = 0x00
	snappyChunkUncompressed = 0x01
	snappyChunkSkippable    = 0x80
	snappyChunkStreamID     = 0xff
)

const (
	// snappyChecksumLen is the length of the masked CRC-32C of data chunks
	snappyChecksumLen = 4

	// snappyMaxBlockLen is the maximum uncompressed length of a chunk
	snappyMaxBlockLen = 65536

	// snappyMaxEncodedBlockLen is the maximum compressed length of a block,
	// 32 + n + n/6 for n = snappyMaxBlockLen
	snappyMaxEncodedBlockLen = 76490
)

var codecSnappy = codec{
	format:       formatSnappy,
	memberLength: snappyMemberLength,
	decompress:   decompressSnappyStream,
}

// ExtractSnappy decompresses the concatenated framed snappy streams at offset in data.
func ExtractSnappy(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	return decompress(ctx, data, offset, dst, cfg, codecSnappy)
}

// decompressSnappyStream returns an io.Reader that decompresses src with snappy algorithm
func decompressSnappyStream(src io.Reader) (io.Reader, error) {
	return snappy.NewReader(src), nil
}

// snappyMemberLength walks the chunks of the framed snappy stream at the start
// of data. The stream ends before the next stream identifier, before a chunk of
// a reserved type, before a data chunk the decoder rejects and before a
// truncated chunk.
func snappyMemberLength(data []byte) int {
	if !matchesMagicBytes(data, 0, magicBytesSnappy) {
		return -1
	}

	pos := len(magicBytesSnappy[0])
	for pos+4 <= len(data) {
		typ := data[pos]
		length := int(data[pos+1]) | int(data[pos+2])<<8 | int(data[pos+3])<<16
		if !snappyChunkValid(typ, length) {
			break
		}
		if pos+4+length > len(data) {
			break
		}
		pos += 4 + length
	}
	return pos
}

// snappyChunkValid reports if a chunk of type typ and length continues a stream.
// Data chunks start with a checksum and hold at most one block.
func snappyChunkValid(typ byte, length int) bool {
	switch {
	case typ == snappyChunkCompressed:
		return length >= snappyChecksumLen && length <= snappyChecksumLen+snappyMaxEncodedBlockLen
	case typ == snappyChunkUncompressed:
		return length >= snappyChecksumLen && length <= snappyChecksumLen+snappyMaxBlockLen
	case typ == snappyChunkStreamID:
		return false
	default:
		return typ >= snappyChunkSkippable
	}
}
