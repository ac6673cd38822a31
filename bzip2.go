// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"compress/bzip2"
	"context"
	"io"
)

// formatBzip2 is the format name for bzip2 streams
const formatBzip2 = "bzip2"

// magicBytesBzip2 are the magic bytes for bzip2 compressed files
// reference: https://en.wikipedia.org/wiki/Bzip2 // https://github.com/dsnet/compress/blob/master/doc/bzip2-format.pdf
var magicBytesBzip2 = [][]byte{
	[]byte("BZh1"),
	[]byte("BZh2"),
	[]byte("BZh3"),
	[]byte("BZh4"),
	[]byte("BZh5"),
	[]byte("BZh6"),
	[]byte("BZh7"),
	[]byte("BZh8"),
	[]byte("BZh9"),
}

const (
	// bzip2EndMagic marks the end of a bzip2 stream, it is followed by the
	// 32 bit combined CRC and padding to the next byte
	bzip2EndMagic = 0x177245385090

	// bzip2HeaderLen is the length of "BZh" plus the block size digit
	bzip2HeaderLen = 4
)

var codecBzip2 = codec{
	format:           formatBzip2,
	memberLength:     bzip2MemberLength,
	nextMemberLength: bzip2NextMemberLength,
	decompress:       decompressBzip2Stream,
}

// ExtractBzip2 decompresses the concatenated bzip2 streams at offset in data.
func ExtractBzip2(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	return decompress(ctx, data, offset, dst, cfg, codecBzip2)
}

// decompressBzip2Stream returns an io.Reader that decompresses src with bzip2 algorithm
func decompressBzip2Stream(src io.Reader) (io.Reader, error) {
	return bzip2.NewReader(src), nil
}

// bzip2MemberLength locates the first end of stream marker of the bzip2 stream
// at the start of data. Blocks are not byte aligned, so the marker is searched
// bit by bit.
func bzip2MemberLength(data []byte) int {
	return bzip2NextMemberLength(data, 0)
}

// bzip2NextMemberLength locates the first end of stream marker after which the
// bzip2 stream at the start of data is longer than prev bytes. The marker
// pattern may also occur inside the Huffman coded block data.
func bzip2NextMemberLength(data []byte, prev int) int {
	if !matchesMagicBytes(data, 0, magicBytesBzip2) {
		return -1
	}

	var window uint64
	bits := 0
	for i := bzip2HeaderLen; i < len(data); i++ {
		for shift := 7; shift >= 0; shift-- {
			window = window<<1 | uint64(data[i]>>shift&1)
			bits++
			if bits < 48 || window&(1<<48-1) != bzip2EndMagic {
				continue
			}

			// marker ends after the current bit, the CRC follows
			magicEnd := i*8 + 8 - shift
			end := (magicEnd + 32 + 7) / 8
			if end > len(data) {
				return -1
			}
			if end > prev {
				return end
			}
		}
	}
	return -1
}
