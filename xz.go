// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/ulikunitz/xz"
)

// formatXz is the format name for xz streams.
const formatXz = "xz"

// magicBytesXz is the magic bytes for xz files.
// reference https://tukaani.org/xz/xz-file-format-1.0.4.txt
var magicBytesXz = [][]byte{
	{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
}

const (
	// xzHeaderLen is the length of the stream header and of the stream footer
	xzHeaderLen = 12

	// xzFooterMagic closes every xz stream
	xzFooterMagic = "YZ"
)

var codecXz = codec{
	format:       formatXz,
	memberLength: xzMemberLength,
	decompress:   decompressXzStream,
}

// ExtractXz decompresses the concatenated xz streams at offset in data.
func ExtractXz(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	return decompress(ctx, data, offset, dst, cfg, codecXz)
}

// decompressXzStream returns an io.Reader that decompresses exactly one xz stream from src
func decompressXzStream(src io.Reader) (io.Reader, error) {
	return xz.ReaderConfig{SingleStream: true}.NewReader(src)
}

// xzMemberLength returns the length of the xz stream at the start of data up to
// and including its footer. Stream padding is not part of the member.
//
// The footer is searched at every 4 byte boundary. A candidate must carry the
// stream flags of the header, a valid CRC32 and point back to an index.
func xzMemberLength(data []byte) int {
	if len(data) < 2*xzHeaderLen || !matchesMagicBytes(data, 0, magicBytesXz) {
		return -1
	}

	// verify stream header
	flags := data[6:8]
	if crc32.ChecksumIEEE(flags) != binary.LittleEndian.Uint32(data[8:12]) {
		return -1
	}

	for end := 2 * xzHeaderLen; end <= len(data); end += 4 {
		footer := data[end-xzHeaderLen : end]
		if string(footer[10:12]) != xzFooterMagic || !bytes.Equal(footer[8:10], flags) {
			continue
		}
		if crc32.ChecksumIEEE(footer[4:10]) != binary.LittleEndian.Uint32(footer[0:4]) {
			continue
		}

		// backward size is the size of the index
		backward := (int64(binary.LittleEndian.Uint32(footer[4:8])) + 1) * 4
		index := int64(end-xzHeaderLen) - backward
		if index < xzHeaderLen || data[index] != 0x00 {
			continue
		}
		return end
	}
	return -1
}
