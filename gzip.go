// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"compress/gzip"
	"context"
	"io"
)

// formatGZip is the format name for gzip streams.
const formatGZip = "gzip"

// magicBytesGZip are the magic bytes for gzip compressed files.
//
// https://socketloop.com/tutorials/golang-gunzip-file
var magicBytesGZip = [][]byte{
	{0x1f, 0x8b},
}

// gzip reads exactly one member from an io.ByteReader, so no framing is needed
var codecGZip = codec{
	format:     formatGZip,
	decompress: decompressGZipStream,
}

// ExtractGZip decompresses the concatenated gzip members at offset in data.
func ExtractGZip(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult {
	return decompress(ctx, data, offset, dst, cfg, codecGZip)
}

// decompressGZipStream returns an io.Reader that decompresses a single gzip member from src.
func decompressGZipStream(src io.Reader) (io.Reader, error) {
	r, err := gzip.NewReader(src)
	if err != nil {
		return nil, err
	}
	r.Multistream(false)
	return r, nil
}
