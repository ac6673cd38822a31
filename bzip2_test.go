// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/dsnet/compress/bzip2"
	carve "github.com/hashicorp/go-carve"
)

// TestExtractBzip2MemberEnd checks that the end of a member is found for
// streams that end at different bit positions.
func TestExtractBzip2MemberEnd(t *testing.T) {
	garbage := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	for _, size := range []int{0, 1, 2, 3, 7, 13, 100, 1000, 4096, 100000} {
		t.Run(fmt.Sprintf("payload %d bytes", size), func(t *testing.T) {
			member := compressBzip2(t, testPayload(size))
			data := append(append([]byte{}, member...), garbage...)

			// an empty stream is consumed without recovering payload
			res := carve.ExtractBzip2(context.Background(), data, 0, "", nil)
			if res.Success != (size > 0) {
				t.Errorf("ExtractBzip2() success = %t", res.Success)
			}
			if res.Size != int64(len(member)) {
				t.Errorf("ExtractBzip2() size = %d, want %d", res.Size, len(member))
			}
		})
	}
}

// TestExtractBzip2Truncated checks that a stream without end of stream marker fails
func TestExtractBzip2Truncated(t *testing.T) {
	member := compressBzip2(t, testPayload(5000))
	res := carve.ExtractBzip2(context.Background(), member[:len(member)-8], 0, t.TempDir(), nil)
	if res.Success || res.Size != 0 {
		t.Errorf("ExtractBzip2() = %+v, want failure without size", res)
	}
}

// compressBzip2 compresses data with bzip2 algorithm
func compressBzip2(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{
		Level: bzip2.DefaultCompression,
	})
	if err != nil {
		t.Fatalf("error creating bzip2 writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("error writing data to bzip2 writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("error closing bzip2 writer: %v", err)
	}
	return buf.Bytes()
}
