// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve_test

import (
	"context"
	"reflect"
	"testing"

	carve "github.com/hashicorp/go-carve"
)

func TestFormats(t *testing.T) {
	want := []string{"7z", "bzip2", "cpio", "gzip", "lz4", "snappy", "xz", "zlib", "zstd"}
	if got := carve.Formats(); !reflect.DeepEqual(got, want) {
		t.Errorf("Formats() = %v, want %v", got, want)
	}
}

func TestAvailableExtractors(t *testing.T) {
	registry := carve.AvailableExtractors()
	if len(registry) != len(carve.Formats()) {
		t.Fatalf("registry has %d formats, want %d", len(registry), len(carve.Formats()))
	}
	for format, ex := range registry {
		if ex.Extractor.Kind() != carve.KindInternal {
			t.Errorf("%s: kind = %v, want internal", format, ex.Extractor.Kind())
		}
		if len(ex.MagicBytes) == 0 {
			t.Errorf("%s: no magic bytes", format)
		}
	}

	// modifying the copy does not change the registry
	delete(registry, "xz")
	if _, ok := carve.AvailableExtractors()["xz"]; !ok {
		t.Error("registry changed through returned copy")
	}
}

func TestFindExtractor(t *testing.T) {
	payload := testPayload(100)
	prefix := []byte("0123456789")

	tests := []struct {
		name   string
		data   []byte
		offset int
		want   string
	}{
		{name: "7zip", data: sevenZipSignature([]byte{0x01}), want: "7z"},
		{name: "bzip2", data: compressBzip2(t, payload), want: "bzip2"},
		{name: "cpio", data: buildCPIO(), want: "cpio"},
		{name: "gzip", data: compressGZip(t, payload), want: "gzip"},
		{name: "lz4", data: compressLZ4(t, payload), want: "lz4"},
		{name: "snappy", data: compressSnappy(t, payload), want: "snappy"},
		{name: "xz", data: compressXz(t, payload), want: "xz"},
		{name: "zlib", data: compressZlib(t, payload), want: "zlib"},
		{name: "zstd", data: compressZstd(t, payload), want: "zstd"},
		{name: "at offset", data: concat(prefix, compressXz(t, payload)), offset: len(prefix), want: "xz"},
		{name: "not at offset", data: concat(prefix, compressXz(t, payload)), offset: 0, want: ""},
		{name: "unknown", data: garbage, want: ""},
		{name: "offset beyond input", data: compressGZip(t, payload), offset: 1000, want: ""},
		{name: "negative offset", data: compressGZip(t, payload), offset: -1, want: ""},
		{name: "truncated magic", data: []byte{0x28, 0xb5}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, ex := carve.FindExtractor(tt.data, tt.offset)
			if format != tt.want {
				t.Fatalf("FindExtractor() format = %q, want %q", format, tt.want)
			}
			if len(tt.want) == 0 {
				if ex.Kind() != carve.KindNone {
					t.Errorf("FindExtractor() kind = %s, want none", ex.Kind())
				}
				return
			}
			if ex.Kind() != carve.KindInternal {
				t.Errorf("FindExtractor() kind = %s, want internal", ex.Kind())
			}
		})
	}
}

// TestFindExtractorRoundTrip checks that the detected extractor handles the detected data
func TestFindExtractorRoundTrip(t *testing.T) {
	for _, c := range testCodecs() {
		t.Run(c.name, func(t *testing.T) {
			data := c.compress(t, testPayload(500))
			format, ex := carve.FindExtractor(data, 0)
			if format != c.name {
				t.Fatalf("FindExtractor() format = %q, want %q", format, c.name)
			}
			res, err := ex.Extract(context.Background(), data, 0, "", nil)
			if err != nil || !res.Success || res.Size != int64(len(data)) {
				t.Errorf("Extract() = %+v, %v; want success with size %d", res, err, len(data))
			}
		})
	}
}

func TestLookupExtractor(t *testing.T) {
	for _, format := range carve.Formats() {
		if ex := carve.LookupExtractor(format); ex.Kind() != carve.KindInternal {
			t.Errorf("LookupExtractor(%q) kind = %s, want internal", format, ex.Kind())
		}
	}
	for _, format := range []string{"", "tar", "rar"} {
		if ex := carve.LookupExtractor(format); ex.Kind() != carve.KindNone {
			t.Errorf("LookupExtractor(%q) kind = %s, want none", format, ex.Kind())
		}
	}
}
