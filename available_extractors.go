// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"bytes"
	"sort"
)

// AvailableExtractor describes how a format is recognized at a known offset
// and how it is extracted.
type AvailableExtractor struct {
	Extractor  Extractor
	MagicBytes [][]byte
	Offset     int
}

// availableExtractors is collection of extractors with
// the required magic bytes and potential offset
var availableExtractors = map[string]AvailableExtractor{
	format7zip: {
		Extractor:  Internal(Extract7Zip),
		MagicBytes: magicBytes7zip,
	},
	formatBzip2: {
		Extractor:  Internal(ExtractBzip2),
		MagicBytes: magicBytesBzip2,
	},
	formatCPIO: {
		Extractor:  Internal(ExtractCPIO),
		MagicBytes: magicBytesCPIO,
	},
	formatGZip: {
		Extractor:  Internal(ExtractGZip),
		MagicBytes: magicBytesGZip,
	},
	formatLZ4: {
		Extractor:  Internal(ExtractLZ4),
		MagicBytes: magicBytesLZ4,
	},
	formatSnappy: {
		Extractor:  Internal(ExtractSnappy),
		MagicBytes: magicBytesSnappy,
	},
	formatXz: {
		Extractor:  Internal(ExtractXz),
		MagicBytes: magicBytesXz,
	},
	formatZlib: {
		Extractor:  Internal(ExtractZlib),
		MagicBytes: magicBytesZlib,
	},
	formatZstd: {
		Extractor:  Internal(ExtractZstd),
		MagicBytes: magicBytesZstd,
	},
}

// maxHeaderLength is the maximum header length of all extractors
var maxHeaderLength int

// init calculates the maximum header length
func init() {
	for _, ex := range availableExtractors {
		needs := ex.Offset
		for _, mb := range ex.MagicBytes {
			if len(mb)+ex.Offset > needs {
				needs = len(mb) + ex.Offset
			}
		}
		if needs > maxHeaderLength {
			maxHeaderLength = needs
		}
	}
}

// AvailableExtractors returns a copy of the registry of all formats with an
// extractor, keyed by format name.
func AvailableExtractors() map[string]AvailableExtractor {
	m := make(map[string]AvailableExtractor, len(availableExtractors))
	for format, ex := range availableExtractors {
		m[format] = ex
	}
	return m
}

// Formats returns the names of all formats with an extractor, sorted by name.
func Formats() []string {
	formats := make([]string, 0, len(availableExtractors))
	for format := range availableExtractors {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

// LookupExtractor returns the extractor for format. If the format is unknown,
// the returned [Extractor] is of kind [KindNone].
func LookupExtractor(format string) Extractor {
	return availableExtractors[format].Extractor
}

// FindExtractor returns the format and extractor whose magic bytes match data
// at offset. If no format matches, the format is empty and the extractor is of
// kind [KindNone]. FindExtractor does not search for signatures, it only checks
// the given offset.
func FindExtractor(data []byte, offset int) (string, Extractor) {
	if offset < 0 || offset >= len(data) {
		return "", Extractor{}
	}

	header := data[offset:min(len(data), offset+maxHeaderLength)]

	// check formats in a stable order
	for _, format := range Formats() {
		ex := availableExtractors[format]
		if matchesMagicBytes(header, ex.Offset, ex.MagicBytes) {
			return format, ex.Extractor
		}
	}
	return "", Extractor{}
}

// matchesMagicBytes checks if the bytes in data are equal to the bytes in magicBytes at the given offset
func matchesMagicBytes(data []byte, offset int, magicBytes [][]byte) bool {
	// check all possible magic bytes until match is found
	for _, mb := range magicBytes {
		// check if header is long enough
		if offset+len(mb) > len(data) {
			continue
		}

		// check for byte match
		if bytes.Equal(mb, data[offset:offset+len(mb)]) {
			return true
		}
	}

	// no match found
	return false
}
