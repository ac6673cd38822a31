// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"encoding/json"
	"time"
)

// TelemetryData holds all telemetry data of an extraction.
type TelemetryData struct {
	// ConsumedSize is the number of input bytes consumed
	ConsumedSize int64 `json:"consumed_size"`

	// ExtractedDirs is the number of extracted directories
	ExtractedDirs int64 `json:"extracted_dirs"`

	// ExtractedFiles is the number of extracted regular files
	ExtractedFiles int64 `json:"extracted_files"`

	// ExtractedMembers is the number of decompressed stream members
	ExtractedMembers int64 `json:"extracted_members"`

	// ExtractedNodes is the number of extracted fifos, sockets and device nodes
	ExtractedNodes int64 `json:"extracted_nodes"`

	// ExtractedSymlinks is the number of extracted symlinks
	ExtractedSymlinks int64 `json:"extracted_symlinks"`

	// ExtractedType is the format of the embedded data
	ExtractedType string `json:"extracted_type"`

	// ExtractionDuration is the time it took to extract the data
	ExtractionDuration time.Duration `json:"extraction_duration"`

	// ExtractionErrors is the number of errors during extraction
	ExtractionErrors int64 `json:"extraction_errors"`

	// ExtractionSize is the number of bytes written
	ExtractionSize int64 `json:"extraction_size"`

	// InputSize is the size of the source buffer
	InputSize int64 `json:"input_size"`

	// LastExtractionError is the last error during extraction
	LastExtractionError error `json:"last_extraction_error"`

	// LastUnsupportedFile is the last skipped unsupported file
	LastUnsupportedFile string `json:"last_unsupported_file"`

	// Offset is the offset of the embedded data in the source buffer
	Offset int64 `json:"offset"`

	// Success reports the outcome of the extraction
	Success bool `json:"success"`

	// UnsupportedFiles is the number of skipped unsupported files
	UnsupportedFiles int64 `json:"unsupported_files"`
}

// String returns a string representation of [TelemetryData].
func (td TelemetryData) String() string {
	b, _ := json.Marshal(td)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (td TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if td.LastExtractionError != nil {
		lastError = td.LastExtractionError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastExtractionError string `json:"last_extraction_error"`
		*Alias
	}{
		LastExtractionError: lastError,
		Alias:               (*Alias)(&td),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after an extraction has finished which can be used to submit the [TelemetryData]
// to a telemetry service, for example.
type TelemetryHook func(context.Context, *TelemetryData)

// now is a function point that returns time.Now to the caller.
var now = time.Now

// captureExtractionDuration captures the duration of the extraction
func captureExtractionDuration(td *TelemetryData, start time.Time) {
	td.ExtractionDuration = now().Sub(start)
}

// captureResult copies the outcome of an extraction into the telemetry data
func captureResult(td *TelemetryData, res *ExtractionResult) {
	td.Success = res.Success
	td.ConsumedSize = res.Size
}

// recordError increases the error counter and keeps err as the last error.
func recordError(td *TelemetryData, err error) {
	td.ExtractionErrors++
	td.LastExtractionError = err
}
