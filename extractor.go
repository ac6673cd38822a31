// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoExtractor is returned when a format has no extractor.
	ErrNoExtractor = errors.New("no extractor available")

	// ErrExternalExtractor is returned when an external extractor should be run in-process.
	// External commands are executed by the caller.
	ErrExternalExtractor = errors.New("external extractor must be run by the caller")
)

// ExtractionResult is the outcome of a single extractor invocation.
type ExtractionResult struct {
	// Success is true if any payload was recovered.
	Success bool

	// Size is the number of input bytes consumed, starting at the offset the
	// extractor was invoked with. It is zero if nothing was consumed. It never
	// counts output bytes, so a caller can advance its scan cursor by Size.
	Size int64
}

// ExtractFunc is the signature of an in-process extractor. It extracts the data
// embedded in data at offset into the directory dst. If dst is empty, nothing is
// written and the data is only validated and measured.
//
// An ExtractFunc never panics on malformed input and reports every failure
// through the returned [ExtractionResult].
type ExtractFunc func(ctx context.Context, data []byte, offset int, dst string, cfg *Config) ExtractionResult

// ExtractorKind identifies the variant of an [Extractor].
type ExtractorKind int

const (
	// KindNone is a format without an extractor.
	KindNone ExtractorKind = iota

	// KindInternal is an extractor implemented by an [ExtractFunc].
	KindInternal

	// KindExternal is an extractor implemented by an external command.
	KindExternal
)

// String returns the name of the extractor kind.
func (k ExtractorKind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindExternal:
		return "external"
	default:
		return "none"
	}
}

// Extractor describes how a format is extracted. It is exactly one of an
// in-process function, an external command or nothing; the zero value is the
// latter.
type Extractor struct {
	kind    ExtractorKind
	fn      ExtractFunc
	command string
}

// Internal returns an [Extractor] that runs fn in-process.
func Internal(fn ExtractFunc) Extractor {
	if fn == nil {
		return Extractor{}
	}
	return Extractor{kind: KindInternal, fn: fn}
}

// External returns an [Extractor] that is implemented by the external command.
func External(command string) Extractor {
	if len(command) == 0 {
		return Extractor{}
	}
	return Extractor{kind: KindExternal, command: command}
}

// Kind returns the variant of the extractor.
func (e Extractor) Kind() ExtractorKind {
	return e.kind
}

// Func returns the in-process extraction function. The boolean is false unless
// the extractor is of kind [KindInternal].
func (e Extractor) Func() (ExtractFunc, bool) {
	return e.fn, e.kind == KindInternal
}

// Command returns the external command. The boolean is false unless the
// extractor is of kind [KindExternal].
func (e Extractor) Command() (string, bool) {
	return e.command, e.kind == KindExternal
}

// Extract runs an internal extractor. For external extractors it returns
// [ErrExternalExtractor] and for a missing extractor [ErrNoExtractor].
func (e Extractor) Extract(ctx context.Context, data []byte, offset int, dst string, cfg *Config) (ExtractionResult, error) {
	switch e.kind {
	case KindInternal:
		return e.fn(ctx, data, offset, dst, cfg), nil
	case KindExternal:
		return ExtractionResult{}, fmt.Errorf("%w: %s", ErrExternalExtractor, e.command)
	default:
		return ExtractionResult{}, ErrNoExtractor
	}
}

// String returns a short description of the extractor.
func (e Extractor) String() string {
	if e.kind == KindExternal {
		return fmt.Sprintf("external(%s)", e.command)
	}
	return e.kind.String()
}

// prepare returns cfg or the default configuration and the telemetry data
// for one extractor invocation.
func prepare(cfg *Config, format string, data []byte, offset int) (*Config, *TelemetryData) {
	if cfg == nil {
		cfg = NewConfig()
	}
	return cfg, &TelemetryData{
		ExtractedType: format,
		InputSize:     int64(len(data)),
		Offset:        int64(offset),
	}
}
