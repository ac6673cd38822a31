// Package carve extracts archives and compressed streams that are embedded in a
// larger binary buffer, for example a firmware image, at a known offset.
//
// Every supported format is described by an [Extractor]. Internal extractors are
// plain functions that take the source buffer, the offset of the embedded data and
// an optional output directory and return an [ExtractionResult] that tells the
// caller whether anything was recovered and how many input bytes were consumed.
// Leaving the output directory empty performs a dry run: the data is validated
// and measured, but nothing is written.
//
// All output is written through a [Sandbox], which confines every created file,
// directory, symlink and device node to the output directory, regardless of the
// names stored in the embedded data.
//
// Configuration is done using the [Config], which can be adjusted with the option
// pattern. [TelemetryData] is collected during each extraction and handed to the
// configured [TelemetryHook].
package carve
