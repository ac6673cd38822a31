// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
)

var (
	// ErrMaxFilesExceeded indicates that the maximum number of archive entries was exceeded.
	ErrMaxFilesExceeded = errors.New("maximum files exceeded")

	// ErrMaxExtractionSizeExceeded indicates that the maximum output size was exceeded.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrMaxInputSizeExceeded indicates that the source buffer is larger than allowed.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The default configuration is designed to be secure by default: output is confined
// to the sandbox root, device nodes are written as placeholder files and the amount
// of produced data is limited.
type Config struct {
	// customCreateDirMode is the file mode for created directories (respecting umask)
	customCreateDirMode fs.FileMode

	// customCreateFileMode is the file mode for created files (respecting umask)
	customCreateFileMode fs.FileMode

	// decompressedName is the name of the artifact a stream is decompressed into
	decompressedName string

	// denySymlinkExtraction offers the option to enable/disable the extraction of symlinks
	denySymlinkExtraction bool

	// deviceNodes creates real fifos, sockets and device nodes instead of placeholders
	deviceNodes bool

	// logger stream for extraction
	logger logger

	// maxExtractionSize is the maximum number of bytes written per extraction.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum number of entries walked in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of the source buffer.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// overwrite defines if existing files in the output directory are replaced
	overwrite bool

	// target is the filesystem abstraction all output is written to
	target Target

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxFilesExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {

	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxFiles() {
		return ErrMaxFilesExceeded
	}
	return nil
}

// CheckInputSize checks if size exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxInputSizeExceeded] error is returned.
func (c *Config) CheckInputSize(size int64) error {
	if c.MaxInputSize() == -1 {
		return nil
	}
	if size > c.MaxInputSize() {
		return ErrMaxInputSizeExceeded
	}
	return nil
}

// CustomCreateDirMode returns the file mode for created directories. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomCreateFileMode returns the file mode for created files. (respecting umask)
func (c *Config) CustomCreateFileMode() fs.FileMode {
	return c.customCreateFileMode
}

// DecompressedName returns the name of the file a stream is decompressed into.
func (c *Config) DecompressedName() string {
	return c.decompressedName
}

// DenySymlinkExtraction returns true if symlinks are NOT allowed.
func (c *Config) DenySymlinkExtraction() bool {
	return c.denySymlinkExtraction
}

// DeviceNodes returns true if fifos, sockets and device nodes should be created
// as real filesystem nodes instead of placeholder files.
func (c *Config) DeviceNodes() bool {
	return c.deviceNodes
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxExtractionSize returns the maximum number of bytes written per extraction.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum number of entries walked in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of the source buffer.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Target returns the filesystem target that output is written to.
func (c *Config) Target() Target {
	if c.target == nil {
		return NewTargetDisk()
	}
	return c.target
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

const (
	defaultCustomCreateDirMode   = 0750               // default directory permissions rwxr-x---
	defaultCustomCreateFileMode  = 0640               // default file permissions rw-r-----
	defaultDecompressedName      = "decompressed.bin" // artifact for decompressed streams
	defaultDenySymlinkExtraction = false              // allow symlink extraction
	defaultDeviceNodes           = false              // write placeholders instead of nodes
	defaultMaxFiles              = 100000             // 100k entries
	defaultMaxExtractionSize     = 1 << (10 * 3)      // 1 Gb
	defaultMaxInputSize          = 1 << (10 * 3)      // 1 Gb
	defaultOverwrite             = false              // don't overwrite existing files
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		customCreateDirMode:   defaultCustomCreateDirMode,
		customCreateFileMode:  defaultCustomCreateFileMode,
		decompressedName:      defaultDecompressedName,
		denySymlinkExtraction: defaultDenySymlinkExtraction,
		deviceNodes:           defaultDeviceNodes,
		logger:                defaultLogger,
		maxExtractionSize:     defaultMaxExtractionSize,
		maxFiles:              defaultMaxFiles,
		maxInputSize:          defaultMaxInputSize,
		overwrite:             defaultOverwrite,
		telemetryHook:         defaultTelemetryHook,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomCreateFileMode options pattern function to set the file mode
// for carved and decompressed files. (respecting umask)
func WithCustomCreateFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateFileMode = mode
	}
}

// WithDecompressedName options pattern function to set the name of the file
// a compressed stream is decompressed into.
func WithDecompressedName(name string) ConfigOption {
	return func(c *Config) {
		if len(name) > 0 {
			c.decompressedName = name
		}
	}
}

// WithDenySymlinkExtraction options pattern function to deny symlink extraction.
func WithDenySymlinkExtraction(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinkExtraction = deny
	}
}

// WithDeviceNodes options pattern function to create real fifos, sockets and
// device nodes. Creating block and character devices requires root privileges.
func WithDeviceNodes(create bool) ConfigOption {
	return func(c *Config) {
		c.deviceNodes = create
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set the maximum number of
// bytes written per extraction. Set value to -1 to disable the check.
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set the maximum number of entries
// walked in an archive. Set value to -1 to disable the check.
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set the maximum size of the
// source buffer. Set value to -1 to disable the check.
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithOverwrite options pattern function to overwrite existing files in the
// output directory.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithTarget options pattern function to write output to t instead of the
// local disk.
func WithTarget(t Target) ConfigOption {
	return func(c *Config) {
		c.target = t
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is
// called after an extraction finished.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
