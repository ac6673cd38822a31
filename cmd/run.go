// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	carve "github.com/hashicorp/go-carve"
	"golang.org/x/sync/errgroup"
)

// CLI are the cli parameters for go-carve binary
type CLI struct {
	Input             string           `arg:"" name:"input" help:"Path to the file that contains the embedded data." type:"existing file"`
	Output            string           `arg:"" name:"output" optional:"" help:"Output directory, one sub directory per offset. Omit for a dry run."`
	DenySymlinks      bool             `short:"D" help:"Deny symlink extraction."`
	DeviceNodes       bool             `short:"N" help:"Create real fifos, sockets and device nodes instead of placeholder files."`
	Format            string           `short:"f" optional:"" help:"Format of the embedded data, detected by magic bytes if empty. (${formats})"`
	MaxFiles          int64            `optional:"" default:"100000" help:"Maximum archive entries that are walked. (disable check: -1)"`
	MaxExtractionSize int64            `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	MaxExtractionTime int64            `optional:"" default:"60" help:"Maximum time that an extraction should take (in seconds). (disable check: -1)"`
	MaxInputSize      int64            `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	Offsets           []string         `short:"o" name:"offset" default:"0" help:"Offset of the embedded data, decimal or 0x prefixed hex. Repeat for multiple offsets."`
	Overwrite         bool             `short:"O" help:"Overwrite if exist."`
	Telemetry         bool             `short:"T" optional:"" default:"false" help:"Print telemetry data to log after extraction."`
	Verbose           bool             `short:"v" optional:"" help:"Verbose logging."`
	Version           kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// Run the entrypoint into go-carve as a cli tool
func Run(version, commit, date string) {
	ctx := context.Background()
	var cli CLI
	kong.Parse(&cli,
		kong.Description("Carve embedded archives and compressed streams out of binary files"),
		kong.UsageOnError(),
		kong.Vars{
			"formats": strings.Join(carve.Formats(), ", "),
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *carve.TelemetryData) {
		if cli.Telemetry {
			logger.Info("extraction finished", "telemetry", td)
		}
	}

	// process cli params
	config := carve.NewConfig(
		carve.WithDenySymlinkExtraction(cli.DenySymlinks),
		carve.WithDeviceNodes(cli.DeviceNodes),
		carve.WithLogger(logger),
		carve.WithMaxExtractionSize(cli.MaxExtractionSize),
		carve.WithMaxFiles(cli.MaxFiles),
		carve.WithMaxInputSize(cli.MaxInputSize),
		carve.WithOverwrite(cli.Overwrite),
		carve.WithTelemetryHook(telemetryToLog),
	)

	offsets, err := parseOffsets(cli.Offsets)
	if err != nil {
		logger.Error("invalid offset", "err", err)
		os.Exit(-1)
	}

	// read input
	data, err := os.ReadFile(cli.Input)
	if err != nil {
		logger.Error("reading input failed", "err", err)
		os.Exit(-1)
	}

	if cli.MaxExtractionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), (time.Second * time.Duration(cli.MaxExtractionTime)))
		defer cancel()
	}

	// extract all offsets concurrently, each into its own directory
	results := make([]carve.ExtractionResult, len(offsets))
	g, ctx := errgroup.WithContext(ctx)
	for i, offset := range offsets {
		i, offset := i, offset
		g.Go(func() error {
			dst := ""
			if len(cli.Output) > 0 {
				dst = filepath.Join(cli.Output, fmt.Sprintf("%x", offset))
			}
			res, err := extractAt(ctx, data, offset, dst, cli.Format, config)
			if err != nil {
				return fmt.Errorf("offset 0x%x: %w", offset, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("error during extraction", "err", err)
		os.Exit(-1)
	}

	// report results
	failed := false
	for i, res := range results {
		fmt.Printf("0x%x\tsuccess=%t\tsize=%d\n", offsets[i], res.Success, res.Size)
		failed = failed || !res.Success
	}
	if failed {
		os.Exit(1)
	}
}

// extractAt runs the extractor for format, or the one detected at offset, on data.
func extractAt(ctx context.Context, data []byte, offset int, dst string, format string, cfg *carve.Config) (carve.ExtractionResult, error) {
	ex := carve.LookupExtractor(format)
	if len(format) == 0 {
		format, ex = carve.FindExtractor(data, offset)
	}
	if ex.Kind() == carve.KindNone {
		return carve.ExtractionResult{}, fmt.Errorf("%w: format %q", carve.ErrNoExtractor, format)
	}
	return ex.Extract(ctx, data, offset, dst, cfg)
}

// parseOffsets parses decimal and 0x prefixed hexadecimal offsets.
func parseOffsets(values []string) ([]int, error) {
	offsets := make([]int, 0, len(values))
	for _, v := range values {
		o, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q: %w", v, err)
		}
		if o < 0 {
			return nil, fmt.Errorf("negative offset %d", o)
		}
		offsets = append(offsets, int(o))
	}
	return offsets, nil
}
