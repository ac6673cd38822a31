// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	carve "github.com/hashicorp/go-carve"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// rootfsEntries is a small root filesystem with every supported entry type.
var rootfsEntries = []cpioTestEntry{
	{name: ".", mode: 0o040755},
	{name: "etc", mode: 0o040755, mtime: 1700000000},
	{name: "etc/hostname", mode: 0o100644, data: []byte("carve\n"), mtime: 1700000000},
	{name: "bin/busybox", mode: 0o100755, data: []byte("\x7fELF")},
	{name: "lib", mode: 0o120777, data: []byte("/usr/lib")},
	{name: "usr/lib", mode: 0o040755},
	{name: "dev/sda1", mode: 0o060660, rdevMajor: 8, rdevMinor: 1},
	{name: "dev/console", mode: 0o020600, rdevMajor: 5, rdevMinor: 1},
	{name: "run/initctl", mode: 0o010600},
	{name: "run/log", mode: 0o140666},
}

func TestExtractCPIO(t *testing.T) {
	archive := buildCPIO(rootfsEntries...)
	prefix := []byte("uImage header")
	data := concat(prefix, archive, garbage)

	var td carve.TelemetryData
	cfg := carve.NewConfig(carve.WithTelemetryHook(func(ctx context.Context, d *carve.TelemetryData) {
		td = *d
	}))

	dst := t.TempDir()
	res := carve.ExtractCPIO(context.Background(), data, len(prefix), dst, cfg)
	require.True(t, res.Success)
	require.Equal(t, int64(len(archive)), res.Size)

	// regular files without padding
	content, err := os.ReadFile(filepath.Join(dst, "etc", "hostname"))
	require.NoError(t, err)
	require.Equal(t, "carve\n", string(content))

	// executable bit
	fi, err := os.Stat(filepath.Join(dst, "bin", "busybox"))
	require.NoError(t, err)
	require.NotZero(t, fi.Mode().Perm()&0o100)

	// re-rooted symlink
	link, err := os.Readlink(filepath.Join(dst, "lib"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join("usr", "lib"), link)

	// node placeholders
	for name, want := range map[string]string{
		"dev/sda1":    "b 8 1",
		"dev/console": "c 5 1",
		"run/initctl": "fifo",
		"run/log":     "socket",
	} {
		content, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		require.Equal(t, want, string(content), name)
	}

	require.Equal(t, int64(3), td.ExtractedDirs)
	require.Equal(t, int64(2), td.ExtractedFiles)
	require.Equal(t, int64(1), td.ExtractedSymlinks)
	require.Equal(t, int64(4), td.ExtractedNodes)
	require.Equal(t, int64(0), td.ExtractionErrors)
	require.Equal(t, "cpio", td.ExtractedType)
	require.Equal(t, res.Size, td.ConsumedSize)
	require.Positive(t, td.ExtractionSize)
}

func TestExtractCPIOModTime(t *testing.T) {
	archive := buildCPIO(rootfsEntries...)

	dst := t.TempDir()
	res := carve.ExtractCPIO(context.Background(), archive, 0, dst, nil)
	require.True(t, res.Success)

	fi, err := os.Stat(filepath.Join(dst, "etc", "hostname"))
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), fi.ModTime().Unix())
}

func TestExtractCPIODryRun(t *testing.T) {
	archive := buildCPIO(rootfsEntries...)

	res := carve.ExtractCPIO(context.Background(), concat(archive, archive), 0, "", nil)
	require.True(t, res.Success)
	require.Equal(t, int64(len(archive)), res.Size)
}

func TestExtractCPIOInvalid(t *testing.T) {
	archive := buildCPIO(rootfsEntries...)
	trailer := cpioTestEntry{name: "TRAILER!!!"}.bytes()
	withoutTrailer := archive[:len(archive)-len(trailer)]

	tests := []struct {
		name   string
		data   []byte
		offset int
	}{
		{name: "missing trailer", data: withoutTrailer},
		{name: "truncated entry", data: archive[:len(archive)-len(trailer)-3]},
		{name: "broken header in the middle", data: concat(withoutTrailer[:len(withoutTrailer)-4], []byte("not a header"), trailer)},
		{name: "offset beyond input", data: archive, offset: len(archive)},
		{name: "negative offset", data: archive, offset: -1},
		{name: "no archive", data: garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := t.TempDir()
			res := carve.ExtractCPIO(context.Background(), tt.data, tt.offset, dst, nil)
			require.False(t, res.Success)
			require.Zero(t, res.Size)

			// nothing is materialized
			entries, err := os.ReadDir(dst)
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}
}

func TestExtractCPIOStopsAtTrailer(t *testing.T) {
	archive := buildCPIO(cpioTestEntry{name: "before", mode: 0o100644, data: []byte("1")})
	after := cpioTestEntry{name: "after", mode: 0o100644, data: []byte("2")}.bytes()

	dst := t.TempDir()
	res := carve.ExtractCPIO(context.Background(), concat(archive, after), 0, dst, nil)
	require.True(t, res.Success)
	require.Equal(t, int64(len(archive)), res.Size)
	require.FileExists(t, filepath.Join(dst, "before"))
	require.NoFileExists(t, filepath.Join(dst, "after"))
}

func TestExtractCPIOTraversal(t *testing.T) {
	archive := buildCPIO(
		cpioTestEntry{name: "../../outside", mode: 0o100644, data: []byte("a")},
		cpioTestEntry{name: "/abs/file", mode: 0o100644, data: []byte("b")},
		cpioTestEntry{name: "dir/../../c", mode: 0o100644, data: []byte("c")},
		cpioTestEntry{name: "evil", mode: 0o120777, data: []byte("../../../etc/passwd")},
	)

	parent := t.TempDir()
	dst := filepath.Join(parent, "out")
	res := carve.ExtractCPIO(context.Background(), archive, 0, dst, nil)
	require.True(t, res.Success)

	require.FileExists(t, filepath.Join(dst, "outside"))
	require.FileExists(t, filepath.Join(dst, "abs", "file"))
	require.FileExists(t, filepath.Join(dst, "c"))
	require.NoFileExists(t, filepath.Join(parent, "outside"))
	require.NoFileExists(t, filepath.Join(parent, "c"))

	link, err := os.Readlink(filepath.Join(dst, "evil"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join("etc", "passwd"), link)
}

func TestExtractCPIOSymlinkInPath(t *testing.T) {
	outside := t.TempDir()
	archive := buildCPIO(
		cpioTestEntry{name: "link", mode: 0o120777, data: []byte(outside)},
		cpioTestEntry{name: "link/payload", mode: 0o100644, data: []byte("x")},
	)

	var td carve.TelemetryData
	cfg := carve.NewConfig(carve.WithTelemetryHook(func(ctx context.Context, d *carve.TelemetryData) {
		td = *d
	}))

	dst := t.TempDir()
	res := carve.ExtractCPIO(context.Background(), archive, 0, dst, cfg)
	require.True(t, res.Success)
	require.Equal(t, int64(1), td.ExtractedSymlinks)
	require.Equal(t, int64(1), td.ExtractionErrors)
	require.NoFileExists(t, filepath.Join(outside, "payload"))
}

func TestExtractCPIOSymlinkTarget(t *testing.T) {
	archive := buildCPIO(
		cpioTestEntry{name: "cut", mode: 0o120777, data: []byte("target\x00garbage")},
		cpioTestEntry{name: "invalid", mode: 0o120777, data: []byte("\xff\xfe")},
	)

	var td carve.TelemetryData
	cfg := carve.NewConfig(carve.WithTelemetryHook(func(ctx context.Context, d *carve.TelemetryData) {
		td = *d
	}))

	dst := t.TempDir()
	res := carve.ExtractCPIO(context.Background(), archive, 0, dst, cfg)
	require.True(t, res.Success)

	link, err := os.Readlink(filepath.Join(dst, "cut"))
	require.NoError(t, err)
	require.Equal(t, "target", link)

	_, err = os.Lstat(filepath.Join(dst, "invalid"))
	require.True(t, os.IsNotExist(err))
	require.Equal(t, int64(1), td.ExtractionErrors)
}

func TestExtractCPIODenySymlinks(t *testing.T) {
	archive := buildCPIO(
		cpioTestEntry{name: "file", mode: 0o100644, data: []byte("x")},
		cpioTestEntry{name: "link", mode: 0o120777, data: []byte("file")},
	)

	var td carve.TelemetryData
	cfg := carve.NewConfig(
		carve.WithDenySymlinkExtraction(true),
		carve.WithTelemetryHook(func(ctx context.Context, d *carve.TelemetryData) {
			td = *d
		}),
	)

	dst := t.TempDir()
	res := carve.ExtractCPIO(context.Background(), archive, 0, dst, cfg)
	require.True(t, res.Success)
	require.Equal(t, int64(1), td.UnsupportedFiles)
	require.Equal(t, "link", td.LastUnsupportedFile)
	require.NoFileExists(t, filepath.Join(dst, "link"))
}

// TestExtractCPIONothingExtracted checks that a valid archive fails if none of
// its entries can be created, while the consumed size is still reported.
func TestExtractCPIONothingExtracted(t *testing.T) {
	archive := buildCPIO(
		cpioTestEntry{name: "odd", mode: 0o070644},
		cpioTestEntry{name: "stranger", mode: 0o170644},
	)

	var td carve.TelemetryData
	cfg := carve.NewConfig(carve.WithTelemetryHook(func(ctx context.Context, d *carve.TelemetryData) {
		td = *d
	}))

	res := carve.ExtractCPIO(context.Background(), archive, 0, t.TempDir(), cfg)
	require.False(t, res.Success)
	require.Equal(t, int64(len(archive)), res.Size)
	require.Equal(t, int64(2), td.UnsupportedFiles)

	// the archive is valid without output
	res = carve.ExtractCPIO(context.Background(), archive, 0, "", nil)
	require.True(t, res.Success)
}

func TestExtractCPIOLimits(t *testing.T) {
	archive := buildCPIO(rootfsEntries...)

	t.Run("max files", func(t *testing.T) {
		cfg := carve.NewConfig(carve.WithMaxFiles(int64(len(rootfsEntries) - 1)))
		res := carve.ExtractCPIO(context.Background(), archive, 0, "", cfg)
		require.False(t, res.Success)

		cfg = carve.NewConfig(carve.WithMaxFiles(int64(len(rootfsEntries))))
		res = carve.ExtractCPIO(context.Background(), archive, 0, "", cfg)
		require.True(t, res.Success)
	})

	t.Run("max input size", func(t *testing.T) {
		cfg := carve.NewConfig(carve.WithMaxInputSize(int64(len(archive) - 1)))
		res := carve.ExtractCPIO(context.Background(), archive, 0, "", cfg)
		require.False(t, res.Success)
	})

	t.Run("max extraction size", func(t *testing.T) {
		big := buildCPIO(
			cpioTestEntry{name: "small", mode: 0o100644, data: []byte("fits")},
			cpioTestEntry{name: "large", mode: 0o100644, data: testPayload(1000)},
		)
		cfg := carve.NewConfig(carve.WithMaxExtractionSize(100))
		dst := t.TempDir()
		res := carve.ExtractCPIO(context.Background(), big, 0, dst, cfg)
		require.True(t, res.Success)
		require.FileExists(t, filepath.Join(dst, "small"))
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := carve.ExtractCPIO(ctx, archive, 0, t.TempDir(), nil)
		require.False(t, res.Success)
	})
}

func TestExtractCPIOToMemory(t *testing.T) {
	archive := buildCPIO(
		cpioTestEntry{name: "etc/hostname", mode: 0o100644, data: []byte("carve\n")},
		cpioTestEntry{name: "lib", mode: 0o120777, data: []byte("usr/lib")},
	)

	// symlinks are not supported by the in-memory filesystem
	target := carve.NewTargetMemory()
	cfg := carve.NewConfig(carve.WithTarget(target))
	res := carve.ExtractCPIO(context.Background(), archive, 0, "rootfs", cfg)
	require.True(t, res.Success)

	content, err := afero.ReadFile(target.Fs(), filepath.Join("rootfs", "etc", "hostname"))
	require.NoError(t, err)
	require.Equal(t, "carve\n", string(content))
}
