// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

//go:build linux || darwin

package carve_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	carve "github.com/hashicorp/go-carve"
	"github.com/stretchr/testify/require"
)

func TestExtractCPIOOverwriteFifo(t *testing.T) {
	archive := buildCPIO(
		cpioTestEntry{name: "x", mode: 0o010600},
		cpioTestEntry{name: "x", mode: 0o100644, data: []byte("hello")},
	)
	cfg := carve.NewConfig(carve.WithDeviceNodes(true), carve.WithOverwrite(true))
	dst := t.TempDir()

	done := make(chan carve.ExtractionResult, 1)
	go func() {
		done <- carve.ExtractCPIO(context.Background(), archive, 0, dst, cfg)
	}()

	var res carve.ExtractionResult
	select {
	case res = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ExtractCPIO blocked on existing fifo")
	}
	require.True(t, res.Success)
	require.Equal(t, int64(len(archive)), res.Size)

	fi, err := os.Lstat(filepath.Join(dst, "x"))
	require.NoError(t, err)
	require.True(t, fi.Mode().IsRegular())
	content, err := os.ReadFile(filepath.Join(dst, "x"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}
