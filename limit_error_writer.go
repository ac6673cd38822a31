// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import "io"

// limitErrorWriter is a wrapper around an io.Writer that fails with
// ErrMaxExtractionSizeExceeded once more than L bytes would be written.
type limitErrorWriter struct {
	W io.Writer // underlying writer
	L int64     // limit
	N int64     // number of bytes written
}

// Write writes up to the remaining limit of p to the underlying writer. If p does
// not fit, the fitting prefix is written and ErrMaxExtractionSizeExceeded is
// returned.
func (l *limitErrorWriter) Write(p []byte) (n int, err error) {
	remaining := l.L - l.N
	if remaining <= 0 && len(p) > 0 {
		return 0, ErrMaxExtractionSizeExceeded
	}

	if int64(len(p)) > remaining {
		n, err = l.W.Write(p[:remaining])
		l.N += int64(n)
		if err == nil {
			err = ErrMaxExtractionSizeExceeded
		}
		return n, err
	}

	n, err = l.W.Write(p)
	l.N += int64(n)
	return n, err
}

// limitWriter returns a writer that allows at most maxSize bytes to be written
// to w. If maxSize < 0, w is returned unchanged.
func limitWriter(w io.Writer, maxSize int64) io.Writer {
	if maxSize < 0 {
		return w
	}
	return &limitErrorWriter{W: w, L: maxSize}
}
