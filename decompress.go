// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package carve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// decompressChunkSize is the size of the chunks decoded output is written in.
const decompressChunkSize = 64 * 1024

// maxMemberCandidates limits how many possible member ends are decoded before
// a member is given up.
const maxMemberCandidates = 8

var (
	// errMemberBoundary is returned if the end of a compressed member cannot be located.
	errMemberBoundary = errors.New("cannot locate end of compressed member")

	// errCorruptMember is returned if a compressed member cannot be decoded.
	errCorruptMember = errors.New("cannot decompress")
)

// decompressionFunc returns a reader that decodes one compressed member from src.
type decompressionFunc func(src io.Reader) (io.Reader, error)

// memberLengthFunc returns the encoded length of the compressed member at the
// start of data, or -1 if no complete member is found.
type memberLengthFunc func(data []byte) int

// nextMemberLengthFunc returns the next possible encoded length of the
// compressed member at the start of data that is larger than prev, or -1.
type nextMemberLengthFunc func(data []byte, prev int) int

// codec describes a compression format for the member loop of [decompress].
type codec struct {
	// format is the name reported in telemetry and logs
	format string

	// memberLength bounds the input of a decoder to a single member. If nil,
	// the consumed input is measured from the reader position after decoding.
	memberLength memberLengthFunc

	// nextMemberLength is set for formats whose member end can only be located
	// by a marker that may also occur inside the encoded data. If decoding fails,
	// the following candidates are tried.
	nextMemberLength nextMemberLengthFunc

	// decompress creates the decoder for one member
	decompress decompressionFunc
}

// decompress decodes the concatenated compressed members starting at offset in
// data. If dst is set, the decoded output of all members is written into a
// single file inside the sandbox rooted at dst.
//
// Decoding stops at the first member that cannot be decoded or written. The
// members decoded so far stay successful and the input consumed by them is
// returned as size.
func decompress(ctx context.Context, data []byte, offset int, dst string, cfg *Config, c codec) ExtractionResult {
	cfg, m := prepare(cfg, c.format, data, offset)

	// prepare telemetry capturing
	var res ExtractionResult
	defer cfg.TelemetryHook()(ctx, m)
	defer captureExtractionDuration(m, now())
	defer captureResult(m, &res)

	if offset < 0 || offset >= len(data) {
		cfg.Logger().Debug("offset beyond input", "format", c.format, "offset", offset, "size", len(data))
		return res
	}
	if err := cfg.CheckInputSize(int64(len(data))); err != nil {
		recordError(m, err)
		cfg.Logger().Error("input too large", "format", c.format, "size", len(data), "error", err)
		return res
	}

	cfg.Logger().Info("decompress", "format", c.format, "offset", offset)

	out := &decompressedArtifact{name: cfg.DecompressedName()}
	if len(dst) > 0 {
		sb, err := NewSandbox(dst, cfg)
		if err != nil {
			recordError(m, err)
			cfg.Logger().Error("cannot prepare output", "dst", dst, "error", err)
			return res
		}
		out.sb = sb
		defer func() {
			m.ExtractionSize = sb.Written()
			if out.created {
				m.ExtractedFiles++
			}
		}()
	}

	buf := make([]byte, decompressChunkSize)
	current := offset
	for current < len(data) {
		n, produced, err := decompressMember(ctx, data[current:], out, c, buf)
		if err != nil {
			recordError(m, err)
			if res.Success {
				cfg.Logger().Debug("end of compressed members", "format", c.format, "offset", current, "error", err)
			} else {
				cfg.Logger().Error("decompression failed", "format", c.format, "offset", current, "error", err)
			}
			break
		}

		// guard against decoders that make no progress
		if n == 0 {
			break
		}

		// an empty member is consumed but recovers no payload
		if produced {
			res.Success = true
		}
		res.Size += int64(n)
		m.ExtractedMembers++
		current += n
	}

	return res
}

// decompressMember decodes the member at the start of src into out. It returns
// the number of input bytes the member occupies and whether any output was decoded.
func decompressMember(ctx context.Context, src []byte, out *decompressedArtifact, c codec, buf []byte) (int, bool, error) {
	if c.memberLength == nil {
		consumed, decoded, err := decodeMember(ctx, src, out, c, buf, 0)
		return consumed, decoded > 0, err
	}

	n := c.memberLength(src)
	if n <= 0 {
		return 0, false, errMemberBoundary
	}

	// output of a failed candidate is a prefix of the output of a longer one
	var written int64
	for candidate := 1; ; candidate++ {
		_, decoded, err := decodeMember(ctx, src[:n], out, c, buf, written)
		if err == nil {
			return n, decoded > 0, nil
		}
		if !errors.Is(err, errCorruptMember) || c.nextMemberLength == nil || candidate == maxMemberCandidates {
			return 0, false, err
		}
		next := c.nextMemberLength(src, n)
		if next <= 0 {
			return 0, false, err
		}
		written = max(written, decoded)
		n = next
	}
}

// decodeMember decodes the member at the start of in and writes the output
// after the first skip bytes to out. It returns the consumed input and the
// number of decoded bytes, which include the skipped ones.
func decodeMember(ctx context.Context, in []byte, out *decompressedArtifact, c codec, buf []byte, skip int64) (int, int64, error) {
	// check if context is canceled
	if err := ctx.Err(); err != nil {
		return 0, 0, fmt.Errorf("context error: %w", err)
	}

	r := bytes.NewReader(in)
	dec, err := c.decompress(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: cannot start decompression: %w", errCorruptMember, err)
	}
	defer func() {
		if closer, ok := dec.(io.Closer); ok {
			closer.Close()
		}
	}()

	var decoded int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, decoded, fmt.Errorf("context error: %w", err)
		}

		n, err := dec.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if decoded < skip {
				chunk = chunk[min(int64(n), skip-decoded):]
			}
			decoded += int64(n)
			if len(chunk) > 0 {
				if werr := out.write(chunk); werr != nil {
					return 0, decoded, fmt.Errorf("cannot write decompressed data: %w", werr)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, decoded, fmt.Errorf("%w: %w", errCorruptMember, err)
		}
	}

	return int(r.Size()) - r.Len(), decoded, nil
}

// decompressedArtifact is the single output file all members are decoded into.
// Without a sandbox, output is discarded.
type decompressedArtifact struct {
	sb      *Sandbox
	name    string
	created bool
}

// write creates the artifact with the first chunk and appends all further chunks.
func (a *decompressedArtifact) write(p []byte) error {
	if a.sb == nil {
		return nil
	}
	if !a.created {
		a.created = true
		return a.sb.WriteFile(a.name, p)
	}
	return a.sb.AppendToFile(a.name, p)
}
