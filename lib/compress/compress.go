// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress encodes and decodes inline publish payloads. A
// client sending file content over the node socket may compress it
// with zstd or LZ4 block compression; the node decodes it before
// chunking, so content identifiers always cover the original bytes.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Encoding names a payload encoding. The string values appear on the
// wire in publish requests.
type Encoding string

const (
	None Encoding = "none"
	LZ4  Encoding = "lz4"
	Zstd Encoding = "zstd"

	// Auto is accepted by Encode only. It probes the payload and
	// picks one of the concrete encodings.
	Auto Encoding = "auto"
)

// ErrSizeMismatch is returned by Decode when the decoded length
// differs from the declared size.
var ErrSizeMismatch = errors.New("decoded size does not match declared size")

// ParseEncoding accepts the wire names, with the empty string meaning
// None.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case "", None:
		return None, nil
	case LZ4, Zstd, Auto:
		return Encoding(name), nil
	default:
		return "", fmt.Errorf("unknown encoding %q (want none, lz4, zstd, or auto)", name)
	}
}

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
}

// minDecoderMemory is the decoder memory floor for small payloads, so
// that frames written with the usual 8 MiB window still decode.
const minDecoderMemory = 16 << 20

// Encode compresses data. It returns the encoding actually applied:
// when the compressed form would not be smaller than the input, the
// input is returned unchanged with None.
func Encode(data []byte, encoding Encoding) ([]byte, Encoding, error) {
	if encoding == Auto {
		encoding = Select(data)
	}
	var (
		out []byte
		err error
	)
	switch encoding {
	case "", None:
		return data, None, nil
	case LZ4:
		out, err = encodeLZ4(data)
	case Zstd:
		out = zstdEncoder.EncodeAll(data, nil)
	default:
		return nil, "", fmt.Errorf("unsupported encoding %q", encoding)
	}
	if err != nil {
		return nil, "", err
	}
	if len(out) == 0 || len(out) >= len(data) {
		return data, None, nil
	}
	return out, encoding, nil
}

// Decode reverses Encode. size is the length of the original payload
// and bounds the allocation; the decoded output must match it exactly.
func Decode(data []byte, encoding Encoding, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative declared size %d", size)
	}
	switch encoding {
	case "", None:
		if len(data) != size {
			return nil, fmt.Errorf("%w: got %d bytes, declared %d", ErrSizeMismatch, len(data), size)
		}
		return data, nil
	case LZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decode: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decode: %w: got %d bytes, declared %d", ErrSizeMismatch, read, size)
		}
		return out, nil
	case Zstd:
		return decodeZstd(data, size)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// Select probes data with zstd and picks an encoding by ratio: zstd
// at 1.5x or better, LZ4 from 1.1x, otherwise None.
func Select(data []byte) Encoding {
	if len(data) == 0 {
		return None
	}
	probe := data
	if len(probe) > probeSize {
		probe = probe[:probeSize]
	}
	compressed := zstdEncoder.EncodeAll(probe, nil)
	ratio := float64(len(probe)) / float64(len(compressed))
	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}

const probeSize = 256 << 10

func encodeLZ4(data []byte) ([]byte, error) {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, out, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 encode: %w", err)
	}
	return out[:written], nil
}

// decodeZstd streams the frame and stops one byte past size, so a frame
// without a content size cannot expand beyond what the caller declared.
func decodeZstd(data []byte, size int) ([]byte, error) {
	header := zstd.Header{}
	if err := header.Decode(data); err == nil && header.HasFCS && header.FrameContentSize != uint64(size) {
		return nil, fmt.Errorf("zstd decode: %w: frame declares %d bytes, declared %d",
			ErrSizeMismatch, header.FrameContentSize, size)
	}

	decoder, err := zstd.NewReader(bytes.NewReader(data),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(max(uint64(size), minDecoderMemory)))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	defer decoder.Close()

	out := make([]byte, size)
	read, err := io.ReadFull(decoder, out)
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("zstd decode: %w: got %d bytes, declared %d", ErrSizeMismatch, read, size)
	case err != nil:
		return nil, fmt.Errorf("zstd decode: %w", err)
	}

	var extra [1]byte
	switch _, err := io.ReadFull(decoder, extra[:]); {
	case err == nil:
		return nil, fmt.Errorf("zstd decode: %w: more than the declared %d bytes", ErrSizeMismatch, size)
	case !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
