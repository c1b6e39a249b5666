// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunker splits content into fixed-size chunks and computes
// each chunk's leaf digest.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tessera-net/tessera/lib/merkle"
)

// DefaultChunkSize is the chunk size used when none is configured.
// Chunk size is part of a file's identity: the same bytes chunked at a
// different size produce a different content identifier.
const DefaultChunkSize = 256 * 1024

// MaxChunkSize bounds configured chunk sizes. Every chunk is held in
// memory while it is hashed and written.
const MaxChunkSize = 64 * 1024 * 1024

// FileSuffix is the extension of persisted chunk files.
const FileSuffix = ".chunk"

// Chunk is one contiguous piece of the input with its leaf digest.
type Chunk struct {
	Index  uint64
	Data   []byte
	Digest merkle.Hash
}

// Chunker yields the chunks of a reader in order. Every chunk except
// the last is exactly the chunk size; the last is shorter if the input
// does not divide evenly. Empty input yields no chunks.
type Chunker struct {
	reader    io.Reader
	chunkSize int
	next      uint64
	done      bool
}

// New returns a chunker over r. A chunkSize of zero or less selects
// [DefaultChunkSize].
func New(r io.Reader, chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{reader: r, chunkSize: chunkSize}
}

// ChunkSize returns the effective chunk size.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Next returns the next chunk, or io.EOF after the last one. Each
// chunk owns its Data slice.
func (c *Chunker) Next() (*Chunk, error) {
	if c.done {
		return nil, io.EOF
	}
	buffer := make([]byte, c.chunkSize)
	n, err := io.ReadFull(c.reader, buffer)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.done = true
	case errors.Is(err, io.EOF):
		c.done = true
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("reading chunk %d: %w", c.next, err)
	}

	chunk := &Chunk{
		Index:  c.next,
		Data:   buffer[:n],
		Digest: merkle.HashLeaf(buffer[:n]),
	}
	c.next++
	return chunk, nil
}

// Reset rewinds the chunker to the first chunk. It fails unless the
// underlying reader is an io.Seeker.
func (c *Chunker) Reset() error {
	seeker, ok := c.reader.(io.Seeker)
	if !ok {
		return errors.New("chunker: reader does not support seeking")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("chunker: rewinding reader: %w", err)
	}
	c.next = 0
	c.done = false
	return nil
}

// ChunkAll chunks an in-memory buffer. The returned chunks alias data.
func ChunkAll(data []byte, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := make([]Chunk, 0, (len(data)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		chunks = append(chunks, Chunk{
			Index:  uint64(len(chunks)),
			Data:   data[offset:end],
			Digest: merkle.HashLeaf(data[offset:end]),
		})
	}
	return chunks
}

// Digests returns the digests of chunks in order.
func Digests(chunks []Chunk) []merkle.Hash {
	digests := make([]merkle.Hash, len(chunks))
	for i, chunk := range chunks {
		digests[i] = chunk.Digest
	}
	return digests
}

// FileName returns the name of the file holding the chunk at index:
// the decimal index followed by [FileSuffix].
func FileName(index uint64) string {
	return strconv.FormatUint(index, 10) + FileSuffix
}

// ParseFileName is the inverse of [FileName].
func ParseFileName(name string) (uint64, error) {
	digits, ok := strings.CutSuffix(name, FileSuffix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("chunk file name %q does not end in %s", name, FileSuffix)
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, fmt.Errorf("chunk file name %q has a leading zero", name)
	}
	index, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chunk file name %q: %w", name, err)
	}
	return index, nil
}
