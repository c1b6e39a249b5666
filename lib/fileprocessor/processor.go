// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package fileprocessor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/tessera-net/tessera/lib/chunker"
	"github.com/tessera-net/tessera/lib/merkle"
)

// stagingDir is the subdirectory of the chunks root holding
// in-progress runs. It starts with a dot so it can never collide with
// a content identifier directory.
const stagingDir = ".staging"

// DefaultParallelism is the number of chunk writes in flight when
// Config.Parallelism is zero.
const DefaultParallelism = 4

// Config configures a Processor.
type Config struct {
	// ChunksRoot holds one directory per published content identifier.
	ChunksRoot string

	// ChunkSize is the fixed chunk size. Zero selects
	// chunker.DefaultChunkSize.
	ChunkSize int

	// Parallelism bounds concurrent chunk writes, and with it the
	// number of chunk buffers held in memory.
	Parallelism int

	// MinFreeBytes is the free-space floor on the chunks filesystem.
	// A run is refused if writing the source would cross it.
	MinFreeBytes uint64

	// VerifyAfterWrite re-reads every persisted chunk and checks it
	// against its proof before the run reports success.
	VerifyAfterWrite bool

	Logger *slog.Logger
}

// Request names the source to publish.
type Request struct {
	Path   string
	Public bool
}

// Result describes a completed run. Every index in
// [0, NumberOfChunks) has an entry in MerkleProofs and a file named
// chunker.FileName(index) in ChunksDirectory.
type Result struct {
	ContentID       merkle.Hash
	NumberOfChunks  uint64
	MerkleProofs    map[uint64][]byte
	ChunksDirectory string
	Size            int64
	ChunkSize       int
	Public          bool
}

// Processor turns a file into persisted chunks, a Merkle tree, and
// per-chunk proofs. A Processor is safe for concurrent use; concurrent
// runs over the same content converge on one chunks directory.
type Processor struct {
	root        string
	staging     string
	chunkSize   int
	parallelism int
	minFree     uint64
	verify      bool
	logger      *slog.Logger

	// writeChunk persists one chunk into a staging directory.
	writeChunk func(dir string, chunk *chunker.Chunk) error
}

// New creates the chunks root and its staging directory.
func New(config Config) (*Processor, error) {
	if config.ChunksRoot == "" {
		return nil, errors.New("fileprocessor: chunks root is required")
	}
	if config.ChunkSize < 0 || config.ChunkSize > chunker.MaxChunkSize {
		return nil, fmt.Errorf("fileprocessor: chunk size %d outside [1, %d]", config.ChunkSize, chunker.MaxChunkSize)
	}
	chunkSize := config.ChunkSize
	if chunkSize == 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	parallelism := config.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root, err := filepath.Abs(config.ChunksRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving chunks root %s: %w", config.ChunksRoot, err)
	}
	staging := filepath.Join(root, stagingDir)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory %s: %w", staging, err)
	}

	return &Processor{
		root:        root,
		staging:     staging,
		chunkSize:   chunkSize,
		parallelism: parallelism,
		minFree:     config.MinFreeBytes,
		verify:      config.VerifyAfterWrite,
		logger:      logger,
		writeChunk:  writeChunkFile,
	}, nil
}

// ChunksRoot returns the absolute chunks root.
func (p *Processor) ChunksRoot() string {
	return p.root
}

// ChunksDirectory returns the directory that holds, or would hold,
// the chunks of id.
func (p *Processor) ChunksDirectory(id merkle.Hash) string {
	return filepath.Join(p.root, id.String())
}

// RemoveStaleStaging deletes staging directories left behind by a run
// that never finished, such as one interrupted by a crash. Call it
// before the first Process of a new node process.
func (p *Processor) RemoveStaleStaging() error {
	entries, err := os.ReadDir(p.staging)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(p.staging, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing stale staging %s: %w", path, err)
		}
		p.logger.Info("removed stale staging directory", "path", path)
	}
	return nil
}

// Process publishes the file at request.Path.
func (p *Processor) Process(ctx context.Context, request Request) (*Result, error) {
	file, err := os.Open(request.Path)
	if err != nil {
		return nil, inputError(request.Path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, inputError(request.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, inputError(request.Path, fmt.Errorf("not a regular file (mode %s)", info.Mode().Type()))
	}

	return p.process(ctx, request.Path, file, info.Size(), request.Public)
}

// ProcessBytes publishes an in-memory payload. source names the
// payload in errors and logs.
func (p *Processor) ProcessBytes(ctx context.Context, source string, data []byte, public bool) (*Result, error) {
	return p.process(ctx, source, bytes.NewReader(data), int64(len(data)), public)
}

func (p *Processor) process(ctx context.Context, source string, reader io.Reader, size int64, public bool) (*Result, error) {
	if size == 0 {
		return nil, inputError(source, ErrEmptyFile)
	}
	if err := checkFreeSpace(p.root, size, p.minFree); err != nil {
		return nil, resourceError(source, err)
	}

	stagingPath := filepath.Join(p.staging, uuid.NewString())
	if err := os.Mkdir(stagingPath, 0o755); err != nil {
		return nil, resourceError(source, fmt.Errorf("creating staging directory: %w", err))
	}
	staged := true
	defer func() {
		if staged {
			if err := os.RemoveAll(stagingPath); err != nil {
				p.logger.Warn("removing staging directory failed", "path", stagingPath, "error", err)
			}
		}
	}()

	digests, written, err := p.writeChunks(ctx, source, reader, stagingPath)
	if err != nil {
		return nil, err
	}
	if len(digests) == 0 {
		return nil, inputError(source, ErrEmptyFile)
	}

	tree, err := merkle.Build(digests)
	if err != nil {
		return nil, inputError(source, err)
	}
	proofs, err := tree.ProveAll()
	if err != nil {
		return nil, integrityError(source, err)
	}

	finalPath := p.ChunksDirectory(tree.Root())
	reused, err := p.commit(stagingPath, finalPath)
	if err != nil {
		return nil, resourceError(source, err)
	}

	result := &Result{
		ContentID:       tree.Root(),
		NumberOfChunks:  tree.LeafCount(),
		MerkleProofs:    proofs,
		ChunksDirectory: finalPath,
		Size:            written,
		ChunkSize:       p.chunkSize,
		Public:          public,
	}

	// An existing directory is only trusted once it verifies. A damaged
	// one is replaced by the staging copy just written.
	if reused {
		if err := VerifyDirectory(result); err != nil {
			p.logger.Warn("existing chunks directory failed verification, replacing it",
				"content_id", result.ContentID.String(),
				"path", finalPath,
				"error", err,
			)
			if err := p.replace(stagingPath, finalPath); err != nil {
				return nil, resourceError(source, err)
			}
			reused = false
		}
	}
	staged = reused

	if p.verify && !reused {
		if err := VerifyDirectory(result); err != nil {
			if removeErr := os.RemoveAll(finalPath); removeErr != nil {
				p.logger.Warn("removing unverified chunks directory failed", "path", finalPath, "error", removeErr)
			}
			return nil, integrityError(source, err)
		}
	}

	p.logger.Info("processed file",
		"source", source,
		"content_id", result.ContentID.String(),
		"chunks", result.NumberOfChunks,
		"bytes", written,
		"reused", reused,
	)
	return result, nil
}

// writeChunks streams the source through the chunker, writing each
// chunk into dir with bounded parallelism. It returns the leaf digests
// in chunk order and the total bytes read.
func (p *Processor) writeChunks(ctx context.Context, source string, reader io.Reader, dir string) ([]merkle.Hash, int64, error) {
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(p.parallelism)

	stream := chunker.New(reader, p.chunkSize)
	var digests []merkle.Hash
	var written int64
	var readErr error
	for {
		if err := groupContext.Err(); err != nil {
			break
		}
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = inputError(source, err)
			break
		}
		digests = append(digests, chunk.Digest)
		written += int64(len(chunk.Data))
		// Go blocks while parallelism writes are in flight, which
		// bounds the chunk buffers held in memory.
		group.Go(func() error {
			return p.writeChunk(dir, chunk)
		})
	}

	writeErr := group.Wait()
	switch {
	case readErr != nil:
		return nil, 0, readErr
	case writeErr != nil:
		return nil, 0, resourceError(source, writeErr)
	case ctx.Err() != nil:
		return nil, 0, fmt.Errorf("processing %s: %w", source, ctx.Err())
	}

	if err := syncDirectory(dir); err != nil {
		return nil, 0, resourceError(source, err)
	}
	return digests, written, nil
}

// commit moves a finished staging directory to its content-addressed
// location. If the location already exists commit reports reused and
// leaves the staging copy for the caller to discard or swap in.
func (p *Processor) commit(stagingPath, finalPath string) (reused bool, err error) {
	if _, err := os.Stat(finalPath); err == nil {
		return true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", finalPath, err)
	}

	if err := os.Rename(stagingPath, finalPath); err != nil {
		// A concurrent run over the same content renamed first.
		if errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST) {
			return true, nil
		}
		return false, fmt.Errorf("renaming %s to %s: %w", stagingPath, finalPath, err)
	}
	if err := syncDirectory(p.root); err != nil {
		return false, err
	}
	return false, nil
}

// replace swaps the staging copy in for a damaged chunks directory.
// The damaged directory is moved into staging first, so finalPath is
// never a partial mix of the two.
func (p *Processor) replace(stagingPath, finalPath string) error {
	asidePath := stagingPath + ".replaced"
	if err := os.Rename(finalPath, asidePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("moving aside %s: %w", finalPath, err)
	}
	if err := os.Rename(stagingPath, finalPath); err != nil {
		if restoreErr := os.Rename(asidePath, finalPath); restoreErr != nil && !errors.Is(restoreErr, fs.ErrNotExist) {
			p.logger.Warn("restoring chunks directory failed", "path", finalPath, "error", restoreErr)
		}
		return fmt.Errorf("renaming %s to %s: %w", stagingPath, finalPath, err)
	}
	if err := syncDirectory(p.root); err != nil {
		return err
	}
	if err := os.RemoveAll(asidePath); err != nil {
		p.logger.Warn("removing replaced chunks directory failed", "path", asidePath, "error", err)
	}
	return nil
}

// writeChunkFile writes one chunk through a temp file and renames it
// into place, so a chunk file either holds the whole chunk or does
// not exist.
func writeChunkFile(dir string, chunk *chunker.Chunk) error {
	name := chunker.FileName(chunk.Index)
	tmpFile, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for chunk %d: %w", chunk.Index, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(chunk.Data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing chunk %d: %w", chunk.Index, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing chunk %d: %w", chunk.Index, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing chunk %d: %w", chunk.Index, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("renaming chunk %d: %w", chunk.Index, err)
	}

	success = true
	return nil
}

func syncDirectory(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", path, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", path, err)
	}
	return nil
}
