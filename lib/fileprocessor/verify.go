// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package fileprocessor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tessera-net/tessera/lib/chunker"
	"github.com/tessera-net/tessera/lib/merkle"
)

// VerifyChunk reads the chunk at index from dir and checks it against
// its serialized proof.
func VerifyChunk(dir string, root merkle.Hash, index, leafCount uint64, proof []byte) error {
	path := filepath.Join(dir, chunker.FileName(index))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading chunk %d: %w", index, err)
	}
	decoded, err := merkle.DecodeProof(proof)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", index, err)
	}
	if err := merkle.VerifyProof(root, index, merkle.HashLeaf(data), leafCount, decoded); err != nil {
		return fmt.Errorf("chunk %d (%s): %w", index, path, err)
	}
	return nil
}

// VerifyDirectory checks every chunk of result against its proof.
func VerifyDirectory(result *Result) error {
	for index := range result.NumberOfChunks {
		proof, ok := result.MerkleProofs[index]
		if !ok {
			return fmt.Errorf("chunk %d has no proof", index)
		}
		if err := VerifyChunk(result.ChunksDirectory, result.ContentID, index, result.NumberOfChunks, proof); err != nil {
			return err
		}
	}
	return nil
}
