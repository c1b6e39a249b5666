// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/tessera-net/tessera/lib/codec"
	"github.com/tessera-net/tessera/lib/fileprocessor"
	"github.com/tessera-net/tessera/lib/merkle"
)

// keyVersion is the first byte of every canonical key. A future key
// layout gets a new version byte rather than a new length.
const keyVersion byte = 0x01

// KeySize is the length of a canonical key.
const KeySize = 1 + merkle.HashSize

// PublishedFileRecord is the durable record that a file was published.
// It carries everything a later stage needs to serve or announce the
// file without reprocessing it.
type PublishedFileRecord struct {
	ContentID       merkle.Hash       `cbor:"content_id"`
	NumberOfChunks  uint64            `cbor:"number_of_chunks"`
	MerkleProofs    map[uint64][]byte `cbor:"merkle_proofs"`
	ChunksDirectory string            `cbor:"chunks_directory"`
	Size            int64             `cbor:"size"`
	ChunkSize       int               `cbor:"chunk_size"`
	Public          bool              `cbor:"public,omitempty"`
	PublishedAt     time.Time         `cbor:"published_at"`
}

// NewPublishedFileRecord derives the record for a processing result.
func NewPublishedFileRecord(result *fileprocessor.Result, publishedAt time.Time) PublishedFileRecord {
	return PublishedFileRecord{
		ContentID:       result.ContentID,
		NumberOfChunks:  result.NumberOfChunks,
		MerkleProofs:    result.MerkleProofs,
		ChunksDirectory: result.ChunksDirectory,
		Size:            result.Size,
		ChunkSize:       result.ChunkSize,
		Public:          result.Public,
		PublishedAt:     publishedAt.UTC().Truncate(time.Second),
	}
}

// Key returns the canonical key of the record.
func (r *PublishedFileRecord) Key() []byte {
	return EncodeKey(r.ContentID)
}

// Validate checks the record's internal consistency.
func (r *PublishedFileRecord) Validate() error {
	if r.ContentID.IsZero() {
		return errors.New("record has no content id")
	}
	if r.NumberOfChunks == 0 {
		return fmt.Errorf("record %s has zero chunks", r.ContentID)
	}
	if uint64(len(r.MerkleProofs)) != r.NumberOfChunks {
		return fmt.Errorf("record %s has %d proofs for %d chunks", r.ContentID, len(r.MerkleProofs), r.NumberOfChunks)
	}
	for index := range r.NumberOfChunks {
		if _, ok := r.MerkleProofs[index]; !ok {
			return fmt.Errorf("record %s has no proof for chunk %d", r.ContentID, index)
		}
	}
	if r.ChunksDirectory == "" {
		return fmt.Errorf("record %s has no chunks directory", r.ContentID)
	}
	return nil
}

// EncodeKey returns the canonical storage key of a content identifier:
// the version byte followed by the 32 root bytes.
func EncodeKey(id merkle.Hash) []byte {
	key := make([]byte, KeySize)
	key[0] = keyVersion
	copy(key[1:], id[:])
	return key
}

// DecodeKey is the inverse of [EncodeKey]. It rejects keys of the
// wrong length or version.
func DecodeKey(key []byte) (merkle.Hash, error) {
	var id merkle.Hash
	if len(key) != KeySize {
		return id, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	if key[0] != keyVersion {
		return id, fmt.Errorf("%w: version byte 0x%02x", ErrInvalidKey, key[0])
	}
	copy(id[:], key[1:])
	return id, nil
}

// MarshalRecord encodes a record value.
func MarshalRecord(record *PublishedFileRecord) ([]byte, error) {
	data, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", record.ContentID, err)
	}
	return data, nil
}

// UnmarshalRecord decodes a record value.
func UnmarshalRecord(data []byte) (*PublishedFileRecord, error) {
	var record PublishedFileRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &record, nil
}
