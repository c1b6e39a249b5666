// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package merkle

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the length in bytes of every digest and root.
const HashSize = 32

// Hash is a 32-byte BLAKE3 digest: a chunk digest, an interior node,
// or a root (content identifier).
type Hash [HashSize]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing.
type domainKey [32]byte

// Domain keys are the ASCII domain name zero-padded to 32 bytes.
// Changing either one changes every content identifier.
var (
	leafDomainKey = domainKey{
		't', 'e', 's', 's', 'e', 'r', 'a', '.', 'm', 'e', 'r', 'k', 'l', 'e', '.',
		'l', 'e', 'a', 'f', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	nodeDomainKey = domainKey{
		't', 'e', 's', 's', 'e', 'r', 'a', '.', 'm', 'e', 'r', 'k', 'l', 'e', '.',
		'n', 'o', 'd', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashLeaf computes the leaf digest of one chunk's bytes.
func HashLeaf(data []byte) Hash {
	hasher := newHasher(leafDomainKey)
	hasher.Write(data)
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

// HashNode computes the interior node over an ordered pair of children.
func HashNode(left, right Hash) Hash {
	return newPairHasher().hash(left, right)
}

// pairHasher reuses one keyed hasher across many node computations.
// Tree construction does one pair hash per interior node, and a fresh
// blake3.Hasher per pair dominates allocation for large files.
type pairHasher struct {
	hasher   *blake3.Hasher
	combined [2 * HashSize]byte
}

func newPairHasher() *pairHasher {
	return &pairHasher{hasher: newHasher(nodeDomainKey)}
}

func (p *pairHasher) hash(left, right Hash) Hash {
	copy(p.combined[:HashSize], left[:])
	copy(p.combined[HashSize:], right[:])
	p.hasher.Reset()
	p.hasher.Write(p.combined[:])
	var result Hash
	copy(result[:], p.hasher.Sum(nil))
	return result
}

func newHasher(key domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed fails only for keys that are not 32 bytes.
		panic("merkle: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// String returns the lowercase hex form used for directory names and
// on every external surface.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("parsing content id: expected %d hex characters, got %d", 2*HashSize, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("parsing content id: %w", err)
	}
	return h, nil
}
