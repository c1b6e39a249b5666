// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package merkle

import (
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/codec"
)

// ProofVersion is the format version written into every serialized
// proof. Decoding rejects any other value.
const ProofVersion = 1

// ErrProofMismatch is returned when a proof is well formed but does
// not reproduce the expected root.
var ErrProofMismatch = errors.New("merkle: proof does not match root")

// ErrMalformedProof is returned when a proof cannot describe a path
// in a tree of the claimed shape.
var ErrMalformedProof = errors.New("merkle: malformed proof")

// Side is the position of a sibling relative to the path node.
type Side uint8

const (
	// SideLeft means the sibling is the left child: parent = H(sibling, node).
	SideLeft Side = 1
	// SideRight means the sibling is the right child: parent = H(node, sibling).
	SideRight Side = 2
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Step is one sibling on the path from a leaf to the root.
type Step struct {
	Side    Side
	Sibling Hash
}

// Proof is the inclusion proof of one leaf. Steps are ordered from
// the leaf upward. Levels where the path node was promoted contribute
// no step.
type Proof struct {
	LeafCount uint64
	Index     uint64
	Steps     []Step
}

type wireProof struct {
	Version   uint8      `cbor:"v"`
	LeafCount uint64     `cbor:"n"`
	Index     uint64     `cbor:"i"`
	Steps     []wireStep `cbor:"s"`
}

type wireStep struct {
	_       struct{} `cbor:",toarray"`
	Side    Side
	Sibling []byte
}

// EncodeProof serializes proof as deterministic CBOR.
func EncodeProof(proof *Proof) ([]byte, error) {
	wire := wireProof{
		Version:   ProofVersion,
		LeafCount: proof.LeafCount,
		Index:     proof.Index,
		Steps:     make([]wireStep, len(proof.Steps)),
	}
	for i, step := range proof.Steps {
		wire.Steps[i] = wireStep{Side: step.Side, Sibling: step.Sibling[:]}
	}
	return codec.Marshal(wire)
}

// DecodeProof parses a serialized proof. It checks the encoding only;
// use [VerifyProof] to check the proof against a tree shape and root.
func DecodeProof(data []byte) (*Proof, error) {
	var wire wireProof
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedProof, err)
	}
	if wire.Version != ProofVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedProof, wire.Version)
	}
	proof := &Proof{
		LeafCount: wire.LeafCount,
		Index:     wire.Index,
		Steps:     make([]Step, len(wire.Steps)),
	}
	for i, step := range wire.Steps {
		if len(step.Sibling) != HashSize {
			return nil, fmt.Errorf("%w: step %d sibling is %d bytes", ErrMalformedProof, i, len(step.Sibling))
		}
		proof.Steps[i].Side = step.Side
		copy(proof.Steps[i].Sibling[:], step.Sibling)
	}
	return proof, nil
}

// VerifyProof checks that leaf sits at index in a tree of leafCount
// leaves with the given root. The expected path shape is recomputed
// from index and leafCount; a proof whose side markers or step count
// disagree with that shape is rejected as malformed even if it would
// hash to the root.
func VerifyProof(root Hash, index uint64, leaf Hash, leafCount uint64, proof *Proof) error {
	if leafCount == 0 {
		return fmt.Errorf("%w: zero leaf count", ErrMalformedProof)
	}
	if index >= leafCount {
		return fmt.Errorf("%w: index %d out of range for %d leaves", ErrMalformedProof, index, leafCount)
	}
	if proof.LeafCount != leafCount || proof.Index != index {
		return fmt.Errorf("%w: proof is for leaf %d of %d, expected %d of %d",
			ErrMalformedProof, proof.Index, proof.LeafCount, index, leafCount)
	}

	hasher := newPairHasher()
	current := leaf
	position := index
	width := leafCount
	next := 0
	for width > 1 {
		promoted := position == width-1 && width%2 == 1
		if !promoted {
			if next >= len(proof.Steps) {
				return fmt.Errorf("%w: too few steps", ErrMalformedProof)
			}
			step := proof.Steps[next]
			next++
			expected := SideRight
			if position%2 == 1 {
				expected = SideLeft
			}
			if step.Side != expected {
				return fmt.Errorf("%w: step %d has sibling on the %s, expected %s",
					ErrMalformedProof, next-1, step.Side, expected)
			}
			if expected == SideRight {
				current = hasher.hash(current, step.Sibling)
			} else {
				current = hasher.hash(step.Sibling, current)
			}
		}
		position /= 2
		width = (width + 1) / 2
	}
	if next != len(proof.Steps) {
		return fmt.Errorf("%w: %d unused steps", ErrMalformedProof, len(proof.Steps)-next)
	}
	if current != root {
		return ErrProofMismatch
	}
	return nil
}

// Verify reports whether proofBytes proves that leaf is the leaf at
// index of the tree with the given root and leaf count.
func Verify(root Hash, index uint64, leaf Hash, leafCount uint64, proofBytes []byte) bool {
	proof, err := DecodeProof(proofBytes)
	if err != nil {
		return false
	}
	return VerifyProof(root, index, leaf, leafCount, proof) == nil
}

// VerifyAll reports whether every (index, leaf, proof) triple verifies
// against root. The slices must be the same non-zero length.
func VerifyAll(root Hash, indices []uint64, leaves []Hash, leafCount uint64, proofs [][]byte) bool {
	if len(indices) == 0 || len(indices) != len(leaves) || len(indices) != len(proofs) {
		return false
	}
	for i := range indices {
		if !Verify(root, indices[i], leaves[i], leafCount, proofs[i]) {
			return false
		}
	}
	return true
}
