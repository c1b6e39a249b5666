// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package merkle

import (
	"errors"
	"fmt"
)

// OddNodePolicy names the rule for levels with an odd number of nodes.
// The last node is promoted to the next level without hashing. It is
// never paired with a copy of itself: duplication would give a file
// of n chunks and the same file with its last chunk repeated the same
// root.
const OddNodePolicy = "promote"

// ErrEmptyTree is returned when a tree is requested over zero leaves.
var ErrEmptyTree = errors.New("merkle: tree has no leaves")

// Tree is a binary Merkle tree over an ordered list of leaf digests.
// Construction is a pure function of the leaf order. A Tree is
// immutable and safe for concurrent use.
type Tree struct {
	// levels[0] holds the leaves; the last level holds only the root.
	levels [][]Hash
}

// Build constructs the tree over leaves. The caller's slice is not
// retained.
func Build(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)
	levels := [][]Hash{level}

	hasher := newPairHasher()
	for len(level) > 1 {
		next := make([]Hash, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next[i/2] = hasher.hash(level[i], level[i+1])
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// Root returns the root digest, which is the content identifier of
// the data the leaves were computed from.
func (t *Tree) Root() Hash {
	return t.levels[len(t.levels)-1][0]
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() uint64 {
	return uint64(len(t.levels[0]))
}

// Leaf returns the digest at index.
func (t *Tree) Leaf(index uint64) (Hash, error) {
	if index >= t.LeafCount() {
		return Hash{}, fmt.Errorf("merkle: leaf index %d out of range for %d leaves", index, t.LeafCount())
	}
	return t.levels[0][index], nil
}

// Prove returns the inclusion proof for the leaf at index.
func (t *Tree) Prove(index uint64) (*Proof, error) {
	leafCount := t.LeafCount()
	if index >= leafCount {
		return nil, fmt.Errorf("merkle: leaf index %d out of range for %d leaves", index, leafCount)
	}

	proof := &Proof{LeafCount: leafCount, Index: index}
	position := index
	for _, level := range t.levels[:len(t.levels)-1] {
		width := uint64(len(level))
		switch {
		case position == width-1 && width%2 == 1:
			// Promoted; no sibling at this level.
		case position%2 == 0:
			proof.Steps = append(proof.Steps, Step{Side: SideRight, Sibling: level[position+1]})
		default:
			proof.Steps = append(proof.Steps, Step{Side: SideLeft, Sibling: level[position-1]})
		}
		position /= 2
	}
	return proof, nil
}

// ProveAll returns the serialized proof of every leaf, keyed by leaf
// index.
func (t *Tree) ProveAll() (map[uint64][]byte, error) {
	proofs := make(map[uint64][]byte, len(t.levels[0]))
	for index := range t.LeafCount() {
		proof, err := t.Prove(index)
		if err != nil {
			return nil, err
		}
		encoded, err := EncodeProof(proof)
		if err != nil {
			return nil, fmt.Errorf("encoding proof for leaf %d: %w", index, err)
		}
		proofs[index] = encoded
	}
	return proofs, nil
}

// Root computes only the root over leaves, without keeping the
// intermediate levels.
func Root(leaves []Hash) (Hash, error) {
	tree, err := Build(leaves)
	if err != nil {
		return Hash{}, err
	}
	return tree.Root(), nil
}
