// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package merkle builds binary Merkle trees over chunk digests,
// produces per-leaf inclusion proofs, and verifies them.
//
// Leaves and interior nodes are BLAKE3 keyed hashes in separate
// domains, so a leaf digest can never be mistaken for an interior
// node. The root of the tree over a file's chunks is the file's
// content identifier.
//
// A level with an odd number of nodes promotes its last node to the
// next level unchanged. This policy is part of the wire contract:
// peers that duplicate the last node instead compute different roots
// for the same file. See [OddNodePolicy].
//
// Proofs carry their leaf count, their leaf index, and an explicit
// left/right marker for each sibling. A verifier needs only the root,
// the index, the leaf digest, the leaf count, and the serialized proof.
package merkle
