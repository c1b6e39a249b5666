// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Tessera is the command-line client of a tessera node. It publishes
// files through the node socket, queries records and Merkle proofs,
// verifies chunks on disk against their proofs, and inspects peers.
package main
