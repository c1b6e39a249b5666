// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the node's single CBOR configuration.
//
// CBOR is used for everything the node writes for itself or exchanges
// with local tools: published-file record values, serialized Merkle
// proofs, the node identity key file, and the publish socket
// protocol. The peer HTTP surface uses JSON.
//
// The encoder uses Core Deterministic Encoding: sorted map keys,
// smallest integer encoding, no indefinite-length items.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that only ever travel as CBOR carry `cbor` struct tags. Types
// that are also printed as JSON by the CLI carry `json` tags, which
// fxamacker/cbor reads as a fallback. Never put both on one field.
package codec
