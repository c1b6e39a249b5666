// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer answers other nodes' questions about what this node
// provides. It does no discovery, routing, or gossip and never serves
// chunk data.
//
// [Server] serves three CBOR endpoints over a transport.Listener:
//
//	GET /v1/identity?nonce=<hex>  peer id plus a signature over the nonce
//	GET /v1/content/{id}          record summary, or 404
//	GET /v1/provided              every provided content id, signed
//
// Content enters the provided set through [Server.Provide], which the
// persister calls only after the record is durable. On start the set
// is seeded from the record store. [Client] is the other side and
// checks every signature against the peer id.
package peer
