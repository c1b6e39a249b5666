// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"time"
)

// ContentType is the media type of every response body.
const ContentType = "application/cbor"

// NonceSize is the length of an identity challenge.
const NonceSize = 32

// identityDomain prefixes signed identity challenges so the node key
// never signs a bare caller-chosen value.
const identityDomain = "tessera.peer.identity\x00"

// listingDomain prefixes signed provided listings.
const listingDomain = "tessera.peer.provided\x00"

// IdentityResponse proves possession of the key behind PeerID.
// Signature covers identityDomain || nonce || PeerID.
type IdentityResponse struct {
	PeerID    string `cbor:"peer_id" json:"peer_id"`
	Nonce     []byte `cbor:"nonce" json:"nonce"`
	Signature []byte `cbor:"signature" json:"signature"`
}

// ContentInfo summarizes one provided record.
type ContentInfo struct {
	ContentID      string    `cbor:"content_id" json:"content_id"`
	NumberOfChunks uint64    `cbor:"number_of_chunks" json:"number_of_chunks"`
	Size           int64     `cbor:"size" json:"size"`
	ChunkSize      int       `cbor:"chunk_size" json:"chunk_size"`
	Public         bool      `cbor:"public" json:"public"`
	PublishedAt    time.Time `cbor:"published_at" json:"published_at"`
}

// ProvidedListing is the signed body of /v1/provided. ContentIDs are
// sorted.
type ProvidedListing struct {
	PeerID     string    `cbor:"peer_id" json:"peer_id"`
	IssuedAt   time.Time `cbor:"issued_at" json:"issued_at"`
	ContentIDs []string  `cbor:"content_ids" json:"content_ids"`
}

// SignedListing carries the encoded listing and a signature over
// listingDomain || Listing.
type SignedListing struct {
	Listing   []byte `cbor:"listing" json:"listing"`
	Signature []byte `cbor:"signature" json:"signature"`
}

type errorResponse struct {
	Error string `cbor:"error" json:"error"`
}

func identityMessage(nonce []byte, peerID string) []byte {
	message := make([]byte, 0, len(identityDomain)+len(nonce)+len(peerID))
	message = append(message, identityDomain...)
	message = append(message, nonce...)
	return append(message, peerID...)
}

func listingMessage(listing []byte) []byte {
	return append([]byte(listingDomain), listing...)
}
