// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tessera-net/tessera/lib/codec"
	"github.com/tessera-net/tessera/lib/identity"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/netutil"
	"github.com/tessera-net/tessera/transport"
)

// ErrNotProvided is returned by Client.Content when the peer does not
// provide the content.
var ErrNotProvided = errors.New("content not provided by peer")

// maxResponseSize bounds a peer response body.
const maxResponseSize = 64 << 20

// Client queries one peer.
type Client struct {
	http *http.Client

	// peerID is learned by Identify or pinned by WithPeerID, and
	// checked against every signed response.
	peerID string
}

// NewClient returns a client for the peer listening at address.
func NewClient(dialer transport.Dialer, address string) *Client {
	return &Client{http: &http.Client{
		Transport: transport.HTTPTransport(dialer, address),
		Timeout:   30 * time.Second,
	}}
}

// WithPeerID returns a copy of c that rejects responses signed by any
// other peer.
func (c *Client) WithPeerID(peerID string) *Client {
	copied := *c
	copied.peerID = peerID
	return &copied
}

// Identify challenges the peer with a fresh nonce and returns its
// verified peer id. A client with a pinned peer id fails if the peer
// answers with a different one.
func (c *Client) Identify(ctx context.Context) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	var response IdentityResponse
	if err := c.get(ctx, "/v1/identity?nonce="+hex.EncodeToString(nonce), &response); err != nil {
		return "", err
	}
	if !bytes.Equal(response.Nonce, nonce) {
		return "", errors.New("peer answered a different nonce")
	}
	if err := identity.Verify(response.PeerID, identityMessage(nonce, response.PeerID), response.Signature); err != nil {
		return "", fmt.Errorf("verifying peer identity: %w", err)
	}
	if c.peerID != "" && response.PeerID != c.peerID {
		return "", fmt.Errorf("peer is %s, expected %s", response.PeerID, c.peerID)
	}
	return response.PeerID, nil
}

// Content asks whether the peer provides id.
func (c *Client) Content(ctx context.Context, id merkle.Hash) (*ContentInfo, error) {
	var info ContentInfo
	if err := c.get(ctx, "/v1/content/"+id.String(), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Provided fetches the peer's signed listing and verifies it. Without a
// pinned peer id the listing is checked against the id it names.
func (c *Client) Provided(ctx context.Context) (*ProvidedListing, error) {
	var signed SignedListing
	if err := c.get(ctx, "/v1/provided", &signed); err != nil {
		return nil, err
	}
	var listing ProvidedListing
	if err := codec.Unmarshal(signed.Listing, &listing); err != nil {
		return nil, fmt.Errorf("decoding provided listing: %w", err)
	}
	if c.peerID != "" && listing.PeerID != c.peerID {
		return nil, fmt.Errorf("listing is from %s, expected %s", listing.PeerID, c.peerID)
	}
	if err := identity.Verify(listing.PeerID, listingMessage(signed.Listing), signed.Signature); err != nil {
		return nil, fmt.Errorf("verifying provided listing: %w", err)
	}
	return &listing, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://peer"+path, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", ContentType)

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadBody(response.Body, maxResponseSize)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if response.StatusCode != http.StatusOK {
		var failure errorResponse
		_ = codec.Unmarshal(body, &failure)
		if response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("GET %s: %w", path, ErrNotProvided)
		}
		return fmt.Errorf("GET %s: %s: %s", path, response.Status, failure.Error)
	}
	if err := codec.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
