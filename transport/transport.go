// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// Listener accepts inbound connections from other nodes and serves
// HTTP on them.
type Listener interface {
	// Serve blocks until ctx is cancelled or Close is called, and
	// returns nil on a clean shutdown.
	Serve(ctx context.Context, handler http.Handler) error

	// Address is the host:port other nodes dial.
	Address() string

	Close() error
}

// Dialer opens connections to other nodes at the address their
// Listener reports.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// HTTPTransport returns a round-tripper that sends every request
// through dialer to address, whatever the request URL's host. It
// negotiates gzip with listeners that compress their responses.
func HTTPTransport(dialer Dialer, address string) http.RoundTripper {
	return gzhttp.Transport(&http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, address)
		},
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	})
}
