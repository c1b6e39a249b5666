// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries node-to-node HTTP.
//
// [Listener] accepts connections from other nodes and [Dialer] opens
// them. [TCPListener] and [TCPDialer] are the direct-reachability
// implementation. [HTTPTransport] turns a Dialer into an
// http.RoundTripper pinned to one node's address, so the peer client
// can use a plain http.Client.
package transport
