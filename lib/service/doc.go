// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the request/response socket protocol used
// between the node and local tools, plus process logging setup.
//
// The protocol is one CBOR request and one CBOR response per
// connection. Requests are maps with an "action" field; responses are
// [Response] envelopes. A [SocketServer] listens on a TCP port or a
// Unix socket described by an [Endpoint], dispatches each request to
// the [ActionFunc] registered for its action, and on shutdown stops
// accepting connections and waits for handlers already running.
//
//	server := service.NewSocketServer(endpoint, logger)
//	server.Handle("exists", handleExists)
//	err := server.Serve(ctx)
//
// [Client] is the matching caller. Handlers that return a
// [CodedError] let clients distinguish invalid requests from node
// failures through [ServiceError].Code.
package service
