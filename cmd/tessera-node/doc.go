// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Tessera-node runs a tessera node: the publish socket, the persister
// that records published files, and the peer endpoint. It reads one
// YAML config file and runs until SIGINT or SIGTERM, or until one of
// its services fails.
package main
