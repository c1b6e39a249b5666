// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package node assembles a tessera node from its configuration.
//
// [New] opens the pieces the services share: the chunks directory, the
// record store, and the node identity. [Server.Start] spawns the
// baseline services under one supervisor: the peer component, the
// persister that drains the publish queue into the store, and the
// publish front-end. [Server.Stop] cancels them together, waits for
// every one to exit, and closes the store last.
package node
