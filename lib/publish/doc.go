// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish carries a publish request from the node socket to
// durable storage.
//
// [FrontEnd] serves the publish, exists, proof, and status actions. A
// publish request is processed by the file processor inside the
// request, and the result is handed to the [Persister] through a
// bounded [Queue]. When the queue is full the request blocks until the
// persister catches up, which is the node's admission control. When
// the persister has gone the request fails with [ErrQueueClosed]
// rather than being dropped.
//
// The persister writes each result with
// recordstore.Store.AddPublishedFileIfAbsent and, once the record is
// durable, tells the [Announcer] that the node now provides the
// content. On shutdown it closes the queue to new work and persists
// everything already buffered before returning.
package publish
