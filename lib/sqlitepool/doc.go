// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen.com/go/sqlite's connection pool
// with the node's standard pragmas.
//
// Every connection runs in WAL mode with a 5 second busy timeout. The
// synchronous level is configurable: the published-file record store
// runs with FULL so an acknowledged record survives power loss.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:        filepath.Join(root, "records.sqlite"),
//	    Synchronous: sqlitepool.SynchronousFull,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//
// Callers write SQL directly with sqlitex.Execute and manage
// transactions with sqlitex.ImmediateTransaction.
package sqlitepool
