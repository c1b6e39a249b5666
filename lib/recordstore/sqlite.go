// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/sqlitepool"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS published_files (
	key          BLOB    PRIMARY KEY,
	value        BLOB    NOT NULL,
	published_at INTEGER NOT NULL
) WITHOUT ROWID;
`

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	Path       string
	SyncWrites bool
	PoolSize   int
	Logger     *slog.Logger
}

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at options.Path.
func OpenSQLite(options SQLiteOptions) (*SQLiteStore, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	synchronous := sqlitepool.SynchronousNormal
	if options.SyncWrites {
		synchronous = sqlitepool.SynchronousFull
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        options.Path,
		PoolSize:    options.PoolSize,
		Synchronous: synchronous,
		Logger:      logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("record store opened", "backend", BackendSQLite, "path", options.Path, "sync_writes", options.SyncWrites)
	return &SQLiteStore{pool: pool, logger: logger}, nil
}

// AddPublishedFile implements Store.
func (s *SQLiteStore) AddPublishedFile(ctx context.Context, record PublishedFileRecord) error {
	key, value, err := prepareRecord(&record)
	if err != nil {
		return err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO published_files (key, value, published_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, published_at = excluded.published_at`,
		&sqlitex.ExecOptions{Args: []any{key, value, record.PublishedAt.Unix()}})
	if err != nil {
		return fmt.Errorf("storing record %s: %w", record.ContentID, err)
	}
	return nil
}

// AddPublishedFileIfAbsent implements Store. A single INSERT with a
// conflict clause is atomic under SQLite's writer lock.
func (s *SQLiteStore) AddPublishedFileIfAbsent(ctx context.Context, record PublishedFileRecord) (bool, error) {
	key, value, err := prepareRecord(&record)
	if err != nil {
		return false, err
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO published_files (key, value, published_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{key, value, record.PublishedAt.Unix()}})
	if err != nil {
		return false, fmt.Errorf("storing record %s: %w", record.ContentID, err)
	}
	return conn.Changes() > 0, nil
}

// PublishedFileExists implements Store.
func (s *SQLiteStore) PublishedFileExists(ctx context.Context, id merkle.Hash) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	exists := false
	err = sqlitex.Execute(conn, `SELECT 1 FROM published_files WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{EncodeKey(id)},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("looking up record %s: %w", id, err)
	}
	return exists, nil
}

// GetPublishedFile implements Store.
func (s *SQLiteStore) GetPublishedFile(ctx context.Context, id merkle.Hash) (*PublishedFileRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var value []byte
	err = sqlitex.Execute(conn, `SELECT value FROM published_files WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{EncodeKey(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return UnmarshalRecord(value)
}

// ListPublishedFiles implements Store.
func (s *SQLiteStore) ListPublishedFiles(ctx context.Context, fn func(merkle.Hash) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `SELECT key FROM published_files ORDER BY key`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, key)
			id, err := DecodeKey(key)
			if err != nil {
				s.logger.Warn("skipping undecodable record key", "key", fmt.Sprintf("%x", key), "error", err)
				return nil
			}
			return fn(id)
		},
	})
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
