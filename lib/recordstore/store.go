// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tessera-net/tessera/lib/merkle"
)

var (
	// ErrNotFound is returned by GetPublishedFile for unknown content.
	ErrNotFound = errors.New("published file not found")

	// ErrInvalidKey is wrapped by DecodeKey failures.
	ErrInvalidKey = errors.New("invalid record key")
)

// Store is the durable, content-addressed record of published files.
// Implementations are safe for concurrent use. Every method is
// synchronous: a nil error from a write means the record is durable.
type Store interface {
	// AddPublishedFile stores record under its canonical key,
	// replacing any existing record with the same key.
	AddPublishedFile(ctx context.Context, record PublishedFileRecord) error

	// AddPublishedFileIfAbsent stores record only if no record with
	// the same key exists, and reports whether it did. Concurrent
	// calls for one key insert exactly once.
	AddPublishedFileIfAbsent(ctx context.Context, record PublishedFileRecord) (bool, error)

	// PublishedFileExists reports whether a record exists for id.
	PublishedFileExists(ctx context.Context, id merkle.Hash) (bool, error)

	// GetPublishedFile returns the record for id, or ErrNotFound.
	GetPublishedFile(ctx context.Context, id merkle.Hash) (*PublishedFileRecord, error)

	// ListPublishedFiles calls fn with the content id of every stored
	// record, in key order. A non-nil error from fn stops the scan and
	// is returned.
	ListPublishedFiles(ctx context.Context, fn func(merkle.Hash) error) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is BackendBadger (the default) or BackendSQLite.
	Backend string

	// Directory holds the database. It is created if missing.
	Directory string

	// SyncWrites makes every acknowledged write survive power loss.
	SyncWrites bool

	Logger *slog.Logger
}

// Open opens the configured backend.
func Open(config Config) (Store, error) {
	if config.Directory == "" {
		return nil, errors.New("recordstore: directory is required")
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating record store directory %s: %w", config.Directory, err)
	}

	switch config.Backend {
	case "", BackendBadger:
		return OpenBadger(BadgerOptions{
			Directory:  config.Directory,
			SyncWrites: config.SyncWrites,
			Logger:     config.Logger,
		})
	case BackendSQLite:
		return OpenSQLite(SQLiteOptions{
			Path:       filepath.Join(config.Directory, "records.sqlite"),
			SyncWrites: config.SyncWrites,
			Logger:     config.Logger,
		})
	default:
		return nil, fmt.Errorf("recordstore: unknown backend %q", config.Backend)
	}
}

func prepareRecord(record *PublishedFileRecord) ([]byte, []byte, error) {
	if err := record.Validate(); err != nil {
		return nil, nil, err
	}
	value, err := MarshalRecord(record)
	if err != nil {
		return nil, nil, err
	}
	return record.Key(), value, nil
}
