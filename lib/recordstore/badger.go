// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tessera-net/tessera/lib/merkle"
)

// publishedFilesPrefix namespaces published-file records inside the
// badger keyspace. Other record kinds use other prefixes.
var publishedFilesPrefix = []byte("published_files/")

// maxConflictRetries bounds retries of an insert-if-absent transaction
// that lost a conflict to a concurrent writer. After a conflict the
// retry observes the winner's key, so one retry normally suffices.
const maxConflictRetries = 8

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	Directory  string
	SyncWrites bool

	// InMemory keeps everything in memory; Directory is ignored.
	InMemory bool

	Logger *slog.Logger
}

// BadgerStore is a Store backed by an embedded badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens or creates the database.
func OpenBadger(options BadgerOptions) (*BadgerStore, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	badgerOptions := badger.DefaultOptions(options.Directory)
	if options.InMemory {
		badgerOptions = badger.DefaultOptions("").WithInMemory(true)
	}
	badgerOptions = badgerOptions.
		WithSyncWrites(options.SyncWrites).
		WithLogger(badgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(badgerOptions)
	if err != nil {
		return nil, fmt.Errorf("opening badger database %s: %w", options.Directory, err)
	}
	logger.Info("record store opened",
		"backend", BackendBadger,
		"directory", options.Directory,
		"in_memory", options.InMemory,
		"sync_writes", options.SyncWrites,
	)
	return &BadgerStore{db: db, logger: logger}, nil
}

func namespacedKey(key []byte) []byte {
	return append(bytes.Clone(publishedFilesPrefix), key...)
}

// AddPublishedFile implements Store.
func (s *BadgerStore) AddPublishedFile(ctx context.Context, record PublishedFileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, value, err := prepareRecord(&record)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(namespacedKey(key), value)
	}); err != nil {
		return fmt.Errorf("storing record %s: %w", record.ContentID, err)
	}
	return nil
}

// AddPublishedFileIfAbsent implements Store. The read and the write
// share one optimistic transaction; a concurrent insert of the same
// key makes the commit fail with badger.ErrConflict, and the retry
// then sees the existing key.
func (s *BadgerStore) AddPublishedFileIfAbsent(ctx context.Context, record PublishedFileRecord) (bool, error) {
	key, value, err := prepareRecord(&record)
	if err != nil {
		return false, err
	}
	storageKey := namespacedKey(key)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		inserted := false
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(storageKey)
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			inserted = true
			return txn.Set(storageKey, value)
		})
		if errors.Is(err, badger.ErrConflict) {
			s.logger.Debug("insert conflict, retrying", "content_id", record.ContentID.String(), "attempt", attempt+1)
			continue
		}
		if err != nil {
			return false, fmt.Errorf("storing record %s: %w", record.ContentID, err)
		}
		return inserted, nil
	}
	return false, fmt.Errorf("storing record %s: %w after %d attempts", record.ContentID, badger.ErrConflict, maxConflictRetries)
}

// PublishedFileExists implements Store.
func (s *BadgerStore) PublishedFileExists(ctx context.Context, id merkle.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(namespacedKey(EncodeKey(id)))
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, fmt.Errorf("looking up record %s: %w", id, err)
	}
	return exists, nil
}

// GetPublishedFile implements Store.
func (s *BadgerStore) GetPublishedFile(ctx context.Context, id merkle.Hash) (*PublishedFileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(namespacedKey(EncodeKey(id)))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	return UnmarshalRecord(value)
}

// ListPublishedFiles implements Store. It iterates keys only; values
// are never loaded.
func (s *BadgerStore) ListPublishedFiles(ctx context.Context, fn func(merkle.Hash) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = publishedFilesPrefix
		iterator := txn.NewIterator(options)
		defer iterator.Close()

		for iterator.Seek(publishedFilesPrefix); iterator.ValidForPrefix(publishedFilesPrefix); iterator.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := iterator.Item().KeyCopy(nil)
			id, err := DecodeKey(key[len(publishedFilesPrefix):])
			if err != nil {
				s.logger.Warn("skipping undecodable record key", "key", fmt.Sprintf("%x", key), "error", err)
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing badger database: %w", err)
	}
	return nil
}

// badgerLogger routes badger's printf-style logging into slog.
// Badger's Info messages (compaction, value log housekeeping) go to
// Debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(formatBadgerMessage(format, args))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(formatBadgerMessage(format, args))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(formatBadgerMessage(format, args))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(formatBadgerMessage(format, args))
}

func formatBadgerMessage(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
