// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tessera-net/tessera/lib/fileprocessor"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/recordstore"
	"github.com/tessera-net/tessera/lib/testutil"
)

const testChunkSize = 1024

func newTestStore(t *testing.T) recordstore.Store {
	t.Helper()
	store, err := recordstore.OpenBadger(recordstore.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestProcessor(t *testing.T) *fileprocessor.Processor {
	t.Helper()
	processor, err := fileprocessor.New(fileprocessor.Config{
		ChunksRoot: filepath.Join(t.TempDir(), "chunks"),
		ChunkSize:  testChunkSize,
	})
	if err != nil {
		t.Fatalf("fileprocessor.New: %v", err)
	}
	return processor
}

func processRandom(t *testing.T, processor *fileprocessor.Processor, size int) *fileprocessor.Result {
	t.Helper()
	result, err := processor.ProcessBytes(context.Background(), "test", testutil.RandomBytes(t, size), false)
	if err != nil {
		t.Fatalf("ProcessBytes: %v", err)
	}
	return result
}

type recordingAnnouncer struct {
	mutex    sync.Mutex
	provided []merkle.Hash
}

func (a *recordingAnnouncer) Provide(id merkle.Hash) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.provided = append(a.provided, id)
}

func (a *recordingAnnouncer) ids() []merkle.Hash {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return append([]merkle.Hash(nil), a.provided...)
}

var errDiskFull = errors.New("disk full")

// failingStore rejects every insert.
type failingStore struct {
	recordstore.Store
}

func (failingStore) AddPublishedFileIfAbsent(context.Context, recordstore.PublishedFileRecord) (bool, error) {
	return false, errDiskFull
}
