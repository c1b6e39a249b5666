// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tessera-net/tessera/lib/merkle"
)

var backends = []struct {
	name string
	open func(t *testing.T) Store
}{
	{
		name: "badger",
		open: func(t *testing.T) Store {
			store, err := OpenBadger(BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatalf("OpenBadger: %v", err)
			}
			return store
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T) Store {
			store, err := OpenSQLite(SQLiteOptions{Path: filepath.Join(t.TempDir(), "records.sqlite"), PoolSize: 4})
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			return store
		},
	},
}

func forEachBackend(t *testing.T, test func(t *testing.T, store Store)) {
	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			store := backend.open(t)
			t.Cleanup(func() {
				if err := store.Close(); err != nil {
					t.Errorf("Close: %v", err)
				}
			})
			test(t, store)
		})
	}
}

func testRecord(seed string, chunks uint64) PublishedFileRecord {
	proofs := make(map[uint64][]byte, chunks)
	for index := range chunks {
		proofs[index] = []byte(fmt.Sprintf("proof-%s-%d", seed, index))
	}
	return PublishedFileRecord{
		ContentID:       merkle.HashLeaf([]byte(seed)),
		NumberOfChunks:  chunks,
		MerkleProofs:    proofs,
		ChunksDirectory: "/var/lib/tessera/chunks/" + seed,
		Size:            int64(chunks) * 1024,
		ChunkSize:       1024,
		PublishedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExistsAfterAdd(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		record := testRecord("exists", 3)

		exists, err := store.PublishedFileExists(ctx, record.ContentID)
		if err != nil {
			t.Fatalf("PublishedFileExists: %v", err)
		}
		if exists {
			t.Fatal("record exists before it was added")
		}

		if err := store.AddPublishedFile(ctx, record); err != nil {
			t.Fatalf("AddPublishedFile: %v", err)
		}

		exists, err = store.PublishedFileExists(ctx, record.ContentID)
		if err != nil {
			t.Fatalf("PublishedFileExists: %v", err)
		}
		if !exists {
			t.Fatal("record missing after AddPublishedFile returned")
		}

		other := testRecord("other", 1)
		exists, err = store.PublishedFileExists(ctx, other.ContentID)
		if err != nil {
			t.Fatalf("PublishedFileExists: %v", err)
		}
		if exists {
			t.Error("unrelated content id reported as existing")
		}
	})
}

func TestGetReturnsStoredRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		record := testRecord("get", 4)
		record.Public = true
		if err := store.AddPublishedFile(ctx, record); err != nil {
			t.Fatalf("AddPublishedFile: %v", err)
		}

		got, err := store.GetPublishedFile(ctx, record.ContentID)
		if err != nil {
			t.Fatalf("GetPublishedFile: %v", err)
		}
		if got.ContentID != record.ContentID || got.NumberOfChunks != record.NumberOfChunks ||
			got.ChunksDirectory != record.ChunksDirectory || !got.Public || got.Size != record.Size {
			t.Errorf("GetPublishedFile = %+v, want %+v", got, record)
		}
		if !got.PublishedAt.Equal(record.PublishedAt) {
			t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, record.PublishedAt)
		}
		if string(got.MerkleProofs[2]) != string(record.MerkleProofs[2]) {
			t.Errorf("proof 2 = %q, want %q", got.MerkleProofs[2], record.MerkleProofs[2])
		}

		_, err = store.GetPublishedFile(ctx, testRecord("missing", 1).ContentID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetPublishedFile(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestAddOverwritesEqualKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		record := testRecord("overwrite", 2)
		if err := store.AddPublishedFile(ctx, record); err != nil {
			t.Fatalf("first AddPublishedFile: %v", err)
		}
		record.ChunksDirectory = "/elsewhere"
		if err := store.AddPublishedFile(ctx, record); err != nil {
			t.Fatalf("second AddPublishedFile: %v", err)
		}
		got, err := store.GetPublishedFile(ctx, record.ContentID)
		if err != nil {
			t.Fatalf("GetPublishedFile: %v", err)
		}
		if got.ChunksDirectory != "/elsewhere" {
			t.Errorf("ChunksDirectory = %q after overwrite", got.ChunksDirectory)
		}
	})
}

func TestAddIfAbsentInsertsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		record := testRecord("race", 2)

		const writers = 16
		var waitGroup sync.WaitGroup
		var mutex sync.Mutex
		insertedCount := 0
		errs := make(chan error, writers)
		for range writers {
			waitGroup.Add(1)
			go func() {
				defer waitGroup.Done()
				inserted, err := store.AddPublishedFileIfAbsent(ctx, record)
				if err != nil {
					errs <- err
					return
				}
				if inserted {
					mutex.Lock()
					insertedCount++
					mutex.Unlock()
				}
			}()
		}
		waitGroup.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("AddPublishedFileIfAbsent: %v", err)
		}
		if insertedCount != 1 {
			t.Errorf("%d writers inserted, want exactly 1", insertedCount)
		}
	})
}

func TestListPublishedFiles(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		want := map[merkle.Hash]bool{}
		for i := range 5 {
			record := testRecord(fmt.Sprintf("list-%d", i), 1)
			want[record.ContentID] = true
			if err := store.AddPublishedFile(ctx, record); err != nil {
				t.Fatalf("AddPublishedFile: %v", err)
			}
		}

		got := map[merkle.Hash]bool{}
		err := store.ListPublishedFiles(ctx, func(id merkle.Hash) error {
			got[id] = true
			return nil
		})
		if err != nil {
			t.Fatalf("ListPublishedFiles: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("listed %d ids, want %d", len(got), len(want))
		}
		for id := range want {
			if !got[id] {
				t.Errorf("id %s not listed", id)
			}
		}

		stop := errors.New("stop")
		visited := 0
		err = store.ListPublishedFiles(ctx, func(merkle.Hash) error {
			visited++
			return stop
		})
		if !errors.Is(err, stop) || visited != 1 {
			t.Errorf("early stop: err = %v after %d visits", err, visited)
		}
	})
}

func TestRejectsInvalidRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		record := testRecord("invalid", 3)
		delete(record.MerkleProofs, 1)
		if err := store.AddPublishedFile(context.Background(), record); err == nil {
			t.Error("AddPublishedFile accepted a record with a missing proof")
		}
	})
}

func TestKeyRoundtrip(t *testing.T) {
	for range 1000 {
		var id merkle.Hash
		if _, err := rand.Read(id[:]); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}
		decoded, err := DecodeKey(EncodeKey(id))
		if err != nil {
			t.Fatalf("DecodeKey: %v", err)
		}
		if decoded != id {
			t.Fatalf("DecodeKey(EncodeKey(%s)) = %s", id, decoded)
		}
	}
}

func TestDecodeKeyRejectsMalformed(t *testing.T) {
	valid := EncodeKey(merkle.HashLeaf([]byte("key")))
	wrongVersion := append([]byte(nil), valid...)
	wrongVersion[0] = 0x02

	for name, key := range map[string][]byte{
		"empty":         nil,
		"short":         valid[:KeySize-1],
		"long":          append(append([]byte(nil), valid...), 0),
		"wrong version": wrongVersion,
	} {
		if _, err := DecodeKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s: DecodeKey error = %v, want ErrInvalidKey", name, err)
		}
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	for _, backend := range []string{"", BackendBadger, BackendSQLite} {
		t.Run("backend="+backend, func(t *testing.T) {
			store, err := Open(Config{Backend: backend, Directory: filepath.Join(t.TempDir(), "db")})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer store.Close()

			record := testRecord("open", 1)
			if err := store.AddPublishedFile(context.Background(), record); err != nil {
				t.Fatalf("AddPublishedFile: %v", err)
			}
		})
	}
	if _, err := Open(Config{Backend: "rocks", Directory: t.TempDir()}); err == nil {
		t.Error("Open accepted an unknown backend")
	}
}

func TestBadgerRecordsSurviveReopen(t *testing.T) {
	directory := t.TempDir()
	record := testRecord("durable", 2)

	store, err := OpenBadger(BadgerOptions{Directory: directory, SyncWrites: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := store.AddPublishedFile(context.Background(), record); err != nil {
		t.Fatalf("AddPublishedFile: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBadger(BadgerOptions{Directory: directory})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	exists, err := reopened.PublishedFileExists(context.Background(), record.ContentID)
	if err != nil {
		t.Fatalf("PublishedFileExists: %v", err)
	}
	if !exists {
		t.Error("record lost across reopen")
	}
}
