// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tessera-net/tessera/lib/config"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/peer"
	"github.com/tessera-net/tessera/lib/publish"
	"github.com/tessera-net/tessera/lib/service"
	"github.com/tessera-net/tessera/lib/supervisor"
	"github.com/tessera-net/tessera/lib/testutil"
	"github.com/tessera-net/tessera/transport"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		Root:     root,
		Chunks:   filepath.Join(root, "chunks"),
		Database: filepath.Join(root, "db"),
		KeyFile:  filepath.Join(root, "node.key"),
	}
	cfg.Frontend.Listen = filepath.Join(testutil.SocketDir(t), "node.sock")
	cfg.Peer.Listen = "127.0.0.1:0"
	cfg.Store.Backend = backend
	cfg.Store.SyncWrites = false
	cfg.Processor.ChunkSize = 1024
	cfg.Processor.MinFreeBytes = 0
	return cfg
}

func startNode(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	server, err := New(Options{Config: cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func frontEndClient(t *testing.T, cfg *config.Config) *service.Client {
	t.Helper()
	endpoint, err := service.ParseEndpoint(cfg.Frontend.Listen)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	return service.NewClient(endpoint)
}

func TestNodePublishesAndServesPeers(t *testing.T) {
	for _, backend := range []string{"badger", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			server := startNode(t, cfg)
			ctx := context.Background()

			path := testutil.WriteFile(t, "input.bin", testutil.RandomBytes(t, 5000))
			var published publish.PublishResponse
			err := frontEndClient(t, cfg).Call(ctx, publish.ActionPublish,
				map[string]any{"path": path, "wait": true}, &published)
			if err != nil {
				t.Fatalf("publish: %v", err)
			}
			if !published.Persisted {
				t.Fatal("waited publish was not persisted")
			}
			if published.NumberOfChunks != 5 {
				t.Errorf("number_of_chunks = %d, want 5", published.NumberOfChunks)
			}
			id, err := merkle.ParseHash(published.ContentID)
			if err != nil {
				t.Fatalf("ParseHash: %v", err)
			}

			client := peer.NewClient(&transport.TCPDialer{Timeout: 5 * time.Second}, server.PeerAddress()).
				WithPeerID(server.PeerID())
			if _, err := client.Identify(ctx); err != nil {
				t.Fatalf("Identify: %v", err)
			}
			info, err := client.Content(ctx, id)
			if err != nil {
				t.Fatalf("Content: %v", err)
			}
			if info.Size != 5000 {
				t.Errorf("peer reports size %d, want 5000", info.Size)
			}

			var status publish.StatusResponse
			if err := frontEndClient(t, cfg).Call(ctx, publish.ActionStatus, nil, &status); err != nil {
				t.Fatalf("status: %v", err)
			}
			if status.PublishedFiles != 1 || status.ProvidedContent != 1 {
				t.Errorf("status published=%d provided=%d, want 1 and 1",
					status.PublishedFiles, status.ProvidedContent)
			}
			if len(status.Tasks) != 3 {
				t.Errorf("status lists %d tasks, want 3", len(status.Tasks))
			}
			for _, task := range status.Tasks {
				if task.State != supervisor.StateRunning {
					t.Errorf("task %s is %s", task.Name, task.State)
				}
			}

			if err := server.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}
		})
	}
}

func TestNodeRestartKeepsRecordsAndIdentity(t *testing.T) {
	cfg := testConfig(t, "badger")
	first := startNode(t, cfg)
	peerID := first.PeerID()

	path := testutil.WriteFile(t, "input.bin", testutil.RandomBytes(t, 2048))
	var published publish.PublishResponse
	err := frontEndClient(t, cfg).Call(context.Background(), publish.ActionPublish,
		map[string]any{"path": path}, &published)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	// The persister drains accepted items before Stop returns.
	if err := first.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	second := startNode(t, cfg)
	if second.PeerID() != peerID {
		t.Errorf("peer id changed across restart: %s then %s", peerID, second.PeerID())
	}
	var exists publish.ExistsResponse
	err = frontEndClient(t, cfg).Call(context.Background(), publish.ActionExists,
		map[string]any{"content_id": published.ContentID}, &exists)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists.Exists {
		t.Error("record published before restart is missing")
	}

	listing, err := peer.NewClient(&transport.TCPDialer{}, second.PeerAddress()).Provided(context.Background())
	if err != nil {
		t.Fatalf("Provided: %v", err)
	}
	if len(listing.ContentIDs) != 1 || listing.ContentIDs[0] != published.ContentID {
		t.Errorf("provided listing = %v, want [%s]", listing.ContentIDs, published.ContentID)
	}
}

func TestNodeWithoutPeer(t *testing.T) {
	cfg := testConfig(t, "badger")
	cfg.Peer.Enabled = false
	server := startNode(t, cfg)

	if server.PeerAddress() != "" || server.PeerID() != "" {
		t.Error("disabled peer still has an address or identity")
	}
	if got := len(server.Tasks()); got != 2 {
		t.Errorf("%d tasks, want 2", got)
	}
}

func TestNodeStartFailsWhenFrontEndCannotListen(t *testing.T) {
	cfg := testConfig(t, "badger")
	cfg.Frontend.Listen = filepath.Join(t.TempDir(), "missing", "node.sock")

	server, err := New(Options{Config: cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := server.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with an unusable front-end socket")
	}
	testutil.RequireClosed(t, server.Failed(), time.Second, "failed channel")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "leveldb")
	if _, err := New(Options{Config: cfg}); err == nil {
		t.Fatal("New accepted an unknown store backend")
	}
}
