// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tessera-net/tessera/lib/fileprocessor"
	"github.com/tessera-net/tessera/lib/testutil"
)

func sendAsync(ctx context.Context, queue *Queue, item *Item) <-chan error {
	result := make(chan error, 1)
	go func() { result <- queue.Send(ctx, item) }()
	return result
}

func numberedItem(n uint64) *Item {
	return NewItem(&fileprocessor.Result{NumberOfChunks: n}, false)
}

func TestQueueSendBlocksWhenFull(t *testing.T) {
	const capacity = 3
	queue := NewQueue(capacity)
	ctx := context.Background()

	for i := range uint64(capacity) {
		if err := queue.Send(ctx, numberedItem(i)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	overflow := sendAsync(ctx, queue, numberedItem(capacity))
	testutil.RequireNoReceive(t, overflow, 50*time.Millisecond, "send beyond capacity did not block")

	first := testutil.RequireReceive(t, queue.Receive(), time.Second, "receiving first item")
	if first.Result.NumberOfChunks != 0 {
		t.Errorf("first item = %d, want 0", first.Result.NumberOfChunks)
	}
	if err := testutil.RequireReceive(t, overflow, time.Second, "blocked send after drain"); err != nil {
		t.Fatalf("blocked Send: %v", err)
	}

	for want := uint64(1); want <= capacity; want++ {
		item := testutil.RequireReceive(t, queue.Receive(), time.Second, "receiving item %d", want)
		if item.Result.NumberOfChunks != want {
			t.Errorf("item = %d, want %d", item.Result.NumberOfChunks, want)
		}
	}
}

func TestQueueSendAfterClose(t *testing.T) {
	queue := NewQueue(1)
	queue.Close()
	queue.Close()

	err := queue.Send(context.Background(), numberedItem(0))
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Send after Close = %v, want ErrQueueClosed", err)
	}
}

func TestQueueCloseReleasesBlockedSender(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	if err := queue.Send(ctx, numberedItem(0)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocked := sendAsync(ctx, queue, numberedItem(1))
	testutil.RequireNoReceive(t, blocked, 20*time.Millisecond, "send on a full queue returned")

	queue.Close()
	err := testutil.RequireReceive(t, blocked, time.Second, "blocked sender after Close")
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("blocked Send = %v, want ErrQueueClosed", err)
	}
	if queue.Len() != 1 {
		t.Errorf("Len after Close = %d, want the 1 accepted item", queue.Len())
	}
}

func TestQueueSendHonorsContext(t *testing.T) {
	queue := NewQueue(1)
	if err := queue.Send(context.Background(), numberedItem(0)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	blocked := sendAsync(ctx, queue, numberedItem(1))
	cancel()
	err := testutil.RequireReceive(t, blocked, time.Second, "send after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send = %v, want context.Canceled", err)
	}
}

func TestItemAck(t *testing.T) {
	plain := numberedItem(0)
	if plain.Done() != nil {
		t.Error("item without ack has a Done channel")
	}
	plain.finish(Outcome{Inserted: true})

	acked := NewItem(&fileprocessor.Result{}, true)
	acked.finish(Outcome{Inserted: true})
	outcome := testutil.RequireReceive(t, acked.Done(), time.Second, "ack")
	if !outcome.Inserted || outcome.Err != nil {
		t.Errorf("outcome = %+v", outcome)
	}
}
