// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"sync"

	"github.com/tessera-net/tessera/lib/fileprocessor"
)

// ErrQueueClosed is returned by Send once the consumer has closed the
// queue. It is not transient: the result will never be persisted.
var ErrQueueClosed = errors.New("publish queue closed")

// Outcome is what the persister reports back for one item.
type Outcome struct {
	// Inserted is false when a record for the content already
	// existed.
	Inserted bool
	Err      error
}

// Item is one processed result on its way to the store.
type Item struct {
	Result *fileprocessor.Result

	ack chan Outcome
}

// NewItem wraps result. When ack is true, the persister reports the
// outcome on Done.
func NewItem(result *fileprocessor.Result, ack bool) *Item {
	item := &Item{Result: result}
	if ack {
		item.ack = make(chan Outcome, 1)
	}
	return item
}

// Done delivers the persister's outcome. It is nil for items created
// without ack.
func (i *Item) Done() <-chan Outcome {
	return i.ack
}

func (i *Item) finish(outcome Outcome) {
	if i.ack != nil {
		i.ack <- outcome
	}
}

// Queue is a bounded, ordered handoff from many producers to one
// consumer.
type Queue struct {
	items  chan *Item
	closed chan struct{}

	mutex    sync.Mutex
	cond     *sync.Cond
	isClosed bool
	sending  int
}

// NewQueue returns a queue buffering up to capacity items.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		items:  make(chan *Item, capacity),
		closed: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

// Send enqueues item, blocking while the queue is full. It returns
// ErrQueueClosed if the consumer has closed the queue, or the context
// error if ctx ends first. An item Send accepted is always received.
func (q *Queue) Send(ctx context.Context, item *Item) error {
	q.mutex.Lock()
	if q.isClosed {
		q.mutex.Unlock()
		return ErrQueueClosed
	}
	q.sending++
	q.mutex.Unlock()

	defer func() {
		q.mutex.Lock()
		q.sending--
		q.cond.Broadcast()
		q.mutex.Unlock()
	}()

	select {
	case q.items <- item:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive is the consumer's end.
func (q *Queue) Receive() <-chan *Item {
	return q.items
}

// Close refuses further sends and waits for in-flight Send calls to
// return. After Close, the buffered items are exactly those the
// consumer still has to take. Only the consumer calls Close.
func (q *Queue) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.isClosed {
		return
	}
	q.isClosed = true
	close(q.closed)
	for q.sending > 0 {
		q.cond.Wait()
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
