// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tessera-net/tessera/lib/clock"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/recordstore"
)

// Announcer learns about content once its record is durable.
type Announcer interface {
	Provide(id merkle.Hash)
}

// Persister is the queue's single consumer. It implements
// supervisor.Service.
type Persister struct {
	queue     *Queue
	store     recordstore.Store
	announcer Announcer
	clock     clock.Clock
	logger    *slog.Logger

	persisted atomic.Uint64
	failed    atomic.Uint64
}

// PersisterOptions configures a Persister. Announcer, Clock, and
// Logger are optional.
type PersisterOptions struct {
	Queue     *Queue
	Store     recordstore.Store
	Announcer Announcer
	Clock     clock.Clock
	Logger    *slog.Logger
}

// NewPersister returns a persister reading options.Queue. Announcer,
// Clock, and Logger may be nil.
func NewPersister(options PersisterOptions) *Persister {
	persister := &Persister{
		queue:     options.Queue,
		store:     options.Store,
		announcer: options.Announcer,
		clock:     options.Clock,
		logger:    options.Logger,
	}
	if persister.clock == nil {
		persister.clock = clock.Real()
	}
	if persister.logger == nil {
		persister.logger = slog.New(slog.DiscardHandler)
	}
	return persister
}

// Run persists items until ctx is cancelled, then closes the queue and
// persists whatever is still buffered. A failed write is reported to
// the item's waiter and logged; it does not stop the persister.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case item := <-p.queue.Receive():
			p.persist(ctx, item)
		case <-ctx.Done():
			return p.drain(context.WithoutCancel(ctx))
		}
	}
}

func (p *Persister) drain(ctx context.Context) error {
	p.queue.Close()
	remaining := 0
	for {
		select {
		case item := <-p.queue.Receive():
			p.persist(ctx, item)
			remaining++
		default:
			if remaining > 0 {
				p.logger.Info("persisted buffered results on shutdown", "count", remaining)
			}
			return nil
		}
	}
}

func (p *Persister) persist(ctx context.Context, item *Item) {
	record := recordstore.NewPublishedFileRecord(item.Result, p.clock.Now())
	inserted, err := p.store.AddPublishedFileIfAbsent(ctx, record)
	if err != nil {
		p.failed.Add(1)
		err = fmt.Errorf("persisting %s: %w", record.ContentID, err)
		p.logger.Error("persisting published file failed", "content_id", record.ContentID.String(), "error", err)
		item.finish(Outcome{Err: err})
		return
	}

	if inserted {
		p.persisted.Add(1)
		p.logger.Info("published file recorded",
			"content_id", record.ContentID.String(),
			"chunks", record.NumberOfChunks,
			"public", record.Public,
		)
	} else {
		p.logger.Debug("published file already recorded", "content_id", record.ContentID.String())
	}
	if p.announcer != nil {
		p.announcer.Provide(record.ContentID)
	}
	item.finish(Outcome{Inserted: inserted})
}

// Stats reports the records inserted and the writes that failed since
// the persister was created.
func (p *Persister) Stats() (persisted, failed uint64) {
	return p.persisted.Load(), p.failed.Load()
}
