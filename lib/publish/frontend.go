// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"time"

	"github.com/tessera-net/tessera/lib/chunker"
	"github.com/tessera-net/tessera/lib/clock"
	"github.com/tessera-net/tessera/lib/codec"
	"github.com/tessera-net/tessera/lib/compress"
	"github.com/tessera-net/tessera/lib/fileprocessor"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/recordstore"
	"github.com/tessera-net/tessera/lib/service"
	"github.com/tessera-net/tessera/lib/supervisor"
)

// Socket actions.
const (
	ActionPublish = "publish"
	ActionExists  = "exists"
	ActionProof   = "proof"
	ActionStatus  = "status"
)

// DefaultMaxInlineSize bounds the decoded size of inline content.
const DefaultMaxInlineSize = 256 << 20

// PublishRequest is the publish action's payload. Exactly one of Path
// and Content is set.
type PublishRequest struct {
	// Path is an absolute path readable by the node.
	Path string `cbor:"path,omitempty" json:"path,omitempty"`

	// Content is the file itself, encoded with Encoding. Size is the
	// decoded length.
	Content  []byte `cbor:"content,omitempty" json:"content,omitempty"`
	Encoding string `cbor:"encoding,omitempty" json:"encoding,omitempty"`
	Size     int    `cbor:"size,omitempty" json:"size,omitempty"`

	Public bool `cbor:"public,omitempty" json:"public,omitempty"`

	// Wait holds the response until the record is durable or the
	// node's wait timeout passes.
	Wait bool `cbor:"wait,omitempty" json:"wait,omitempty"`
}

// PublishResponse answers the publish action.
type PublishResponse struct {
	ContentID        string `cbor:"content_id" json:"content_id"`
	NumberOfChunks   uint64 `cbor:"number_of_chunks" json:"number_of_chunks"`
	ChunksDirectory  string `cbor:"chunks_directory" json:"chunks_directory"`
	Size             int64  `cbor:"size" json:"size"`
	AlreadyPublished bool   `cbor:"already_published" json:"already_published"`

	// Persisted is true once the record is known to be durable: for
	// content that was already published, or when a waited request
	// saw the persister finish.
	Persisted bool `cbor:"persisted" json:"persisted"`
}

// ExistsResponse answers the exists action.
type ExistsResponse struct {
	Exists bool `cbor:"exists" json:"exists"`
}

// ProofResponse carries the serialized proof for one chunk and the
// path of the chunk file on this node.
type ProofResponse struct {
	Proof          []byte `cbor:"proof" json:"proof"`
	NumberOfChunks uint64 `cbor:"number_of_chunks" json:"number_of_chunks"`
	ChunkPath      string `cbor:"chunk_path" json:"chunk_path"`
}

// StatusResponse answers the status action. ProvidedContent is only
// set when the node runs a peer server.
type StatusResponse struct {
	Tasks           []supervisor.TaskStatus `cbor:"tasks" json:"tasks"`
	PublishedFiles  uint64                  `cbor:"published_files" json:"published_files"`
	QueueLength     int                     `cbor:"queue_length" json:"queue_length"`
	QueueCapacity   int                     `cbor:"queue_capacity" json:"queue_capacity"`
	PersistedSince  uint64                  `cbor:"persisted_since_start" json:"persisted_since_start"`
	FailedWrites    uint64                  `cbor:"failed_writes" json:"failed_writes"`
	UptimeSeconds   int64                   `cbor:"uptime_seconds" json:"uptime_seconds"`
	ProvidedContent int                     `cbor:"provided_content,omitempty" json:"provided_content,omitempty"`
}

// FrontEndOptions configures a FrontEnd. Persister, Tasks, Provided,
// Clock, and Logger are optional.
type FrontEndOptions struct {
	Endpoint       service.Endpoint
	MaxRequestSize int64
	MaxInlineSize  int

	Processor *fileprocessor.Processor
	Store     recordstore.Store
	Queue     *Queue
	Persister *Persister

	// WaitTimeout bounds a waited publish. Zero waits as long as the
	// caller stays connected.
	WaitTimeout time.Duration

	// Tasks reports supervised tasks for the status action.
	Tasks func() []supervisor.TaskStatus

	// Provided reports the size of the peer's provided set.
	Provided func() int

	Clock  clock.Clock
	Logger *slog.Logger
}

// FrontEnd serves the node socket. It implements supervisor.Service.
type FrontEnd struct {
	server        *service.SocketServer
	processor     *fileprocessor.Processor
	store         recordstore.Store
	queue         *Queue
	persister     *Persister
	waitTimeout   time.Duration
	maxInlineSize int
	tasks         func() []supervisor.TaskStatus
	provided      func() int
	clock         clock.Clock
	started       time.Time
	logger        *slog.Logger
}

// NewFrontEnd registers the publish, exists, proof, and status actions.
// The socket is not bound until Run.
func NewFrontEnd(options FrontEndOptions) *FrontEnd {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxInline := options.MaxInlineSize
	if maxInline <= 0 {
		maxInline = DefaultMaxInlineSize
	}

	frontEnd := &FrontEnd{
		server:        service.NewSocketServer(options.Endpoint, logger.With("component", "frontend")),
		processor:     options.Processor,
		store:         options.Store,
		queue:         options.Queue,
		persister:     options.Persister,
		waitTimeout:   options.WaitTimeout,
		maxInlineSize: maxInline,
		tasks:         options.Tasks,
		provided:      options.Provided,
		clock:         clk,
		started:       clk.Now(),
		logger:        logger,
	}
	if options.MaxRequestSize > 0 {
		frontEnd.server.SetMaxRequestSize(options.MaxRequestSize)
	}
	frontEnd.server.Handle(ActionPublish, frontEnd.handlePublish)
	frontEnd.server.Handle(ActionExists, frontEnd.handleExists)
	frontEnd.server.Handle(ActionProof, frontEnd.handleProof)
	frontEnd.server.Handle(ActionStatus, frontEnd.handleStatus)
	return frontEnd
}

// Run serves the socket until ctx is cancelled.
func (f *FrontEnd) Run(ctx context.Context) error {
	return f.server.Serve(ctx)
}

// Ready is closed once the socket accepts connections.
func (f *FrontEnd) Ready() <-chan struct{} {
	return f.server.Ready()
}

// Addr is the bound socket address, nil before Ready.
func (f *FrontEnd) Addr() net.Addr {
	return f.server.Addr()
}

func (f *FrontEnd) handlePublish(ctx context.Context, raw []byte) (any, error) {
	var request PublishRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, service.Errorf(service.CodeInvalidRequest, "invalid publish request: %v", err)
	}

	result, err := f.process(ctx, &request)
	if err != nil {
		return nil, err
	}
	response := &PublishResponse{
		ContentID:       result.ContentID.String(),
		NumberOfChunks:  result.NumberOfChunks,
		ChunksDirectory: result.ChunksDirectory,
		Size:            result.Size,
	}

	exists, err := f.store.PublishedFileExists(ctx, result.ContentID)
	if err != nil {
		return nil, fmt.Errorf("checking record for %s: %w", result.ContentID, err)
	}
	if exists {
		response.AlreadyPublished = true
		response.Persisted = true
		return response, nil
	}

	item := NewItem(result, request.Wait)
	if err := f.queue.Send(ctx, item); err != nil {
		if errors.Is(err, ErrQueueClosed) {
			return nil, service.Errorf(service.CodeInternal, "publishing %s: %w", result.ContentID, err)
		}
		return nil, fmt.Errorf("publishing %s: %w", result.ContentID, err)
	}
	if !request.Wait {
		return response, nil
	}

	var timeout <-chan time.Time
	if f.waitTimeout > 0 {
		timeout = f.clock.After(f.waitTimeout)
	}
	select {
	case outcome := <-item.Done():
		if outcome.Err != nil {
			return nil, service.Errorf(service.CodeInternal, "%w", outcome.Err)
		}
		response.AlreadyPublished = !outcome.Inserted
		response.Persisted = true
	case <-timeout:
		f.logger.Warn("publish wait timed out; record still queued",
			"content_id", response.ContentID, "timeout", f.waitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return response, nil
}

func (f *FrontEnd) process(ctx context.Context, request *PublishRequest) (*fileprocessor.Result, error) {
	hasPath := request.Path != ""
	hasContent := len(request.Content) > 0
	switch {
	case hasPath && hasContent:
		return nil, service.Errorf(service.CodeInvalidRequest, "publish takes path or content, not both")
	case hasPath:
		if !filepath.IsAbs(request.Path) {
			return nil, service.Errorf(service.CodeInvalidRequest, "path %q is not absolute", request.Path)
		}
		result, err := f.processor.Process(ctx, fileprocessor.Request{Path: request.Path, Public: request.Public})
		return result, processingError(err)
	case hasContent:
		encoding, err := compress.ParseEncoding(request.Encoding)
		if err != nil || encoding == compress.Auto {
			return nil, service.Errorf(service.CodeInvalidRequest, "invalid encoding %q", request.Encoding)
		}
		size := request.Size
		if encoding == compress.None && size == 0 {
			size = len(request.Content)
		}
		if size <= 0 || size > f.maxInlineSize {
			return nil, service.Errorf(service.CodeInvalidRequest,
				"inline size %d outside [1, %d]", size, f.maxInlineSize)
		}
		data, err := compress.Decode(request.Content, encoding, size)
		if err != nil {
			return nil, service.Errorf(service.CodeInvalidRequest, "decoding inline content: %w", err)
		}
		result, err := f.processor.ProcessBytes(ctx, "inline", data, request.Public)
		return result, processingError(err)
	default:
		return nil, service.Errorf(service.CodeInvalidRequest, "publish requires path or content")
	}
}

// processingError maps processor failures onto response codes: input
// errors are the caller's, everything else is the node's.
func processingError(err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := fileprocessor.KindOf(err); ok && kind == fileprocessor.KindInput {
		return &service.CodedError{Code: service.CodeInvalidRequest, Err: err}
	}
	return err
}

type contentRequest struct {
	ContentID string `cbor:"content_id" json:"content_id"`
	Index     uint64 `cbor:"index" json:"index"`
}

func decodeContentRequest(raw []byte) (*contentRequest, merkle.Hash, error) {
	var request contentRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, merkle.Hash{}, service.Errorf(service.CodeInvalidRequest, "invalid request: %v", err)
	}
	id, err := merkle.ParseHash(request.ContentID)
	if err != nil {
		return nil, merkle.Hash{}, service.Errorf(service.CodeInvalidRequest, "invalid content_id: %v", err)
	}
	return &request, id, nil
}

func (f *FrontEnd) handleExists(ctx context.Context, raw []byte) (any, error) {
	_, id, err := decodeContentRequest(raw)
	if err != nil {
		return nil, err
	}
	exists, err := f.store.PublishedFileExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking record for %s: %w", id, err)
	}
	return &ExistsResponse{Exists: exists}, nil
}

func (f *FrontEnd) handleProof(ctx context.Context, raw []byte) (any, error) {
	request, id, err := decodeContentRequest(raw)
	if err != nil {
		return nil, err
	}
	record, err := f.store.GetPublishedFile(ctx, id)
	if errors.Is(err, recordstore.ErrNotFound) {
		return nil, service.Errorf(service.CodeNotFound, "%s is not published", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading record for %s: %w", id, err)
	}
	proof, ok := record.MerkleProofs[request.Index]
	if !ok {
		return nil, service.Errorf(service.CodeNotFound,
			"%s has %d chunks, no chunk %d", id, record.NumberOfChunks, request.Index)
	}
	return &ProofResponse{
		Proof:          proof,
		NumberOfChunks: record.NumberOfChunks,
		ChunkPath:      filepath.Join(record.ChunksDirectory, chunker.FileName(request.Index)),
	}, nil
}

func (f *FrontEnd) handleStatus(ctx context.Context, _ []byte) (any, error) {
	response := &StatusResponse{
		QueueLength:   f.queue.Len(),
		QueueCapacity: f.queue.Cap(),
		UptimeSeconds: int64(f.clock.Now().Sub(f.started) / time.Second),
	}
	if f.tasks != nil {
		response.Tasks = f.tasks()
	}
	if f.persister != nil {
		response.PersistedSince, response.FailedWrites = f.persister.Stats()
	}
	if f.provided != nil {
		response.ProvidedContent = f.provided()
	}
	err := f.store.ListPublishedFiles(ctx, func(merkle.Hash) error {
		response.PublishedFiles++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting published files: %w", err)
	}
	return response, nil
}
