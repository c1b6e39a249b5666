// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/tessera-net/tessera/lib/clock"
	"github.com/tessera-net/tessera/lib/codec"
	"github.com/tessera-net/tessera/lib/identity"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/recordstore"
	"github.com/tessera-net/tessera/transport"
)

// Options configures a Server. Clock and Logger are optional.
type Options struct {
	Identity *identity.Identity
	Store    recordstore.Store
	Listener transport.Listener
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Server is the node's peer component. It implements
// supervisor.Service and publish.Announcer.
type Server struct {
	identity *identity.Identity
	store    recordstore.Store
	listener transport.Listener
	clock    clock.Clock
	logger   *slog.Logger

	mutex    sync.RWMutex
	provided map[merkle.Hash]struct{}
}

// New returns a server with an empty provided set. Run seeds it from
// the record store before serving.
func New(options Options) *Server {
	server := &Server{
		identity: options.Identity,
		store:    options.Store,
		listener: options.Listener,
		clock:    options.Clock,
		logger:   options.Logger,
		provided: make(map[merkle.Hash]struct{}),
	}
	if server.clock == nil {
		server.clock = clock.Real()
	}
	if server.logger == nil {
		server.logger = slog.New(slog.DiscardHandler)
	}
	return server
}

// Provide adds id to the provided set. Call it only once the record
// for id is durable.
func (s *Server) Provide(id merkle.Hash) {
	s.mutex.Lock()
	_, known := s.provided[id]
	s.provided[id] = struct{}{}
	s.mutex.Unlock()
	if !known {
		s.logger.Debug("providing content", "content_id", id.String())
	}
}

// Provides reports whether id is in the provided set.
func (s *Server) Provides(id merkle.Hash) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.provided[id]
	return ok
}

// ProvidedCount is the size of the provided set.
func (s *Server) ProvidedCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.provided)
}

// Run seeds the provided set from the store, then serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.seed(ctx); err != nil {
		return err
	}
	s.logger.Info("peer listening", "address", s.listener.Address(), "peer_id", s.identity.PeerID(),
		"provided", s.ProvidedCount())
	return s.listener.Serve(ctx, s.Handler())
}

func (s *Server) seed(ctx context.Context) error {
	err := s.store.ListPublishedFiles(ctx, func(id merkle.Hash) error {
		s.mutex.Lock()
		s.provided[id] = struct{}{}
		s.mutex.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("seeding provided set: %w", err)
	}
	return nil
}

// Handler routes the peer endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/identity", s.handleIdentity)
	mux.HandleFunc("GET /v1/content/{id}", s.handleContent)
	mux.HandleFunc("GET /v1/provided", s.handleProvided)
	return mux
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	nonce, err := hex.DecodeString(r.URL.Query().Get("nonce"))
	if err != nil || len(nonce) != NonceSize {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("nonce must be %d hex-encoded bytes", NonceSize))
		return
	}
	peerID := s.identity.PeerID()
	s.write(w, http.StatusOK, &IdentityResponse{
		PeerID:    peerID,
		Nonce:     nonce,
		Signature: s.identity.Sign(identityMessage(nonce, peerID)),
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id, err := merkle.ParseHash(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.Provides(id) {
		s.writeError(w, http.StatusNotFound, "content not provided")
		return
	}
	record, err := s.store.GetPublishedFile(r.Context(), id)
	if errors.Is(err, recordstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "content not provided")
		return
	}
	if err != nil {
		s.logger.Error("reading record for peer", "content_id", id.String(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "reading record")
		return
	}
	s.write(w, http.StatusOK, &ContentInfo{
		ContentID:      record.ContentID.String(),
		NumberOfChunks: record.NumberOfChunks,
		Size:           record.Size,
		ChunkSize:      record.ChunkSize,
		Public:         record.Public,
		PublishedAt:    record.PublishedAt,
	})
}

func (s *Server) handleProvided(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	ids := make([]string, 0, len(s.provided))
	for id := range s.provided {
		ids = append(ids, id.String())
	}
	s.mutex.RUnlock()
	slices.Sort(ids)

	listing, err := codec.Marshal(&ProvidedListing{
		PeerID:     s.identity.PeerID(),
		IssuedAt:   s.clock.Now().UTC().Truncate(0),
		ContentIDs: ids,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "encoding listing")
		return
	}
	s.write(w, http.StatusOK, &SignedListing{
		Listing:   listing,
		Signature: s.identity.Sign(listingMessage(listing)),
	})
}

func (s *Server) write(w http.ResponseWriter, status int, body any) {
	data, err := codec.Marshal(body)
	if err != nil {
		s.logger.Error("encoding peer response", "error", err)
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("writing peer response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.write(w, status, &errorResponse{Error: message})
}
