// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/tessera-net/tessera/lib/clock"
	"github.com/tessera-net/tessera/lib/config"
	"github.com/tessera-net/tessera/lib/fileprocessor"
	"github.com/tessera-net/tessera/lib/identity"
	"github.com/tessera-net/tessera/lib/peer"
	"github.com/tessera-net/tessera/lib/publish"
	"github.com/tessera-net/tessera/lib/recordstore"
	"github.com/tessera-net/tessera/lib/service"
	"github.com/tessera-net/tessera/lib/supervisor"
	"github.com/tessera-net/tessera/transport"
)

// Options configures a Server. Clock and Logger are optional.
type Options struct {
	Config *config.Config
	Clock  clock.Clock
	Logger *slog.Logger
}

// Server is one node: the file processor, the record store, and the
// supervised services sharing them.
type Server struct {
	config *config.Config
	clock  clock.Clock
	logger *slog.Logger

	supervisor *supervisor.Supervisor
	processor  *fileprocessor.Processor
	store      recordstore.Store
	identity   *identity.Identity
	queue      *publish.Queue

	mutex     sync.Mutex
	started   bool
	stopped   bool
	frontEnd  *publish.FrontEnd
	persister *publish.Persister
	peer      *peer.Server
	listener  *transport.TCPListener
}

// New validates the configuration and opens everything the services
// share. Nothing listens until Start.
func New(options Options) (*Server, error) {
	cfg := options.Config
	if cfg == nil {
		return nil, errors.New("node: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	processor, err := fileprocessor.New(fileprocessor.Config{
		ChunksRoot:       cfg.Paths.Chunks,
		ChunkSize:        cfg.Processor.ChunkSize,
		Parallelism:      cfg.Processor.Parallelism,
		MinFreeBytes:     cfg.Processor.MinFreeBytes,
		VerifyAfterWrite: cfg.Processor.VerifyAfterWrite,
		Logger:           logger.With("component", "processor"),
	})
	if err != nil {
		return nil, err
	}

	var nodeIdentity *identity.Identity
	if cfg.Peer.Enabled {
		var created bool
		nodeIdentity, created, err = identity.LoadOrGenerate(cfg.Paths.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading node identity: %w", err)
		}
		if created {
			logger.Info("generated node identity", "key_file", cfg.Paths.KeyFile, "peer_id", nodeIdentity.PeerID())
		}
	}

	store, err := recordstore.Open(recordstore.Config{
		Backend:    cfg.Store.Backend,
		Directory:  cfg.Paths.Database,
		SyncWrites: cfg.Store.SyncWrites,
		Logger:     logger.With("component", "recordstore"),
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		config:     cfg,
		clock:      clk,
		logger:     logger,
		supervisor: supervisor.New(logger.With("component", "supervisor")),
		processor:  processor,
		store:      store,
		identity:   nodeIdentity,
		queue:      publish.NewQueue(cfg.Publish.QueueCapacity),
	}, nil
}

// Start clears stale staging, then spawns the peer component (when
// enabled), the persister, and the front-end. It returns once the
// front-end accepts connections, or with an error if a service fails
// first or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	frontEnd, err := s.spawnServices()
	if err != nil {
		return err
	}

	select {
	case <-frontEnd.Ready():
		s.logger.Info("node started", "frontend", frontEnd.Addr().String(), "peer", s.PeerAddress())
		return nil
	case <-s.supervisor.Failed():
		return fmt.Errorf("node failed to start: %w", s.Stop())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) spawnServices() (*publish.FrontEnd, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		return nil, errors.New("node: already started")
	}
	s.started = true

	if err := s.processor.RemoveStaleStaging(); err != nil {
		return nil, err
	}
	endpoint, err := service.ParseEndpoint(s.config.Frontend.Listen)
	if err != nil {
		return nil, err
	}
	waitTimeout, err := s.config.WaitTimeout()
	if err != nil {
		return nil, err
	}

	var announcer publish.Announcer
	var provided func() int
	if s.config.Peer.Enabled {
		listener, err := transport.NewTCPListener(s.config.Peer.Listen)
		if err != nil {
			return nil, fmt.Errorf("starting peer listener: %w", err)
		}
		s.listener = listener
		s.peer = peer.New(peer.Options{
			Identity: s.identity,
			Store:    s.store,
			Listener: listener,
			Clock:    s.clock,
			Logger:   s.logger.With("component", "peer"),
		})
		announcer = s.peer
		provided = s.peer.ProvidedCount
		s.supervisor.Spawn("peer", s.peer)
	}

	s.persister = publish.NewPersister(publish.PersisterOptions{
		Queue:     s.queue,
		Store:     s.store,
		Announcer: announcer,
		Clock:     s.clock,
		Logger:    s.logger.With("component", "persister"),
	})
	s.supervisor.Spawn("persister", s.persister)

	s.frontEnd = publish.NewFrontEnd(publish.FrontEndOptions{
		Endpoint:       endpoint,
		MaxRequestSize: s.config.Frontend.MaxRequestSize,
		Processor:      s.processor,
		Store:          s.store,
		Queue:          s.queue,
		Persister:      s.persister,
		WaitTimeout:    waitTimeout,
		Tasks:          s.supervisor.Tasks,
		Provided:       provided,
		Clock:          s.clock,
		Logger:         s.logger,
	})
	s.supervisor.Spawn("frontend", s.frontEnd)
	return s.frontEnd, nil
}

// Spawn runs an additional service under the node's supervisor.
func (s *Server) Spawn(name string, svc supervisor.Service) {
	s.supervisor.Spawn(name, svc)
}

// Stop cancels every service, waits for all of them, and closes the
// record store. It returns the first service failure, or the store's
// close error. Later calls return nil.
func (s *Server) Stop() error {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return nil
	}
	s.stopped = true
	s.mutex.Unlock()

	err := s.supervisor.Stop()
	s.mutex.Lock()
	listener := s.listener
	s.mutex.Unlock()
	if listener != nil {
		listener.Close()
	}
	if closeErr := s.store.Close(); closeErr != nil {
		s.logger.Error("closing record store", "error", closeErr)
		if err == nil {
			err = fmt.Errorf("closing record store: %w", closeErr)
		}
	}
	return err
}

// Wait blocks until ctx ends or a service fails, then stops the node.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case <-s.supervisor.Failed():
		s.logger.Warn("service failed, shutting down")
	}
	return s.Stop()
}

// Failed is closed when any service first fails.
func (s *Server) Failed() <-chan struct{} {
	return s.supervisor.Failed()
}

// Tasks reports every supervised service.
func (s *Server) Tasks() []supervisor.TaskStatus {
	return s.supervisor.Tasks()
}

// FrontEndAddr is the bound socket address, nil before Start.
func (s *Server) FrontEndAddr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.frontEnd == nil {
		return nil
	}
	return s.frontEnd.Addr()
}

// PeerAddress is the peer listener's host:port, empty when the peer is
// disabled or not started.
func (s *Server) PeerAddress() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Address()
}

// PeerID is the node identity, empty when the peer is disabled.
func (s *Server) PeerID() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.PeerID()
}
