// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tessera-net/tessera/lib/codec"
	"github.com/tessera-net/tessera/lib/netutil"
)

// ActionFunc handles one request. raw is the whole CBOR request,
// including the "action" field; the handler decodes its own fields.
// A nil result produces {ok: true}; a non-nil result is encoded into
// the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Error codes carried in Response.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal"
)

// CodedError is an error that names its response code. Handlers
// return one to let clients tell caller mistakes from node failures.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	return e.Err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// Errorf returns a CodedError with a formatted message. %w verbs wrap
// as in fmt.Errorf.
func Errorf(code, format string, args ...any) error {
	return &CodedError{Code: code, Err: fmt.Errorf(format, args...)}
}

// readTimeout bounds how long a client may take to send its request.
const readTimeout = 30 * time.Second

// writeTimeout bounds writing the response.
const writeTimeout = 10 * time.Second

// DefaultMaxRequestSize bounds a single CBOR request unless the
// server is configured otherwise.
const DefaultMaxRequestSize = 1024 * 1024

// SocketServer serves a CBOR request-response protocol on a TCP or
// Unix socket. Each connection carries exactly one request and one
// response.
type SocketServer struct {
	endpoint       Endpoint
	handlers       map[string]ActionFunc
	logger         *slog.Logger
	maxRequestSize int64

	ready    chan struct{}
	mutex    sync.Mutex
	listener net.Listener

	// activeConnections lets Serve wait for in-flight handlers.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server for endpoint. Register actions
// with Handle before calling Serve.
func NewSocketServer(endpoint Endpoint, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		endpoint:       endpoint,
		handlers:       make(map[string]ActionFunc),
		logger:         logger,
		maxRequestSize: DefaultMaxRequestSize,
		ready:          make(chan struct{}),
	}
}

// SetMaxRequestSize changes the request size bound. Call before Serve.
func (s *SocketServer) SetMaxRequestSize(size int64) {
	s.maxRequestSize = size
}

// Handle registers a handler for action. Panics on duplicates.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Ready is closed once the server is accepting connections.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, which differs from the configured
// one when the configured TCP port is 0. Nil before Ready.
func (s *SocketServer) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for in-flight handlers. For Unix endpoints a
// stale socket file is removed first and the socket file is removed on
// return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if s.endpoint.Network == "unix" {
		if err := os.Remove(s.endpoint.Address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket %s: %w", s.endpoint.Address, err)
		}
	}

	var listenConfig net.ListenConfig
	listener, err := listenConfig.Listen(ctx, s.endpoint.Network, s.endpoint.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.endpoint, err)
	}
	defer func() {
		listener.Close()
		if s.endpoint.Network == "unix" {
			os.Remove(s.endpoint.Address)
		}
	}()

	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("socket server listening", "network", s.endpoint.Network, "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// CBOR is self-delimiting, so one Decode reads exactly one request.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, s.maxRequestSize)).Decode(&raw); err != nil {
		if netutil.IsExpectedCloseError(err) {
			return
		}
		s.writeError(conn, CodeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, CodeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, CodeInvalidRequest, "missing required field: action")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, CodeInvalidRequest, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		code := CodeInternal
		var coded *CodedError
		if errors.As(err, &coded) {
			code = coded.Code
		}
		s.logger.Debug("action failed", "action", header.Action, "code", code, "error", err)
		s.writeError(conn, code, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

func (s *SocketServer) writeError(conn net.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Code: code, Error: message}); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, CodeInternal, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
