// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// shutdownGrace is how long Serve lets in-flight requests finish after
// ctx is cancelled before closing their connections.
const shutdownGrace = 5 * time.Second

// TCPListener serves HTTP over plain TCP. Responses are gzip-compressed
// for clients that accept it.
type TCPListener struct {
	listener net.Listener

	mutex  sync.Mutex
	server *http.Server
	closed bool
}

// NewTCPListener binds address, e.g. ":7421" or "127.0.0.1:0".
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &TCPListener{listener: listener}, nil
}

func (l *TCPListener) Serve(ctx context.Context, handler http.Handler) error {
	server := &http.Server{
		Handler:           gzhttp.GzipHandler(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return nil
	}
	l.server = server
	l.mutex.Unlock()

	shutdownDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(shutdownDone)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownContext); err != nil {
			server.Close()
		}
	})

	err := server.Serve(l.listener)
	// Serve returns as soon as Shutdown begins. In-flight handlers are
	// still running until the shutdown goroutine finishes.
	if !stop() {
		<-shutdownDone
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

func (l *TCPListener) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.server != nil {
		return l.server.Close()
	}
	return l.listener.Close()
}

// TCPDialer dials other nodes over TCP.
type TCPDialer struct {
	// Timeout bounds the connect phase. Zero leaves only the context
	// deadline.
	Timeout time.Duration
}

func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
