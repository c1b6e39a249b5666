// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/tessera-net/tessera/lib/codec"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// DefaultResponseTimeout is how long Call waits for a response.
// Publishing a large file is slow, so clients that publish raise it.
const DefaultResponseTimeout = 45 * time.Second

// maxResponseSize bounds a single CBOR response.
const maxResponseSize = 16 * 1024 * 1024

// ServiceError is returned by Call when the server answers ok=false.
type ServiceError struct {
	Action  string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Client sends requests to a SocketServer. Each Call opens its own
// connection.
type Client struct {
	endpoint        Endpoint
	responseTimeout time.Duration
}

// NewClient returns a client for endpoint.
func NewClient(endpoint Endpoint) *Client {
	return &Client{endpoint: endpoint, responseTimeout: DefaultResponseTimeout}
}

// WithResponseTimeout returns a copy of c that waits up to timeout for
// each response.
func (c *Client) WithResponseTimeout(timeout time.Duration) *Client {
	copied := *c
	copied.responseTimeout = timeout
	return &copied
}

// Call sends action with fields and decodes the response data into
// result. fields must not contain an "action" key. A failure response
// is returned as *ServiceError; transport and encoding failures are
// plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.endpoint, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Code: response.Code, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, c.endpoint.Network, c.endpoint.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close so the server's read side sees EOF cleanly.
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		closer.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(c.responseTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
