// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"net"
	"strings"
)

// Endpoint is where a socket server listens and where its clients
// dial: a TCP host:port or a Unix socket path.
type Endpoint struct {
	Network string
	Address string
}

// ParseEndpoint parses "tcp://host:port" or "unix:///path/to.sock".
// A bare "host:port" is taken as TCP and a bare absolute path as Unix.
func ParseEndpoint(raw string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(raw, "tcp://"):
		address := strings.TrimPrefix(raw, "tcp://")
		if _, _, err := net.SplitHostPort(address); err != nil {
			return Endpoint{}, fmt.Errorf("parsing endpoint %q: %w", raw, err)
		}
		return Endpoint{Network: "tcp", Address: address}, nil
	case strings.HasPrefix(raw, "unix://"):
		path := strings.TrimPrefix(raw, "unix://")
		if path == "" {
			return Endpoint{}, fmt.Errorf("parsing endpoint %q: empty socket path", raw)
		}
		return Endpoint{Network: "unix", Address: path}, nil
	case strings.HasPrefix(raw, "/"):
		return Endpoint{Network: "unix", Address: raw}, nil
	}
	if _, _, err := net.SplitHostPort(raw); err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: want tcp://host:port or unix:///path", raw)
	}
	return Endpoint{Network: "tcp", Address: raw}, nil
}

// String returns the URL form accepted by ParseEndpoint.
func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

// TCPEndpoint returns the loopback TCP endpoint for port.
func TCPEndpoint(port int) Endpoint {
	return Endpoint{Network: "tcp", Address: net.JoinHostPort("127.0.0.1", fmt.Sprint(port))}
}

// UnixEndpoint returns the Unix socket endpoint for path.
func UnixEndpoint(path string) Endpoint {
	return Endpoint{Network: "unix", Address: path}
}
