// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small helpers shared by the socket and peer
// transports: bounded body reads and classification of connection
// teardown errors.
package netutil

import (
	"errors"
	"fmt"
	"io"

	"github.com/tessera-net/tessera/lib/codec"
)

// ErrBodyTooLarge is returned when a body exceeds its read limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadBody reads all of body, failing with ErrBodyTooLarge if it holds
// more than limit bytes.
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// DecodeBody reads a CBOR body of at most limit bytes into v.
func DecodeBody(body io.Reader, limit int64, v any) error {
	data, err := ReadBody(body, limit)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	return codec.Unmarshal(data, v)
}
