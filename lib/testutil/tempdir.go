// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a short temporary directory under /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes. t.TempDir can
// exceed that under deeply nested test roots.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "tessera-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("reading random bytes: %v", err)
	}
	return data
}

// WriteFile writes data to name under a fresh t.TempDir and returns
// the full path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
