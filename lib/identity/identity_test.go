// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGeneratePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")

	first, created, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	if !created {
		t.Error("first call did not report a new identity")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %o, want 600", info.Mode().Perm())
	}

	second, created, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("second LoadOrGenerate: %v", err)
	}
	if created {
		t.Error("second call generated a new identity")
	}
	if first.PeerID() != second.PeerID() {
		t.Errorf("peer id changed across loads: %s vs %s", first.PeerID(), second.PeerID())
	}
}

func TestCorruptKeyIsNotReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := LoadOrGenerate(path); err == nil {
		t.Fatal("LoadOrGenerate accepted a corrupt key file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "not a key" {
		t.Error("corrupt key file was overwritten")
	}
}

func TestSignVerify(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	message := []byte("provided content list")
	signature := id.Sign(message)

	if err := Verify(id.PeerID(), message, signature); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if err := Verify(id.PeerID(), []byte("tampered"), signature); err == nil {
		t.Error("Verify accepted a signature over different bytes")
	}

	other, _ := Generate()
	if err := Verify(other.PeerID(), message, signature); err == nil {
		t.Error("Verify accepted a signature under a different key")
	}
	if err := Verify("zz", message, signature); err == nil {
		t.Error("Verify accepted a malformed peer id")
	}
}
