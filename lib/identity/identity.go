// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity manages the node's Ed25519 identity key. The peer
// component signs what it tells other nodes with this key, and the
// public key is the node's peer id.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tessera-net/tessera/lib/codec"
)

// keyFileVersion is written into every key file.
const keyFileVersion = 1

// Identity is a loaded node key pair.
type Identity struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

type keyFile struct {
	Version int    `cbor:"version"`
	Seed    []byte `cbor:"seed"`
}

// Generate creates a fresh identity.
func Generate() (*Identity, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return &Identity{public: public, private: private}, nil
}

// Load reads the key file at path.
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity key: %w", err)
	}
	var file keyFile
	if err := codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding identity key %s: %w", path, err)
	}
	if file.Version != keyFileVersion {
		return nil, fmt.Errorf("identity key %s has version %d, want %d", path, file.Version, keyFileVersion)
	}
	if len(file.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity key %s has %d seed bytes, want %d", path, len(file.Seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(file.Seed)
	return &Identity{public: private.Public().(ed25519.PublicKey), private: private}, nil
}

// Save writes the identity to path with 0600 permissions, replacing
// any existing file atomically.
func (id *Identity) Save(path string) error {
	data, err := codec.Marshal(keyFile{Version: keyFileVersion, Seed: id.private.Seed()})
	if err != nil {
		return fmt.Errorf("encoding identity key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating identity key directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".identity-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp identity key: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("restricting identity key permissions: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing identity key: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing identity key: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing identity key: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming identity key to %s: %w", path, err)
	}
	success = true
	return nil
}

// LoadOrGenerate loads the key file at path, or generates and saves a
// new identity if the file does not exist. It reports whether the
// identity is new. An existing file that fails to load is an error,
// never silently replaced.
func LoadOrGenerate(path string) (*Identity, bool, error) {
	id, err := Load(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	id, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := id.Save(path); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// PublicKey returns the public half of the key pair.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.public
}

// PeerID returns the hex-encoded public key.
func (id *Identity) PeerID() string {
	return hex.EncodeToString(id.public)
}

// Sign signs message with the node key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.private, message)
}

// Verify checks a signature made by the node whose peer id is peerID.
func Verify(peerID string, message, signature []byte) error {
	public, err := hex.DecodeString(peerID)
	if err != nil {
		return fmt.Errorf("decoding peer id: %w", err)
	}
	if len(public) != ed25519.PublicKeySize {
		return fmt.Errorf("peer id is %d bytes, want %d", len(public), ed25519.PublicKeySize)
	}
	if !ed25519.Verify(public, message, signature) {
		return errors.New("signature does not verify")
	}
	return nil
}
