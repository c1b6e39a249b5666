// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

type sampleRecord struct {
	ContentID string            `cbor:"content_id"`
	Chunks    uint64            `cbor:"number_of_chunks"`
	Proofs    map[uint64][]byte `cbor:"proofs,omitempty"`
}

// textID marshals as lowercase hex, the way content identifiers do.
type textID [4]byte

func (id textID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

func (id *textID) UnmarshalText(text []byte) error {
	_, err := hex.Decode(id[:], text)
	return err
}

func TestMapKeyOrderIsDeterministic(t *testing.T) {
	// Insertion order differs; encoding must not.
	first := sampleRecord{ContentID: "a", Chunks: 3, Proofs: map[uint64][]byte{}}
	second := sampleRecord{ContentID: "a", Chunks: 3, Proofs: map[uint64][]byte{}}
	for index := uint64(0); index < 3; index++ {
		first.Proofs[index] = []byte{byte(index)}
	}
	for index := uint64(3); index > 0; index-- {
		second.Proofs[index-1] = []byte{byte(index - 1)}
	}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("encodings differ: %x != %x", firstBytes, secondBytes)
	}
}

func TestStreamRoundtrip(t *testing.T) {
	records := []sampleRecord{
		{ContentID: "one", Chunks: 1},
		{ContentID: "two", Chunks: 2, Proofs: map[uint64][]byte{0: {1}, 1: {2}}},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range records {
		var got sampleRecord
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode record %d: %v", i, err)
		}
		if got.ContentID != want.ContentID || got.Chunks != want.Chunks || len(got.Proofs) != len(want.Proofs) {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestTextMarshalerEncodesAsString(t *testing.T) {
	type envelope struct {
		ID textID `cbor:"id"`
	}
	original := envelope{ID: textID{0xde, 0xad, 0xbe, 0xef}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"deadbeef"`) {
		t.Errorf("notation %q does not carry the hex text form", notation)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var record sampleRecord
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &record); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestAnyTargetDecodesStringMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "publish", "fields": map[string]any{"public": true}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded["fields"].(map[string]any); !ok {
		t.Errorf("nested map decoded as %T, want map[string]any", decoded["fields"])
	}
}

func BenchmarkMarshalRecord(b *testing.B) {
	record := sampleRecord{ContentID: "bench", Chunks: 64, Proofs: map[uint64][]byte{}}
	for index := uint64(0); index < 64; index++ {
		record.Proofs[index] = bytes.Repeat([]byte{byte(index)}, 200)
	}
	b.ReportAllocs()
	for b.Loop() {
		Marshal(record)
	}
}
