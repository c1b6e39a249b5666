// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package merkle

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func testLeaves(count int) []Hash {
	leaves := make([]Hash, count)
	for i := range leaves {
		leaves[i] = HashLeaf([]byte(fmt.Sprintf("chunk-%d", i)))
	}
	return leaves
}

func TestDomainKeysAreDistinct(t *testing.T) {
	input := make([]byte, 2*HashSize)
	var left, right Hash
	copy(input[:HashSize], left[:])
	copy(input[HashSize:], right[:])

	if HashLeaf(input) == HashNode(left, right) {
		t.Error("leaf and node domains produced the same hash for identical input")
	}
	if leafDomainKey == nodeDomainKey {
		t.Error("leaf and node domain keys are equal")
	}
}

func TestBuildEmpty(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, ErrEmptyTree) {
		t.Errorf("Build(nil) error = %v, want ErrEmptyTree", err)
	}
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	leaves := testLeaves(1)
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tree.Root() != leaves[0] {
		t.Errorf("root = %s, want leaf %s", tree.Root(), leaves[0])
	}
	proof, err := tree.Prove(0)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proof.Steps) != 0 {
		t.Errorf("single-leaf proof has %d steps, want 0", len(proof.Steps))
	}
}

func TestOddLevelPromotesLastNode(t *testing.T) {
	leaves := testLeaves(3)
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := HashNode(HashNode(leaves[0], leaves[1]), leaves[2])
	if tree.Root() != want {
		t.Errorf("root = %s, want %s", tree.Root(), want)
	}

	duplicated := HashNode(HashNode(leaves[0], leaves[1]), HashNode(leaves[2], leaves[2]))
	if tree.Root() == duplicated {
		t.Error("root matches the duplicate-last-node construction")
	}
}

func TestBuildIsDeterministicAndOrderSensitive(t *testing.T) {
	leaves := testLeaves(7)
	first, _ := Build(leaves)
	second, _ := Build(leaves)
	if first.Root() != second.Root() {
		t.Fatal("same leaves produced different roots")
	}

	swapped := append([]Hash(nil), leaves...)
	swapped[2], swapped[3] = swapped[3], swapped[2]
	third, _ := Build(swapped)
	if third.Root() == first.Root() {
		t.Error("reordered leaves produced the same root")
	}
}

func TestBuildDoesNotRetainCallerSlice(t *testing.T) {
	leaves := testLeaves(4)
	tree, _ := Build(leaves)
	root := tree.Root()
	leaves[0] = Hash{}
	if tree.Root() != root {
		t.Error("mutating the input slice changed the tree")
	}
	leaf, err := tree.Leaf(0)
	if err != nil {
		t.Fatalf("Leaf: %v", err)
	}
	if leaf.IsZero() {
		t.Error("tree leaf aliases caller slice")
	}
}

func TestProveVerifyEveryIndex(t *testing.T) {
	for count := 1; count <= 40; count++ {
		leaves := testLeaves(count)
		tree, err := Build(leaves)
		if err != nil {
			t.Fatalf("Build(%d): %v", count, err)
		}
		proofs, err := tree.ProveAll()
		if err != nil {
			t.Fatalf("ProveAll(%d): %v", count, err)
		}
		if len(proofs) != count {
			t.Fatalf("ProveAll(%d) returned %d proofs", count, len(proofs))
		}
		for index := range uint64(count) {
			if !Verify(tree.Root(), index, leaves[index], uint64(count), proofs[index]) {
				t.Errorf("count=%d index=%d: valid proof rejected", count, index)
			}
		}
	}
}

func TestTamperedLeafFailsOnlyItsIndex(t *testing.T) {
	const count = 13
	leaves := testLeaves(count)
	tree, _ := Build(leaves)
	proofs, err := tree.ProveAll()
	if err != nil {
		t.Fatalf("ProveAll: %v", err)
	}

	for tampered := range uint64(count) {
		data := []byte(fmt.Sprintf("chunk-%d", tampered))
		data[0] ^= 0x01
		badLeaf := HashLeaf(data)

		for index := range uint64(count) {
			leaf := leaves[index]
			if index == tampered {
				leaf = badLeaf
			}
			ok := Verify(tree.Root(), index, leaf, count, proofs[index])
			if index == tampered && ok {
				t.Errorf("tampered index %d still verifies", index)
			}
			if index != tampered && !ok {
				t.Errorf("untampered index %d fails after tampering %d", index, tampered)
			}
		}
	}
}

func TestVerifyRejectsWrongShape(t *testing.T) {
	leaves := testLeaves(6)
	tree, _ := Build(leaves)
	root := tree.Root()

	proof, err := tree.Prove(4)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	tests := []struct {
		name      string
		index     uint64
		leafCount uint64
		mutate    func(*Proof)
		want      error
	}{
		{name: "valid", index: 4, leafCount: 6, mutate: func(*Proof) {}, want: nil},
		{name: "wrong index", index: 5, leafCount: 6, mutate: func(*Proof) {}, want: ErrMalformedProof},
		{name: "wrong leaf count", index: 4, leafCount: 7, mutate: func(*Proof) {}, want: ErrMalformedProof},
		{name: "zero leaf count", index: 0, leafCount: 0, mutate: func(*Proof) {}, want: ErrMalformedProof},
		{name: "index out of range", index: 6, leafCount: 6, mutate: func(p *Proof) { p.Index = 6 }, want: ErrMalformedProof},
		{
			name: "flipped side", index: 4, leafCount: 6,
			mutate: func(p *Proof) { p.Steps[0].Side = SideLeft },
			want:   ErrMalformedProof,
		},
		{
			name: "extra step", index: 4, leafCount: 6,
			mutate: func(p *Proof) { p.Steps = append(p.Steps, Step{Side: SideLeft}) },
			want:   ErrMalformedProof,
		},
		{
			name: "missing step", index: 4, leafCount: 6,
			mutate: func(p *Proof) { p.Steps = p.Steps[:len(p.Steps)-1] },
			want:   ErrMalformedProof,
		},
		{
			name: "wrong sibling", index: 4, leafCount: 6,
			mutate: func(p *Proof) { p.Steps[0].Sibling[0] ^= 0xff },
			want:   ErrProofMismatch,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			copied := &Proof{LeafCount: proof.LeafCount, Index: proof.Index, Steps: append([]Step(nil), proof.Steps...)}
			test.mutate(copied)
			err := VerifyProof(root, test.index, leaves[4], test.leafCount, copied)
			if test.want == nil {
				if err != nil {
					t.Errorf("VerifyProof: %v", err)
				}
				return
			}
			if !errors.Is(err, test.want) {
				t.Errorf("VerifyProof error = %v, want %v", err, test.want)
			}
		})
	}
}

func TestDecodeProofRejectsGarbage(t *testing.T) {
	if _, err := DecodeProof([]byte{0xff, 0x00}); !errors.Is(err, ErrMalformedProof) {
		t.Errorf("DecodeProof(garbage) error = %v, want ErrMalformedProof", err)
	}
	if Verify(Hash{}, 0, Hash{}, 1, nil) {
		t.Error("Verify accepted empty proof bytes")
	}
}

func TestEncodeProofIsDeterministic(t *testing.T) {
	tree, _ := Build(testLeaves(9))
	first, _ := tree.ProveAll()
	second, _ := tree.ProveAll()
	for index, encoded := range first {
		if string(encoded) != string(second[index]) {
			t.Errorf("proof %d encodes differently across runs", index)
		}
	}
}

func TestVerifyAll(t *testing.T) {
	leaves := testLeaves(5)
	tree, _ := Build(leaves)
	proofs, _ := tree.ProveAll()

	indices := []uint64{0, 2, 4}
	subset := []Hash{leaves[0], leaves[2], leaves[4]}
	encoded := [][]byte{proofs[0], proofs[2], proofs[4]}
	if !VerifyAll(tree.Root(), indices, subset, 5, encoded) {
		t.Error("VerifyAll rejected valid proofs")
	}

	subset[1] = leaves[1]
	if VerifyAll(tree.Root(), indices, subset, 5, encoded) {
		t.Error("VerifyAll accepted a wrong leaf")
	}
	if VerifyAll(tree.Root(), nil, nil, 5, nil) {
		t.Error("VerifyAll accepted an empty batch")
	}
}

func TestParseHash(t *testing.T) {
	original := HashLeaf([]byte("parse me"))
	parsed, err := ParseHash(original.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != original {
		t.Errorf("ParseHash(%s) = %s", original, parsed)
	}

	for _, bad := range []string{"", "abc", strings.Repeat("zz", HashSize), original.String() + "00"} {
		if _, err := ParseHash(bad); err == nil {
			t.Errorf("ParseHash(%q) succeeded", bad)
		}
	}
}

func BenchmarkBuild4096(b *testing.B) {
	leaves := testLeaves(4096)
	b.ReportAllocs()
	for b.Loop() {
		Build(leaves)
	}
}
