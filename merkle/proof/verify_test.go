// Copyright 2017 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package proof

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	to "github.com/google/tilelog/merkle/testonly"
	tdproof "github.com/transparency-dev/merkle/proof"
)

var (
	sha256SomeHash      = to.MustHexDecode("abacaba000000000000000000000000000000000000000000060061e00123456")
	sha256EmptyTreeHash = to.MustHexDecode("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
)

// inclusionProbe is a parameter set for inclusion proof verification.
type inclusionProbe struct {
	leafIndex uint64
	treeSize  uint64
	root      []byte
	leafHash  []byte
	proof     [][]byte

	desc string
}

// consistencyProbe is a parameter set for consistency proof verification.
type consistencyProbe struct {
	size1 uint64
	size2 uint64
	root1 []byte
	root2 []byte
	proof [][]byte

	desc string
}

func corruptInclusionProof(leafIndex, treeSize uint64, proof [][]byte, root, leafHash []byte) []inclusionProbe {
	ret := []inclusionProbe{
		// Wrong leaf index.
		{leafIndex - 1, treeSize, root, leafHash, proof, "leafIndex - 1"},
		{leafIndex + 1, treeSize, root, leafHash, proof, "leafIndex + 1"},
		{leafIndex ^ 2, treeSize, root, leafHash, proof, "leafIndex ^ 2"},
		// Wrong tree height.
		{leafIndex, treeSize * 2, root, leafHash, proof, "treeSize * 2"},
		{leafIndex, treeSize / 2, root, leafHash, proof, "treeSize / 2"},
		// Wrong leaf or root.
		{leafIndex, treeSize, root, []byte("WrongLeaf"), proof, "wrong leaf"},
		{leafIndex, treeSize, sha256EmptyTreeHash, leafHash, proof, "empty root"},
		{leafIndex, treeSize, sha256SomeHash, leafHash, proof, "random root"},
		// Add garbage at the end.
		{leafIndex, treeSize, root, leafHash, extend(proof, []byte{}), "trailing garbage"},
		{leafIndex, treeSize, root, leafHash, extend(proof, root), "trailing root"},
		// Add garbage at the front.
		{leafIndex, treeSize, root, leafHash, prepend(proof, []byte{}), "preceding garbage"},
		{leafIndex, treeSize, root, leafHash, prepend(proof, root), "preceding root"},
	}
	ln := len(proof)

	// Modify single bit in an element of the proof.
	for i := 0; i < ln; i++ {
		for _, bit := range []byte{1, 8, 128} {
			wrongProof := prepend(proof)                          // Copy the proof slice.
			wrongProof[i] = append([]byte(nil), wrongProof[i]...) // But also the modified data.
			wrongProof[i][0] ^= bit                               // Flip the bit.
			desc := fmt.Sprintf("modified proof[%d] bit %#x", i, bit)
			ret = append(ret, inclusionProbe{leafIndex, treeSize, root, leafHash, wrongProof, desc})
		}
	}

	if ln > 0 {
		ret = append(ret, inclusionProbe{leafIndex, treeSize, root, leafHash, proof[:ln-1], "removed component"})
	}
	if ln > 1 {
		wrongProof := prepend(proof[1:], proof[0], sha256SomeHash)
		ret = append(ret, inclusionProbe{leafIndex, treeSize, root, leafHash, wrongProof, "inserted component"})
	}

	return ret
}

func corruptConsistencyProof(size1, size2 uint64, root1, root2 []byte, proof [][]byte) []consistencyProbe {
	ln := len(proof)
	ret := []consistencyProbe{
		// Wrong size1.
		{size1 - 1, size2, root1, root2, proof, "size1 - 1"},
		{size1 + 1, size2, root1, root2, proof, "size1 + 1"},
		{size1 ^ 2, size2, root1, root2, proof, "size1 ^ 2"},
		// Wrong tree height.
		{size1, size2 * 2, root1, root2, proof, "size2 * 2"},
		{size1, size2 / 2, root1, root2, proof, "size2 / 2"},
		// Wrong root.
		{size1, size2, []byte("WrongRoot"), root2, proof, "wrong root1"},
		{size1, size2, root1, []byte("WrongRoot"), proof, "wrong root2"},
		{size1, size2, root2, root1, proof, "swapped roots"},
		// Empty proof.
		{size1, size2, root1, root2, [][]byte{}, "empty proof"},
		// Add garbage at the end.
		{size1, size2, root1, root2, extend(proof, []byte{}), "trailing garbage"},
		{size1, size2, root1, root2, extend(proof, root1), "trailing root1"},
		{size1, size2, root1, root2, extend(proof, root2), "trailing root2"},
		// Add garbage at the front.
		{size1, size2, root1, root2, prepend(proof, []byte{}), "preceding garbage"},
		{size1, size2, root1, root2, prepend(proof, root1), "preceding root1"},
		{size1, size2, root1, root2, prepend(proof, root2), "preceding root2"},
		{size1, size2, root1, root2, prepend(proof, proof[0]), "preceding proof[0]"},
	}

	// Remove a node from the end.
	if ln > 0 {
		ret = append(ret, consistencyProbe{size1, size2, root1, root2, proof[:ln-1], "truncated proof"})
	}

	// Modify single bit in an element of the proof.
	for i := 0; i < ln; i++ {
		for _, bit := range []byte{1, 16, 128} {
			wrongProof := prepend(proof)                          // Copy the proof slice.
			wrongProof[i] = append([]byte(nil), wrongProof[i]...) // But also the modified data.
			wrongProof[i][0] ^= bit                               // Flip the bit.
			desc := fmt.Sprintf("modified proof[%d] bit %#x", i, bit)
			ret = append(ret, consistencyProbe{size1, size2, root1, root2, wrongProof, desc})
		}
	}

	return ret
}

func verifierCheck(leafIndex, treeSize uint64, proof [][]byte, root, leafHash []byte) error {
	// Verify original inclusion proof.
	got, err := RootFromInclusion(hasher, leafIndex, treeSize, leafHash, proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, root) {
		return fmt.Errorf("got root:\n%x\nexpected:\n%x", got, root)
	}
	if err := VerifyInclusion(hasher, leafIndex, treeSize, leafHash, proof, root); err != nil {
		return err
	}

	probes := corruptInclusionProof(leafIndex, treeSize, proof, root, leafHash)
	var wrong []string
	for _, p := range probes {
		if err := VerifyInclusion(hasher, p.leafIndex, p.treeSize, p.leafHash, p.proof, p.root); err == nil {
			wrong = append(wrong, p.desc)
		}
	}
	if len(wrong) > 0 {
		return fmt.Errorf("incorrectly verified against: %s", strings.Join(wrong, ", "))
	}
	return nil
}

func verifierConsistencyCheck(size1, size2 uint64, root1, root2 []byte, proof [][]byte) error {
	// Verify original consistency proof.
	if err := VerifyConsistency(hasher, size1, size2, proof, root1, root2); err != nil {
		return err
	}
	// For simplicity test only non-trivial proofs that have root1 != root2,
	// size1 != 0 and size1 != size2.
	if len(proof) == 0 {
		return nil
	}

	probes := corruptConsistencyProof(size1, size2, root1, root2, proof)
	var wrong []string
	for _, p := range probes {
		if err := VerifyConsistency(hasher, p.size1, p.size2, p.proof, p.root1, p.root2); err == nil {
			wrong = append(wrong, p.desc)
		}
	}
	if len(wrong) > 0 {
		return fmt.Errorf("incorrectly verified against: %s", strings.Join(wrong, ", "))
	}
	return nil
}

func TestVerifyInclusionSingleEntry(t *testing.T) {
	data := []byte("data")
	// Root and leaf hash for 1-entry tree are the same.
	hash := hasher.HashLeaf(data)
	// The corresponding inclusion proof is empty.
	proof := [][]byte{}
	emptyHash := []byte{}

	for i, tc := range []struct {
		root    []byte
		leaf    []byte
		wantErr bool
	}{
		{hash, hash, false},
		{hash, emptyHash, true},
		{emptyHash, hash, true},
		{emptyHash, emptyHash, true}, // Wrong hash size.
	} {
		t.Run(fmt.Sprintf("test:%d", i), func(t *testing.T) {
			err := VerifyInclusion(hasher, 0, 1, tc.leaf, proof, tc.root)
			if got, want := err != nil, tc.wantErr; got != want {
				t.Errorf("error: %v, want %v", got, want)
			}
		})
	}
}

func TestVerifyInclusion(t *testing.T) {
	proof := [][]byte{}

	probes := []struct {
		index, size uint64
	}{{0, 0}, {1, 0}, {2, 1}}
	for _, p := range probes {
		t.Run(fmt.Sprintf("probe:%d:%d", p.index, p.size), func(t *testing.T) {
			if err := VerifyInclusion(hasher, p.index, p.size, sha256SomeHash, proof, []byte{}); err == nil {
				t.Error("Incorrectly verified invalid root/leaf")
			}
			if err := VerifyInclusion(hasher, p.index, p.size, []byte{}, proof, sha256EmptyTreeHash); err == nil {
				t.Error("Incorrectly verified invalid root/leaf")
			}
			if err := VerifyInclusion(hasher, p.index, p.size, sha256SomeHash, proof, sha256EmptyTreeHash); err == nil {
				t.Error("Incorrectly verified invalid root/leaf")
			}
		})
	}

	leaves := to.LeafInputs()
	roots := to.RootHashes()
	for i, p := range to.InclusionProofs() {
		t.Run(fmt.Sprintf("proof:%d", i), func(t *testing.T) {
			leafHash := hasher.HashLeaf(leaves[p.Index])
			if err := verifierCheck(p.Index, p.Size, p.Proof, roots[p.Size], leafHash); err != nil {
				t.Errorf("verifierCheck(): %s", err)
			}
		})
	}
}

func TestVerifyInclusionGenerated(t *testing.T) {
	var sizes []uint64
	for s := uint64(1); s <= 70; s++ {
		sizes = append(sizes, s)
	}
	sizes = append(sizes, 1024, 5050)

	leaves := genLeaves(5050)
	for _, size := range sizes {
		root := MTH(hasher, leaves[:size])
		for i := uint64(0); i < size; i += 1 + size/70 {
			t.Run(fmt.Sprintf("size:%d:index:%d", size, i), func(t *testing.T) {
				proof, err := InclusionPath(hasher, leaves[:size], i)
				if err != nil {
					t.Fatalf("InclusionPath: %v", err)
				}
				if err := verifierCheck(i, size, proof, root, leaves[i]); err != nil {
					t.Errorf("verifierCheck(): %v", err)
				}
				// The independent implementation must agree.
				if err := tdproof.VerifyInclusion(hasher, i, size, leaves[i], proof, root); err != nil {
					t.Errorf("reference VerifyInclusion(): %v", err)
				}
			})
		}
	}
}

func TestVerifyConsistency(t *testing.T) {
	root1 := []byte("don't care 1")
	root2 := []byte("don't care 2")
	proof1 := [][]byte{}
	proof2 := [][]byte{sha256EmptyTreeHash}

	tests := []struct {
		size1, size2 uint64
		root1, root2 []byte
		proof        [][]byte
		wantErr      bool
	}{
		{0, 0, root1, root2, proof1, true},
		{1, 1, root1, root2, proof1, true},
		// Sizes that are always consistent.
		{0, 0, root1, root1, proof1, false},
		{0, 1, root1, root2, proof1, false},
		{1, 1, root2, root2, proof1, false},
		// Time travel to the past.
		{1, 0, root1, root2, proof1, true},
		{2, 1, root1, root2, proof1, true},
		// Empty proof.
		{1, 2, root1, root2, proof1, true},
		// Roots don't match.
		{0, 0, sha256EmptyTreeHash, root2, proof1, true},
		{1, 1, sha256EmptyTreeHash, root2, proof1, true},
		// Roots match but the proof is not empty.
		{0, 0, sha256EmptyTreeHash, sha256EmptyTreeHash, proof2, true},
		{0, 1, sha256EmptyTreeHash, sha256EmptyTreeHash, proof2, true},
		{1, 1, sha256EmptyTreeHash, sha256EmptyTreeHash, proof2, true},
	}
	for i, p := range tests {
		t.Run(fmt.Sprintf("test:%d:size:%d-%d", i, p.size1, p.size2), func(t *testing.T) {
			err := verifierConsistencyCheck(p.size1, p.size2, p.root1, p.root2, p.proof)
			if p.wantErr && err == nil {
				t.Errorf("Incorrectly verified")
			} else if !p.wantErr && err != nil {
				t.Errorf("Failed to verify: %v", err)
			}
		})
	}

	roots := to.RootHashes()
	for i, p := range to.ConsistencyProofs() {
		t.Run(fmt.Sprintf("proof:%d", i), func(t *testing.T) {
			// Known answers leave out the old root for power of two sizes, and
			// are accepted in that form.
			err := VerifyConsistency(hasher, p.Size1, p.Size2, p.Proof, roots[p.Size1], roots[p.Size2])
			if err != nil {
				t.Fatalf("Failed to verify known good proof: %s", err)
			}
		})
	}
}

// TestVerifyConsistencyBothForms covers old sizes that are and are not
// powers of two, with and without the old root leading the proof.
func TestVerifyConsistencyBothForms(t *testing.T) {
	const size = 130
	leaves := genLeaves(size)
	roots := make([][]byte, size+1)
	for i := range roots {
		roots[i] = MTH(hasher, leaves[:i])
	}

	for size1 := uint64(0); size1 <= size; size1++ {
		for size2 := size1; size2 <= size; size2 += 1 + size2/20 {
			proof, err := ConsistencyPath(hasher, leaves[:size2], size1)
			if err != nil {
				t.Fatalf("ConsistencyPath(%d, %d): %v", size1, size2, err)
			}
			t.Run(fmt.Sprintf("consistency:%d-%d", size1, size2), func(t *testing.T) {
				if err := verifierConsistencyCheck(size1, size2, roots[size1], roots[size2], proof); err != nil {
					t.Errorf("verifierConsistencyCheck(): %v", err)
				}
				rfcForm := proof
				if size1 != 0 && size1 != size2 && size1&(size1-1) == 0 {
					if !bytes.Equal(proof[0], roots[size1]) {
						t.Fatalf("proof[0]=%x, want old root %x", proof[0], roots[size1])
					}
					rfcForm = proof[1:]
				}
				if err := VerifyConsistency(hasher, size1, size2, rfcForm, roots[size1], roots[size2]); err != nil {
					t.Errorf("VerifyConsistency(RFC 6962 form): %v", err)
				}
				if err := tdproof.VerifyConsistency(hasher, size1, size2, rfcForm, roots[size1], roots[size2]); err != nil {
					t.Errorf("reference VerifyConsistency(): %v", err)
				}
			})
		}
	}
}

func TestRootFromConsistency(t *testing.T) {
	leaves := genLeaves(21)
	root8, root21 := MTH(hasher, leaves[:8]), MTH(hasher, leaves)
	proof, err := ConsistencyPath(hasher, leaves, 8)
	if err != nil {
		t.Fatalf("ConsistencyPath: %v", err)
	}
	got, err := RootFromConsistency(hasher, 8, 21, root8, proof)
	if err != nil {
		t.Fatalf("RootFromConsistency: %v", err)
	}
	if !bytes.Equal(got, root21) {
		t.Errorf("RootFromConsistency()=%x, want %x", got, root21)
	}

	if _, err := RootFromConsistency(hasher, 8, 21, root21, proof); !IsVerificationFailure(err) {
		t.Errorf("RootFromConsistency(wrong root1)=%v, want verification failure", err)
	}
	for _, sizes := range [][2]uint64{{0, 21}, {21, 21}, {22, 21}} {
		if _, err := RootFromConsistency(hasher, sizes[0], sizes[1], root8, proof); err == nil || IsVerificationFailure(err) {
			t.Errorf("RootFromConsistency(%d, %d)=%v, want precondition error", sizes[0], sizes[1], err)
		}
	}
}

func TestIsVerificationFailure(t *testing.T) {
	leaves := genLeaves(10)
	root := MTH(hasher, leaves)
	proof, err := InclusionPath(hasher, leaves, 3)
	if err != nil {
		t.Fatalf("InclusionPath: %v", err)
	}
	for _, tc := range []struct {
		desc string
		err  error
		want bool
	}{
		{desc: "mismatch", err: VerifyInclusion(hasher, 3, 10, leaves[4], proof, root), want: true},
		{desc: "too short", err: VerifyInclusion(hasher, 3, 10, leaves[3], proof[1:], root), want: true},
		{desc: "too long", err: VerifyInclusion(hasher, 3, 10, leaves[3], extend(proof, root), root), want: true},
		{desc: "bad element size", err: VerifyInclusion(hasher, 3, 10, leaves[3], extend(proof[1:], []byte{1}), root), want: true},
		{desc: "out of range", err: VerifyInclusion(hasher, 10, 10, leaves[3], proof, root), want: false},
		{desc: "other", err: errors.New("boom"), want: false},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			if tc.err == nil {
				t.Fatal("got nil error")
			}
			if got := IsVerificationFailure(tc.err); got != tc.want {
				t.Errorf("IsVerificationFailure(%v)=%v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func leafHashesOf(entries [][]byte) [][]byte {
	ret := make([][]byte, len(entries))
	for i, e := range entries {
		ret[i] = hasher.HashLeaf(e)
	}
	return ret
}

func TestVerifyTree(t *testing.T) {
	letters := func(n int) [][]byte {
		ret := make([][]byte, n)
		for i := range ret {
			ret[i] = []byte{byte('A' + i)}
		}
		return ret
	}
	root26, err := base64.StdEncoding.DecodeString(to.EntryRoot26)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}

	type treeCase struct {
		desc    string
		entries [][]byte
		root    []byte
	}
	var tests []treeCase
	for n := 0; n <= 8; n++ {
		tests = append(tests, treeCase{desc: fmt.Sprintf("rfc6962-%d", n), entries: to.LeafInputs()[:n], root: to.RootHashes()[n]})
	}
	for n := 1; n <= 9; n++ {
		e := letters(n)
		tests = append(tests, treeCase{desc: fmt.Sprintf("letters-%d", n), entries: e, root: MTH(hasher, leafHashesOf(e))})
	}
	var messages [][]byte
	for i := 0; i < 10; i++ {
		messages = append(messages, []byte(fmt.Sprintf("emssageawfasd%d", i)))
		e := messages[:i+1:i+1]
		tests = append(tests, treeCase{desc: fmt.Sprintf("messages-%d", i+1), entries: e, root: MTH(hasher, leafHashesOf(e))})
	}
	tests = append(tests, treeCase{desc: "entries-26", entries: to.EntryData(26), root: root26})

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			if err := VerifyTree(hasher, tc.entries, tc.root); err != nil {
				t.Fatalf("VerifyTree: %v", err)
			}
			if len(tc.entries) == 0 {
				return
			}

			// Any change to the entries or the root must be detected.
			for _, bad := range []struct {
				desc    string
				entries [][]byte
				root    []byte
			}{
				{desc: "wrong root", entries: tc.entries, root: sha256SomeHash},
				{desc: "dropped entry", entries: tc.entries[:len(tc.entries)-1], root: tc.root},
				{desc: "extra entry", entries: append(tc.entries[:len(tc.entries):len(tc.entries)], []byte("extra")), root: tc.root},
				{desc: "modified entry", entries: append([][]byte{append([]byte("x"), tc.entries[0]...)}, tc.entries[1:]...), root: tc.root},
			} {
				err := VerifyTree(hasher, bad.entries, bad.root)
				var rme RootMismatchError
				if !errors.As(err, &rme) {
					t.Errorf("%s: VerifyTree()=%v, want RootMismatchError", bad.desc, err)
				}
			}
		})
	}
}

// extend explicitly copies |proof| slice and appends |hashes| to it.
func extend(proof [][]byte, hashes ...[]byte) [][]byte {
	res := make([][]byte, len(proof), len(proof)+len(hashes))
	copy(res, proof)
	return append(res, hashes...)
}

// prepend adds |proof| to the tail of |hashes|.
func prepend(proof [][]byte, hashes ...[]byte) [][]byte {
	return append(hashes, proof...)
}
