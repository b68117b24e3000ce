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
	"errors"
	"fmt"

	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/hashers"
)

// ErrMalformedProof is wrapped by errors reporting a proof that cannot be
// valid for the given tree sizes, e.g. because it has the wrong number of
// elements.
var ErrMalformedProof = errors.New("malformed proof")

// RootMismatchError occurs when a proof does not lead to the expected root.
type RootMismatchError struct {
	ExpectedRoot   []byte
	CalculatedRoot []byte
}

func (e RootMismatchError) Error() string {
	return fmt.Sprintf("calculated root:\n%x\n does not match expected root:\n%x", e.CalculatedRoot, e.ExpectedRoot)
}

// IsVerificationFailure reports whether err means that a proof was checked
// and found invalid, as opposed to the check not being possible at all.
func IsVerificationFailure(err error) bool {
	var rme RootMismatchError
	return errors.Is(err, ErrMalformedProof) || errors.As(err, &rme)
}

// VerifyTree verifies that root is the root of the tree made of all the given
// entries, in order. The entries are leaf data, not leaf hashes.
func VerifyTree(h hashers.LogHasher, entries [][]byte, root []byte) error {
	tree := compact.NewTree(h)
	for i, e := range entries {
		if _, err := tree.AppendLeaf(e, nil); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	if calcRoot := tree.CurrentRoot(); !bytes.Equal(calcRoot, root) {
		return RootMismatchError{
			CalculatedRoot: calcRoot,
			ExpectedRoot:   root,
		}
	}
	return nil
}

// VerifyInclusion verifies that leafHash is the hash of the leaf at the given
// index in the tree of the given size with the given root.
func VerifyInclusion(h hashers.LogHasher, index, size uint64, leafHash []byte, proof [][]byte, root []byte) error {
	calcRoot, err := RootFromInclusion(h, index, size, leafHash, proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(calcRoot, root) {
		return RootMismatchError{
			CalculatedRoot: calcRoot,
			ExpectedRoot:   root,
		}
	}
	return nil
}

// RootFromInclusion calculates the root of the tree of the given size implied
// by the inclusion proof of leafHash at the given index.
//
// The proof is walked with fn tracking the node index and sn the index of the
// last node at the current level. A node is a right child, or the last node of
// its level, iff fn is odd or fn == sn.
func RootFromInclusion(h hashers.LogHasher, index, size uint64, leafHash []byte, proof [][]byte) ([]byte, error) {
	if index >= size {
		return nil, fmt.Errorf("index %d out of range for tree size %d", index, size)
	}
	if err := checkSizes(h, leafHash, proof); err != nil {
		return nil, err
	}

	fn, sn := index, size-1
	r := leafHash
	for _, p := range proof {
		if sn == 0 {
			return nil, fmt.Errorf("%w: too many elements (%d) for tree size %d", ErrMalformedProof, len(proof), size)
		}
		if fn&1 == 1 || fn == sn {
			r = h.HashChildren(p, r)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			r = h.HashChildren(r, p)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 {
		return nil, fmt.Errorf("%w: too few elements (%d) for tree size %d", ErrMalformedProof, len(proof), size)
	}
	return r, nil
}

// VerifyConsistency checks that the tree of size2 with root2 is an append-only
// extension of the tree of size1 with root1.
//
// When size1 is a power of two, proofs are accepted both with and without the
// old root as the first element.
func VerifyConsistency(h hashers.LogHasher, size1, size2 uint64, proof [][]byte, root1, root2 []byte) error {
	switch {
	case size2 < size1:
		return fmt.Errorf("size2 (%d) < size1 (%d)", size2, size1)
	case size1 == size2:
		if len(proof) > 0 {
			return fmt.Errorf("%w: size1=size2, but proof is not empty", ErrMalformedProof)
		}
		if !bytes.Equal(root1, root2) {
			return RootMismatchError{CalculatedRoot: root1, ExpectedRoot: root2}
		}
		return nil
	case size1 == 0:
		if len(proof) > 0 {
			return fmt.Errorf("%w: expected empty proof, but got %d components", ErrMalformedProof, len(proof))
		}
		return nil
	case len(proof) == 0:
		return fmt.Errorf("%w: empty proof", ErrMalformedProof)
	}

	calcRoot, err := RootFromConsistency(h, size1, size2, root1, proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(calcRoot, root2) {
		return RootMismatchError{
			CalculatedRoot: calcRoot,
			ExpectedRoot:   root2,
		}
	}
	return nil
}

// RootFromConsistency calculates the root of the tree of size2 implied by the
// consistency proof from the tree of size1 with root1. It fails if the proof
// does not also reproduce root1.
func RootFromConsistency(h hashers.LogHasher, size1, size2 uint64, root1 []byte, proof [][]byte) ([]byte, error) {
	if size1 == 0 || size1 >= size2 {
		return nil, fmt.Errorf("no consistency proof between tree sizes %d and %d", size1, size2)
	}
	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: empty proof", ErrMalformedProof)
	}
	if err := checkSizes(h, root1, proof); err != nil {
		return nil, err
	}
	if size1&(size1-1) == 0 && !bytes.Equal(proof[0], root1) {
		// Proof in the RFC 6962 form which leaves out the old root.
		proof = append([][]byte{root1}, proof...)
	}

	fn, sn := size1-1, size2-1
	for fn&1 == 1 {
		fn >>= 1
		sn >>= 1
	}

	fr, sr := proof[0], proof[0]
	for _, c := range proof[1:] {
		if sn == 0 {
			return nil, fmt.Errorf("%w: too many elements (%d) for tree sizes %d and %d", ErrMalformedProof, len(proof), size1, size2)
		}
		if fn&1 == 1 || fn == sn {
			fr = h.HashChildren(c, fr)
			sr = h.HashChildren(c, sr)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			sr = h.HashChildren(sr, c)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 {
		return nil, fmt.Errorf("%w: too few elements (%d) for tree sizes %d and %d", ErrMalformedProof, len(proof), size1, size2)
	}
	if !bytes.Equal(fr, root1) {
		return nil, RootMismatchError{CalculatedRoot: fr, ExpectedRoot: root1}
	}
	return sr, nil
}

func checkSizes(h hashers.LogHasher, hash []byte, proof [][]byte) error {
	if got, want := len(hash), h.Size(); got != want {
		return fmt.Errorf("%w: hash is %d bytes, want %d", ErrMalformedProof, got, want)
	}
	for i, p := range proof {
		if got, want := len(p), h.Size(); got != want {
			return fmt.Errorf("%w: proof[%d] is %d bytes, want %d", ErrMalformedProof, i, got, want)
		}
	}
	return nil
}
