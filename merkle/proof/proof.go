// Copyright 2020 Google LLC. All Rights Reserved.
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

// Package proof contains the Merkle tree hash, inclusion proof and
// consistency proof algorithms of RFC 9162, both for construction and for
// verification.
//
// Proofs are built by the recursions MTH, PATH and SUBPROOF over [begin, end)
// leaf bounds. Each recursion produces the list of subtrees whose hashes form
// the proof, which is then evaluated either over a fully materialized list of
// leaf hashes, or over stored node hashes fetched in one batch from a
// HashReader.
package proof

import (
	"context"
	"fmt"

	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/hashers"
	"k8s.io/klog/v2"
)

// HashReader returns the hashes of the nodes with the given stored hash
// indexes, one per index and in the same order.
type HashReader interface {
	ReadHashes(ctx context.Context, indexes []uint64) ([][]byte, error)
}

// HashReaderFunc adapts a function to the HashReader interface.
type HashReaderFunc func(ctx context.Context, indexes []uint64) ([][]byte, error)

// ReadHashes calls f(ctx, indexes).
func (f HashReaderFunc) ReadHashes(ctx context.Context, indexes []uint64) ([][]byte, error) {
	return f(ctx, indexes)
}

// subtree is the [begin, end) range of leaves whose Merkle tree hash is one
// element of a proof.
type subtree struct {
	begin, end uint64
}

// pathRanges is PATH(m, D[begin:end]) of RFC 9162, returning the subtrees
// whose hashes make up the audit path of leaf m, from the leaf upwards.
func pathRanges(m, begin, end uint64) []subtree {
	if end-begin <= 1 {
		return nil
	}
	mid := begin + compact.LargestPowerOfTwoBelow(end-begin)
	if m < mid {
		return append(pathRanges(m, begin, mid), subtree{mid, end})
	}
	return append(pathRanges(m, mid, end), subtree{begin, mid})
}

// subproofRanges is SUBPROOF(m, D[begin:end]) of RFC 9162, where m is the
// size of the old tree. When the recursion reaches a subtree that ends exactly
// at m, that subtree is always part of the proof, including the case where it
// is the whole old tree.
func subproofRanges(m, begin, end uint64) []subtree {
	if m == end {
		return []subtree{{begin, end}}
	}
	mid := begin + compact.LargestPowerOfTwoBelow(end-begin)
	if m <= mid {
		return append(subproofRanges(m, begin, mid), subtree{mid, end})
	}
	return append(subproofRanges(m, mid, end), subtree{begin, mid})
}

func inclusionRanges(index, size uint64) ([]subtree, error) {
	if index >= size {
		return nil, fmt.Errorf("index %d out of range for tree size %d", index, size)
	}
	return pathRanges(index, 0, size), nil
}

func consistencyRanges(size1, size2 uint64) ([]subtree, error) {
	if size1 > size2 {
		return nil, fmt.Errorf("tree size %d > %d", size1, size2)
	}
	if size1 == 0 || size1 == size2 {
		return nil, nil
	}
	return subproofRanges(size1, 0, size2), nil
}

// RootHash returns the Merkle tree hash of the tree of the given size,
// computed from stored hashes read through r.
func RootHash(ctx context.Context, h hashers.LogHasher, r HashReader, size uint64) ([]byte, error) {
	if size == 0 {
		return h.EmptyRoot(), nil
	}
	hashes, err := fetch(ctx, h, r, []subtree{{0, size}})
	if err != nil {
		return nil, err
	}
	return hashes[0], nil
}

// Inclusion returns the audit path proving that the leaf at the given index is
// included in the tree of the given size, computed from stored hashes read
// through r.
func Inclusion(ctx context.Context, h hashers.LogHasher, r HashReader, index, size uint64) ([][]byte, error) {
	ranges, err := inclusionRanges(index, size)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("Inclusion(%d, %d): subtrees %v", index, size, ranges)
	return fetch(ctx, h, r, ranges)
}

// Consistency returns the proof that the tree of size2 is an append-only
// extension of the tree of size1, computed from stored hashes read through r.
// The proof is empty if size1 is 0 or equal to size2.
func Consistency(ctx context.Context, h hashers.LogHasher, r HashReader, size1, size2 uint64) ([][]byte, error) {
	ranges, err := consistencyRanges(size1, size2)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("Consistency(%d, %d): subtrees %v", size1, size2, ranges)
	return fetch(ctx, h, r, ranges)
}

// fetch reads all the perfect subtree hashes needed to compute the hashes of
// the given subtrees in one batch, and returns the subtree hashes.
func fetch(ctx context.Context, h hashers.LogHasher, r HashReader, ranges []subtree) ([][]byte, error) {
	ret := make([][]byte, len(ranges))
	if len(ranges) == 0 {
		return ret, nil
	}
	nodes := make([][]compact.NodeID, len(ranges))
	var indexes []uint64
	for i, s := range ranges {
		nodes[i] = compact.RangeNodes(s.begin, s.end)
		for _, id := range nodes[i] {
			indexes = append(indexes, id.StoredIndex())
		}
	}
	hashes, err := r.ReadHashes(ctx, indexes)
	if err != nil {
		return nil, err
	}
	if got, want := len(hashes), len(indexes); got != want {
		return nil, fmt.Errorf("got %d hashes, needed %d", got, want)
	}
	for i := range ranges {
		n := len(nodes[i])
		ret[i], hashes = foldRight(h, hashes[:n]), hashes[n:]
	}
	return ret, nil
}

// foldRight combines the hashes of consecutive perfect subtrees of decreasing
// size into the Merkle tree hash of the range they cover. Since RFC 9162 trees
// put the largest power of two on the left, the result is
// H(h[0], H(h[1], ... H(h[n-2], h[n-1]))).
func foldRight(h hashers.LogHasher, hashes [][]byte) []byte {
	hash := hashes[len(hashes)-1]
	for i := len(hashes) - 2; i >= 0; i-- {
		hash = h.HashChildren(hashes[i], hash)
	}
	return hash
}

func (s subtree) String() string {
	return fmt.Sprintf("[%d, %d)", s.begin, s.end)
}
