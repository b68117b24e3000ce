// Copyright 2026 Google LLC. All Rights Reserved.
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

package compact

import "math/bits"

// Stored hash indexes number every hash of perfect subtrees in the order in
// which an incremental builder computes them: appending leaf n stores the
// leaf hash, followed by the hashes of all subtrees that leaf n completes,
// from lower to upper levels. For example, the first eight stored hashes are
// (level, index) = (0,0) (0,1) (1,0) (0,2) (0,3) (1,1) (2,0) (0,4).
//
// The numbering and the functions below follow golang.org/x/mod/sumdb/tlog
// (Copyright 2019 The Go Authors, BSD-style license), which fixes the hash to
// a [32]byte SHA-256 value and so cannot be used with a LogHasher.

// StoredHashIndex maps the node at the given level and index to its position
// in the stored hash sequence.
func StoredHashIndex(level uint, index uint64) uint64 {
	// Node (L, n) is stored L slots after its last leaf, ((n+1)<<L)-1, which
	// completes it. Find that leaf first.
	for l := level; l > 0; l-- {
		index = 2*index + 1
	}

	// Before leaf m come the m leaves and the m/2 + m/4 + ... subtrees they
	// complete.
	var i uint64
	for ; index > 0; index >>= 1 {
		i += index
	}

	return i + uint64(level)
}

// StoredIndex returns the stored hash index of the node.
func (id NodeID) StoredIndex() uint64 {
	return StoredHashIndex(id.Level, id.Index)
}

// SplitStoredHashIndex is the inverse of StoredHashIndex: it returns the
// level and index of the node stored at the given position.
func SplitStoredHashIndex(i uint64) (uint, uint64) {
	// Find the last leaf n stored at or before i. Leaf n is stored below 2n,
	// so n lies in [i/2, i/2+log2(i)].
	n := i / 2
	indexN := StoredHashIndex(0, n)
	for {
		// Leaf n+1 is stored after leaf n and the subtrees leaf n completes.
		x := indexN + 1 + uint64(bits.TrailingZeros64(n+1))
		if x > i {
			break
		}
		n++
		indexN = x
	}
	// i is leaf n or one of the subtrees it completes: (1, n/2), (2, n/4), ...
	level := uint(i - indexN)
	return level, n >> level
}

// NodeIDFromStoredIndex returns the ID of the node at the given stored hash
// index.
func NodeIDFromStoredIndex(i uint64) NodeID {
	return NewNodeID(SplitStoredHashIndex(i))
}

// StoredHashCount returns the number of stored hashes that exist for a tree
// of the given size.
func StoredHashCount(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	// The last leaf is followed by the hashes of all the subtrees it completes.
	numHash := StoredHashIndex(0, size-1) + 1
	for i := size - 1; i&1 != 0; i >>= 1 {
		numHash++
	}
	return numHash
}
