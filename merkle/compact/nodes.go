// Copyright 2019 Google LLC. All Rights Reserved.
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

import (
	"fmt"
	"math/bits"
)

// NodeID identifies a node of a Merkle tree.
//
// The level is the longest distance from the node down to the leaves, and
// index is its horizontal position in this level ordered from left to right.
// Consider an example below where nodes are labeled as [<level> <index>].
//
//	          [2 0]
//	         /     \
//	      [1 0]     \
//	      /   \      \
//	  [0 0]  [0 1]  [0 2]
type NodeID struct {
	Level uint
	Index uint64
}

// NewNodeID returns a NodeID with the passed in node coordinates.
func NewNodeID(level uint, index uint64) NodeID {
	return NodeID{Level: level, Index: index}
}

// Parent returns the ID of the parent node.
func (id NodeID) Parent() NodeID {
	return NewNodeID(id.Level+1, id.Index>>1)
}

// Sibling returns the ID of the sibling node.
func (id NodeID) Sibling() NodeID {
	return NewNodeID(id.Level, id.Index^1)
}

// Coverage returns the [begin, end) range of leaves covered by the node.
func (id NodeID) Coverage() (uint64, uint64) {
	return id.Index << id.Level, (id.Index + 1) << id.Level
}

func (id NodeID) String() string {
	return fmt.Sprintf("[%d %d]", id.Level, id.Index)
}

// RangeNodes returns node IDs that comprise the [begin, end) compact range.
// Nodes of the left border are ordered from lower to upper levels, followed
// by nodes of the right border ordered from upper to lower levels, so the
// result is sorted by the leaves they cover.
func RangeNodes(begin, end uint64) []NodeID {
	left, right := Decompose(begin, end)
	ids := make([]NodeID, 0, bits.OnesCount64(left)+bits.OnesCount64(right))

	pos := begin
	// Iterate over perfect subtrees along the left border of the range, ordered
	// from lower to upper levels.
	for bit := uint64(0); left != 0; pos, left = pos+bit, left^bit {
		level := uint(bits.TrailingZeros64(left))
		bit = uint64(1) << level
		ids = append(ids, NewNodeID(level, pos>>level))
	}

	// Iterate over perfect subtrees along the right border of the range, ordered
	// from upper to lower levels.
	for bit := uint64(0); right != 0; pos, right = pos+bit, right^bit {
		level := uint(bits.Len64(right)) - 1
		bit = uint64(1) << level
		ids = append(ids, NewNodeID(level, pos>>level))
	}

	return ids
}

// TreeNodes returns the node IDs of the [0, size) compact range, i.e. the
// perfect subtrees along the right border of a tree of the given size.
func TreeNodes(size uint64) []NodeID {
	return RangeNodes(0, size)
}

// RangeSize returns the number of nodes in the [begin, end) compact range.
func RangeSize(begin, end uint64) int {
	left, right := Decompose(begin, end)
	return bits.OnesCount64(left) + bits.OnesCount64(right)
}

// Decompose splits the [begin, end) range into a minimal number of sub-ranges,
// each of which is of the form [m * 2^k, (m+1) * 2^k), i.e. corresponds to a
// single perfect subtree.
//
// Returns two bit masks which denote the sizes of the left and right parts of
// the decomposition: the left part is the perfect subtrees that hang to the
// right of the path to leaf begin-1, the right part hangs to the left of the
// path to leaf end.
func Decompose(begin, end uint64) (uint64, uint64) {
	// Special case, as the code below works only if begin != 0, or end < 2^63.
	if begin == 0 {
		return 0, end
	}
	xbegin := begin - 1
	// Find where paths to leaves #begin-1 and #end diverge, and mask the upper
	// bits away, as only the nodes strictly below this point are in the range.
	d := bits.Len64(xbegin^end) - 1
	mask := uint64(1)<<uint(d) - 1
	// The left part of the compact range consists of all nodes strictly below
	// and to the right from the path to leaf #begin-1, corresponding to zero
	// bits in the masked part of begin-1. Likewise, the right part consists of
	// nodes below and to the left from the path to leaf #end, corresponding to
	// ones in the masked part of end.
	return ^xbegin & mask, end & mask
}

// LargestPowerOfTwoBelow returns the largest power of two strictly less than
// n, which is where RFC 9162 splits a tree of size n. Returns 0 if n < 2.
func LargestPowerOfTwoBelow(n uint64) uint64 {
	if n < 2 {
		return 0
	}
	return uint64(1) << uint(bits.Len64(n-1)-1)
}
