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

package proof

import (
	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/hashers"
)

// MTH returns the Merkle tree hash of the given ordered list of leaf hashes.
func MTH(h hashers.LogHasher, leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return h.EmptyRoot()
	}
	return mth(h, leaves, 0, uint64(len(leaves)))
}

// mth is MTH(D[begin:end]) for a non-empty range.
func mth(h hashers.LogHasher, leaves [][]byte, begin, end uint64) []byte {
	if end-begin == 1 {
		return leaves[begin]
	}
	mid := begin + compact.LargestPowerOfTwoBelow(end-begin)
	return h.HashChildren(mth(h, leaves, begin, mid), mth(h, leaves, mid, end))
}

// InclusionPath returns the audit path of the leaf at the given index in the
// tree made of all the given leaf hashes.
func InclusionPath(h hashers.LogHasher, leaves [][]byte, index uint64) ([][]byte, error) {
	ranges, err := inclusionRanges(index, uint64(len(leaves)))
	if err != nil {
		return nil, err
	}
	return evaluate(h, leaves, ranges), nil
}

// ConsistencyPath returns the proof that the tree made of all the given leaf
// hashes is an append-only extension of its prefix of size1 leaves.
func ConsistencyPath(h hashers.LogHasher, leaves [][]byte, size1 uint64) ([][]byte, error) {
	ranges, err := consistencyRanges(size1, uint64(len(leaves)))
	if err != nil {
		return nil, err
	}
	return evaluate(h, leaves, ranges), nil
}

func evaluate(h hashers.LogHasher, leaves [][]byte, ranges []subtree) [][]byte {
	ret := make([][]byte, len(ranges))
	for i, s := range ranges {
		ret[i] = mth(h, leaves, s.begin, s.end)
	}
	return ret
}
