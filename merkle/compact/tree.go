// Copyright 2016 Google LLC. All Rights Reserved.
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

// Package compact provides compact Merkle tree data structures and the
// integer arithmetic mapping leaf ranges, node coordinates and stored hash
// indexes onto each other.
package compact

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/google/tilelog/merkle/hashers"
	"k8s.io/klog/v2"
)

// VisitFn is a callback receiving the hash of a newly completed perfect
// subtree. Calls are made in stored hash index order.
type VisitFn func(id NodeID, hash []byte)

// GetNodesFunc is a function prototype which can look up particular nodes
// within a non-compact Merkle tree. Used by the compact Tree to populate
// itself with correct state when starting up with a non-empty tree.
type GetNodesFunc func(ids []NodeID) ([][]byte, error)

// Tree is a compact Merkle tree representation. It uses O(log(size)) nodes to
// represent the current on-disk tree.
type Tree struct {
	hasher hashers.LogHasher
	// The list of "dangling" left-hand nodes, where entry [0] is the leaf.
	// So: nodes[0] is the hash of a subtree of size 1 = 1<<0, if included.
	//     nodes[1] is the hash of a subtree of size 2 = 1<<1, if included.
	//     nodes[2] is the hash of a subtree of size 4 = 1<<2, if included.
	//     ....
	// Nodes are included if the tree size includes that power of two.
	// For example, a tree of size 21 is built from subtrees of sizes
	// 16 + 4 + 1, so nodes[1] == nodes[3] == nil.
	nodes [][]byte
	size  uint64
}

// NewTree creates a new compact Tree with size zero.
func NewTree(hasher hashers.LogHasher) *Tree {
	return &Tree{hasher: hasher}
}

// NewTreeWithState creates a new compact Tree for the passed in size.
//
// This can fail if the nodes required to recreate the tree state cannot be
// fetched or the calculated root hash after population does not match the
// expected value.
//
// getNodesFn will be called with the coordinates of the perfect subtrees along
// the right border of the tree, as returned by TreeNodes. The expectedRoot is
// the known-good tree root of the tree at the specified size, and is used to
// verify the initial state.
func NewTreeWithState(hasher hashers.LogHasher, size uint64, getNodesFn GetNodesFunc, expectedRoot []byte) (*Tree, error) {
	ids := TreeNodes(size)
	hashes, err := getNodesFn(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nodes: %w", err)
	}
	if got, want := len(hashes), len(ids); got != want {
		return nil, fmt.Errorf("got %d hashes, needed %d", got, want)
	}

	t := &Tree{hasher: hasher, size: size}
	if len(ids) > 0 {
		t.nodes = make([][]byte, ids[0].Level+1)
	}
	for i, id := range ids {
		if got, want := len(hashes[i]), hasher.Size(); got != want {
			return nil, fmt.Errorf("node %v: got %d-byte hash, want %d", id, got, want)
		}
		t.nodes[id.Level] = hashes[i]
	}

	if root := t.CurrentRoot(); !bytes.Equal(root, expectedRoot) {
		klog.Warningf("Corrupt state, expected root %x, got %x", expectedRoot, root)
		return nil, fmt.Errorf("root hash mismatch: got %x, expected %x", root, expectedRoot)
	}
	klog.V(1).Infof("Resuming at size %d, with root: %s", size, base64.StdEncoding.EncodeToString(expectedRoot))
	return t, nil
}

// Size returns the current size of the tree.
func (t *Tree) Size() uint64 {
	return t.size
}

// Clone returns a copy of the tree which can be appended to independently.
func (t *Tree) Clone() *Tree {
	return &Tree{
		hasher: t.hasher,
		nodes:  append([][]byte(nil), t.nodes...),
		size:   t.size,
	}
}

// CurrentRoot returns the current root hash.
func (t *Tree) CurrentRoot() []byte {
	var root []byte
	for _, h := range t.nodes {
		switch {
		case h == nil:
		case root == nil:
			root = h
		default:
			root = t.hasher.HashChildren(h, root)
		}
	}
	if root == nil {
		return t.hasher.EmptyRoot()
	}
	return root
}

// AppendLeaf calculates the Merkle leaf hash of the given leaf data and
// appends it to the tree. Returns the leaf hash.
func (t *Tree) AppendLeaf(data []byte, visit VisitFn) ([]byte, error) {
	h := t.hasher.HashLeaf(data)
	if err := t.AppendLeafHash(h, visit); err != nil {
		return nil, err
	}
	return h, nil
}

// AppendLeafHash appends the specified Merkle leaf hash to the tree.
//
// visit, if not nil, is called with the leaf hash and then with the hash of
// every perfect subtree completed by this leaf, from lower to upper levels.
func (t *Tree) AppendLeafHash(leafHash []byte, visit VisitFn) error {
	if got, want := len(leafHash), t.hasher.Size(); got != want {
		return fmt.Errorf("leaf hash is %d bytes, want %d", got, want)
	}
	index := t.size
	if visit != nil {
		visit(NewNodeID(0, index), leafHash)
	}

	hash := leafHash
	level := uint(0)
	// Every set low bit of the old size is a left sibling waiting for us.
	for ; (index>>level)&1 == 1; level++ {
		hash = t.hasher.HashChildren(t.nodes[level], hash)
		t.nodes[level] = nil
		if visit != nil {
			visit(NewNodeID(level+1, index>>(level+1)), hash)
		}
	}
	if level == uint(len(t.nodes)) {
		t.nodes = append(t.nodes, hash)
	} else {
		t.nodes[level] = hash
	}
	t.size++
	return nil
}

// hashes returns the hashes of the TreeNodes(t.Size()) nodes, in that order.
func (t *Tree) hashes() [][]byte {
	ret := make([][]byte, 0, len(t.nodes))
	for i := len(t.nodes) - 1; i >= 0; i-- {
		if t.nodes[i] != nil {
			ret = append(ret, t.nodes[i])
		}
	}
	return ret
}

// String describes the internal state of the compact Tree.
func (t *Tree) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Tree Nodes @ %d root=%x\n", t.size, t.CurrentRoot())
	for level, h := range t.nodes {
		if h != nil {
			fmt.Fprintf(&buf, "%d:  %s\n", level, base64.StdEncoding.EncodeToString(h))
		} else {
			fmt.Fprintf(&buf, "%d:  -\n", level)
		}
	}
	return buf.String()
}
