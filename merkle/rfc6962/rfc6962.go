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

// Package rfc6962 implements the tree hasher of RFC 6962 and RFC 9162,
// parameterized by an injected one-way hash function.
package rfc6962

import (
	"crypto"
	_ "crypto/sha256" // Register SHA256.
	"fmt"
)

// Domain separation prefixes
const (
	RFC6962LeafHashPrefix = 0
	RFC6962NodeHashPrefix = 1
)

// DefaultHasher is a SHA256 based LogHasher.
var DefaultHasher = New(crypto.SHA256)

// HashFunc is a one-way function producing a digest of a fixed size.
type HashFunc func(data []byte) []byte

// Hasher implements the leaf and interior node hashing of RFC 6962.
type Hasher struct {
	name string
	size int
	fn   HashFunc
}

// New creates a new Hasher on the passed in hash function, which must be
// available in the binary.
func New(h crypto.Hash) *Hasher {
	return &Hasher{
		name: h.String(),
		size: h.Size(),
		fn: func(data []byte) []byte {
			d := h.New()
			d.Write(data)
			return d.Sum(nil)
		},
	}
}

// NewFromFunc creates a Hasher from an arbitrary one-way function whose
// output is always size bytes long.
func NewFromFunc(name string, size int, fn HashFunc) (*Hasher, error) {
	if size <= 0 {
		return nil, fmt.Errorf("hasher %q: invalid size %d", name, size)
	}
	if got := len(fn(nil)); got != size {
		return nil, fmt.Errorf("hasher %q: function output is %d bytes, want %d", name, got, size)
	}
	return &Hasher{name: name, size: size, fn: fn}, nil
}

// EmptyRoot returns a special case for an empty tree.
func (t *Hasher) EmptyRoot() []byte {
	return t.fn(nil)
}

// HashLeaf returns the Merkle tree leaf hash of the data passed in through leaf.
// The data in leaf is prefixed by the LeafHashPrefix.
func (t *Hasher) HashLeaf(leaf []byte) []byte {
	buf := make([]byte, 0, 1+len(leaf))
	buf = append(buf, RFC6962LeafHashPrefix)
	buf = append(buf, leaf...)
	return t.fn(buf)
}

// HashChildren returns the inner Merkle tree node hash of the two child nodes l and r.
// The hashed structure is NodeHashPrefix||l||r.
func (t *Hasher) HashChildren(l, r []byte) []byte {
	buf := make([]byte, 0, 1+len(l)+len(r))
	buf = append(buf, RFC6962NodeHashPrefix)
	buf = append(buf, l...)
	buf = append(buf, r...)
	return t.fn(buf)
}

// Size returns the number of bytes in output hashes.
func (t *Hasher) Size() int {
	return t.size
}

// String returns the name of the underlying hash function.
func (t *Hasher) String() string {
	return t.name
}
