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

// Package hashers defines the hasher interface used by log Merkle trees, and
// a registry of named hash strategies.
package hashers

import (
	"fmt"
	"sort"
	"sync"
)

// LogHasher provides the hash functions needed to compute dense merkle trees.
type LogHasher interface {
	// EmptyRoot supports returning a special case for the root of an empty tree.
	EmptyRoot() []byte
	// HashLeaf computes the hash of a leaf that exists.
	HashLeaf(leaf []byte) []byte
	// HashChildren computes interior nodes.
	HashChildren(l, r []byte) []byte
	// Size is the number of bytes in the underlying hash function.
	Size() int
}

// HashStrategy names a LogHasher construction.
type HashStrategy string

// NewHasherFunc creates a LogHasher.
type NewHasherFunc func() LogHasher

var (
	mu         sync.RWMutex
	logHashers = make(map[HashStrategy]NewHasherFunc)
)

// RegisterLogHasher registers a hasher for use.
func RegisterLogHasher(h HashStrategy, f NewHasherFunc) {
	if h == "" {
		panic("RegisterLogHasher() of unnamed hasher")
	}
	mu.Lock()
	defer mu.Unlock()
	if logHashers[h] != nil {
		panic(fmt.Sprintf("%v already registered as a LogHasher", h))
	}
	logHashers[h] = f
}

// NewLogHasher returns a LogHasher for the named strategy.
func NewLogHasher(h HashStrategy) (LogHasher, error) {
	mu.RLock()
	f := logHashers[h]
	mu.RUnlock()
	if f != nil {
		return f(), nil
	}
	return nil, fmt.Errorf("LogHasher(%s) is an unknown hasher", h)
}

// LogHashers returns the names of all registered strategies, sorted.
func LogHashers() []HashStrategy {
	mu.RLock()
	defer mu.RUnlock()
	r := make([]HashStrategy, 0, len(logHashers))
	for h := range logHashers {
		r = append(r, h)
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}
