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

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/google/tilelog/storage"
	"k8s.io/klog/v2"
)

const degree = 8

// kv is a simple key->value type which implements btree's Item interface.
type kv struct {
	k string
	v []byte
}

// Less than by k's string key
func (a *kv) Less(b btree.Item) bool {
	return strings.Compare(a.k, b.(*kv).k) < 0
}

// Backend is a storage.Backend holding its data in an in-memory BTree.
type Backend struct {
	mu    sync.RWMutex
	store *btree.BTree
}

var _ storage.Backend = &Backend{}

// NewBackend returns an empty Backend.
func NewBackend() *Backend {
	return &Backend{store: btree.New(degree)}
}

// Get returns a copy of the data stored under key.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.store.Get(&kv{k: key})
	if i == nil {
		return nil, fmt.Errorf("%w: %q", storage.ErrTileNotFound, key)
	}
	return append([]byte(nil), i.(*kv).v...), nil
}

// Put stores a copy of data under key.
func (b *Backend) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.ReplaceOrInsert(&kv{k: key, v: append([]byte(nil), data...)})
	return nil
}

// Keys returns the stored keys that start with prefix, in order.
func (b *Backend) Keys(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	b.store.AscendGreaterOrEqual(&kv{k: prefix}, func(i btree.Item) bool {
		k := i.(*kv).k
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		keys = append(keys, k)
		return true
	})
	return keys
}

// Dump logs the stored keys and data sizes, in order.
func (b *Backend) Dump() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.store.Ascend(func(i btree.Item) bool {
		e := i.(*kv)
		klog.Infof("%s: %d bytes", e.k, len(e.v))
		return true
	})
}
