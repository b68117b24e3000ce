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

// Package testonly holds test helpers shared by the storage backends.
package testonly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/rfc6962"
	"github.com/google/tilelog/merkle/tile"
	"github.com/google/tilelog/storage"
	"golang.org/x/sync/errgroup"
)

// BackendTester runs the checks every storage.Backend implementation must
// pass.
type BackendTester struct {
	// NewBackend returns a Backend with no data in it.
	NewBackend func(t *testing.T) storage.Backend
}

// RunAllTests runs all the tests against the Backend.
func (tester *BackendTester) RunAllTests(t *testing.T) {
	t.Run("TestGetMissing", tester.TestGetMissing)
	t.Run("TestPutGet", tester.TestPutGet)
	t.Run("TestOverwrite", tester.TestOverwrite)
	t.Run("TestDataNotAliased", tester.TestDataNotAliased)
	t.Run("TestConcurrentAccess", tester.TestConcurrentAccess)
	t.Run("TestTileStore", tester.TestTileStore)
}

// TestGetMissing checks that absent keys are reported with
// storage.ErrTileNotFound.
func (tester *BackendTester) TestGetMissing(t *testing.T) {
	b := tester.NewBackend(t)
	for _, key := range []string{"tile/2/0/0.1", "checkpoint"} {
		if data, err := b.Get(context.Background(), key); !errors.Is(err, storage.ErrTileNotFound) {
			t.Errorf("Get(%q)=%x, %v, want ErrTileNotFound", key, data, err)
		}
	}
}

// TestPutGet checks that stored data is returned unchanged.
func (tester *BackendTester) TestPutGet(t *testing.T) {
	ctx := context.Background()
	b := tester.NewBackend(t)
	want := map[string][]byte{
		"tile/2/0/0.1":   bytes.Repeat([]byte{0xa1}, 32),
		"tile/2/0/0.2":   bytes.Repeat([]byte{0xa2}, 64),
		"tile/8/1/300.7": bytes.Repeat([]byte{0x00, 0xff}, 7*16),
		"checkpoint":     []byte("example.com/log\n7\nAAAA\n"),
	}
	for key, data := range want {
		if err := b.Put(ctx, key, data); err != nil {
			t.Fatalf("Put(%q): %v", key, err)
		}
	}
	for key, data := range want {
		got, err := b.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("Get(%q)=%x, want %x", key, got, data)
		}
	}
}

// TestOverwrite checks that Put replaces existing data.
func (tester *BackendTester) TestOverwrite(t *testing.T) {
	ctx := context.Background()
	b := tester.NewBackend(t)
	for _, data := range []string{"first version", "second", "third and longest version"} {
		if err := b.Put(ctx, "checkpoint", []byte(data)); err != nil {
			t.Fatalf("Put(%q): %v", data, err)
		}
		got, err := b.Get(ctx, "checkpoint")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != data {
			t.Errorf("Get()=%q, want %q", got, data)
		}
	}
}

// TestDataNotAliased checks that the backend keeps its own copy of data.
func (tester *BackendTester) TestDataNotAliased(t *testing.T) {
	ctx := context.Background()
	b := tester.NewBackend(t)
	data := []byte{1, 2, 3, 4}
	if err := b.Put(ctx, "tile/2/0/0.1", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data[0] = 9
	got, err := b.Get(ctx, "tile/2/0/0.1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got[1] = 9
	again, err := b.Get(ctx, "tile/2/0/0.1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := []byte{1, 2, 3, 4}; !bytes.Equal(again, want) {
		t.Errorf("Get()=%x, want %x", again, want)
	}
}

// TestConcurrentAccess puts and gets distinct keys from many goroutines.
func (tester *BackendTester) TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	b := tester.NewBackend(t)
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			key := fmt.Sprintf("tile/4/0/%d.16", i)
			data := bytes.Repeat([]byte{byte(i)}, 16*32)
			if err := b.Put(ctx, key, data); err != nil {
				return err
			}
			got, err := b.Get(ctx, key)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, data) {
				return fmt.Errorf("Get(%q) returned other data", key)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}

// TestTileStore appends leaves through a TileStore over the backend, and
// reads back every stored hash through an authenticating tile.HashReader.
func (tester *BackendTester) TestTileStore(t *testing.T) {
	ctx := context.Background()
	hasher := rfc6962.DefaultHasher
	s, err := storage.NewTileStore(tester.NewBackend(t), 2, hasher.Size(), storage.TileStoreOptions{})
	if err != nil {
		t.Fatalf("NewTileStore: %v", err)
	}

	tree := compact.NewTree(hasher)
	var want [][]byte
	var written uint64
	for i := 0; i < 21; i++ {
		var updateErr error
		visit := func(id compact.NodeID, hash []byte) {
			want = append(want, hash)
			if _, err := s.UpdateTiles(ctx, id.StoredIndex(), hash); err != nil && updateErr == nil {
				updateErr = err
			}
		}
		if _, err := tree.AppendLeaf([]byte(fmt.Sprintf("leaf %d", i)), visit); err != nil {
			t.Fatalf("AppendLeaf: %v", err)
		}
		if updateErr != nil {
			t.Fatalf("UpdateTiles: %v", updateErr)
		}
		if i%5 == 4 || i == 20 {
			if err := s.WriteTiles(ctx, tile.NewTiles(2, written, tree.Size())); err != nil {
				t.Fatalf("WriteTiles: %v", err)
			}
			written = tree.Size()
		}
	}

	r := tile.NewHashReader(tree.Size(), tree.CurrentRoot(), s, hasher)
	indexes := make([]uint64, len(want))
	for i := range indexes {
		indexes[i] = uint64(i)
	}
	got, err := r.ReadHashes(ctx, indexes)
	if err != nil {
		t.Fatalf("ReadHashes: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadHashes diff (-want +got):\n%s", diff)
	}
}
