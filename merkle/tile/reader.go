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

package tile

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/hashers"
	"github.com/google/tilelog/merkle/proof"
	"k8s.io/klog/v2"
)

// Reader is the storage that tiles are fetched from. All tiles passed to and
// from a Reader have the same height.
type Reader interface {
	// Height returns the height of the tiles.
	Height() int

	// ReadTiles returns the data for each of the given tiles, in order. The
	// data is not trusted by the caller.
	ReadTiles(ctx context.Context, tiles []Tile) ([][]byte, error)

	// SaveTiles is called with tiles that have been read and authenticated,
	// so that an implementation can cache them. It may be a no-op.
	SaveTiles(ctx context.Context, tiles []Tile, data [][]byte)
}

// HashReader reads stored hashes of the tree with a known size and root,
// fetching them in tiles from a Reader. Every returned hash is authenticated
// against the root.
type HashReader struct {
	size   uint64
	root   []byte
	tr     Reader
	hasher hashers.LogHasher
}

var _ proof.HashReader = &HashReader{}

// NewHashReader returns a HashReader for the tree with the given size and
// root.
func NewHashReader(size uint64, root []byte, tr Reader, hasher hashers.LogHasher) *HashReader {
	return &HashReader{size: size, root: root, tr: tr, hasher: hasher}
}

// ReadHashes returns the stored hashes with the given indexes, in order.
//
// All the tiles needed are fetched in a single ReadTiles call. The tiles
// covering the tree root are checked against the trusted root first, then
// every other tile against its already checked parent. Tiles are handed to
// SaveTiles, and hashes returned, only once all of them have passed. A
// failed check returns an error wrapping ErrInconsistentTile.
//
// The plan follows TileHashReader in golang.org/x/mod/sumdb/tlog (Copyright
// 2019 The Go Authors, BSD-style license). Unlike it, every tile covering the
// root is authenticated, not only the one holding the last root hash.
func (r *HashReader) ReadHashes(ctx context.Context, indexes []uint64) ([][]byte, error) {
	if len(indexes) == 0 {
		return [][]byte{}, nil
	}
	h := r.tr.Height()
	hashSize := r.hasher.Size()

	tileOrder := make(map[Tile]int) // tileOrder[tiles[i]] == i
	var tiles []Tile

	// Plan to fetch the tiles needed to recompute the root. If it matches,
	// those tiles are authenticated.
	stx := compact.TreeNodes(r.size)
	stxIndexes := make([]uint64, len(stx))
	stxTileOrder := make([]int, len(stx))
	for i, id := range stx {
		stxIndexes[i] = id.StoredIndex()
		t, _, _ := TileForIndex(h, stxIndexes[i], hashSize)
		t = TileParent(t, 0, r.size)
		if j, ok := tileOrder[t]; ok {
			stxTileOrder[i] = j
			continue
		}
		stxTileOrder[i] = len(tiles)
		tileOrder[t] = len(tiles)
		tiles = append(tiles, t)
	}
	rootTiles := len(tiles)

	// Plan to fetch the tiles containing the indexes, along with any parent
	// tiles needed to authenticate them.
	limit := compact.StoredHashIndex(0, r.size)
	indexTileOrder := make([]int, len(indexes))
	for i, x := range indexes {
		if x >= limit {
			return nil, fmt.Errorf("stored hash %d not in tree of size %d", x, r.size)
		}
		t, _, _ := TileForIndex(h, x, hashSize)

		// Walk up parent tiles until reaching one that is already planned.
		k := 0
		for ; ; k++ {
			p := TileParent(t, k, r.size)
			if j, ok := tileOrder[p]; ok {
				if k == 0 {
					indexTileOrder[i] = j
				}
				break
			}
		}

		// Walk back down, recording child tiles after their parents.
		for k--; k >= 0; k-- {
			p := TileParent(t, k, r.size)
			if !p.Full() {
				// Only full tiles have parents.
				return nil, fmt.Errorf("tile %s for stored hash %d has a parent but is not full", p, x)
			}
			tileOrder[p] = len(tiles)
			if k == 0 {
				indexTileOrder[i] = len(tiles)
			}
			tiles = append(tiles, p)
		}
	}

	klog.V(2).Infof("Reading %d tiles for %d hashes at tree size %d", len(tiles), len(indexes), r.size)
	data, err := r.tr.ReadTiles(ctx, tiles)
	if err != nil {
		return nil, err
	}
	if len(data) != len(tiles) {
		return nil, fmt.Errorf("ReadTiles returned %d tiles, want %d", len(data), len(tiles))
	}
	for i, t := range tiles {
		if got, want := len(data[i]), t.W*hashSize; got != want {
			return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrInconsistentTile, t, got, want)
		}
	}

	// Authenticate the tiles covering the root.
	last := len(stx) - 1
	th, err := HashFromTile(r.hasher, tiles[stxTileOrder[last]], data[stxTileOrder[last]], stxIndexes[last])
	if err != nil {
		return nil, err
	}
	for i := last - 1; i >= 0; i-- {
		hash, err := HashFromTile(r.hasher, tiles[stxTileOrder[i]], data[stxTileOrder[i]], stxIndexes[i])
		if err != nil {
			return nil, err
		}
		th = r.hasher.HashChildren(hash, th)
	}
	if !bytes.Equal(th, r.root) {
		klog.Warningf("Tiles for tree size %d hash to %x, want root %x", r.size, th, r.root)
		return nil, fmt.Errorf("%w: tree size %d", ErrInconsistentTile, r.size)
	}

	// Authenticate the remaining tiles against their parents, which come
	// earlier in the list.
	for i := rootTiles; i < len(tiles); i++ {
		t := tiles[i]
		p := TileParent(t, 1, r.size)
		j, ok := tileOrder[p]
		if !ok || j >= i {
			return nil, fmt.Errorf("lost parent of %s at tree size %d", t, r.size)
		}
		want, err := HashFromTile(r.hasher, p, data[j], compact.StoredHashIndex(uint(p.L*p.H), t.N))
		if err != nil {
			return nil, fmt.Errorf("lost hash of %s in %s: %v", t, p, err)
		}
		got, err := TileHash(r.hasher, data[i])
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(got, want) {
			klog.Warningf("Tile %s hashes to %x, parent %s has %x", t, got, p, want)
			return nil, fmt.Errorf("%w: %s", ErrInconsistentTile, t)
		}
	}

	r.tr.SaveTiles(ctx, tiles, data)

	hashes := make([][]byte, len(indexes))
	for i, x := range indexes {
		j := indexTileOrder[i]
		hash, err := HashFromTile(r.hasher, tiles[j], data[j], x)
		if err != nil {
			return nil, fmt.Errorf("lost hash %d in %s: %v", x, tiles[j], err)
		}
		hashes[i] = append([]byte(nil), hash...)
	}
	return hashes, nil
}
