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

// Package tile describes the stored hashes of a Merkle tree in terms of
// tiles, and reads them back with authentication against a trusted root.
package tile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/hashers"
	"github.com/google/tilelog/merkle/proof"
)

// MaxHeight is the largest supported tile height.
const MaxHeight = 30

// ErrInconsistentTile is returned when tile data does not hash up to the
// trusted root, which means that storage served corrupted or tampered data.
var ErrInconsistentTile = errors.New("downloaded inconsistent tile")

// Tile is a contiguous run of stored hashes. A tile of height H at tile level
// L holds up to 2^H hashes from tree level L*H, starting at hash N<<H:
//
//	+--------------------------------------------------+
//	|                    tile 2/1/0                    |
//	|    2.0          2.1          2.2          2.3    |
//	+------------+------------+------------+-----------+
//	| tile 2/0/0 | tile 2/0/1 | tile 2/0/2 | tile 2/0/3|
//	|  1.0  1.1  |  1.2  1.3  |  1.4  1.5  |  1.6  1.7 |
//	|0.0 .. 0.3  |0.4 .. 0.7  |0.8 .. 0.11 |0.12 .. 0.15
//	+------------+------------+------------+-----------+
//
// Only the hashes at the bottom level of a tile are stored. The nodes above
// them, up to but excluding level (L+1)*H, are recomputed from the tile data.
//
// W is the number of hashes present. A tile with W == 1<<H is full and
// never changes; a narrower tile is partial and only exists at the growing
// edge of the tree.
type Tile struct {
	H int    // height of the tile, in [1, MaxHeight]
	L int    // tile level
	N uint64 // index of the tile within its level
	W int    // width, in [1, 1<<H]
}

// Path returns the tile's storage path, tile/H/L/N.W.
func (t Tile) Path() string {
	return fmt.Sprintf("tile/%d/%d/%d.%d", t.H, t.L, t.N, t.W)
}

func (t Tile) String() string {
	return t.Path()
}

// Full reports whether the tile holds all 1<<H of its hashes.
func (t Tile) Full() bool {
	return t.W == 1<<uint(t.H)
}

// Valid returns an error if the tile coordinates are out of range.
func (t Tile) Valid() error {
	if t.H < 1 || t.H > MaxHeight || t.L < 0 || t.L >= 64 || t.W < 1 || t.W > 1<<uint(t.H) {
		return fmt.Errorf("invalid tile %s", t.Path())
	}
	return nil
}

// ParseTilePath parses a path produced by Tile.Path.
func ParseTilePath(path string) (Tile, error) {
	f := strings.Split(path, "/")
	if len(f) != 4 || f[0] != "tile" {
		return Tile{}, fmt.Errorf("malformed tile path %q", path)
	}
	nw := strings.Split(f[3], ".")
	if len(nw) != 2 {
		return Tile{}, fmt.Errorf("malformed tile path %q: missing width", path)
	}
	h, err1 := strconv.Atoi(f[1])
	l, err2 := strconv.Atoi(f[2])
	n, err3 := strconv.ParseUint(nw[0], 10, 64)
	w, err4 := strconv.Atoi(nw[1])
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return Tile{}, fmt.Errorf("malformed tile path %q: %w", path, err)
	}
	t := Tile{H: h, L: l, N: n, W: w}
	if t.Path() != path {
		return Tile{}, fmt.Errorf("non-canonical tile path %q", path)
	}
	return t, t.Valid()
}

// The tile coordinates below follow golang.org/x/mod/sumdb/tlog (Copyright
// 2019 The Go Authors, BSD-style license), generalized to any hash size.

// TileForIndex returns the tile of height h containing the stored hash with
// the given index, along with the byte range [start, end) of that hash's
// data within the tile. The returned tile is the narrowest one that contains
// the hash.
//
// If the hash is at the bottom level of the tile then end-start == hashSize.
// Otherwise the hash is an interior node of the tile, and the data range
// covers all the bottom hashes beneath it.
func TileForIndex(h int, index uint64, hashSize int) (Tile, int, int) {
	level, n := compact.SplitStoredHashIndex(index)
	t := Tile{H: h, L: int(level) / h}
	level -= uint(t.L * h) // Now the level within the tile.
	t.N = n << level >> uint(h)
	n -= t.N << uint(h) >> level // Now the index within the tile at that level.
	t.W = int((n + 1) << level)
	return t, int(n<<level) * hashSize, int((n+1)<<level) * hashSize
}

// HashFromTile returns the stored hash with the given index from the data of
// tile t.
func HashFromTile(hasher hashers.LogHasher, t Tile, data []byte, index uint64) ([]byte, error) {
	if err := t.Valid(); err != nil {
		return nil, err
	}
	if len(data) < t.W*hasher.Size() {
		return nil, fmt.Errorf("data length %d is too short for %s", len(data), t.Path())
	}
	t1, start, end := TileForIndex(t.H, index, hasher.Size())
	if t.L != t1.L || t.N != t1.N || t.W < t1.W {
		return nil, fmt.Errorf("index %d is in %s not %s", index, t1.Path(), t.Path())
	}
	return TileHash(hasher, data[start:end])
}

// TileHash returns the root hash of the perfect subtree whose bottom level
// hashes are concatenated in data.
func TileHash(hasher hashers.LogHasher, data []byte) ([]byte, error) {
	size := hasher.Size()
	if n := len(data) / size; len(data)%size != 0 || n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("tile data of %d bytes is not a power of two hashes", len(data))
	}
	return tileHash(hasher, data), nil
}

func tileHash(hasher hashers.LogHasher, data []byte) []byte {
	if len(data) == hasher.Size() {
		return data
	}
	n := len(data) / 2
	return hasher.HashChildren(tileHash(hasher, data[:n]), tileHash(hasher, data[n:]))
}

// TileParent returns the tile k levels above t in a tree of the given size.
// The parent's width is capped to what the tree holds. The zero Tile is
// returned if the tree has no such tile.
func TileParent(t Tile, k int, size uint64) Tile {
	t.L += k
	t.N >>= uint(k * t.H)
	t.W = 1 << uint(t.H)
	if max := size >> uint(t.L*t.H); t.N<<uint(t.H)+uint64(t.W) >= max {
		if t.N<<uint(t.H) >= max {
			return Tile{}
		}
		t.W = int(max - t.N<<uint(t.H))
	}
	return t
}

// NewTiles returns the tiles of height h that are new or changed when the
// tree grows from oldSize to newSize leaves.
func NewTiles(h int, oldSize, newSize uint64) []Tile {
	if h <= 0 {
		panic(fmt.Sprintf("NewTiles: invalid height %d", h))
	}
	var tiles []Tile
	for level := 0; newSize>>uint(h*level) > 0; level++ {
		oldN := oldSize >> uint(h*level)
		newN := newSize >> uint(h*level)
		if oldN == newN {
			continue
		}
		for n := oldN >> uint(h); n < newN>>uint(h); n++ {
			tiles = append(tiles, Tile{H: h, L: level, N: n, W: 1 << uint(h)})
		}
		n := newN >> uint(h)
		if w := int(newN - n<<uint(h)); w > 0 {
			tiles = append(tiles, Tile{H: h, L: level, N: n, W: w})
		}
	}
	return tiles
}

// ReadTileData returns the data for tile t, using r to read the stored hashes.
func ReadTileData(ctx context.Context, t Tile, hashSize int, r proof.HashReader) ([]byte, error) {
	if err := t.Valid(); err != nil {
		return nil, err
	}
	start := t.N << uint(t.H)
	indexes := make([]uint64, t.W)
	for i := range indexes {
		indexes[i] = compact.StoredHashIndex(uint(t.H*t.L), start+uint64(i))
	}
	hashes, err := r.ReadHashes(ctx, indexes)
	if err != nil {
		return nil, err
	}
	if len(hashes) != len(indexes) {
		return nil, fmt.Errorf("ReadHashes(%d indexes) = %d hashes", len(indexes), len(hashes))
	}
	data := make([]byte, 0, t.W*hashSize)
	for i, h := range hashes {
		if len(h) != hashSize {
			return nil, fmt.Errorf("hash %d is %d bytes, want %d", indexes[i], len(h), hashSize)
		}
		data = append(data, h...)
	}
	return data, nil
}
