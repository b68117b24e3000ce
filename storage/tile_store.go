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

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/tilelog/merkle/tile"
	"github.com/google/tilelog/monitoring"
	"github.com/google/tilelog/util/clock"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const sourceLabel = "source"

var (
	once          sync.Once
	tileReads     monitoring.Counter
	tilesWritten  monitoring.Counter
	tilesSaved    monitoring.Counter
	storedHashes  monitoring.Counter
	readLatency   monitoring.Histogram
	pendingTiles  monitoring.Gauge
	transientSeen monitoring.Counter
)

func createMetrics(mf monitoring.MetricFactory) {
	tileReads = mf.NewCounter("tile_reads", "Number of tiles read, by where the data came from", sourceLabel)
	tilesWritten = mf.NewCounter("tiles_written", "Number of tiles written to the backend")
	tilesSaved = mf.NewCounter("tiles_saved", "Number of authenticated tiles written to the cache")
	storedHashes = mf.NewCounter("stored_hashes", "Number of hashes added to tiles")
	transientSeen = mf.NewCounter("transient_hashes", "Number of hashes interior to a tile, which are not stored")
	readLatency = mf.NewHistogram("tile_read_latency_seconds", "Latency of ReadTiles batches in seconds")
	pendingTiles = mf.NewGauge("pending_tiles", "Number of tiles buffered at the edge of the tree")
}

type tileKey struct {
	level int
	n     uint64
}

// TileStoreOptions configures a TileStore.
type TileStoreOptions struct {
	// Cache, if set, receives the full tiles passed to SaveTiles, and is
	// tried before the backend when reading a full tile.
	Cache Backend
	// MaxConcurrentReads bounds the number of tiles read at once by
	// ReadTiles. Zero means no bound.
	MaxConcurrentReads int
	MetricFactory      monitoring.MetricFactory
	// TimeSource times ReadTiles batches. Defaults to clock.System.
	TimeSource clock.TimeSource
}

// TileStore keeps the tiles of one log, with a fixed tile height, in a
// Backend. It implements tile.Reader.
//
// As hashes are appended, UpdateTiles accumulates the tiles at the growing
// edge of the tree in memory, and WriteTiles persists them. Every width of a
// tile is written under its own path, so a tile is never modified in place.
type TileStore struct {
	height   int
	hashSize int
	backend  Backend
	cache    Backend
	limit    int
	ts       clock.TimeSource

	mu      sync.Mutex
	pending map[tileKey][]byte
}

var _ tile.Reader = &TileStore{}

// NewTileStore returns a TileStore for tiles of the given height holding
// hashes of hashSize bytes.
func NewTileStore(backend Backend, height, hashSize int, opts TileStoreOptions) (*TileStore, error) {
	if height < 1 || height > tile.MaxHeight {
		return nil, fmt.Errorf("tile height %d out of range [1, %d]", height, tile.MaxHeight)
	}
	if hashSize <= 0 {
		return nil, fmt.Errorf("invalid hash size %d", hashSize)
	}
	if backend == nil {
		return nil, errors.New("nil backend")
	}
	mf := opts.MetricFactory
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	once.Do(func() { createMetrics(mf) })
	ts := opts.TimeSource
	if ts == nil {
		ts = clock.System
	}

	return &TileStore{
		height:   height,
		hashSize: hashSize,
		backend:  backend,
		cache:    opts.Cache,
		limit:    opts.MaxConcurrentReads,
		ts:       ts,
		pending:  make(map[tileKey][]byte),
	}, nil
}

// Height returns the height of the tiles in the store.
func (s *TileStore) Height() int {
	return s.height
}

// ReadTile returns the data stored for the tile with the given path. When
// the tile was never written at exactly that width, the data of a wider
// version of it is cut down to the requested width. If no version of the
// tile exists, ReadTile returns a single zero hash.
func (s *TileStore) ReadTile(ctx context.Context, path string) ([]byte, error) {
	t, err := tile.ParseTilePath(path)
	if err != nil {
		return nil, err
	}
	if t.H != s.height {
		return nil, fmt.Errorf("tile %s has height %d, want %d", t, t.H, s.height)
	}
	if s.cache != nil && t.Full() {
		data, err := s.cache.Get(ctx, path)
		switch {
		case err == nil && len(data) == t.W*s.hashSize:
			tileReads.Inc("cache")
			return data, nil
		case err != nil && !errors.Is(err, ErrTileNotFound):
			klog.Warningf("Failed to read tile %s from cache: %v", t, err)
		}
	}

	data, err := s.readStored(ctx, t)
	if errors.Is(err, ErrTileNotFound) {
		klog.V(2).Infof("Tile %s not found", t)
		tileReads.Inc("missing")
		return make([]byte, s.hashSize), nil
	}
	return data, err
}

// readStored reads t from the backend, falling back to the widest version
// of it present. It returns ErrTileNotFound if there is none.
func (s *TileStore) readStored(ctx context.Context, t tile.Tile) ([]byte, error) {
	data, err := s.backend.Get(ctx, t.Path())
	if err == nil {
		tileReads.Inc("backend")
		return data, nil
	}
	if !errors.Is(err, ErrTileNotFound) {
		return nil, err
	}

	want := t.W * s.hashSize
	wide := t
	for wide.W = 1 << uint(t.H); wide.W > t.W; wide.W-- {
		data, err := s.backend.Get(ctx, wide.Path())
		if errors.Is(err, ErrTileNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		if len(data) < want {
			return nil, fmt.Errorf("tile %s has %d bytes, want at least %d", wide, len(data), want)
		}
		tileReads.Inc("wider")
		return data[:want:want], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTileNotFound, t)
}

// ReadTiles reads the given tiles concurrently.
func (s *TileStore) ReadTiles(ctx context.Context, tiles []tile.Tile) ([][]byte, error) {
	start := s.ts.Now()
	data := make([][]byte, len(tiles))
	g, gctx := errgroup.WithContext(ctx)
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, t := range tiles {
		i, t := i, t
		g.Go(func() error {
			d, err := s.ReadTile(gctx, t.Path())
			if err != nil {
				return fmt.Errorf("reading %s: %w", t, err)
			}
			data[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	readLatency.Observe(clock.SecondsSince(s.ts, start))
	return data, nil
}

// SaveTiles writes the full tiles among those given to the cache, if there
// is one. Failures are logged and otherwise ignored.
func (s *TileStore) SaveTiles(ctx context.Context, tiles []tile.Tile, data [][]byte) {
	if s.cache == nil {
		return
	}
	for i, t := range tiles {
		if !t.Full() {
			continue
		}
		if err := s.cache.Put(ctx, t.Path(), data[i]); err != nil {
			klog.Warningf("Failed to cache tile %s: %v", t, err)
			continue
		}
		tilesSaved.Inc()
	}
}

// UpdateTiles adds the stored hash with the given index to its tile. Hashes
// must be added in stored hash index order.
//
// If the hash is an interior node of its tile, it is not stored and
// UpdateTiles returns nil. Otherwise it returns the updated data of the
// tile, ending with the hash. The tile is not persisted until WriteTiles.
func (s *TileStore) UpdateTiles(ctx context.Context, index uint64, hash []byte) ([]byte, error) {
	if got, want := len(hash), s.hashSize; got != want {
		return nil, fmt.Errorf("stored hash %d is %d bytes, want %d", index, got, want)
	}
	t, start, end := tile.TileForIndex(s.height, index, s.hashSize)
	if end-start != s.hashSize {
		klog.V(4).Infof("Stored hash %d is interior to %s", index, t)
		transientSeen.Inc()
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := tileKey{level: t.L, n: t.N}
	buf, ok := s.pending[k]
	if !ok && start > 0 {
		prev := t
		prev.W = start / s.hashSize
		data, err := s.readStored(ctx, prev)
		if err != nil {
			return nil, fmt.Errorf("reading %s to extend it: %w", prev, err)
		}
		buf = append(make([]byte, 0, (1<<uint(s.height))*s.hashSize), data...)
	}
	if len(buf) != start {
		return nil, fmt.Errorf("stored hash %d belongs at offset %d of %s, but %d bytes are buffered", index, start, t, len(buf))
	}
	buf = append(buf, hash...)
	s.pending[k] = buf
	pendingTiles.Set(float64(len(s.pending)))
	storedHashes.Inc()
	return buf[:end:end], nil
}

// WriteTiles persists the given tiles, whose data must have been built up
// by UpdateTiles. Full tiles are dropped from memory once written.
func (s *TileStore) WriteTiles(ctx context.Context, tiles []tile.Tile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tiles {
		k := tileKey{level: t.L, n: t.N}
		size := t.W * s.hashSize
		buf := s.pending[k]
		if len(buf) < size {
			return fmt.Errorf("tile %s: have %d bytes, want %d", t, len(buf), size)
		}
		if err := s.backend.Put(ctx, t.Path(), buf[:size:size]); err != nil {
			return fmt.Errorf("writing %s: %w", t, err)
		}
		tilesWritten.Inc()
		if t.Full() {
			delete(s.pending, k)
		}
	}
	pendingTiles.Set(float64(len(s.pending)))
	klog.V(2).Infof("Wrote %d tiles", len(tiles))
	return nil
}

// Reset drops all tiles buffered by UpdateTiles. Tiles at the edge of the
// tree are read back from the backend as needed.
func (s *TileStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[tileKey][]byte)
	pendingTiles.Set(0)
}
