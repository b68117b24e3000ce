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

// Package log implements an append-only transparency log whose Merkle tree
// hashes are kept in tiles.
//
// A Log has a single writer. Appends are serialized, and each successful
// batch persists the new tiles and then the checkpoint. Proofs are built
// against a snapshot of the log's size and root, reading the tree hashes
// through a tile.HashReader which authenticates every tile against that
// root.
package log

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/hashers"
	"github.com/google/tilelog/merkle/tile"
	"github.com/google/tilelog/monitoring"
	"github.com/google/tilelog/storage"
	"github.com/google/tilelog/util/clock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

const opLabel = "op"

var (
	once              sync.Once
	appendBatches     monitoring.Counter
	leavesAppended    monitoring.Counter
	appendFailures    monitoring.Counter
	inconsistentTiles monitoring.Counter
	logSize           monitoring.Gauge
	opLatency         monitoring.Histogram
)

func createMetrics(mf monitoring.MetricFactory) {
	appendBatches = mf.NewCounter("append_batches", "Number of append batches committed")
	leavesAppended = mf.NewCounter("leaves_appended", "Number of leaves appended to the log")
	appendFailures = mf.NewCounter("append_failures", "Number of append batches which failed and were rolled back")
	inconsistentTiles = mf.NewCounter("inconsistent_tiles", "Number of reads which found tiles not matching the log root", opLabel)
	logSize = mf.NewGauge("log_size", "Number of leaves in the log")
	opLatency = mf.NewHistogramWithBuckets("op_latency_seconds", "Latency of log operations in seconds", monitoring.LatencyBuckets(), opLabel)
}

// TileStorage holds the tiles of a Log. storage.TileStore implements it.
type TileStorage interface {
	tile.Reader

	// UpdateTiles adds the stored hash with the given index to its tile.
	// It is called for every new stored hash, in stored hash index order,
	// and returns nil for hashes which are not kept in any tile.
	UpdateTiles(ctx context.Context, index uint64, hash []byte) ([]byte, error)
	// WriteTiles persists the given tiles built up by UpdateTiles.
	WriteTiles(ctx context.Context, tiles []tile.Tile) error
	// Reset drops tile data buffered by UpdateTiles but not persisted.
	Reset()
}

// Options configures a Log.
type Options struct {
	// Origin names the log in its checkpoint. When opening an existing log
	// it must match the stored checkpoint, unless empty.
	Origin        string
	MetricFactory monitoring.MetricFactory
	TimeSource    clock.TimeSource
}

// Log is a transparency log. It is safe for concurrent use.
type Log struct {
	hasher hashers.LogHasher
	tiles  TileStorage
	cps    storage.Backend
	origin string
	ts     clock.TimeSource

	// wmu serializes appends.
	wmu sync.Mutex
	// mu guards tree, which is only replaced, never modified, once
	// published.
	mu   sync.RWMutex
	tree *compact.Tree
}

// Open returns the log stored in tiles, with its checkpoint in cps. If cps
// holds no checkpoint, the log is empty.
//
// A stored checkpoint is resumed from by reading the hashes on the right
// border of its tree, authenticated against its root.
func Open(ctx context.Context, hasher hashers.LogHasher, tiles TileStorage, cps storage.Backend, opts Options) (*Log, error) {
	if hasher == nil || tiles == nil || cps == nil {
		return nil, errors.New("log: nil hasher or storage")
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

	l := &Log{
		hasher: hasher,
		tiles:  tiles,
		cps:    cps,
		origin: opts.Origin,
		ts:     ts,
	}

	data, err := cps.Get(ctx, CheckpointKey)
	switch {
	case errors.Is(err, storage.ErrTileNotFound):
		if l.origin == "" {
			return nil, errors.New("log: no checkpoint, and no origin to start a new log")
		}
		klog.V(1).Infof("%s: no checkpoint, starting empty log", l.origin)
		l.tree = compact.NewTree(hasher)
		logSize.Set(0)
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("log: reading checkpoint: %w", err)
	}

	cp, err := ParseCheckpoint(data)
	if err != nil {
		return nil, status.Errorf(codes.DataLoss, "log: %v", err)
	}
	if l.origin != "" && cp.Origin != l.origin {
		return nil, status.Errorf(codes.FailedPrecondition, "log: checkpoint is for %q, not %q", cp.Origin, l.origin)
	}
	if got, want := len(cp.Root), hasher.Size(); got != want {
		return nil, status.Errorf(codes.DataLoss, "log: checkpoint root is %d bytes, want %d", got, want)
	}
	l.origin = cp.Origin

	tree, err := compact.NewTreeWithState(hasher, cp.Size, func(ids []compact.NodeID) ([][]byte, error) {
		indexes := make([]uint64, len(ids))
		for i, id := range ids {
			indexes[i] = id.StoredIndex()
		}
		return tile.NewHashReader(cp.Size, cp.Root, tiles, hasher).ReadHashes(ctx, indexes)
	}, cp.Root)
	if err != nil {
		return nil, l.readError("open", fmt.Errorf("log: resuming from %s: %w", cp, err))
	}
	l.tree = tree
	logSize.Set(float64(cp.Size))
	klog.V(1).Infof("%s: resumed at size %d", l.origin, cp.Size)
	return l, nil
}

// snapshot returns the tree as of the last committed append.
func (l *Log) snapshot() *compact.Tree {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree
}

// Origin returns the name of the log.
func (l *Log) Origin() string {
	return l.origin
}

// Size returns the number of leaves in the log.
func (l *Log) Size() uint64 {
	return l.snapshot().Size()
}

// Root returns the current root hash of the log.
func (l *Log) Root() []byte {
	return l.snapshot().CurrentRoot()
}

// Checkpoint returns the current checkpoint of the log.
func (l *Log) Checkpoint() Checkpoint {
	t := l.snapshot()
	return Checkpoint{Origin: l.origin, Size: t.Size(), Root: t.CurrentRoot()}
}

// Append adds an entry to the log, and returns its leaf index.
func (l *Log) Append(ctx context.Context, entry []byte) (uint64, error) {
	return l.AppendBatch(ctx, [][]byte{entry})
}

// AppendBatch adds the entries to the log in order, and returns the leaf
// index of the first one. Either all the entries are appended or none are.
func (l *Log) AppendBatch(ctx context.Context, entries [][]byte) (uint64, error) {
	hashes := make([][]byte, len(entries))
	for i, e := range entries {
		hashes[i] = l.hasher.HashLeaf(e)
	}
	return l.appendHashes(ctx, hashes)
}

// AppendLeafHash adds an already hashed leaf to the log, and returns its
// leaf index.
func (l *Log) AppendLeafHash(ctx context.Context, leafHash []byte) (uint64, error) {
	if got, want := len(leafHash), l.hasher.Size(); got != want {
		return 0, status.Errorf(codes.InvalidArgument, "leaf hash is %d bytes, want %d", got, want)
	}
	return l.appendHashes(ctx, [][]byte{leafHash})
}

func (l *Log) appendHashes(ctx context.Context, leafHashes [][]byte) (uint64, error) {
	if len(leafHashes) == 0 {
		return 0, status.Error(codes.InvalidArgument, "no entries to append")
	}
	start := l.ts.Now()
	defer func() { opLatency.Observe(clock.SecondsSince(l.ts, start), "append") }()

	l.wmu.Lock()
	defer l.wmu.Unlock()

	old := l.snapshot()
	tree, err := l.sequence(ctx, old, leafHashes)
	if err != nil {
		l.tiles.Reset()
		appendFailures.Inc()
		klog.Warningf("%s: append of %d leaves at size %d failed: %v", l.origin, len(leafHashes), old.Size(), err)
		return 0, err
	}

	l.mu.Lock()
	l.tree = tree
	l.mu.Unlock()

	appendBatches.Inc()
	leavesAppended.Add(float64(len(leafHashes)))
	logSize.Set(float64(tree.Size()))
	klog.V(2).Infof("%s: appended %d leaves, size %d", l.origin, len(leafHashes), tree.Size())
	return old.Size(), nil
}

// sequence appends the leaf hashes to a copy of old, and persists the tiles
// and checkpoint of the result.
func (l *Log) sequence(ctx context.Context, old *compact.Tree, leafHashes [][]byte) (*compact.Tree, error) {
	tree := old.Clone()
	var updateErr error
	visit := func(id compact.NodeID, hash []byte) {
		if updateErr != nil {
			return
		}
		if _, err := l.tiles.UpdateTiles(ctx, id.StoredIndex(), hash); err != nil {
			updateErr = fmt.Errorf("updating tiles with node %v: %w", id, err)
		}
	}
	for _, h := range leafHashes {
		if err := tree.AppendLeafHash(h, visit); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "%v", err)
		}
		if updateErr != nil {
			return nil, updateErr
		}
	}

	if err := l.tiles.WriteTiles(ctx, tile.NewTiles(l.tiles.Height(), old.Size(), tree.Size())); err != nil {
		return nil, err
	}
	cp := Checkpoint{Origin: l.origin, Size: tree.Size(), Root: tree.CurrentRoot()}
	if err := l.cps.Put(ctx, CheckpointKey, cp.Marshal()); err != nil {
		return nil, fmt.Errorf("writing checkpoint: %w", err)
	}
	return tree, nil
}

// readError converts tile integrity failures found by op into DataLoss
// status errors. Other errors are returned unchanged.
func (l *Log) readError(op string, err error) error {
	if errors.Is(err, tile.ErrInconsistentTile) {
		inconsistentTiles.Inc(op)
		klog.Errorf("%s: %s: %v", l.origin, op, err)
		return status.Errorf(codes.DataLoss, "%v", err)
	}
	return err
}
