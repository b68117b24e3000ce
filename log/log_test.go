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

package log

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/tilelog/merkle/proof"
	"github.com/google/tilelog/merkle/rfc6962"
	"github.com/google/tilelog/merkle/testonly"
	"github.com/google/tilelog/merkle/tile"
	"github.com/google/tilelog/monitoring"
	mtestonly "github.com/google/tilelog/monitoring/testonly"
	"github.com/google/tilelog/storage"
	"github.com/google/tilelog/storage/memory"
	"github.com/google/tilelog/util/clock"
	"github.com/stretchr/testify/require"
	tdproof "github.com/transparency-dev/merkle/proof"
	tdrfc6962 "github.com/transparency-dev/merkle/rfc6962"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const testOrigin = "example.com/log"

var hasher = rfc6962.DefaultHasher

// failingBackend fails Puts of keys with a given prefix while fail is set.
type failingBackend struct {
	storage.Backend
	prefix string

	mu   sync.Mutex
	fail bool
}

func (f *failingBackend) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *failingBackend) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	fail := f.fail && strings.HasPrefix(key, f.prefix)
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("injected failure writing %s", key)
	}
	return f.Backend.Put(ctx, key, data)
}

// hidingBackend reports the hidden keys as not found.
type hidingBackend struct {
	storage.Backend
	hidden map[string]bool
}

func (h *hidingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if h.hidden[key] {
		return nil, fmt.Errorf("%w: %s", storage.ErrTileNotFound, key)
	}
	return h.Backend.Get(ctx, key)
}

func openLog(t *testing.T, be storage.Backend, height int, origin string) *Log {
	t.Helper()
	ts, err := storage.NewTileStore(be, height, hasher.Size(), storage.TileStoreOptions{})
	require.NoError(t, err)
	l, err := Open(context.Background(), hasher, ts, be, Options{Origin: origin})
	require.NoError(t, err)
	return l
}

func leafHashes(entries [][]byte) [][]byte {
	hashes := make([][]byte, len(entries))
	for i, e := range entries {
		hashes[i] = hasher.HashLeaf(e)
	}
	return hashes
}

// isRFC6962Short reports whether the RFC 6962 consistency proof between the
// sizes leaves out the old root, which the log's proofs start with.
func isRFC6962Short(size1, size2 uint64) bool {
	return size1 != 0 && size1 < size2 && size1&(size1-1) == 0
}

func requireCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, status.Code(err), "error: %v", err)
}

func TestAppendRoots(t *testing.T) {
	ctx := context.Background()
	roots := testonly.RootHashes()
	for height := 1; height <= 4; height++ {
		t.Run(fmt.Sprintf("height:%d", height), func(t *testing.T) {
			l := openLog(t, memory.NewBackend(), height, testOrigin)
			require.Equal(t, roots[0], l.Root())
			for i, entry := range testonly.LeafInputs() {
				idx, err := l.Append(ctx, entry)
				require.NoError(t, err)
				require.Equal(t, uint64(i), idx)
				require.Equal(t, roots[i+1], l.Root(), "root at size %d", i+1)
			}
			for size, want := range roots {
				got, err := l.RootAt(ctx, uint64(size))
				require.NoError(t, err)
				require.Equal(t, want, got, "RootAt(%d)", size)
			}
		})
	}
}

func TestAppendBatch(t *testing.T) {
	ctx := context.Background()
	want, err := base64.StdEncoding.DecodeString(testonly.EntryRoot26)
	require.NoError(t, err)
	entries := testonly.EntryData(26)

	for _, batch := range []int{1, 3, 4, 7, 26} {
		t.Run(fmt.Sprintf("batch:%d", batch), func(t *testing.T) {
			l := openLog(t, memory.NewBackend(), 2, testOrigin)
			for begin := 0; begin < len(entries); begin += batch {
				end := min(begin+batch, len(entries))
				idx, err := l.AppendBatch(ctx, entries[begin:end])
				require.NoError(t, err)
				require.Equal(t, uint64(begin), idx)
			}
			require.Equal(t, uint64(26), l.Size())
			require.Equal(t, want, l.Root())

			cp := l.Checkpoint()
			require.Equal(t, Checkpoint{Origin: testOrigin, Size: 26, Root: want}, cp)
		})
	}
}

func TestAppendEmptyBatch(t *testing.T) {
	l := openLog(t, memory.NewBackend(), 2, testOrigin)
	_, err := l.AppendBatch(context.Background(), nil)
	requireCode(t, err, codes.InvalidArgument)
}

func TestAppendLeafHash(t *testing.T) {
	ctx := context.Background()
	l := openLog(t, memory.NewBackend(), 2, testOrigin)

	_, err := l.AppendLeafHash(ctx, []byte("short"))
	requireCode(t, err, codes.InvalidArgument)
	require.Zero(t, l.Size())

	hashes := leafHashes(testonly.EntryData(5))
	for i, h := range hashes {
		idx, err := l.AppendLeafHash(ctx, h)
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
	}
	require.Equal(t, proof.MTH(hasher, hashes), l.Root())
}

func TestKnownProofs(t *testing.T) {
	ctx := context.Background()
	l := openLog(t, memory.NewBackend(), 2, testOrigin)
	_, err := l.AppendBatch(ctx, testonly.LeafInputs())
	require.NoError(t, err)

	for _, v := range testonly.InclusionProofs() {
		p, err := l.InclusionProof(ctx, v.Size, v.Index)
		require.NoError(t, err)
		if diff := cmp.Diff(v.Proof, p.Path, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("InclusionProof(%d, %d) diff (-want +got):\n%s", v.Size, v.Index, diff)
		}
	}
	roots := testonly.RootHashes()
	for _, v := range testonly.ConsistencyProofs() {
		p, err := l.ConsistencyProof(ctx, v.Size1, v.Size2)
		require.NoError(t, err)
		want := v.Proof
		if isRFC6962Short(v.Size1, v.Size2) {
			want = append([][]byte{roots[v.Size1]}, want...)
		}
		if diff := cmp.Diff(want, p.Path, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("ConsistencyProof(%d, %d) diff (-want +got):\n%s", v.Size1, v.Size2, diff)
		}
	}
}

func TestProofs(t *testing.T) {
	ctx := context.Background()
	const n = 26
	entries := testonly.EntryData(n)
	hashes := leafHashes(entries)
	l := openLog(t, memory.NewBackend(), 2, testOrigin)
	_, err := l.AppendBatch(ctx, entries)
	require.NoError(t, err)

	roots := make([][]byte, n+1)
	for size := range roots {
		roots[size], err = l.RootAt(ctx, uint64(size))
		require.NoError(t, err)
		require.Equal(t, proof.MTH(hasher, hashes[:size]), roots[size], "RootAt(%d)", size)
	}

	for size := uint64(1); size <= n; size++ {
		for index := uint64(0); index < size; index++ {
			p, err := l.InclusionProof(ctx, size, index)
			require.NoError(t, err)
			want, err := proof.InclusionPath(hasher, hashes[:size], index)
			require.NoError(t, err)
			if diff := cmp.Diff(want, p.Path, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("InclusionProof(%d, %d) diff (-want +got):\n%s", size, index, diff)
			}

			ok, err := l.VerifyInclusionProof(hashes[index], p, roots[size])
			require.NoError(t, err)
			require.True(t, ok, "inclusion of %d in %d", index, size)
			require.NoError(t, tdproof.VerifyInclusion(tdrfc6962.DefaultHasher, index, size, hashes[index], p.Path, roots[size]))
		}
	}

	for size2 := uint64(0); size2 <= n; size2++ {
		for size1 := uint64(0); size1 <= size2; size1++ {
			p, err := l.ConsistencyProof(ctx, size1, size2)
			require.NoError(t, err)
			require.NotNil(t, p.Path)

			ok, err := l.VerifyConsistencyProof(p, roots[size1], roots[size2])
			require.NoError(t, err)
			require.True(t, ok, "consistency %d -> %d", size1, size2)
			path := p.Path
			if isRFC6962Short(size1, size2) {
				path = path[1:]
			}
			require.NoError(t, tdproof.VerifyConsistency(tdrfc6962.DefaultHasher, size1, size2, path, roots[size1], roots[size2]))
		}
	}
}

func TestVerifyTampered(t *testing.T) {
	ctx := context.Background()
	entries := testonly.EntryData(13)
	l := openLog(t, memory.NewBackend(), 2, testOrigin)
	_, err := l.AppendBatch(ctx, entries)
	require.NoError(t, err)
	root := l.Root()
	leaf := hasher.HashLeaf(entries[5])

	ip, err := l.InclusionProof(ctx, 13, 5)
	require.NoError(t, err)
	cp, err := l.ConsistencyProof(ctx, 6, 13)
	require.NoError(t, err)
	oldRoot, err := l.RootAt(ctx, 6)
	require.NoError(t, err)

	t.Run("inclusion", func(t *testing.T) {
		bad := ip
		bad.Path = append([][]byte{}, ip.Path...)
		bad.Path[1] = hasher.HashLeaf([]byte("bogus"))
		ok, err := l.VerifyInclusionProof(leaf, bad, root)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = l.VerifyInclusionProof(hasher.HashLeaf([]byte("bogus")), ip, root)
		require.NoError(t, err)
		require.False(t, ok)

		short := ip
		short.Path = ip.Path[:len(ip.Path)-1]
		ok, err = l.VerifyInclusionProof(leaf, short, root)
		require.NoError(t, err)
		require.False(t, ok)

		outside := ip
		outside.LeafIndex = 13
		_, err = l.VerifyInclusionProof(leaf, outside, root)
		requireCode(t, err, codes.InvalidArgument)
	})

	t.Run("consistency", func(t *testing.T) {
		ok, err := l.VerifyConsistencyProof(cp, root, root)
		require.NoError(t, err)
		require.False(t, ok)

		bad := cp
		bad.Path = append([][]byte{}, cp.Path...)
		bad.Path[0] = hasher.HashLeaf([]byte("bogus"))
		ok, err = l.VerifyConsistencyProof(bad, oldRoot, root)
		require.NoError(t, err)
		require.False(t, ok)

		backwards := proof.ConsistencyProof{OldSize: 13, NewSize: 6, Path: cp.Path}
		_, err = l.VerifyConsistencyProof(backwards, root, oldRoot)
		requireCode(t, err, codes.InvalidArgument)
	})
}

func TestProofErrors(t *testing.T) {
	ctx := context.Background()
	l := openLog(t, memory.NewBackend(), 2, testOrigin)
	_, err := l.AppendBatch(ctx, testonly.EntryData(10))
	require.NoError(t, err)

	_, err = l.RootAt(ctx, 11)
	requireCode(t, err, codes.OutOfRange)
	_, err = l.InclusionProof(ctx, 5, 5)
	requireCode(t, err, codes.InvalidArgument)
	_, err = l.InclusionProof(ctx, 0, 0)
	requireCode(t, err, codes.InvalidArgument)
	_, err = l.InclusionProof(ctx, 11, 3)
	requireCode(t, err, codes.OutOfRange)
	_, err = l.ConsistencyProof(ctx, 6, 5)
	requireCode(t, err, codes.InvalidArgument)
	_, err = l.ConsistencyProof(ctx, 5, 11)
	requireCode(t, err, codes.OutOfRange)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	be := memory.NewBackend()
	entries := testonly.EntryData(26)
	l := openLog(t, be, 2, testOrigin)
	_, err := l.AppendBatch(ctx, entries[:19])
	require.NoError(t, err)

	// Resume with the same origin, and with none.
	for _, origin := range []string{testOrigin, ""} {
		l2 := openLog(t, be, 2, origin)
		require.Equal(t, testOrigin, l2.Origin())
		require.Equal(t, l.Checkpoint(), l2.Checkpoint())
	}

	l2 := openLog(t, be, 2, testOrigin)
	_, err = l2.AppendBatch(ctx, entries[19:])
	require.NoError(t, err)
	want, err := base64.StdEncoding.DecodeString(testonly.EntryRoot26)
	require.NoError(t, err)
	require.Equal(t, want, l2.Root())

	p, err := l2.InclusionProof(ctx, 26, 18)
	require.NoError(t, err)
	ok, err := l2.VerifyInclusionProof(hasher.HashLeaf(entries[18]), p, want)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	newTiles := func(be storage.Backend) *storage.TileStore {
		ts, err := storage.NewTileStore(be, 2, hasher.Size(), storage.TileStoreOptions{})
		require.NoError(t, err)
		return ts
	}

	t.Run("no origin", func(t *testing.T) {
		be := memory.NewBackend()
		_, err := Open(ctx, hasher, newTiles(be), be, Options{})
		require.Error(t, err)
	})

	t.Run("origin mismatch", func(t *testing.T) {
		be := memory.NewBackend()
		l := openLog(t, be, 2, testOrigin)
		_, err := l.Append(ctx, []byte("entry"))
		require.NoError(t, err)
		_, err = Open(ctx, hasher, newTiles(be), be, Options{Origin: "other.example.com/log"})
		requireCode(t, err, codes.FailedPrecondition)
	})

	for _, tc := range []struct {
		name string
		cp   string
	}{
		{name: "garbage", cp: "not a checkpoint"},
		{name: "short root", cp: testOrigin + "\n3\nAAEC\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			be := memory.NewBackend()
			require.NoError(t, be.Put(ctx, CheckpointKey, []byte(tc.cp)))
			_, err := Open(ctx, hasher, newTiles(be), be, Options{Origin: testOrigin})
			requireCode(t, err, codes.DataLoss)
		})
	}

	t.Run("checkpoint read error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cps := storage.NewMockBackend(ctrl)
		cps.EXPECT().Get(gomock.Any(), CheckpointKey).Return(nil, errors.New("connection refused"))
		_, err := Open(ctx, hasher, NewMockTileStorage(ctrl), cps, Options{Origin: testOrigin})
		require.Error(t, err)
	})

	t.Run("nil storage", func(t *testing.T) {
		_, err := Open(ctx, hasher, nil, memory.NewBackend(), Options{Origin: testOrigin})
		require.Error(t, err)
	})
}

func TestTamperedTiles(t *testing.T) {
	ctx := context.Background()
	be := memory.NewBackend()
	l := openLog(t, be, 2, testOrigin)
	_, err := l.AppendBatch(ctx, testonly.EntryData(26))
	require.NoError(t, err)

	corrupt := func(t *testing.T, tl tile.Tile) {
		t.Helper()
		data, err := be.Get(ctx, tl.Path())
		require.NoError(t, err)
		data = append([]byte{}, data...)
		data[0] ^= 1
		require.NoError(t, be.Put(ctx, tl.Path(), data))
	}

	t.Run("proof", func(t *testing.T) {
		// Leaves 0 to 3.
		corrupt(t, tile.Tile{H: 2, L: 0, N: 0, W: 4})
		s := mtestonly.NewCounterSnapshot(inconsistentTiles)
		s.Record("inclusion")
		_, err := l.InclusionProof(ctx, 26, 1)
		requireCode(t, err, codes.DataLoss)
		require.Equal(t, 1.0, s.Delta("inclusion"))

		// Proofs not touching the tile still work.
		_, err = l.InclusionProof(ctx, 26, 20)
		require.NoError(t, err)
	})

	t.Run("open", func(t *testing.T) {
		// Leaves 24 and 25, on the right border of the tree.
		corrupt(t, tile.Tile{H: 2, L: 0, N: 6, W: 2})
		ts, err := storage.NewTileStore(be, 2, hasher.Size(), storage.TileStoreOptions{})
		require.NoError(t, err)
		_, err = Open(ctx, hasher, ts, be, Options{Origin: testOrigin})
		requireCode(t, err, codes.DataLoss)
	})
}

func TestMissingTiles(t *testing.T) {
	ctx := context.Background()
	be := memory.NewBackend()
	l := openLog(t, be, 2, testOrigin)
	_, err := l.AppendBatch(ctx, testonly.EntryData(10))
	require.NoError(t, err)

	for _, tc := range []struct {
		desc string
		tile tile.Tile
	}{
		{desc: "full", tile: tile.Tile{H: 2, L: 0, N: 0, W: 4}},
		{desc: "partial", tile: tile.Tile{H: 2, L: 0, N: 2, W: 2}},
		{desc: "level 1", tile: tile.Tile{H: 2, L: 1, N: 0, W: 2}},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := be.Get(ctx, tc.tile.Path())
			require.NoError(t, err, "tile %s was never written", tc.tile)

			hb := &hidingBackend{Backend: be, hidden: map[string]bool{tc.tile.Path(): true}}
			ts, err := storage.NewTileStore(hb, 2, hasher.Size(), storage.TileStoreOptions{})
			require.NoError(t, err)
			l2 := &Log{hasher: hasher, tiles: ts, cps: hb, origin: testOrigin, ts: l.ts, tree: l.snapshot()}

			s := mtestonly.NewCounterSnapshot(inconsistentTiles)
			s.Record("inclusion")
			_, err = l2.InclusionProof(ctx, 10, 0)
			requireCode(t, err, codes.DataLoss)
			require.Equal(t, 1.0, s.Delta("inclusion"))
		})
	}
}

func TestAppendRollback(t *testing.T) {
	ctx := context.Background()
	entries := testonly.EntryData(12)
	hashes := leafHashes(entries)

	for _, prefix := range []string{"tile/", CheckpointKey} {
		t.Run(prefix, func(t *testing.T) {
			be := &failingBackend{Backend: memory.NewBackend(), prefix: prefix}
			l := openLog(t, be, 2, testOrigin)
			_, err := l.AppendBatch(ctx, entries[:5])
			require.NoError(t, err)
			before := l.Checkpoint()

			s := mtestonly.NewCounterSnapshot(appendFailures)
			s.Record()
			be.setFail(true)
			_, err = l.AppendBatch(ctx, entries[5:9])
			require.Error(t, err)
			require.Equal(t, 1.0, s.Delta())
			require.Equal(t, before, l.Checkpoint())

			be.setFail(false)
			idx, err := l.AppendBatch(ctx, entries[5:9])
			require.NoError(t, err)
			require.Equal(t, uint64(5), idx)
			idx, err = l.AppendBatch(ctx, entries[9:])
			require.NoError(t, err)
			require.Equal(t, uint64(9), idx)
			require.Equal(t, proof.MTH(hasher, hashes), l.Root())

			l2 := openLog(t, be, 2, testOrigin)
			require.Equal(t, l.Checkpoint(), l2.Checkpoint())
			p, err := l2.InclusionProof(ctx, 12, 7)
			require.NoError(t, err)
			ok, err := l2.VerifyInclusionProof(hashes[7], p, l.Root())
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestAppendResetsTiles(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	tiles := NewMockTileStorage(ctrl)
	cps := storage.NewMockBackend(ctrl)

	cps.EXPECT().Get(gomock.Any(), CheckpointKey).Return(nil, storage.ErrTileNotFound)
	l, err := Open(ctx, hasher, tiles, cps, Options{Origin: testOrigin})
	require.NoError(t, err)

	gomock.InOrder(
		tiles.EXPECT().UpdateTiles(gomock.Any(), uint64(0), gomock.Any()).Return(nil, errors.New("out of memory")),
		tiles.EXPECT().Reset(),
	)
	_, err = l.Append(ctx, []byte("entry"))
	require.Error(t, err)
	require.Zero(t, l.Size())

	gomock.InOrder(
		tiles.EXPECT().UpdateTiles(gomock.Any(), uint64(0), gomock.Any()).Return(nil, nil),
		tiles.EXPECT().Height().Return(2),
		tiles.EXPECT().WriteTiles(gomock.Any(), []tile.Tile{{H: 2, L: 0, N: 0, W: 1}}).Return(nil),
		cps.EXPECT().Put(gomock.Any(), CheckpointKey, gomock.Any()).Return(errors.New("disk full")),
		tiles.EXPECT().Reset(),
	)
	_, err = l.Append(ctx, []byte("entry"))
	require.Error(t, err)
	require.Zero(t, l.Size())
}

func TestAppendLatency(t *testing.T) {
	h, ok := opLatency.(*monitoring.InertDistribution)
	if !ok {
		t.Skipf("latency histogram is %T", opLatency)
	}
	l := openLog(t, memory.NewBackend(), 2, testOrigin)
	l.ts = &clock.PredefinedFake{
		Base:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Delays: []time.Duration{0, 1500 * time.Millisecond},
	}
	count, sum := h.Info("append")
	_, err := l.Append(context.Background(), []byte("entry"))
	require.NoError(t, err)
	count2, sum2 := h.Info("append")
	require.Equal(t, count+1, count2)
	require.InDelta(t, 1.5, sum2-sum, 1e-9)
}

func TestConcurrentReads(t *testing.T) {
	ctx := context.Background()
	const n = 200
	entries := testonly.EntryData(n)
	hashes := leafHashes(entries)
	l := openLog(t, memory.NewBackend(), 3, testOrigin)

	var g errgroup.Group
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		for begin := 0; begin < n; begin += 7 {
			if _, err := l.AppendBatch(ctx, entries[begin:min(begin+7, n)]); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		r := r
		g.Go(func() error {
			for i := uint64(r); ; i += 5 {
				select {
				case <-done:
					return nil
				default:
				}
				cp := l.Checkpoint()
				if cp.Size == 0 {
					continue
				}
				index := i % cp.Size
				p, err := l.InclusionProof(ctx, cp.Size, index)
				if err != nil {
					return fmt.Errorf("InclusionProof(%d, %d): %v", cp.Size, index, err)
				}
				if ok, err := l.VerifyInclusionProof(hashes[index], p, cp.Root); err != nil || !ok {
					return fmt.Errorf("VerifyInclusionProof(%d, %d) = %v, %v", cp.Size, index, ok, err)
				}
				c, err := l.ConsistencyProof(ctx, index, cp.Size)
				if err != nil {
					return fmt.Errorf("ConsistencyProof(%d, %d): %v", index, cp.Size, err)
				}
				oldRoot, err := l.RootAt(ctx, index)
				if err != nil {
					return err
				}
				if ok, err := l.VerifyConsistencyProof(c, oldRoot, cp.Root); err != nil || !ok {
					return fmt.Errorf("VerifyConsistencyProof(%d, %d) = %v, %v", index, cp.Size, ok, err)
				}
			}
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, proof.MTH(hasher, hashes), l.Root())
}
