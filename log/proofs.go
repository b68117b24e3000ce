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

	"github.com/google/tilelog/merkle/compact"
	"github.com/google/tilelog/merkle/proof"
	"github.com/google/tilelog/merkle/tile"
	"github.com/google/tilelog/util/clock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// hashReader returns a reader of the hashes of the snapshot t. The reader
// only returns hashes from tiles matching the snapshot's root.
func (l *Log) hashReader(t *compact.Tree) proof.HashReader {
	return tile.NewHashReader(t.Size(), t.CurrentRoot(), l.tiles, l.hasher)
}

func (l *Log) observe(op string) func() {
	start := l.ts.Now()
	return func() { opLatency.Observe(clock.SecondsSince(l.ts, start), op) }
}

// RootAt returns the root hash of the log when it had the given size.
func (l *Log) RootAt(ctx context.Context, size uint64) ([]byte, error) {
	defer l.observe("root")()
	t := l.snapshot()
	if size > t.Size() {
		return nil, status.Errorf(codes.OutOfRange, "tree size %d beyond log size %d", size, t.Size())
	}
	if size == t.Size() {
		return t.CurrentRoot(), nil
	}
	root, err := proof.RootHash(ctx, l.hasher, l.hashReader(t), size)
	if err != nil {
		return nil, l.readError("root", err)
	}
	return root, nil
}

// InclusionProof returns the proof that the leaf at leafIndex is included in
// the log at treeSize.
func (l *Log) InclusionProof(ctx context.Context, treeSize, leafIndex uint64) (proof.InclusionProof, error) {
	defer l.observe("inclusion")()
	t := l.snapshot()
	if leafIndex >= treeSize {
		return proof.InclusionProof{}, status.Errorf(codes.InvalidArgument, "leaf index %d out of range for tree size %d", leafIndex, treeSize)
	}
	if treeSize > t.Size() {
		return proof.InclusionProof{}, status.Errorf(codes.OutOfRange, "tree size %d beyond log size %d", treeSize, t.Size())
	}
	path, err := proof.Inclusion(ctx, l.hasher, l.hashReader(t), leafIndex, treeSize)
	if err != nil {
		return proof.InclusionProof{}, l.readError("inclusion", err)
	}
	return proof.InclusionProof{TreeSize: treeSize, LeafIndex: leafIndex, Path: path}, nil
}

// ConsistencyProof returns the proof that the log at newSize is an
// append-only extension of the log at oldSize.
func (l *Log) ConsistencyProof(ctx context.Context, oldSize, newSize uint64) (proof.ConsistencyProof, error) {
	defer l.observe("consistency")()
	t := l.snapshot()
	if oldSize > newSize {
		return proof.ConsistencyProof{}, status.Errorf(codes.InvalidArgument, "old size %d > new size %d", oldSize, newSize)
	}
	if newSize > t.Size() {
		return proof.ConsistencyProof{}, status.Errorf(codes.OutOfRange, "tree size %d beyond log size %d", newSize, t.Size())
	}
	path, err := proof.Consistency(ctx, l.hasher, l.hashReader(t), oldSize, newSize)
	if err != nil {
		return proof.ConsistencyProof{}, l.readError("consistency", err)
	}
	if path == nil {
		path = [][]byte{}
	}
	return proof.ConsistencyProof{OldSize: oldSize, NewSize: newSize, Path: path}, nil
}

// VerifyInclusionProof reports whether p proves that leafHash is included in
// the tree with the given root. It returns an InvalidArgument error, rather
// than false, if the proof cannot be checked at all.
func (l *Log) VerifyInclusionProof(leafHash []byte, p proof.InclusionProof, root []byte) (bool, error) {
	return verifyResult(proof.VerifyInclusion(l.hasher, p.LeafIndex, p.TreeSize, leafHash, p.Path, root))
}

// VerifyConsistencyProof reports whether p proves that the tree with newRoot
// extends the tree with oldRoot.
func (l *Log) VerifyConsistencyProof(p proof.ConsistencyProof, oldRoot, newRoot []byte) (bool, error) {
	return verifyResult(proof.VerifyConsistency(l.hasher, p.OldSize, p.NewSize, p.Path, oldRoot, newRoot))
}

func verifyResult(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case proof.IsVerificationFailure(err):
		return false, nil
	default:
		return false, status.Errorf(codes.InvalidArgument, "%v", err)
	}
}
