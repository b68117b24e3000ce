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

package proof

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// InclusionProof is an audit path for the leaf at LeafIndex in the tree of
// size TreeSize.
type InclusionProof struct {
	TreeSize  uint64
	LeafIndex uint64
	Path      [][]byte
}

// ConsistencyProof proves that the tree of size NewSize extends the tree of
// size OldSize.
type ConsistencyProof struct {
	OldSize uint64
	NewSize uint64
	Path    [][]byte
}

// Field numbers of the binary encoding. Both proof kinds share the layout
// (size, size, repeated hash) so that a decoder can be written generically.
const (
	fieldFirst  protowire.Number = 1
	fieldSecond protowire.Number = 2
	fieldHash   protowire.Number = 3
)

// MarshalBinary encodes the proof in the protobuf wire format, with each
// hash length-prefixed.
func (p InclusionProof) MarshalBinary() ([]byte, error) {
	return marshalWire(p.TreeSize, p.LeafIndex, p.Path), nil
}

// UnmarshalBinary decodes a proof encoded by MarshalBinary.
func (p *InclusionProof) UnmarshalBinary(data []byte) error {
	size, index, path, err := unmarshalWire(data)
	if err != nil {
		return fmt.Errorf("inclusion proof: %w", err)
	}
	*p = InclusionProof{TreeSize: size, LeafIndex: index, Path: path}
	return nil
}

// MarshalBinary encodes the proof in the protobuf wire format, with each
// hash length-prefixed.
func (p ConsistencyProof) MarshalBinary() ([]byte, error) {
	return marshalWire(p.OldSize, p.NewSize, p.Path), nil
}

// UnmarshalBinary decodes a proof encoded by MarshalBinary.
func (p *ConsistencyProof) UnmarshalBinary(data []byte) error {
	size1, size2, path, err := unmarshalWire(data)
	if err != nil {
		return fmt.Errorf("consistency proof: %w", err)
	}
	*p = ConsistencyProof{OldSize: size1, NewSize: size2, Path: path}
	return nil
}

func marshalWire(first, second uint64, path [][]byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldFirst, protowire.VarintType)
	b = protowire.AppendVarint(b, first)
	b = protowire.AppendTag(b, fieldSecond, protowire.VarintType)
	b = protowire.AppendVarint(b, second)
	for _, h := range path {
		b = protowire.AppendTag(b, fieldHash, protowire.BytesType)
		b = protowire.AppendBytes(b, h)
	}
	return b
}

func unmarshalWire(b []byte) (uint64, uint64, [][]byte, error) {
	var first, second uint64
	var path [][]byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case (num == fieldFirst || num == fieldSecond) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, 0, nil, protowire.ParseError(n)
			}
			if num == fieldFirst {
				first = v
			} else {
				second = v
			}
			b = b[n:]
		case num == fieldHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, 0, nil, protowire.ParseError(n)
			}
			path = append(path, append([]byte(nil), v...))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, 0, nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return first, second, path, nil
}

type inclusionCBOR struct {
	_         struct{} `cbor:",toarray"`
	TreeSize  uint64
	LeafIndex uint64
	Path      [][]byte
}

type consistencyCBOR struct {
	_       struct{} `cbor:",toarray"`
	OldSize uint64
	NewSize uint64
	Path    [][]byte
}

// MarshalCBOR encodes the proof as the CBOR array [tree_size, leaf_index,
// [hash, ...]].
func (p InclusionProof) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(inclusionCBOR{TreeSize: p.TreeSize, LeafIndex: p.LeafIndex, Path: nonNil(p.Path)})
}

// UnmarshalCBOR decodes a proof encoded by MarshalCBOR.
func (p *InclusionProof) UnmarshalCBOR(data []byte) error {
	var v inclusionCBOR
	if err := cbor.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("inclusion proof: %w", err)
	}
	*p = InclusionProof{TreeSize: v.TreeSize, LeafIndex: v.LeafIndex, Path: v.Path}
	return nil
}

// MarshalCBOR encodes the proof as the CBOR array [old_size, new_size,
// [hash, ...]].
func (p ConsistencyProof) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(consistencyCBOR{OldSize: p.OldSize, NewSize: p.NewSize, Path: nonNil(p.Path)})
}

// UnmarshalCBOR decodes a proof encoded by MarshalCBOR.
func (p *ConsistencyProof) UnmarshalCBOR(data []byte) error {
	var v consistencyCBOR
	if err := cbor.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("consistency proof: %w", err)
	}
	*p = ConsistencyProof{OldSize: v.OldSize, NewSize: v.NewSize, Path: v.Path}
	return nil
}

func nonNil(path [][]byte) [][]byte {
	if path == nil {
		return [][]byte{}
	}
	return path
}

// MarshalText encodes the proof as a line holding the tree size and leaf
// index, followed by one base64 line per hash.
func (p InclusionProof) MarshalText() ([]byte, error) {
	return marshalText(p.TreeSize, p.LeafIndex, p.Path), nil
}

// UnmarshalText decodes a proof encoded by MarshalText.
func (p *InclusionProof) UnmarshalText(text []byte) error {
	size, index, path, err := unmarshalText(text)
	if err != nil {
		return fmt.Errorf("inclusion proof: %w", err)
	}
	*p = InclusionProof{TreeSize: size, LeafIndex: index, Path: path}
	return nil
}

// MarshalText encodes the proof as a line holding the old and new tree
// sizes, followed by one base64 line per hash.
func (p ConsistencyProof) MarshalText() ([]byte, error) {
	return marshalText(p.OldSize, p.NewSize, p.Path), nil
}

// UnmarshalText decodes a proof encoded by MarshalText.
func (p *ConsistencyProof) UnmarshalText(text []byte) error {
	size1, size2, path, err := unmarshalText(text)
	if err != nil {
		return fmt.Errorf("consistency proof: %w", err)
	}
	*p = ConsistencyProof{OldSize: size1, NewSize: size2, Path: path}
	return nil
}

func marshalText(first, second uint64, path [][]byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", first, second)
	for _, h := range path {
		buf.WriteString(base64.StdEncoding.EncodeToString(h))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func unmarshalText(text []byte) (uint64, uint64, [][]byte, error) {
	s := bufio.NewScanner(bytes.NewReader(text))
	if !s.Scan() {
		return 0, 0, nil, errors.New("missing header line")
	}
	fields := strings.Fields(s.Text())
	if len(fields) != 2 {
		return 0, 0, nil, fmt.Errorf("malformed header line %q", s.Text())
	}
	first, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, 0, nil, err
	}
	second, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, nil, err
	}
	var path [][]byte
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		h, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("proof[%d]: %w", len(path), err)
		}
		path = append(path, h)
	}
	return first, second, path, s.Err()
}
