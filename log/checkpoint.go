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
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CheckpointKey is the backend key the checkpoint is stored under.
const CheckpointKey = "checkpoint"

// Checkpoint is the state of a log: its size and root hash, and the origin
// string naming the log.
//
// It is encoded as the body of a checkpoint note:
//
//	<origin>
//	<size>
//	<base64 root>
type Checkpoint struct {
	Origin string
	Size   uint64
	Root   []byte
}

// Marshal returns the text encoding of the checkpoint.
func (c Checkpoint) Marshal() []byte {
	return []byte(fmt.Sprintf("%s\n%d\n%s\n", c.Origin, c.Size, base64.StdEncoding.EncodeToString(c.Root)))
}

// String returns the checkpoint on one line, for logging.
func (c Checkpoint) String() string {
	return fmt.Sprintf("%s@%d:%x", c.Origin, c.Size, c.Root)
}

// ParseCheckpoint decodes a checkpoint encoded by Marshal.
func ParseCheckpoint(data []byte) (Checkpoint, error) {
	if !bytes.HasSuffix(data, []byte("\n")) {
		return Checkpoint{}, errors.New("checkpoint: missing final newline")
	}
	lines := strings.Split(string(data[:len(data)-1]), "\n")
	if len(lines) != 3 {
		return Checkpoint{}, fmt.Errorf("checkpoint: got %d lines, want 3", len(lines))
	}
	origin := lines[0]
	if origin == "" {
		return Checkpoint{}, errors.New("checkpoint: empty origin")
	}
	// ParseUint accepts a leading "+" and leading zeros, which Marshal never
	// writes.
	if s := lines[1]; s == "" || s[0] == '+' || (len(s) > 1 && s[0] == '0') {
		return Checkpoint{}, fmt.Errorf("checkpoint: malformed size %q", s)
	}
	size, err := strconv.ParseUint(lines[1], 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: malformed size: %w", err)
	}
	root, err := base64.StdEncoding.DecodeString(lines[2])
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: malformed root: %w", err)
	}
	return Checkpoint{Origin: origin, Size: size, Root: root}, nil
}
