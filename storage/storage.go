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

// Package storage holds the tiles and checkpoint of a log in a pluggable
// key/value Backend, selected by name from a registry of providers.
package storage

import (
	"context"
	"errors"
)

// ErrTileNotFound is returned by a Backend for a key with no data.
var ErrTileNotFound = errors.New("tile not found")

// Backend is a byte store keyed by path. The keys used by a log are tile
// paths, as returned by tile.Tile.Path, and "checkpoint".
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the data stored under key. It returns an error wrapping
	// ErrTileNotFound if there is none.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
}
