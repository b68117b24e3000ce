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

// Package boltdb provides a storage.Backend backed by a single Bolt database
// file.
package boltdb

import (
	"context"
	"fmt"

	"github.com/google/tilelog/storage"
	bolt "go.etcd.io/bbolt"
)

var tilesBucket = []byte("tiles")

// Backend keeps all keys in one bucket of a Bolt database.
type Backend struct {
	db *bolt.DB
}

var _ storage.Backend = &Backend{}

// Open opens or creates the database file at path.
func Open(path string) (*Backend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltdb: opening %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tilesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("boltdb: creating bucket: %w", err)
	}
	return &Backend{db: db}, nil
}

// Get returns a copy of the value stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tilesBucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %q", storage.ErrTileNotFound, key)
		}
		// v is only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// Put stores data under key.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("boltdb: empty key")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tilesBucket).Put([]byte(key), append([]byte(nil), data...))
	})
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}
