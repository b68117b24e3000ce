// Copyright 2022 Google LLC. All Rights Reserved.
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

// Package crdb provides a CockroachDB-based storage.Backend.
package crdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/google/tilelog/storage"
	"k8s.io/klog/v2"
)

const (
	selectTileSQL = "SELECT data FROM tiles WHERE path = $1"
	upsertTileSQL = "UPSERT INTO tiles(path, data) VALUES($1, $2)"
)

// Schema is the SQL script which creates the tables used by Backend.
//
//go:embed schema/storage.sql
var Schema string

// OpenDB opens a database connection for all CockroachDB-based storage
// implementations.
func OpenDB(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		klog.Warningf("Failed to open CRDB database: %v", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		klog.Warningf("failed verifying database connection: %v", err)
		db.Close()
		return nil, err
	}

	return db, nil
}

// Backend stores tiles as rows of the tiles table.
type Backend struct {
	db *sql.DB
}

var _ storage.Backend = &Backend{}

// NewBackend returns a Backend using db, which must hold the tiles table.
func NewBackend(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// Get returns the data stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, selectTileSQL, key).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %q", storage.ErrTileNotFound, key)
	case err != nil:
		return nil, fmt.Errorf("crdb: reading %q: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Put upserts the data stored under key. Transaction retries reported by
// CockroachDB are handled by crdb.ExecuteTx.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	err := crdb.ExecuteTx(ctx, b.db, nil, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsertTileSQL, key, data)
		return err
	})
	if err != nil {
		klog.Warningf("Failed to write %q: %v", key, err)
		return fmt.Errorf("crdb: writing %q: %w", key, err)
	}
	return nil
}
