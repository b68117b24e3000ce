// Copyright 2024 Google LLC. All Rights Reserved.
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

// Package postgresql provides a PostgreSQL-based storage.Backend.
package postgresql

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/tilelog/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"k8s.io/klog/v2"
)

const (
	selectTileSQL = "SELECT data FROM tiles WHERE path = $1"
	upsertTileSQL = "INSERT INTO tiles(path, data) VALUES($1, $2) ON CONFLICT (path) DO UPDATE SET data = excluded.data"
)

// Schema is the SQL script which creates the tables used by Backend.
//
//go:embed schema/storage.sql
var Schema string

// OpenDB opens a database connection pool for all PostgreSQL-based storage
// implementations.
func OpenDB(dbURL string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(context.TODO(), dbURL)
	if err != nil {
		// Don't log uri as it could contain credentials
		klog.Warningf("Could not open PostgreSQL database, check config: %s", err)
		return nil, err
	}
	return db, nil
}

// Backend stores tiles as rows of the tiles table.
type Backend struct {
	db *pgxpool.Pool
}

var _ storage.Backend = &Backend{}

// NewBackend returns a Backend using db, which must hold the tiles table.
func NewBackend(db *pgxpool.Pool) *Backend {
	return &Backend{db: db}
}

// Get returns the data stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(ctx, selectTileSQL, key).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("%w: %q", storage.ErrTileNotFound, key)
	case err != nil:
		return nil, fmt.Errorf("postgresql: reading %q: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Put inserts or replaces the data stored under key.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	if _, err := b.db.Exec(ctx, upsertTileSQL, key, data); err != nil {
		klog.Warningf("Failed to write %q: %v", key, err)
		return postgresqlToGRPC(err)
	}
	return nil
}
