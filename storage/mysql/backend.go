// Copyright 2016 Google LLC. All Rights Reserved.
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

// Package mysql provides a MySQL-based storage.Backend.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/tilelog/storage"
	"k8s.io/klog/v2"
)

const (
	selectTileSQL = "SELECT Data FROM Tiles WHERE Path = ?"
	upsertTileSQL = "INSERT INTO Tiles(Path, Data) VALUES(?, ?) ON DUPLICATE KEY UPDATE Data = VALUES(Data)"
)

// Schema is the SQL script which creates the tables used by Backend.
//
//go:embed schema/storage.sql
var Schema string

// OpenDB opens a database connection for all MySQL-based storage implementations.
func OpenDB(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		// Don't log uri as it could contain credentials
		klog.Warningf("Could not open MySQL database, check config: %s", err)
		return nil, err
	}

	if _, err := db.ExecContext(context.TODO(), "SET sql_mode = 'STRICT_ALL_TABLES'"); err != nil {
		klog.Warningf("Failed to set strict mode on mysql db: %s", err)
		db.Close()
		return nil, err
	}

	return db, nil
}

// Backend stores tiles as rows of the Tiles table.
type Backend struct {
	db *sql.DB
}

var _ storage.Backend = &Backend{}

// NewBackend returns a Backend using db, which must hold the Tiles table.
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
		return nil, fmt.Errorf("mysql: reading %q: %w", key, err)
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
	if _, err := b.db.ExecContext(ctx, upsertTileSQL, key, data); err != nil {
		klog.Warningf("Failed to write %q: %v", key, err)
		return mysqlToGRPC(err)
	}
	return nil
}
