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

package postgresql

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/google/tilelog/monitoring"
	"github.com/google/tilelog/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"k8s.io/klog/v2"
)

// StorageProviderName is the name of the storage provider.
const StorageProviderName = "postgresql"

var (
	postgreSQLURI        = flag.String("postgresql_uri", "postgresql:///defaultdb?host=localhost&user=test", "Connection URI for PostgreSQL database")
	postgresqlTLSCA      = flag.String("postgresql_tls_ca", "", "Path to the CA certificate file for PostgreSQL TLS connection ")
	postgresqlVerifyFull = flag.Bool("postgresql_verify_full", false, "Enable full TLS verification for PostgreSQL (sslmode=verify-full). If false, only sslmode=verify-ca is used.")
	createTables         = flag.Bool("postgresql_create_tables", false, "Create the tiles table on startup if it does not exist")

	postgresqlMu              sync.Mutex
	postgresqlErr             error
	postgresqlDB              *pgxpool.Pool
	postgresqlStorageInstance *postgresqlProvider
)

// GetDatabase returns an instance of PostgreSQL database, or creates one.
func GetDatabase() (*pgxpool.Pool, error) {
	postgresqlMu.Lock()
	defer postgresqlMu.Unlock()
	return getPostgreSQLDatabaseLocked()
}

func init() {
	if err := storage.RegisterProvider(StorageProviderName, newPostgreSQLStorageProvider); err != nil {
		klog.Fatalf("Failed to register storage provider %s: %v", StorageProviderName, err)
	}
}

type postgresqlProvider struct {
	db *pgxpool.Pool
	b  *Backend
}

func newPostgreSQLStorageProvider(_ monitoring.MetricFactory) (storage.Provider, error) {
	postgresqlMu.Lock()
	defer postgresqlMu.Unlock()
	if postgresqlStorageInstance == nil {
		db, err := getPostgreSQLDatabaseLocked()
		if err != nil {
			return nil, err
		}
		if *createTables {
			if _, err := db.Exec(context.TODO(), Schema); err != nil {
				return nil, fmt.Errorf("postgresql: creating schema: %w", err)
			}
		}
		postgresqlStorageInstance = &postgresqlProvider{
			db: db,
			b:  NewBackend(db),
		}
	}
	return postgresqlStorageInstance, nil
}

// BuildPostgresTLSURI adds the TLS settings given by the postgresql_tls_ca
// and postgresql_verify_full flags to uri.
func BuildPostgresTLSURI(uri string) (string, error) {
	if *postgresqlTLSCA == "" {
		return uri, nil
	}
	if _, err := os.Stat(*postgresqlTLSCA); err != nil {
		return "", fmt.Errorf("postgresql CA file error: %w", err)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid postgresql URI %q: %w", uri, err)
	}
	q := u.Query()
	q.Set("sslrootcert", *postgresqlTLSCA)
	if *postgresqlVerifyFull {
		q.Set("sslmode", "verify-full")
	} else if q.Get("sslmode") == "" {
		q.Set("sslmode", "verify-ca")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// getPostgreSQLDatabaseLocked returns an instance of PostgreSQL database, or creates
// one. Requires postgresqlMu to be locked.
func getPostgreSQLDatabaseLocked() (*pgxpool.Pool, error) {
	if postgresqlDB != nil || postgresqlErr != nil {
		return postgresqlDB, postgresqlErr
	}
	uri, err := BuildPostgresTLSURI(*postgreSQLURI)
	if err != nil {
		postgresqlErr = err
		return nil, err
	}
	db, err := OpenDB(uri)
	if err != nil {
		postgresqlErr = err
		return nil, err
	}
	postgresqlDB, postgresqlErr = db, nil
	return db, nil
}

func (s *postgresqlProvider) Backend() storage.Backend {
	return s.b
}

func (s *postgresqlProvider) Close() error {
	s.db.Close()
	return nil
}
