// Copyright 2017 Google LLC. All Rights Reserved.
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

// Package testdb creates new, randomly named MySQL and CockroachDB databases
// for tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/lib/pq"              // postgres driver, used for CockroachDB
)

const (
	// MySQLURIEnv is the name of the ENV variable checked for the test MySQL
	// instance URI to use. The value must have a trailing slash.
	MySQLURIEnv = "TEST_MYSQL_URI"
	// CockroachDBURIEnv is the name of the ENV variable checked for the test
	// CockroachDB instance URI to use. The value must have a trailing slash
	// before the query.
	CockroachDBURIEnv = "TEST_COCKROACHDB_URI"

	// sql.Open for MySQL requires the URI to end with a slash.
	defaultTestMySQLURI       = "root@tcp(127.0.0.1)/"
	defaultTestCockroachDBURI = "postgres://root@localhost:26257/?sslmode=disable"
)

// DriverName is the name of a database driver.
type DriverName string

const (
	// DriverMySQL is the identifier for the MySQL storage driver.
	DriverMySQL DriverName = "mysql"
	// DriverCockroachDB is the identifier for the CockroachDB storage driver.
	DriverCockroachDB DriverName = "cockroachdb"
)

type driverInfo struct {
	sqlDriver string
	envVar    string
	defURI    string
	// uriFunc adds a database name to a base URI.
	uriFunc func(base, name string) string
}

var drivers = map[DriverName]driverInfo{
	DriverMySQL: {
		sqlDriver: "mysql",
		envVar:    MySQLURIEnv,
		defURI:    defaultTestMySQLURI,
		uriFunc:   func(base, name string) string { return base + name },
	},
	DriverCockroachDB: {
		sqlDriver: "postgres",
		envVar:    CockroachDBURIEnv,
		defURI:    defaultTestCockroachDBURI,
		uriFunc: func(base, name string) string {
			if i := strings.Index(base, "/?"); i >= 0 {
				return base[:i+1] + name + base[i+1:]
			}
			return base + name
		},
	},
}

// baseURI returns the connection URI to use for tests of the given driver.
//
// An ENV variable is used rather than a flag: only the tests which need a
// database import this package, and ENV can be applied to all of them at once.
func baseURI(d DriverName) string {
	inf := drivers[d]
	if e := os.Getenv(inf.envVar); len(e) > 0 {
		return e
	}
	return inf.defURI
}

// Available indicates whether the configured database for d is reachable.
func Available(d DriverName) bool {
	inf, ok := drivers[d]
	if !ok {
		return false
	}
	db, err := sql.Open(inf.sqlDriver, baseURI(d))
	if err != nil {
		klog.Infof("sql.Open(%s): %v", d, err)
		return false
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		klog.Infof("db.Ping(%s): %v", d, err)
		return false
	}
	return true
}

// MySQLAvailable indicates whether the configured MySQL database is available.
func MySQLAvailable() bool {
	return Available(DriverMySQL)
}

// CockroachDBAvailable indicates whether the configured CockroachDB database
// is available.
func CockroachDBAvailable() bool {
	return Available(DriverCockroachDB)
}

// SetFDLimit sets the soft limit on the maximum number of open file descriptors.
// See http://man7.org/linux/man-pages/man2/setrlimit.2.html
func SetFDLimit(uLimit uint64) error {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return err
	}
	if uLimit > rLimit.Max {
		return fmt.Errorf("could not set FD limit to %v: must be less than the hard limit %v", uLimit, rLimit.Max)
	}
	rLimit.Cur = uLimit
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
}

// newEmptyDB creates a new, empty database. The returned clean-up function
// drops it; the DB must not be used after calling it.
func newEmptyDB(ctx context.Context, d DriverName) (*sql.DB, func(context.Context), error) {
	inf, ok := drivers[d]
	if !ok {
		return nil, nil, fmt.Errorf("unknown driver %q", d)
	}
	if err := SetFDLimit(2048); err != nil {
		return nil, nil, err
	}
	base := baseURI(d)
	db, err := sql.Open(inf.sqlDriver, base)
	if err != nil {
		return nil, nil, err
	}

	name := fmt.Sprintf("tiles_%v", time.Now().UnixNano())
	stmt := fmt.Sprintf("CREATE DATABASE %v", name)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("error running statement %q: %v", stmt, err)
	}
	db.Close()

	db, err = sql.Open(inf.sqlDriver, inf.uriFunc(base, name))
	if err != nil {
		return nil, nil, err
	}
	done := func(ctx context.Context) {
		defer db.Close()
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE %v", name)); err != nil {
			klog.Warningf("Failed to drop test database %q: %v", name, err)
		}
	}
	return db, done, db.PingContext(ctx)
}

// NewTileDB creates a randomly named database for driver d and runs the
// statements of schema in it.
func NewTileDB(ctx context.Context, d DriverName, schema string) (*sql.DB, func(context.Context), error) {
	db, done, err := newEmptyDB(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	for _, stmt := range Statements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			done(ctx)
			return nil, nil, fmt.Errorf("error running statement %q: %v", stmt, err)
		}
	}
	return db, done, nil
}

// Statements splits a schema script into statements, dropping comments and
// blank lines.
func Statements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	var stmts []string
	for _, s := range strings.Split(b.String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// SkipIfNoMySQL is a test helper that skips tests that require a local MySQL.
func SkipIfNoMySQL(t *testing.T) {
	t.Helper()
	if !MySQLAvailable() {
		t.Skip("Skipping test as MySQL not available")
	}
	t.Logf("Test MySQL available at %q", baseURI(DriverMySQL))
}

// SkipIfNoCockroachDB is a test helper that skips tests that require a local
// CockroachDB.
func SkipIfNoCockroachDB(t *testing.T) {
	t.Helper()
	if !CockroachDBAvailable() {
		t.Skip("Skipping test as CockroachDB not available")
	}
	t.Logf("Test CockroachDB available at %q", baseURI(DriverCockroachDB))
}
