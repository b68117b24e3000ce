// Copyright 2018 Google LLC. All Rights Reserved.
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

package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// ER_LOCK_DEADLOCK: Error returned when there was a deadlock.
	errNumDeadlock = 1213
	// ER_LOCK_WAIT_TIMEOUT: Error returned when a lock could not be taken in time.
	errNumLockWaitTimeout = 1205
)

// mysqlToGRPC converts retriable MySQL errors to Aborted status errors, so
// callers can tell that the write may be retried.
func mysqlToGRPC(err error) error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return err
	}
	switch mysqlErr.Number {
	case errNumDeadlock, errNumLockWaitTimeout:
		return status.Errorf(codes.Aborted, "MySQL: %v", mysqlErr)
	}
	return err
}
