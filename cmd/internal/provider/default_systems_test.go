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

package provider

import (
	"slices"
	"testing"

	"github.com/google/tilelog/storage"
)

func TestProvidersLinked(t *testing.T) {
	providers := storage.Providers()
	for _, want := range []string{"bolt", "crdb", "memory", "mysql", "posix", "postgresql"} {
		if !slices.Contains(providers, want) {
			t.Errorf("storage provider %q not registered, have %v", want, providers)
		}
	}
	if DefaultStorageSystem != "posix" {
		t.Errorf("DefaultStorageSystem = %q, want posix", DefaultStorageSystem)
	}
}
