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

package posix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/tilelog/storage"
	"github.com/google/tilelog/storage/testonly"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestBackend(t *testing.T) {
	tester := &testonly.BackendTester{
		NewBackend: func(t *testing.T) storage.Backend { return newBackend(t) },
	}
	tester.RunAllTests(t)
}

func TestFileLayout(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	if err := b.Put(ctx, "tile/2/0/13.4", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(b.root, "tile", "2", "0", "13.4"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("file holds %q, want %q", got, "data")
	}

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Join(b.root, "tile", "2", "0"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	for _, key := range []string{"", "/etc/passwd", "../escape", "..", "tile/../../x", "tile//2"} {
		if err := b.Put(ctx, key, []byte{1}); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
		if _, err := b.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) succeeded, want error", key)
		}
	}
}

func TestNewBackendNoDir(t *testing.T) {
	if _, err := NewBackend(""); err == nil {
		t.Error("NewBackend(\"\") succeeded, want error")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newBackend(t)
	if err := b.Put(ctx, "checkpoint", []byte{1}); err == nil {
		t.Error("Put with cancelled context succeeded, want error")
	}
}
