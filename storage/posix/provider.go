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
	"flag"

	"github.com/google/tilelog/monitoring"
	"github.com/google/tilelog/storage"
	"k8s.io/klog/v2"
)

// StorageProviderName is the name of the storage provider.
const StorageProviderName = "posix"

var tileDir = flag.String("tile_dir", "", "Directory holding the tiles, for the posix storage provider")

func init() {
	if err := storage.RegisterProvider(StorageProviderName, newPosixStorageProvider); err != nil {
		klog.Fatalf("Failed to register storage provider %s: %v", StorageProviderName, err)
	}
}

type posixProvider struct {
	b *Backend
}

func newPosixStorageProvider(_ monitoring.MetricFactory) (storage.Provider, error) {
	b, err := NewBackend(*tileDir)
	if err != nil {
		return nil, err
	}
	return &posixProvider{b: b}, nil
}

func (p *posixProvider) Backend() storage.Backend {
	return p.b
}

func (p *posixProvider) Close() error {
	return nil
}
