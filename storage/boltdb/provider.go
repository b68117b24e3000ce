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

package boltdb

import (
	"errors"
	"flag"

	"github.com/google/tilelog/monitoring"
	"github.com/google/tilelog/storage"
	"k8s.io/klog/v2"
)

// StorageProviderName is the name of the storage provider.
const StorageProviderName = "bolt"

var boltPath = flag.String("bolt_path", "tilelog.db", "Database file for the bolt storage provider")

func init() {
	if err := storage.RegisterProvider(StorageProviderName, newBoltStorageProvider); err != nil {
		klog.Fatalf("Failed to register storage provider %s: %v", StorageProviderName, err)
	}
}

type boltProvider struct {
	b *Backend
}

func newBoltStorageProvider(_ monitoring.MetricFactory) (storage.Provider, error) {
	if *boltPath == "" {
		return nil, errors.New("boltdb: --bolt_path is empty")
	}
	b, err := Open(*boltPath)
	if err != nil {
		return nil, err
	}
	return &boltProvider{b: b}, nil
}

func (p *boltProvider) Backend() storage.Backend {
	return p.b
}

func (p *boltProvider) Close() error {
	return p.b.Close()
}
