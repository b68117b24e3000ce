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

// Package rediscache implements a storage.Backend over Redis, for use as the
// full tile cache of a storage.TileStore.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/tilelog/storage"
)

// RedisClient is the subset of the Redis client methods used by Cache. It
// allows selecting among different Redis client implementations (e.g.
// regular Redis, Redis Cluster, sharded, etc.)
type RedisClient interface {
	Get(key string) *redis.StringCmd
	Set(key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache stores values in Redis under a common key prefix, each expiring
// after a fixed TTL. A zero TTL keeps values until Redis evicts them.
type Cache struct {
	c      RedisClient
	prefix string
	ttl    time.Duration
}

var _ storage.Backend = &Cache{}

// New returns a Cache using client. Keys are stored as prefix+key.
func New(client RedisClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{c: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached value for key, or storage.ErrTileNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	client := withClientContext(ctx, c.c)
	data, err := client.Get(c.prefix + key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%w: %q", storage.ErrTileNotFound, key)
	case err != nil:
		return nil, fmt.Errorf("rediscache: GET %q: %w", key, err)
	}
	return data, nil
}

// Put caches data under key.
func (c *Cache) Put(ctx context.Context, key string, data []byte) error {
	client := withClientContext(ctx, c.c)
	if err := client.Set(c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: SET %q: %w", key, err)
	}
	return nil
}

// Each Redis client type has a WithContext method returning its own concrete
// type, so the method cannot be part of RedisClient.
func withClientContext(ctx context.Context, client RedisClient) RedisClient {
	type withContextable interface {
		WithContext(context.Context) RedisClient
	}

	switch c := client.(type) {
	case *redis.Client:
		return c.WithContext(ctx)
	case *redis.ClusterClient:
		return c.WithContext(ctx)
	case *redis.Ring:
		return c.WithContext(ctx)
	case withContextable:
		return c.WithContext(ctx)
	}
	return client
}
