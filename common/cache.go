// Copyright 2021-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrCacheMiss = errors.New("cache miss")
)

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// Cache is a two level byte cache. Values are lz4 compressed and kept in an
// in-process LRU; when a redis client is configured they are also written
// through to redis so that several processes share them.
type Cache struct {
	local *lru.Cache
	rdb   *redis.Client

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewCache creates a cache holding up to size entries locally. rdb may be nil.
func NewCache(size int, rdb *redis.Client) (*Cache, error) {
	if size <= 0 {
		size = 128
	}

	local, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}

	return &Cache{
		local: local,
		rdb:   rdb,
		Now:   time.Now,
	}, nil
}

// SetupCache builds the cache described by the cache.* configuration keys
func SetupCache() (*Cache, error) {
	var rdb *redis.Client
	if viper.GetBool("cache.redis") {
		opt, err := redis.ParseURL(viper.GetString("cache.redis_url"))
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return nil, err
		}
		rdb = redis.NewClient(opt)
	}

	return NewCache(viper.GetInt("cache.local_size"), rdb)
}

// Set stores value under key for ttl. A zero ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	compressed, err := Compress(value)
	if err != nil {
		return err
	}

	entry := cacheEntry{data: compressed}
	if ttl > 0 {
		entry.expires = c.Now().Add(ttl)
	}
	c.local.Add(key, entry)

	if c.rdb != nil {
		return c.rdb.Set(ctx, key, compressed, ttl).Err()
	}
	return nil
}

// Get returns the value stored under key or ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.local.Get(key); ok {
		entry := v.(cacheEntry)
		if entry.expires.IsZero() || c.Now().Before(entry.expires) {
			return Decompress(entry.data)
		}
		c.local.Remove(key)
	}

	if c.rdb == nil {
		return nil, ErrCacheMiss
	}

	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	if ttl, err := c.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		c.local.Add(key, cacheEntry{data: val, expires: c.Now().Add(ttl)})
	}

	return Decompress(val)
}

// Delete removes keys from both levels
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.local.Remove(key)
	}

	if c.rdb != nil && len(keys) > 0 {
		return c.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

// Purge empties the local level
func (c *Cache) Purge() {
	c.local.Purge()
}
