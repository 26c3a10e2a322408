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

package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/penny-vault/pv-holdings/common"
	"github.com/rs/zerolog/log"
)

const (
	// LedgerTTL bounds how long a cached ledger is trusted without a write
	LedgerTTL = 10 * time.Hour

	operationsKey = "operations"
	cashFlowsKey  = "cashflows"
	incomeKey     = "income"
)

var userKeys = []string{operationsKey, cashFlowsKey, incomeKey}

// Cache holds per-user derived data. Writers call Invalidate after every
// mutation of the user's ledger.
type Cache interface {
	Get(ctx context.Context, userID, name string) ([]byte, bool)
	Set(ctx context.Context, userID, name string, value []byte)
	Invalidate(ctx context.Context, userID string)
}

// ByteCache is the key/value store a UserCache is built on
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// UserCache namespaces entries by user in a shared byte cache
type UserCache struct {
	store ByteCache
	ttl   time.Duration
}

// NewUserCache creates a cache whose entries expire after ttl
func NewUserCache(store ByteCache, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = LedgerTTL
	}
	return &UserCache{
		store: store,
		ttl:   ttl,
	}
}

func (c *UserCache) Get(ctx context.Context, userID, name string) ([]byte, bool) {
	val, err := c.store.Get(ctx, common.UserCacheKey(userID, name))
	if err != nil {
		if !errors.Is(err, common.ErrCacheMiss) {
			log.Warn().Err(err).Str("UserID", userID).Str("Name", name).Msg("cache read failed")
		}
		return nil, false
	}
	return val, true
}

func (c *UserCache) Set(ctx context.Context, userID, name string, value []byte) {
	if err := c.store.Set(ctx, common.UserCacheKey(userID, name), value, c.ttl); err != nil {
		log.Warn().Err(err).Str("UserID", userID).Str("Name", name).Msg("cache write failed")
	}
}

// Invalidate drops every entry cached for the user
func (c *UserCache) Invalidate(ctx context.Context, userID string) {
	keys := make([]string, len(userKeys))
	for idx, name := range userKeys {
		keys[idx] = common.UserCacheKey(userID, name)
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		log.Error().Err(err).Str("UserID", userID).Msg("cache invalidation failed")
	}
}
