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

package data

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// QuoteTTL bounds how long a cached quote survives without a refresh
const QuoteTTL = 24 * time.Hour

// ByteCache is the storage CachedQuotes keeps quotes in
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SessionCalendar reports whether any trading happened between two instants
type SessionCalendar interface {
	SessionElapsedBetween(t0, t1 time.Time) bool
}

// CachedQuotes serves quotes from a cache until a trading session has elapsed
// since they were fetched. Outside trading hours the previous close is reused
// without calling the upstream provider.
type CachedQuotes struct {
	provider portfolio.QuoteProvider
	cache    ByteCache
	calendar SessionCalendar

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewCachedQuotes wraps provider with a session aware cache
func NewCachedQuotes(provider portfolio.QuoteProvider, cache ByteCache, calendar SessionCalendar) *CachedQuotes {
	return &CachedQuotes{
		provider: provider,
		cache:    cache,
		calendar: calendar,
		Now:      time.Now,
	}
}

// Quotes returns cached quotes when they are still current and fetches the
// rest. If the upstream fetch fails the cached subset is returned.
func (c *CachedQuotes) Quotes(ctx context.Context, codes []string) (map[string]portfolio.Quote, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "quotecache.Quotes")
	defer span.End()

	now := c.Now()
	cached := make(map[string]portfolio.Quote, len(codes))
	missing := codes

	if c.fresh(ctx, now) {
		missing = make([]string, 0, len(codes))
		for _, code := range codes {
			if q, ok := c.load(ctx, code); ok {
				cached[code] = q
				continue
			}
			missing = append(missing, code)
		}
	}

	span.SetAttributes(
		attribute.Int("Cached", len(cached)),
		attribute.Int("Missing", len(missing)),
	)

	if len(missing) == 0 {
		return cached, nil
	}

	fetched, err := c.provider.Quotes(ctx, missing)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Strs("Codes", missing).Msg("could not fetch quotes; serving cached subset")
		if len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}

	for code, q := range fetched {
		c.store(ctx, code, q)
		cached[code] = q
	}
	c.stamp(ctx, now)

	return cached, nil
}

// Clear marks every cached quote stale
func (c *CachedQuotes) Clear(ctx context.Context) error {
	return c.cache.Delete(ctx, common.QuoteTimestampKey)
}

func (c *CachedQuotes) fresh(ctx context.Context, now time.Time) bool {
	raw, err := c.cache.Get(ctx, common.QuoteTimestampKey)
	if err != nil {
		if !errors.Is(err, common.ErrCacheMiss) {
			log.Warn().Err(err).Msg("could not read quote cache timestamp")
		}
		return false
	}

	var fetchedAt time.Time
	if err := fetchedAt.UnmarshalText(raw); err != nil {
		log.Warn().Err(err).Bytes("Timestamp", raw).Msg("invalid quote cache timestamp")
		return false
	}

	return !c.calendar.SessionElapsedBetween(fetchedAt, now)
}

func (c *CachedQuotes) load(ctx context.Context, code string) (portfolio.Quote, bool) {
	raw, err := c.cache.Get(ctx, common.QuoteCacheKey(code))
	if err != nil {
		return portfolio.Quote{}, false
	}

	var q portfolio.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		log.Warn().Err(err).Str("Code", code).Msg("discarding undecodable cached quote")
		return portfolio.Quote{}, false
	}
	return q, true
}

func (c *CachedQuotes) store(ctx context.Context, code string, q portfolio.Quote) {
	raw, err := json.Marshal(q)
	if err != nil {
		log.Warn().Err(err).Str("Code", code).Msg("could not encode quote")
		return
	}
	if err := c.cache.Set(ctx, common.QuoteCacheKey(code), raw, QuoteTTL); err != nil {
		log.Warn().Err(err).Str("Code", code).Msg("could not cache quote")
	}
}

func (c *CachedQuotes) stamp(ctx context.Context, now time.Time) {
	raw, err := now.MarshalText()
	if err != nil {
		log.Warn().Err(err).Msg("could not encode quote cache timestamp")
		return
	}
	if err := c.cache.Set(ctx, common.QuoteTimestampKey, raw, QuoteTTL); err != nil {
		log.Warn().Err(err).Msg("could not write quote cache timestamp")
	}
}
