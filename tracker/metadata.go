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
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/rs/zerolog/log"
)

// MetadataSource loads the reference data of every known instrument
type MetadataSource interface {
	Metadata(ctx context.Context) (portfolio.MetadataMap, error)
}

type metadataEntry struct {
	meta  portfolio.InstrumentMetadata
	found bool
}

// MetadataCache is a read-through LRU over a MetadataSource. A miss reloads
// the source at most once per refresh interval; codes the source does not
// know are remembered as absent until the next reload.
type MetadataCache struct {
	source  MetadataSource
	entries *lru.Cache
	timeout time.Duration
	refresh time.Duration

	mu       sync.Mutex
	loadedAt time.Time

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewMetadataCache creates a cache holding up to size instruments
func NewMetadataCache(source MetadataSource, size int) (*MetadataCache, error) {
	if size <= 0 {
		size = 4096
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MetadataCache{
		source:  source,
		entries: entries,
		timeout: 10 * time.Second,
		refresh: time.Hour,
		Now:     time.Now,
	}, nil
}

// Metadata implements portfolio.MetadataLookup
func (m *MetadataCache) Metadata(code string) (portfolio.InstrumentMetadata, bool) {
	if v, ok := m.entries.Get(code); ok {
		entry := v.(metadataEntry)
		return entry.meta, entry.found
	}

	m.mu.Lock()
	stale := m.loadedAt.IsZero() || m.Now().Sub(m.loadedAt) >= m.refresh
	m.mu.Unlock()

	if stale {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.Refresh(ctx); err != nil {
			return portfolio.InstrumentMetadata{}, false
		}
		if v, ok := m.entries.Get(code); ok {
			entry := v.(metadataEntry)
			return entry.meta, entry.found
		}
	}

	m.entries.Add(code, metadataEntry{})
	return portfolio.InstrumentMetadata{}, false
}

// Refresh reloads every instrument from the source
func (m *MetadataCache) Refresh(ctx context.Context) error {
	all, err := m.source.Metadata(ctx)
	if err != nil {
		log.Warn().Stack().Err(err).Msg("could not load instrument metadata")
		return err
	}

	m.entries.Purge()
	for code, meta := range all {
		m.entries.Add(code, metadataEntry{meta: meta, found: true})
	}

	m.mu.Lock()
	m.loadedAt = m.Now()
	m.mu.Unlock()

	log.Debug().Int("NumInstruments", len(all)).Msg("loaded instrument metadata")
	return nil
}
