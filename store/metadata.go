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

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/rs/zerolog/log"
)

// Metadata loads the reference data of every known instrument
func (s *Store) Metadata(ctx context.Context) (portfolio.MetadataMap, error) {
	subLog := log.With().Str("Role", database.SharedRole).Logger()

	res := make(portfolio.MetadataMap)
	err := inTrx(ctx, database.SharedRole, subLog, func(trx pgx.Tx) error {
		rows, err := trx.Query(ctx, "SELECT code, category, is_new_listing FROM instruments")
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not query instruments")
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				meta     portfolio.InstrumentMetadata
				category string
			)
			if err := rows.Scan(&meta.Code, &category, &meta.IsNewListing); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not scan instrument")
				return err
			}

			if meta.Category, err = portfolio.ParseCategory(category); err != nil {
				subLog.Warn().Err(err).Str("Code", meta.Code).Msg("instrument has unknown category; using OTHER")
				meta.Category = portfolio.CategoryOther
			}
			res[meta.Code] = meta
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// SaveMetadata upserts instrument reference data
func (s *Store) SaveMetadata(ctx context.Context, instruments []portfolio.InstrumentMetadata) error {
	subLog := log.With().Str("Role", database.AdminRole).Int("NumInstruments", len(instruments)).Logger()
	return inTrx(ctx, database.AdminRole, subLog, func(trx pgx.Tx) error {
		for _, meta := range instruments {
			_, err := trx.Exec(ctx, `INSERT INTO instruments (code, category, is_new_listing) VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE SET category = EXCLUDED.category, is_new_listing = EXCLUDED.is_new_listing`,
				meta.Code, string(meta.Category), meta.IsNewListing)
			if err != nil {
				subLog.Error().Stack().Err(err).Str("Code", meta.Code).Msg("could not save instrument")
				return err
			}
		}
		subLog.Info().Msg("saved instrument metadata")
		return nil
	})
}

type metadataSeed struct {
	Instruments []struct {
		Code       string `toml:"code"`
		Category   string `toml:"category"`
		NewListing bool   `toml:"new_listing"`
	} `toml:"instrument"`
}

// ParseMetadataTOML reads instrument reference data of the form
//
//	[[instrument]]
//	code = "sh600000"
//	category = "SH60"
//	new_listing = false
func ParseMetadataTOML(doc []byte) ([]portfolio.InstrumentMetadata, error) {
	var seed metadataSeed
	if err := toml.Unmarshal(doc, &seed); err != nil {
		return nil, err
	}

	res := make([]portfolio.InstrumentMetadata, 0, len(seed.Instruments))
	for idx, inst := range seed.Instruments {
		if inst.Code == "" {
			return nil, fmt.Errorf("instrument %d: %w", idx, portfolio.ErrMissingCode)
		}
		category, err := portfolio.ParseCategory(inst.Category)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", inst.Code, err)
		}
		res = append(res, portfolio.InstrumentMetadata{
			Code:         inst.Code,
			Category:     category,
			IsNewListing: inst.NewListing,
		})
	}
	return res, nil
}
