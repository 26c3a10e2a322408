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

package cmd

import (
	"context"
	"errors"

	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/data"
	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/penny-vault/pv-holdings/store"
	"github.com/penny-vault/pv-holdings/tracker"
	"github.com/penny-vault/pv-holdings/tradecron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrNoUser = errors.New("a user must be specified with --user")
)

// environment holds the long lived components every command is built from
type environment struct {
	calendar *tradecron.Calendar
	metadata *tracker.MetadataCache
	service  *tracker.Service
}

// setup connects to the database and cache and wires the tracker service
func setup(ctx context.Context) (*environment, error) {
	common.SetupLogging()

	if err := database.Connect(ctx); err != nil {
		return nil, err
	}

	cache, err := common.SetupCache()
	if err != nil {
		return nil, err
	}

	calendar, err := tradecron.NewCalendar(common.GetTimezone(), tradecron.ShanghaiSessions)
	if err != nil {
		return nil, err
	}
	if err := calendar.LoadHolidays(ctx); err != nil {
		// weekends are still honored without the holiday table
		log.Warn().Err(err).Msg("could not load market holidays")
	}

	db := store.New()
	meta, err := tracker.NewMetadataCache(db, viper.GetInt("cache.metadata_size"))
	if err != nil {
		return nil, err
	}
	if err := meta.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("could not load instrument metadata")
	}

	policy, err := portfolio.PolicyFromName(viper.GetString("reconcile.policy"), viper.GetInt("reconcile.window_days"))
	if err != nil {
		return nil, err
	}

	tiingo := data.NewTiingo(viper.GetString("tiingo.token"), viper.GetString("tiingo.url"), viper.GetDuration("tiingo.timeout"))
	tencent := data.NewTencent(viper.GetString("quotes.url"), viper.GetDuration("quotes.timeout"))
	quotes := data.NewCachedQuotes(tencent, cache, calendar)

	service := tracker.NewService(
		db,
		tracker.NewUserCache(cache, viper.GetDuration("cache.ttl")),
		quotes,
		meta,
		portfolio.NewReconciler(tiingo, policy),
		common.GetTimezone(),
	)

	log.Info().Str("Policy", policy.String()).Msg("initialized holdings tracker")

	return &environment{
		calendar: calendar,
		metadata: meta,
		service:  service,
	}, nil
}

func getUsers(ctx context.Context) []string {
	users, err := database.GetUsers(ctx)
	if err != nil {
		log.Panic().Err(err).Msg("could not load users from database")
	}
	return users
}
