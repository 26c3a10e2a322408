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
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"
)

const (
	// MarketTimezone is the exchange time all ledger dates are expressed in
	MarketTimezone = "Asia/Shanghai"
)

var (
	marketTZ     *time.Location
	marketTZOnce sync.Once
)

// SetupLogging configures the global zerolog logger from the log.* keys
func SetupLogging() {
	level := strings.ToLower(viper.GetString("log.level"))
	if level == "warning" {
		level = "warn"
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	log.Info().Str("Level", lvl.String()).Msg("setting logging level")
	zerolog.SetGlobalLevel(lvl)

	if viper.GetBool("log.report_caller") {
		log.Logger = log.With().Caller().Logger()
	}

	var out io.Writer
	switch output := viper.GetString("log.output"); output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		// the file stays open for the lifetime of the process
		fh, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			panic(err)
		}
		out = fh
	}

	if viper.GetBool("log.pretty") {
		out = zerolog.ConsoleWriter{Out: out}
	}
	log.Logger = log.Output(out)

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// GetTimezone returns the exchange timezone
func GetTimezone() *time.Location {
	marketTZOnce.Do(func() {
		tz, err := time.LoadLocation(MarketTimezone)
		if err != nil {
			log.Panic().Err(err).Msg("could not load timezone")
		}
		marketTZ = tz
	})
	return marketTZ
}

// UserCacheKey namespaces a cache key by user
func UserCacheKey(userID, name string) string {
	return "user:" + userID + ":" + name
}

// QuoteTimestampKey records when the shared quote cache was last filled
const QuoteTimestampKey = "stock:price:timestamp"

// QuoteCacheKey is the shared cache key of an instrument's live quote
func QuoteCacheKey(code string) string {
	return "stock:price:" + code
}
