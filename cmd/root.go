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
	"fmt"
	"os"

	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/tracker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Profile bool
var Trace bool

func init() {
	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	// Logging configuration
	viper.BindEnv("log.level", "PV_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "PV_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "PV_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	viper.BindEnv("log.pretty", "PV_LOG_PRETTY")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "Write human readable log lines instead of JSON")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	// Cache
	viper.BindEnv("cache.redis", "PV_CACHE_REDIS")
	rootCmd.PersistentFlags().Bool("cache-redis", false, "Share cached ledgers and quotes through redis")
	viper.BindPFlag("cache.redis", rootCmd.PersistentFlags().Lookup("cache-redis"))

	viper.BindEnv("cache.redis_url", "REDIS_URL")
	rootCmd.PersistentFlags().String("cache-redis-url", "redis://localhost:6379/0", "Redis connection string")
	viper.BindPFlag("cache.redis_url", rootCmd.PersistentFlags().Lookup("cache-redis-url"))

	viper.BindEnv("cache.local_size", "PV_CACHE_LOCAL_SIZE")
	rootCmd.PersistentFlags().Int("cache-local-size", 1024, "Number of entries kept in the in-process cache")
	viper.BindPFlag("cache.local_size", rootCmd.PersistentFlags().Lookup("cache-local-size"))

	viper.BindEnv("cache.metadata_size", "PV_CACHE_METADATA_SIZE")
	rootCmd.PersistentFlags().Int("cache-metadata-size", 4096, "Number of instruments kept in the metadata cache")
	viper.BindPFlag("cache.metadata_size", rootCmd.PersistentFlags().Lookup("cache-metadata-size"))

	viper.BindEnv("cache.ttl", "PV_CACHE_TTL")
	rootCmd.PersistentFlags().Duration("cache-ttl", tracker.LedgerTTL, "How long a user's ledger stays cached")
	viper.BindPFlag("cache.ttl", rootCmd.PersistentFlags().Lookup("cache-ttl"))

	// Quotes
	viper.BindEnv("quotes.url", "PV_QUOTES_URL")
	rootCmd.PersistentFlags().String("quotes-url", "", "Real-time quote endpoint, blank for the public endpoint")
	viper.BindPFlag("quotes.url", rootCmd.PersistentFlags().Lookup("quotes-url"))

	viper.BindEnv("quotes.timeout", "PV_QUOTES_TIMEOUT")
	rootCmd.PersistentFlags().Duration("quotes-timeout", 0, "Timeout of a quote request, 0 for the default")
	viper.BindPFlag("quotes.timeout", rootCmd.PersistentFlags().Lookup("quotes-timeout"))

	// Tiingo
	viper.BindEnv("tiingo.token", "TIINGO_TOKEN")
	rootCmd.PersistentFlags().String("tiingo-token", "", "Tiingo API key")
	viper.BindPFlag("tiingo.token", rootCmd.PersistentFlags().Lookup("tiingo-token"))

	viper.BindEnv("tiingo.url", "TIINGO_URL")
	rootCmd.PersistentFlags().String("tiingo-url", "", "Tiingo API base URL, blank for the public API")
	viper.BindPFlag("tiingo.url", rootCmd.PersistentFlags().Lookup("tiingo-url"))

	viper.BindEnv("tiingo.timeout", "TIINGO_TIMEOUT")
	rootCmd.PersistentFlags().Duration("tiingo-timeout", 0, "Timeout of a Tiingo request, 0 for the default")
	viper.BindPFlag("tiingo.timeout", rootCmd.PersistentFlags().Lookup("tiingo-timeout"))

	// Reconciliation
	viper.BindEnv("reconcile.policy", "PV_RECONCILE_POLICY")
	rootCmd.PersistentFlags().String("reconcile-policy", "exact", "Dividend duplicate detection: `exact` or `window`")
	viper.BindPFlag("reconcile.policy", rootCmd.PersistentFlags().Lookup("reconcile-policy"))

	viper.BindEnv("reconcile.window_days", "PV_RECONCILE_WINDOW_DAYS")
	rootCmd.PersistentFlags().Int("reconcile-window-days", 7, "Days around an ex-date treated as the same dividend by the window policy")
	viper.BindPFlag("reconcile.window_days", rootCmd.PersistentFlags().Lookup("reconcile-window-days"))

	// Tracing
	viper.BindEnv("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	rootCmd.PersistentFlags().String("otlp-endpoint", "", "OpenTelemetry collector endpoint, blank disables tracing")
	viper.BindPFlag("otlp.endpoint", rootCmd.PersistentFlags().Lookup("otlp-endpoint"))

	viper.BindEnv("otlp.http", "PV_OTLP_HTTP")
	rootCmd.PersistentFlags().Bool("otlp-http", false, "Export spans over HTTP instead of gRPC")
	viper.BindPFlag("otlp.http", rootCmd.PersistentFlags().Lookup("otlp-http"))

	rootCmd.PersistentFlags().BoolVar(&Profile, "cpu-profile", false, "Run pprof and save in profile.out")
	rootCmd.PersistentFlags().BoolVar(&Trace, "trace", false, "Trace program execution and save in trace.out")
}

var rootCmd = &cobra.Command{
	Use:     common.ProgramName,
	Version: common.CurrentVersion.String(),
	Short:   "Track a portfolio of exchange listed securities",
	Long: `Keep a ledger of trades and cash flows, reconcile it against corporate
actions and value the resulting holdings at live prices.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
