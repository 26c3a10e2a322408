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
	"os"
	"os/signal"
	"runtime/pprof"
	"runtime/trace"

	"github.com/go-co-op/gocron"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/penny-vault/pv-holdings/handler"
	"github.com/penny-vault/pv-holdings/middleware"
	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/penny-vault/pv-holdings/router"
	"github.com/penny-vault/pv-holdings/tracker"
	"github.com/penny-vault/pv-holdings/tradecron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	viper.BindEnv("server.allow_origins", "PV_ALLOW_ORIGINS")
	serveCmd.Flags().String("allow-origins", "http://localhost:8080", "Comma separated list of origins allowed by CORS")
	viper.BindPFlag("server.allow_origins", serveCmd.Flags().Lookup("allow-origins"))

	viper.BindEnv("reconcile.schedule", "PV_RECONCILE_SCHEDULE")
	serveCmd.Flags().String("reconcile-schedule", "@close 30", "Market aware cron spec of the background reconciliation, blank disables it")
	viper.BindPFlag("reconcile.schedule", serveCmd.Flags().Lookup("reconcile-schedule"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the holdings server",
	Long:  `Run HTTP server that values and maintains users' portfolio ledgers`,
	Run: func(cmd *cobra.Command, args []string) {
		if Profile {
			f, err := os.Create("profile.out")
			if err != nil {
				log.Fatal().Err(err).Msg("could not create profile output file")
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				log.Fatal().Err(err).Msg("could not start cpu profile")
			}
			defer pprof.StopCPUProfile()
		}

		if Trace {
			f, err := os.Create("trace.out")
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create trace output file")
			}
			defer func() {
				if err := f.Close(); err != nil {
					log.Fatal().Err(err).Msg("failed to close trace file")
				}
			}()

			if err := trace.Start(f); err != nil {
				log.Fatal().Err(err).Msg("failed to start trace")
			}
			defer trace.Stop()
		}

		ctx := context.Background()
		env, err := setup(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize holdings tracker")
		}

		shutdownTracing, err := opentelemetry.Setup()
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize tracing")
		}
		defer func() {
			if err := shutdownTracing(ctx); err != nil {
				log.Error().Err(err).Msg("could not flush spans")
			}
		}()

		// Create new Fiber instance
		app := fiber.New(fiber.Config{
			AppName:     common.ProgramName,
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c // block until signal is read
			log.Info().Str("Signal", sig.String()).Msg("shutting down")
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shutdown server")
			}
		}()

		// Configure CORS
		corsConfig := cors.Config{
			AllowOrigins: viper.GetString("server.allow_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		}
		app.Use(cors.New(corsConfig))

		app.Use(middleware.NewLogger())
		app.Use(middleware.NewTracer())

		router.SetupRoutes(app, handler.New(env.service, env.calendar))

		scheduler := gocron.NewScheduler(env.calendar.Location())
		if _, err := scheduler.Every(1).Hours().Do(func() {
			if err := env.metadata.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("could not refresh instrument metadata")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("could not schedule metadata refresh")
		}

		if spec := viper.GetString("reconcile.schedule"); spec != "" {
			schedule, err := tradecron.New(spec, env.calendar)
			if err != nil {
				log.Fatal().Err(err).Str("Schedule", spec).Msg("invalid reconcile schedule")
			}
			job := tracker.NewReconcileJob(env.service, database.GetUsers, schedule)
			if _, err := scheduler.Every(1).Minute().SingletonMode().Do(func() {
				job.Run(ctx)
			}); err != nil {
				log.Fatal().Err(err).Msg("could not schedule reconciliation")
			}
			log.Info().Str("Schedule", spec).Msg("scheduled ledger reconciliation")
		}
		scheduler.StartAsync()
		defer scheduler.Stop()

		err = app.Listen(":" + viper.GetString("server.port"))
		database.LogOpenTransactions()
		if err != nil {
			log.Fatal().Err(err).Msg("server exited")
		}
	},
}
