// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/artifacts"
	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/middleware"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
	"github.com/guan0612/Portfolio-Managment-System/router"
)

func init() {
	if err := viper.BindEnv("server.port", "PORT"); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	if err := viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}

	serveCmd.Flags().String("allow-origins", "*", "Comma separated list of origins allowed to read artifacts")
	if err := viper.BindPFlag("server.allow_origins", serveCmd.Flags().Lookup("allow-origins")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.allow_origins")
	}

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve simulation artifacts over HTTP",
	Long:  `Run a read-only HTTP server for the artifacts written by simulate`,
	Run: func(cmd *cobra.Command, args []string) {
		stop := profile()
		defer stop()

		ctx := context.Background()

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Fatal().Err(err).Msg("could not setup tracing")
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("could not flush traces")
			}
		}()

		if err := common.SetupCache(); err != nil {
			log.Fatal().Err(err).Msg("could not setup artifact cache")
		}

		store := artifacts.NewCachedStore(openStore(ctx))

		// Create new Fiber instance
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c // block until signal is read
			fmt.Printf("Received signal: '%s'; shutting down...\n", sig.String())
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shutdown server")
			}
		}()

		app.Use(cors.New(cors.Config{
			AllowOrigins: viper.GetString("server.allow_origins"),
			AllowHeaders: "*",
			AllowMethods: "GET,HEAD",
		}))

		// Setup logging middleware
		app.Use(middleware.NewLogger())

		// Setup routes
		router.SetupRoutes(app, store)

		// Housekeeping runs on exchange time
		scheduler := gocron.NewScheduler(common.GetTimezone())
		if _, err := scheduler.Cron("0 3 1 * *").Do(purgeArtifacts, ctx, store); err != nil {
			log.Fatal().Err(err).Msg("could not schedule artifact purge")
		}
		// a simulate run writing to the same store does not go through the
		// server's cache
		if _, err := scheduler.Every(1).Hours().Do(store.Invalidate, ctx); err != nil {
			log.Fatal().Err(err).Msg("could not schedule cache reload")
		}
		scheduler.StartAsync()
		defer scheduler.Stop()

		log.Info().Str("Port", viper.GetString("server.port")).Str("Backend", viper.GetString("artifacts.backend")).Msg("serving artifacts")
		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	},
}
