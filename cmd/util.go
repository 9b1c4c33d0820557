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
	"os"
	"runtime/pprof"
	"runtime/trace"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/artifacts"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/database"
	"github.com/guan0612/Portfolio-Managment-System/model"
)

// loadManager reads every simulation input from data.dir
func loadManager(ctx context.Context) *data.Manager {
	dir := viper.GetString("data.dir")
	manager := data.NewManager(data.DefaultUniverse(), data.NewCSVProvider(dir))
	if err := manager.Load(ctx, viper.GetInt("workers")); err != nil {
		log.Fatal().Err(err).Str("Dir", dir).Msg("could not load simulation inputs")
	}
	log.Info().Str("Dir", dir).Int("TradingDays", manager.Calendar().Len()).Strs("Quarters", manager.Quarters()).Msg("loaded simulation inputs")
	return manager
}

// loadModels builds the model bundle from model.dir, bounded by model.timeout
func loadModels() *model.Bundle {
	dir := viper.GetString("model.dir")
	bundle, err := model.Load(dir, model.Dims{
		ReportFeatures: len(data.ReportSchema),
		Indicators:     data.IndicatorCount,
	})
	if err != nil {
		log.Fatal().Err(err).Str("Dir", dir).Msg("could not load models")
	}
	return bundle.Guarded(viper.GetDuration("model.timeout"))
}

// openStore returns the configured artifact store, connecting to the
// database when the postgres backend is selected
func openStore(ctx context.Context) artifacts.Store {
	switch backend := viper.GetString("artifacts.backend"); backend {
	case "postgres":
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		if err := database.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not migrate database")
		}
		return artifacts.NewPgStore()
	case "file", "":
		return artifacts.NewFileStore(viper.GetString("artifacts.dir"))
	default:
		log.Fatal().Str("Backend", backend).Msg("unknown artifact backend")
	}
	return nil
}

// profile starts the CPU profiler and execution tracer when requested; the
// returned func stops them
func profile() func() {
	stops := make([]func(), 0, 2)

	if Profile {
		f, err := os.Create("profile.out")
		if err != nil {
			log.Fatal().Err(err).Msg("could not create profile output file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		stops = append(stops, pprof.StopCPUProfile)
	}

	if Trace {
		f, err := os.Create("trace.out")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create trace output file")
		}
		if err := trace.Start(f); err != nil {
			log.Fatal().Err(err).Msg("failed to start trace")
		}
		stops = append(stops, func() {
			trace.Stop()
			if err := f.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close trace file")
			}
		})
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}
