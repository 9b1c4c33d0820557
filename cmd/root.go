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
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/common"
)

var Profile bool
var Trace bool

// binding ties a persistent flag to a viper key and an environment variable
type binding struct {
	key  string
	env  string
	flag string
}

func bind(cmd *cobra.Command, bindings ...binding) {
	for _, b := range bindings {
		if err := viper.BindEnv(b.key, b.env); err != nil {
			log.Panic().Err(err).Str("Key", b.key).Msg("could not bind environment variable")
		}
		if err := viper.BindPFlag(b.key, cmd.PersistentFlags().Lookup(b.flag)); err != nil {
			log.Panic().Err(err).Str("Key", b.key).Msg("could not bind flag")
		}
	}
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Inputs
	flags.String("data-dir", "data", "Directory holding reports, prices, indicators and corporate actions")
	flags.String("model-dir", "", "Directory holding the model manifest and weights; empty uses seeded models")
	flags.Duration("model-timeout", 0, "Deadline for a single model inference, 0 disables the deadline")
	flags.Int("workers", 4, "Number of workers used for per-stock work")

	// Artifacts
	flags.String("artifacts-dir", "artifacts", "Directory artifacts are written to and served from")
	flags.String("artifacts-backend", "file", "Artifact store one of: `file` or `postgres`")
	flags.Int("artifacts-retention", 90, "Days artifacts are kept before being purged")

	// Database
	flags.String("database-url", "", "PostgreSQL connection string")

	// Cache
	flags.Bool("redis", false, "Share the artifact cache through redis")
	flags.String("redis-url", "redis://localhost:6379/0", "Redis connection string")
	flags.Int("cache-local-size", 128, "Number of artifacts kept in the in-process cache")

	// Logging configuration
	flags.String("log-level", "warning", "Logging level")
	flags.Bool("log-report-caller", false, "Log function name that called log statement")
	flags.String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	flags.Bool("log-pretty", false, "Write human readable logs instead of JSON")

	// Tracing
	flags.String("otlp-endpoint", "", "OTLP collector traces are exported to; empty disables export")
	flags.Bool("otlp-http", false, "Use HTTP instead of gRPC for the OTLP connection")
	flags.Float64("otlp-sample-ratio", 1, "Fraction of traces exported")

	bind(rootCmd,
		binding{"data.dir", "PORTFOLIO_DATA_DIR", "data-dir"},
		binding{"model.dir", "PORTFOLIO_MODEL_DIR", "model-dir"},
		binding{"model.timeout", "PORTFOLIO_MODEL_TIMEOUT", "model-timeout"},
		binding{"workers", "PORTFOLIO_WORKERS", "workers"},
		binding{"artifacts.dir", "PORTFOLIO_ARTIFACTS_DIR", "artifacts-dir"},
		binding{"artifacts.backend", "PORTFOLIO_ARTIFACTS_BACKEND", "artifacts-backend"},
		binding{"artifacts.retention", "PORTFOLIO_ARTIFACTS_RETENTION", "artifacts-retention"},
		binding{"database.url", "DATABASE_URL", "database-url"},
		binding{"cache.redis", "PORTFOLIO_REDIS", "redis"},
		binding{"cache.redis_url", "REDIS_URL", "redis-url"},
		binding{"cache.local_size", "PORTFOLIO_CACHE_SIZE", "cache-local-size"},
		binding{"log.level", "PORTFOLIO_LOG_LEVEL", "log-level"},
		binding{"log.report_caller", "PORTFOLIO_LOG_REPORT_CALLER", "log-report-caller"},
		binding{"log.output", "PORTFOLIO_LOG_OUTPUT", "log-output"},
		binding{"log.pretty", "PORTFOLIO_LOG_PRETTY", "log-pretty"},
		binding{"otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "otlp-endpoint"},
		binding{"otlp.http", "PORTFOLIO_OTLP_HTTP", "otlp-http"},
		binding{"otlp.sample_ratio", "PORTFOLIO_OTLP_SAMPLE_RATIO", "otlp-sample-ratio"},
	)

	flags.BoolVar(&Profile, "cpu-profile", false, "Run pprof and save in profile.out")
	flags.BoolVar(&Trace, "trace", false, "Trace program execution and save in trace.out")
}

var rootCmd = &cobra.Command{
	Use:     "portfolio-rl",
	Version: common.CurrentVersion.String(),
	Short:   "Quarterly stock selection and daily trading simulator",
	Long: `Simulate a two-layer reinforcement learning portfolio on Taiwan listed
equities: a graph attention network relates stocks through their quarterly
financial reports, a selection policy picks a low-risk subset after every
report release and a trading policy sizes daily orders in board lots.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
