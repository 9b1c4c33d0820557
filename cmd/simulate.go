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
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
	"github.com/guan0612/Portfolio-Managment-System/portfolio"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

var sweepMaxSelected []int

func init() {
	flags := simulateCmd.Flags()
	flags.String("name", "default", "Name recorded with the run")
	flags.String("start", "", "First simulated day (YYYY-MM-DD); defaults to the first trading day")
	flags.String("end", "", "Last simulated day (YYYY-MM-DD); defaults to the last trading day")
	flags.String("initial-cash", "10000000", "Starting cash in TWD")
	flags.Int("warmup-days", 60, "Trading days a newly selected stock may wait for indicator history")
	flags.Int("max-selected", 0, "Upper bound on the number of selected stocks, 0 for no bound")
	flags.Int64("lot-size", 1000, "Shares per board lot")
	flags.Int64("max-lots-per-trade", 10, "Maximum board lots traded per stock per day")
	flags.String("buy-cost-pct", "0.001425", "Fee charged on buys as a fraction of trade value")
	flags.String("sell-cost-pct", "0.004425", "Fee and tax charged on sells as a fraction of trade value")
	flags.IntSliceVar(&sweepMaxSelected, "sweep-max-selected", nil, "Run one simulation per value in parallel")

	for key, flag := range map[string]string{
		"simulation.name":            "name",
		"simulation.start":           "start",
		"simulation.end":             "end",
		"simulation.initial_cash":    "initial-cash",
		"simulation.warmup_days":     "warmup-days",
		"simulation.max_selected":    "max-selected",
		"trading.lot_size":           "lot-size",
		"trading.max_lots_per_trade": "max-lots-per-trade",
		"trading.buy_cost_pct":       "buy-cost-pct",
		"trading.sell_cost_pct":      "sell-cost-pct",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			log.Panic().Err(err).Str("Key", key).Msg("could not bind flag")
		}
	}

	rootCmd.AddCommand(simulateCmd)
}

func parseDecimal(key string) decimal.Decimal {
	d, err := decimal.NewFromString(viper.GetString(key))
	if err != nil {
		log.Fatal().Err(err).Str("Key", key).Str("Value", viper.GetString(key)).Msg("not a decimal number")
	}
	return d
}

// simulationConfig builds a run configuration from viper, defaulting the
// horizon to the loaded calendar
func simulationConfig(manager *data.Manager) simulation.Config {
	cfg := simulation.DefaultConfig()
	cfg.Name = viper.GetString("simulation.name")
	cfg.Start = manager.Calendar().Start()
	cfg.End = manager.Calendar().End()
	cfg.InitialCash = parseDecimal("simulation.initial_cash")
	cfg.WarmupDays = viper.GetInt("simulation.warmup_days")
	cfg.MaxSelected = viper.GetInt("simulation.max_selected")
	cfg.Workers = viper.GetInt("workers")
	cfg.Trading = portfolio.Config{
		LotSize:         viper.GetInt64("trading.lot_size"),
		MaxLotsPerTrade: viper.GetInt64("trading.max_lots_per_trade"),
		BuyCostPct:      parseDecimal("trading.buy_cost_pct"),
		SellCostPct:     parseDecimal("trading.sell_cost_pct"),
		FeePrecision:    cfg.Trading.FeePrecision,
	}

	for key, dst := range map[string]*time.Time{
		"simulation.start": &cfg.Start,
		"simulation.end":   &cfg.End,
	} {
		s := viper.GetString(key)
		if s == "" {
			continue
		}
		t, err := common.ParseDate(s)
		if err != nil {
			log.Fatal().Err(err).Str("Key", key).Str("Value", s).Msg("dates must be YYYY-MM-DD")
		}
		*dst = t
	}

	return cfg
}

func printResult(result *simulation.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Start", "End", "Final Value", "Total Return", "CAGR", "Sharpe", "Max Draw Down", "Trading Days", "Status"})

	status := "finished"
	if result.Status.Halted {
		status = fmt.Sprintf("halted %s at %s: %s", result.Status.Stage, result.Status.HaltedAt.Format(common.DateFormat), result.Status.Reason)
	}

	row := []string{result.Name, result.Start.Format(common.DateFormat), result.End.Format(common.DateFormat)}
	if result.Performance != nil && len(result.Performance.Records) > 0 {
		m := result.Performance.Summary()
		dd := "-"
		if m.MaxDrawDown != nil {
			dd = fmt.Sprintf("%.2f%%", m.MaxDrawDown.LossPercent*100)
		}
		row = append(row,
			strconv.FormatFloat(m.FinalValue, 'f', 0, 64),
			fmt.Sprintf("%.2f%%", m.TotalReturn*100),
			fmt.Sprintf("%.2f%%", m.CAGR*100),
			fmt.Sprintf("%.3f", m.SharpeRatio),
			dd,
			strconv.Itoa(m.TradingDays),
		)
	} else {
		row = append(row, "-", "-", "-", "-", "-", "0")
	}
	row = append(row, status)

	table.Append(row)
	table.Render()
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the quarterly selection and daily trading simulation",
	Long: `Run the simulation over the configured horizon and write every artifact
(relationship matrices, selections, predictions, Sharpe ratios and trading
performance) to the configured artifact store.`,
	Run: func(cmd *cobra.Command, args []string) {
		stop := profile()
		defer stop()

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Fatal().Err(err).Msg("could not setup tracing")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("could not flush traces")
			}
		}()

		// stop between trading days on interrupt
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		manager := loadManager(ctx)
		models := loadModels()
		store := openStore(ctx)
		cfg := simulationConfig(manager)

		if len(sweepMaxSelected) > 0 {
			configs := make([]simulation.Config, len(sweepMaxSelected))
			for idx, n := range sweepMaxSelected {
				configs[idx] = cfg
				configs[idx].MaxSelected = n
				configs[idx].Name = fmt.Sprintf("%s-max%d", cfg.Name, n)
			}
			results, err := simulation.Sweep(ctx, manager, models, store, configs, viper.GetInt("workers"))
			for _, result := range results {
				if result != nil {
					printResult(result)
				}
			}
			if err != nil {
				log.Fatal().Err(err).Msg("sweep failed")
			}
			return
		}

		clock, err := simulation.New(cfg, manager, models)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create simulation")
		}
		clock.Sink = store

		result, err := clock.Run(ctx)
		if result != nil {
			printResult(result)
		}
		if err != nil {
			log.Fatal().Err(err).Str("RunID", clock.ID.String()).Msg("simulation failed")
		}
	},
}
