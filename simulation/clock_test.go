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

package simulation_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/portfolio"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

var _ = Describe("Clock", func() {
	var (
		ctx      context.Context
		provider *memProvider
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = newMemProvider()
	})

	run := func(cfg simulation.Config, manager *data.Manager) (*simulation.Clock, *simulation.Result, error) {
		bundle := newBundle(selects(0.8, -0.5, 0.5), selects(-0.5, 0.9, -0.5))
		clock, err := simulation.New(cfg, manager, bundle)
		ExpectWithOffset(1, err).To(BeNil())
		result, err := clock.Run(ctx)
		return clock, result, err
	}

	Context("over a single quarter", func() {
		var (
			clock   *simulation.Clock
			result  *simulation.Result
			manager *data.Manager
			err     error
		)

		BeforeEach(func() {
			provider.actions = []*data.CorporateAction{
				{Stock: "1101", ExDate: day(2023, time.June, 1), Kind: data.CashDividend, CashPerShare: decimal.NewFromInt(1)},
			}
			manager = newManager(provider)
			clock, result, err = run(newConfig(day(2023, time.June, 30)), manager)
		})

		It("finishes without halting", func() {
			Expect(err).To(BeNil())
			Expect(result.Status.Halted).To(BeFalse())
			Expect(clock.Snapshot().Phase).To(Equal(simulation.Finished))
		})

		It("does not trade before the first report release", func() {
			expected := manager.Calendar().Between(day(2023, time.May, 16), day(2023, time.June, 30))
			Expect(result.Performance.Records).To(HaveLen(len(expected)))
			Expect(result.Performance.Records[0].Date).To(Equal(day(2023, time.May, 16)))
			for _, action := range result.Actions {
				Expect(action.Date.Before(day(2023, time.May, 16))).To(BeFalse())
			}
		})

		It("holds the selection fixed for the quarter", func() {
			Expect(result.Selections).To(HaveLen(1))
			Expect(result.Matrices).To(HaveLen(1))
			Expect(result.Selections[0].Quarter).To(Equal("2023Q1"))
			Expect(result.Selections[0].SelectedCodes()).To(Equal([]string{"1101", "2330"}))
			for _, action := range result.Actions {
				Expect(action.Stock).ToNot(Equal("2317"))
			}
		})

		It("never lets cash go negative", func() {
			for _, rec := range result.Performance.Records {
				Expect(rec.Cash.IsNegative()).To(BeFalse())
			}
			Expect(result.Final.Cash.IsNegative()).To(BeFalse())
		})

		It("applies corporate actions as activities", func() {
			Expect(result.Activities).To(HaveLen(1))
			Expect(result.Activities[0].Stock).To(Equal("1101"))
			Expect(result.Activities[0].Date).To(Equal(day(2023, time.June, 1)))
		})

		It("exposes a snapshot that matches the result", func() {
			snap := clock.Snapshot()
			Expect(snap.ID).To(Equal(result.ID))
			Expect(snap.Records).To(HaveLen(len(result.Performance.Records)))
			Expect(snap.State.Cash.Equal(result.Final.Cash)).To(BeTrue())
			Expect(snap.Selection).To(Equal(result.Selections[0]))
			Expect(snap.Date).To(Equal(day(2023, time.June, 30)))
		})

		It("computes Sharpe series for every stock", func() {
			Expect(result.Sharpe).To(HaveLen(3))
			Expect(result.Sharpe["2330"].Dates).ToNot(BeEmpty())
			Expect(result.Evaluations).To(HaveLen(1))
			Expect(result.Evaluations[0].Selected).To(Equal(2))
		})

		It("cannot be run twice", func() {
			_, err := clock.Run(ctx)
			Expect(err).To(MatchError(simulation.ErrAlreadyRun))
		})
	})

	It("is deterministic", func() {
		manager := newManager(provider)
		_, first, err := run(newConfig(day(2023, time.June, 30)), manager)
		Expect(err).To(BeNil())
		_, second, err := run(newConfig(day(2023, time.June, 30)), manager)
		Expect(err).To(BeNil())

		Expect(second.Actions).To(HaveLen(len(first.Actions)))
		for idx := range first.Actions {
			Expect(second.Actions[idx].SourceID).To(Equal(first.Actions[idx].SourceID))
		}
		Expect(second.Performance.Values()).To(Equal(first.Performance.Values()))
		Expect(second.Matrices[0].Dense()).To(Equal(first.Matrices[0].Dense()))
		Expect(second.ID).ToNot(Equal(first.ID))
	})

	It("sells before it buys on every day", func() {
		_, result, err := run(newConfig(day(2023, time.August, 31)), newManager(provider))
		Expect(err).To(BeNil())

		byDay := make(map[time.Time][]*portfolio.TradeAction)
		for _, action := range result.Actions {
			byDay[action.Date] = append(byDay[action.Date], action)
		}
		for _, actions := range byDay {
			buying := false
			for _, action := range actions {
				if action.Kind == portfolio.BuyTransaction {
					buying = true
				}
				if buying {
					Expect(action.Kind).To(Equal(portfolio.BuyTransaction))
				}
			}
		}
	})

	It("reselects on the next release and liquidates deselected holdings", func() {
		_, result, err := run(newConfig(day(2023, time.August, 31)), newManager(provider))
		Expect(err).To(BeNil())

		Expect(result.Selections).To(HaveLen(2))
		Expect(result.Selections[1].Quarter).To(Equal("2023Q2"))
		Expect(result.Selections[1].SelectedCodes()).To(Equal([]string{"2317"}))

		boundary := day(2023, time.August, 15)
		soldOnBoundary := false
		for _, action := range result.Actions {
			if action.Date.Before(boundary) {
				Expect(action.Stock).ToNot(Equal("2317"))
				continue
			}
			if action.Kind == portfolio.BuyTransaction {
				Expect(action.Stock).To(Equal("2317"))
			}
			if action.Date.Equal(boundary) && action.Stock == "1101" && action.Kind == portfolio.SellTransaction {
				soldOnBoundary = true
				Expect(action.Signal).To(Equal(portfolio.LiquidationSignal))
			}
		}
		Expect(soldOnBoundary).To(BeTrue())
	})

	Context("when a stage fails", func() {
		It("halts on a degenerate selection", func() {
			bundle := newBundle(selects(-0.5, -0.5, -0.5))
			clock, err := simulation.New(newConfig(day(2023, time.June, 30)), newManager(provider), bundle)
			Expect(err).To(BeNil())
			sink := &recordingSink{}
			clock.Sink = sink

			result, err := clock.Run(ctx)
			Expect(errors.Is(err, data.ErrDegenerateSelection)).To(BeTrue())
			Expect(result.Status.Halted).To(BeTrue())
			Expect(result.Status.HaltedAt).To(Equal(day(2023, time.May, 16)))
			Expect(result.Status.Stage).To(Equal("select"))
			Expect(result.Performance.Records).To(BeEmpty())
			Expect(result.Matrices).To(HaveLen(1))
			Expect(clock.Snapshot().Phase).To(Equal(simulation.Halted))

			Expect(sink.results).To(HaveLen(1))
			Expect(sink.results[0].Status.Halted).To(BeTrue())
		})

		It("halts when a report is missing", func() {
			reports := provider.reports[:0]
			for _, r := range provider.reports {
				if r.Stock != "2317" {
					reports = append(reports, r)
				}
			}
			provider.reports = reports

			_, result, err := run(newConfig(day(2023, time.June, 30)), newManager(provider))
			var incomplete *data.IncompleteReportError
			Expect(errors.As(err, &incomplete)).To(BeTrue())
			Expect(incomplete.Missing).To(Equal([]string{"2317"}))
			Expect(result.Status.Halted).To(BeTrue())
			Expect(result.Matrices).To(BeEmpty())
		})

		It("keeps the days settled before the halt", func() {
			bundle := newBundle(selects(0.8, -0.5, 0.5), selects(-0.5, -0.5, -0.5))
			clock, err := simulation.New(newConfig(day(2023, time.August, 31)), newManager(provider), bundle)
			Expect(err).To(BeNil())

			result, err := clock.Run(ctx)
			Expect(errors.Is(err, data.ErrDegenerateSelection)).To(BeTrue())
			Expect(result.Status.HaltedAt).To(Equal(day(2023, time.August, 15)))
			Expect(result.Selections).To(HaveLen(1))

			last := result.Performance.Last()
			Expect(last).ToNot(BeNil())
			Expect(last.Date).To(Equal(day(2023, time.August, 14)))
			Expect(clock.Snapshot().State.Date).To(Equal(day(2023, time.August, 14)))
		})
	})

	Context("warm-up", func() {
		BeforeEach(func() {
			provider.indicatorsStart["2330"] = day(2023, time.May, 15)
		})

		It("records days without trades until every selected window is full", func() {
			_, result, err := run(newConfig(day(2023, time.June, 30)), newManager(provider))
			Expect(err).To(BeNil())

			first := result.Performance.Records[0]
			Expect(first.Date).To(Equal(day(2023, time.May, 16)))
			Expect(first.WarmUp).To(BeTrue())
			Expect(first.Trades).To(Equal(0))
			Expect(first.AccountValue.String()).To(Equal("1000000"))

			second := result.Performance.Records[1]
			Expect(second.WarmUp).To(BeFalse())
			Expect(second.Trades).To(BeNumerically(">", 0))
			for _, action := range result.Actions {
				Expect(action.Date.Before(day(2023, time.May, 17))).To(BeFalse())
			}
		})

		It("is fatal once it exceeds the allowed number of days", func() {
			cfg := newConfig(day(2023, time.June, 30))
			cfg.WarmupDays = 0
			_, result, err := run(cfg, newManager(provider))

			var short *data.InsufficientHistoryError
			Expect(errors.As(err, &short)).To(BeTrue())
			Expect(short.Stocks).To(Equal([]string{"2330"}))
			Expect(short.Have).To(Equal(2))
			Expect(short.Need).To(Equal(3))
			Expect(result.Status.Stage).To(Equal("warmup"))
		})
	})

	It("warms up again after a missed indicator day instead of halting", func() {
		provider.indicatorsSkip["2330"] = day(2023, time.June, 1)
		_, result, err := run(newConfig(day(2023, time.June, 30)), newManager(provider))
		Expect(err).To(BeNil())
		Expect(result.Status.Halted).To(BeFalse())

		warm := make([]time.Time, 0)
		for _, rec := range result.Performance.Records {
			if rec.WarmUp {
				warm = append(warm, rec.Date)
			}
		}
		Expect(warm).To(Equal([]time.Time{
			day(2023, time.June, 1),
			day(2023, time.June, 2),
			day(2023, time.June, 5),
		}))
		for _, action := range result.Actions {
			if action.Date.After(day(2023, time.May, 31)) {
				Expect(action.Date.Before(day(2023, time.June, 6))).To(BeFalse())
			}
		}
	})

	It("stops between days when cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		clock, err := simulation.New(newConfig(day(2023, time.June, 30)), newManager(provider), newBundle(selects(0.8, -0.5, 0.5)))
		Expect(err).To(BeNil())
		result, err := clock.Run(cctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(result.Status.Cancelled).To(BeTrue())
		Expect(result.Performance.Records).To(BeEmpty())
	})

	DescribeTable("rejects invalid configs",
		func(mutate func(*simulation.Config)) {
			cfg := newConfig(day(2023, time.June, 30))
			mutate(&cfg)
			_, err := simulation.New(cfg, newManager(provider), newBundle(selects(0.8, -0.5, 0.5)))
			Expect(err).ToNot(BeNil())
		},
		Entry("end before start", func(cfg *simulation.Config) { cfg.End = day(2023, time.April, 1) }),
		Entry("no cash", func(cfg *simulation.Config) { cfg.InitialCash = decimal.Zero }),
		Entry("negative warm-up", func(cfg *simulation.Config) { cfg.WarmupDays = -1 }),
		Entry("bad release spec", func(cfg *simulation.Config) { cfg.ReleaseSpecs = []string{"not a cron"} }),
		Entry("zero lot size", func(cfg *simulation.Config) { cfg.Trading.LotSize = 0 }),
	)
})

var _ = Describe("Sweep", func() {
	It("runs independent simulations and keeps their order", func() {
		manager := newManager(newMemProvider())
		short := newConfig(day(2023, time.May, 31))
		short.Name = "short"
		long := newConfig(day(2023, time.June, 30))
		long.Name = "long"

		sink := &recordingSink{}
		results, err := simulation.Sweep(context.Background(), manager, newBundle(selects(0.8, -0.5, 0.5)), sink, []simulation.Config{short, long}, 2)
		Expect(err).To(BeNil())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Name).To(Equal("short"))
		Expect(results[1].Name).To(Equal("long"))
		Expect(len(results[1].Performance.Records)).To(BeNumerically(">", len(results[0].Performance.Records)))
		Expect(sink.results).To(HaveLen(2))
	})

	It("saves every result in config order after all runs finish", func() {
		manager := newManager(newMemProvider())
		configs := make([]simulation.Config, 4)
		for idx := range configs {
			configs[idx] = newConfig(day(2023, time.June, 30-idx))
			configs[idx].Name = fmt.Sprintf("run-%d", idx)
		}

		sink := &recordingSink{}
		results, err := simulation.Sweep(context.Background(), manager, newBundle(selects(0.8, -0.5, 0.5)), sink, configs, 4)
		Expect(err).To(BeNil())
		Expect(sink.results).To(HaveLen(len(configs)))
		for idx, saved := range sink.results {
			Expect(saved).To(BeIdenticalTo(results[idx]))
			Expect(saved.Name).To(Equal(configs[idx].Name))
		}
	})

	It("reports a failed save against its run", func() {
		manager := newManager(newMemProvider())
		_, err := simulation.Sweep(context.Background(), manager, newBundle(selects(0.8, -0.5, 0.5)), failingSink{}, []simulation.Config{newConfig(day(2023, time.May, 31))}, 1)
		Expect(err).To(MatchError(errSinkClosed))
	})

	It("returns the first error in config order", func() {
		manager := newManager(newMemProvider())
		good := newConfig(day(2023, time.June, 30))
		bad := newConfig(day(2023, time.June, 30))
		bad.Start = time.Time{}
		_, err := simulation.Sweep(context.Background(), manager, newBundle(selects(0.8, -0.5, 0.5)), nil, []simulation.Config{good, bad}, 2)
		Expect(err).To(MatchError(simulation.ErrInvalidConfig))
	})
})
