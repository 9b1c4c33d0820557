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
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/dataframe"
	"github.com/guan0612/Portfolio-Managment-System/model"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

var testCodes = []string{"1101", "2317", "2330"}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, common.GetTimezone())
}

// memProvider serves a small synthetic market: every weekday from May 1
// to Aug 31 2023 is a trading day for every stock
type memProvider struct {
	reports         []*data.FinancialReport
	indicatorsStart map[string]time.Time
	indicatorsSkip  map[string]time.Time
	actions         []*data.CorporateAction
}

func tradingDays() []time.Time {
	days := make([]time.Time, 0, 100)
	for d := day(2023, time.May, 1); !d.After(day(2023, time.August, 31)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

func report(code, quarter string, periodEnd, release time.Time, scale float64) *data.FinancialReport {
	features := make([]float64, len(data.ReportSchema))
	for idx := range features {
		features[idx] = scale * float64(idx+1)
		if idx%2 == 1 {
			features[idx] = scale*scale - float64(idx)
		}
	}
	return &data.FinancialReport{
		Stock:       code,
		Quarter:     quarter,
		PeriodEnd:   periodEnd,
		ReleaseDate: release,
		Features:    features,
	}
}

func newMemProvider() *memProvider {
	p := &memProvider{
		indicatorsStart: make(map[string]time.Time),
		indicatorsSkip:  make(map[string]time.Time),
	}
	for idx, code := range testCodes {
		scale := float64(idx + 1)
		p.reports = append(p.reports,
			report(code, "2023Q1", day(2023, time.March, 31), day(2023, time.May, 16), scale),
			report(code, "2023Q2", day(2023, time.June, 30), day(2023, time.August, 15), scale+0.5),
		)
	}
	return p
}

func (p *memProvider) DataType() string { return "memory" }

func (p *memProvider) Reports(ctx context.Context) ([]*data.FinancialReport, error) {
	return p.reports, nil
}

func (p *memProvider) Bars(ctx context.Context, code string) ([]*data.Bar, error) {
	offset := 0
	for idx, c := range testCodes {
		if c == code {
			offset = idx
		}
	}
	bars := make([]*data.Bar, 0, 100)
	for idx, d := range tradingDays() {
		bars = append(bars, &data.Bar{
			Date:   d,
			Close:  decimal.New(int64(100+(idx+offset)%5), -1),
			Volume: 1000,
		})
	}
	return bars, nil
}

func (p *memProvider) Indicators(ctx context.Context, code string) (*dataframe.DataFrame, error) {
	df := dataframe.New("rsi", "macd")
	start := p.indicatorsStart[code]
	skip, hasSkip := p.indicatorsSkip[code]
	for idx, d := range tradingDays() {
		if d.Before(start) || (hasSkip && d.Equal(skip)) {
			continue
		}
		if err := df.InsertRow(d, float64(idx%7)/7.0, float64(len(code)+idx%3)/10.0); err != nil {
			return nil, err
		}
	}
	return df, nil
}

func (p *memProvider) CorporateActions(ctx context.Context) ([]*data.CorporateAction, error) {
	return p.actions, nil
}

// sequencePolicy returns its outputs in turn, repeating the last one
type sequencePolicy struct {
	locker  sync.Mutex
	width   int
	outputs []*model.PolicyOutput
	calls   int
}

func (s *sequencePolicy) Version() string { return "sequence-policy" }
func (s *sequencePolicy) InputWidth() int { return s.width }
func (s *sequencePolicy) Infer(ctx context.Context, state *mat.Dense) (*model.PolicyOutput, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	idx := s.calls
	if idx >= len(s.outputs) {
		idx = len(s.outputs) - 1
	}
	s.calls++
	return s.outputs[idx], nil
}

// constantPolicy emits the same signal for every row
type constantPolicy struct {
	signal float64
}

func (c *constantPolicy) Version() string { return "constant-policy" }
func (c *constantPolicy) InputWidth() int { return 2 }
func (c *constantPolicy) Infer(ctx context.Context, state *mat.Dense) (*model.PolicyOutput, error) {
	rows, _ := state.Dims()
	actions := make([]float64, rows)
	for idx := range actions {
		actions[idx] = c.signal
	}
	return &model.PolicyOutput{Actions: actions}, nil
}

func selects(scores ...float64) *model.PolicyOutput {
	return &model.PolicyOutput{Actions: scores, Threshold: 0}
}

func newBundle(selectorOutputs ...*model.PolicyOutput) *model.Bundle {
	return &model.Bundle{
		Attention: model.NewRandomGAT(1, len(data.ReportSchema), 8, 2),
		Selector:  &sequencePolicy{width: model.SelectorWidth(len(data.ReportSchema)), outputs: selectorOutputs},
		Encoder:   model.NewRandomTCN(3, 3, 2, 4, 1),
		Trader:    &constantPolicy{signal: 0.5},
	}
}

func newManager(p *memProvider) *data.Manager {
	universe := data.NewUniverse([]data.Stock{
		{Code: "1101", Industry: data.IndustryCement},
		{Code: "2317", Industry: data.IndustryComputer},
		{Code: "2330", Industry: data.IndustrySemiconductor},
	})
	manager := data.NewManager(universe, p)
	if err := manager.Load(context.Background(), 2); err != nil {
		panic(err)
	}
	return manager
}

func newConfig(end time.Time) simulation.Config {
	cfg := simulation.DefaultConfig()
	cfg.Name = "test"
	cfg.Start = day(2023, time.May, 1)
	cfg.End = end
	cfg.InitialCash = decimal.NewFromInt(1_000_000)
	cfg.Workers = 2
	return cfg
}

type recordingSink struct {
	locker  sync.Mutex
	results []*simulation.Result
}

func (r *recordingSink) Save(ctx context.Context, result *simulation.Result) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.results = append(r.results, result)
	return nil
}

var errSinkClosed = errors.New("sink closed")

type failingSink struct{}

func (failingSink) Save(ctx context.Context, result *simulation.Result) error {
	return errSinkClosed
}
