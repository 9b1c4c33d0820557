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

package data

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/dataframe"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	colClose  = "close"
	colVolume = "volume"
)

// Manager holds every input of a simulation in memory, indexed for the
// lookups the pipeline performs each step. It is safe for concurrent reads
// once Load has returned.
type Manager struct {
	Universe *Universe

	provider Provider
	locker   sync.RWMutex

	reportsByQuarter map[string][]*FinancialReport
	bars             map[string][]*Bar
	barIndex         map[string]map[int64]int
	prices           map[string]*dataframe.DataFrame
	indicators       map[string]*dataframe.DataFrame
	actions          map[int64][]*CorporateAction
	calendar         *tradecron.Calendar
}

// NewManager creates a data manager for universe backed by provider
func NewManager(universe *Universe, provider Provider) *Manager {
	return &Manager{
		Universe:         universe,
		provider:         provider,
		reportsByQuarter: make(map[string][]*FinancialReport),
		bars:             make(map[string][]*Bar),
		barIndex:         make(map[string]map[int64]int),
		prices:           make(map[string]*dataframe.DataFrame),
		indicators:       make(map[string]*dataframe.DataFrame),
		actions:          make(map[int64][]*CorporateAction),
		calendar:         tradecron.NewCalendar(nil),
	}
}

func dayKey(t time.Time) int64 {
	return common.DateOnly(t).Unix()
}

// Load reads every input for the universe. Per-stock files are read by a
// bounded pool of workers.
func (manager *Manager) Load(ctx context.Context, workers int) error {
	reports, err := manager.provider.Reports(ctx)
	if err != nil {
		log.Error().Err(err).Str("Provider", manager.provider.DataType()).Msg("could not load financial reports")
		return err
	}

	actions, err := manager.provider.CorporateActions(ctx)
	if err != nil {
		log.Error().Err(err).Str("Provider", manager.provider.DataType()).Msg("could not load corporate actions")
		return err
	}

	codes := manager.Universe.Codes()
	bars := make([][]*Bar, len(codes))
	indicators := make([]*dataframe.DataFrame, len(codes))

	if workers <= 0 {
		workers = 1
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for idx, code := range codes {
		idx, code := idx, code
		grp.Go(func() error {
			var err error
			if bars[idx], err = manager.provider.Bars(grpCtx, code); err != nil {
				log.Error().Err(err).Str("Stock", code).Msg("could not load prices")
				return err
			}
			if indicators[idx], err = manager.provider.Indicators(grpCtx, code); err != nil {
				log.Error().Err(err).Str("Stock", code).Msg("could not load indicators")
				return err
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return err
	}

	manager.locker.Lock()
	defer manager.locker.Unlock()

	for _, report := range reports {
		if !manager.Universe.Contains(report.Stock) {
			continue
		}
		quarter := tradecron.QuarterLabel(report.ReleaseDate)
		manager.reportsByQuarter[quarter] = append(manager.reportsByQuarter[quarter], report)
	}

	for _, action := range actions {
		key := dayKey(action.ExDate)
		manager.actions[key] = append(manager.actions[key], action)
	}

	allDays := make([]time.Time, 0, 4096)
	for idx, code := range codes {
		manager.setBars(code, bars[idx])
		manager.indicators[code] = indicators[idx]
		for _, bar := range bars[idx] {
			allDays = append(allDays, bar.Date)
		}
	}
	manager.calendar = tradecron.NewCalendar(allDays)

	log.Info().
		Int("Stocks", len(codes)).
		Int("Quarters", len(manager.reportsByQuarter)).
		Int("TradingDays", manager.calendar.Len()).
		Int("CorporateActions", len(actions)).
		Msg("loaded simulation inputs")

	return nil
}

func (manager *Manager) setBars(code string, bars []*Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	index := make(map[int64]int, len(bars))
	df := dataframe.New(colClose, colVolume)
	for idx, bar := range bars {
		index[dayKey(bar.Date)] = idx
		closeF, _ := bar.Close.Float64()
		if err := df.InsertRow(bar.Date, closeF, float64(bar.Volume)); err != nil {
			log.Warn().Err(err).Str("Stock", code).Time("Date", bar.Date).Msg("duplicate price row ignored")
		}
	}

	manager.bars[code] = bars
	manager.barIndex[code] = index
	manager.prices[code] = df
}

// Calendar returns the trading calendar derived from loaded prices
func (manager *Manager) Calendar() *tradecron.Calendar {
	manager.locker.RLock()
	defer manager.locker.RUnlock()
	return manager.calendar
}

// Quarters returns every quarter label that has at least one report, in order
func (manager *Manager) Quarters() []string {
	manager.locker.RLock()
	defer manager.locker.RUnlock()

	quarters := make([]string, 0, len(manager.reportsByQuarter))
	for q := range manager.reportsByQuarter {
		quarters = append(quarters, q)
	}
	sort.Strings(quarters)
	return quarters
}

// Reports returns the reports that become public for quarter (YYYYQn)
func (manager *Manager) Reports(quarter string) []*FinancialReport {
	manager.locker.RLock()
	defer manager.locker.RUnlock()

	reports := manager.reportsByQuarter[quarter]
	out := make([]*FinancialReport, len(reports))
	copy(out, reports)
	return out
}

// Close returns the closing price of code on date
func (manager *Manager) Close(code string, date time.Time) (decimal.Decimal, bool) {
	manager.locker.RLock()
	defer manager.locker.RUnlock()

	idx, ok := manager.barIndex[code][dayKey(date)]
	if !ok {
		return decimal.Zero, false
	}
	return manager.bars[code][idx].Close, true
}

// LastClose returns the most recent closing price on or before date
func (manager *Manager) LastClose(code string, date time.Time) (decimal.Decimal, bool) {
	manager.locker.RLock()
	defer manager.locker.RUnlock()

	bars := manager.bars[code]
	d := common.DateOnly(date)
	idx := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(d) })
	if idx == 0 {
		return decimal.Zero, false
	}
	return bars[idx-1].Close, true
}

// Prices returns the closing price of each code on date. Stocks that did not
// trade that day are priced at their last close.
func (manager *Manager) Prices(date time.Time, codes []string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		if price, ok := manager.LastClose(code, date); ok {
			prices[code] = price
		}
	}
	return prices
}

// Indicators returns the technical indicator vector of code on date
func (manager *Manager) Indicators(code string, date time.Time) ([]float64, bool) {
	manager.locker.RLock()
	df := manager.indicators[code]
	manager.locker.RUnlock()

	if df == nil || df.Len() == 0 {
		return nil, false
	}

	d := common.DateOnly(date)
	idx := sort.Search(len(df.Dates), func(i int) bool { return !df.Dates[i].Before(d) })
	if idx == len(df.Dates) || !df.Dates[idx].Equal(d) {
		return nil, false
	}
	return df.Row(idx), true
}

// CorporateActions returns the actions going ex on date
func (manager *Manager) CorporateActions(date time.Time) []*CorporateAction {
	manager.locker.RLock()
	defer manager.locker.RUnlock()

	actions := manager.actions[dayKey(date)]
	out := make([]*CorporateAction, len(actions))
	copy(out, actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out
}

// SharpeSeries computes the realized Sharpe ratio of code over each period
// between consecutive boundaries. The value for boundaries[i] covers
// [boundaries[i], boundaries[i+1]). Days with zero volume are excluded and
// the ratio is mean(daily pct change) / std(daily pct change), not
// annualized. Periods without enough data yield NaN.
func (manager *Manager) SharpeSeries(code string, boundaries []time.Time) ([]time.Time, []float64) {
	manager.locker.RLock()
	df := manager.prices[code]
	manager.locker.RUnlock()

	if len(boundaries) < 2 {
		return []time.Time{}, []float64{}
	}

	dates := make([]time.Time, 0, len(boundaries)-1)
	values := make([]float64, 0, len(boundaries)-1)
	for ii := 0; ii+1 < len(boundaries); ii++ {
		dates = append(dates, boundaries[ii])
		if df == nil {
			values = append(values, math.NaN())
			continue
		}
		end := boundaries[ii+1].Add(-time.Nanosecond)
		values = append(values, Sharpe(df.Trim(boundaries[ii], end)))
	}
	return dates, values
}

// Sharpe computes mean/std of the daily percent change of the close column
// of a price dataframe, skipping zero volume days
func Sharpe(df *dataframe.DataFrame) float64 {
	volIdx := df.ColIndex(colVolume)
	traded := df.Filter(func(_ time.Time, row []float64) bool {
		return volIdx == -1 || row[volIdx] > 0
	})

	closes, err := traded.Select(colClose)
	if err != nil {
		return math.NaN()
	}

	rets := closes.PctChange()
	if rets.Len() < 2 {
		return math.NaN()
	}

	mean := rets.Mean()[0]
	std := rets.StdDev()[0]
	if std == 0 || math.IsNaN(std) {
		return math.NaN()
	}
	return mean / std
}
