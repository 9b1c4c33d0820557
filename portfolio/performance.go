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

package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/guan0612/Portfolio-Managment-System/data"
)

// PerformanceRecord is the settled value of the account at the close of one
// trading day
type PerformanceRecord struct {
	Date             time.Time       `json:"date"`
	AccountValue     decimal.Decimal `json:"accountValue"`
	Cash             decimal.Decimal `json:"cash"`
	DailyReturn      float64         `json:"dailyReturn"`
	CumulativeReturn float64         `json:"cumulativeReturn"`
	Trades           int             `json:"trades"`
	WarmUp           bool            `json:"warmUp"`
}

// Performance is the append-only series of daily records of one simulation
type Performance struct {
	InitialValue decimal.Decimal
	Records      []*PerformanceRecord
}

func NewPerformance(initial decimal.Decimal) (*Performance, error) {
	if !initial.IsPositive() {
		return nil, ErrNoInitialValue
	}
	return &Performance{
		InitialValue: initial,
		Records:      make([]*PerformanceRecord, 0, 256),
	}, nil
}

// Last returns the most recent record or nil
func (perf *Performance) Last() *PerformanceRecord {
	if len(perf.Records) == 0 {
		return nil
	}
	return perf.Records[len(perf.Records)-1]
}

// Append values state at prices and records the result. Every holding must
// have a price.
func (perf *Performance) Append(state State, prices map[string]decimal.Decimal, trades int, warmUp bool) (*PerformanceRecord, error) {
	if last := perf.Last(); last != nil && !state.Date.After(last.Date) {
		return nil, ErrDateOutOfOrder
	}

	value, missing := state.Value(prices)
	if len(missing) > 0 {
		return nil, &data.FeatureValidationError{
			Stock:   missing[0],
			Feature: "price",
			Date:    state.Date,
			Reason:  "holding has no price to value the account",
		}
	}

	prev := perf.InitialValue
	if last := perf.Last(); last != nil {
		prev = last.AccountValue
	}

	rec := &PerformanceRecord{
		Date:             state.Date,
		AccountValue:     value,
		Cash:             state.Cash,
		DailyReturn:      ratio(value, prev) - 1,
		CumulativeReturn: ratio(value, perf.InitialValue) - 1,
		Trades:           trades,
		WarmUp:           warmUp,
	}
	perf.Records = append(perf.Records, rec)
	return rec, nil
}

// Values returns the account value series as floats
func (perf *Performance) Values() []float64 {
	vals := make([]float64, len(perf.Records))
	for idx, rec := range perf.Records {
		vals[idx] = rec.AccountValue.InexactFloat64()
	}
	return vals
}

func ratio(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	return a.Div(b).InexactFloat64()
}
