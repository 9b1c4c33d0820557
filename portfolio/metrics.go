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
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const TradingDaysPerYear = 252

// DrawDown is a period in which the account fell from its previous peak
type DrawDown struct {
	Begin       time.Time `json:"begin"`
	End         time.Time `json:"end"`
	Recovery    time.Time `json:"recovery"`
	LossPercent float64   `json:"lossPercent"`
}

// Metrics summarizes a simulation for reports
type Metrics struct {
	FinalValue   float64   `json:"finalValue"`
	TotalReturn  float64   `json:"totalReturn"`
	CAGR         float64   `json:"cagr"`
	SharpeRatio  float64   `json:"sharpeRatio"`
	SortinoRatio float64   `json:"sortinoRatio"`
	StdDev       float64   `json:"stdDev"`
	MaxDrawDown  *DrawDown `json:"maxDrawDown"`
	TradingDays  int       `json:"tradingDays"`
}

// DailyReturns returns the daily returns of every record
func (perf *Performance) DailyReturns() []float64 {
	rets := make([]float64, len(perf.Records))
	for idx, rec := range perf.Records {
		rets[idx] = rec.DailyReturn
	}
	return rets
}

// SharpeRatio is the annualized mean daily return per unit of daily volatility
// with a zero risk-free rate
//
// Sharpe = mean(r) / std(r) * sqrt(252)
func (perf *Performance) SharpeRatio() float64 {
	rets := perf.DailyReturns()
	if len(rets) < 2 {
		return math.NaN()
	}
	mean, std := stat.MeanStdDev(rets, nil)
	if std == 0 {
		return math.NaN()
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// DownsideDeviation computes the standard deviation of negative daily
// returns, result is annualized
func (perf *Performance) DownsideDeviation() float64 {
	rets := perf.DailyReturns()
	if len(rets) == 0 {
		return math.NaN()
	}
	downside := 0.0
	for _, r := range rets {
		if r < 0 {
			downside += r * r // much faster than math.Pow
		}
	}
	return math.Sqrt(downside/float64(len(rets))) * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio a variation of the Sharpe ratio that only penalizes harmful
// volatility by dividing the annualized return by the downside deviation
func (perf *Performance) SortinoRatio() float64 {
	rets := perf.DailyReturns()
	if len(rets) < 2 {
		return math.NaN()
	}
	dd := perf.DownsideDeviation()
	if dd == 0 || math.IsNaN(dd) {
		return math.NaN()
	}
	return stat.Mean(rets, nil) * TradingDaysPerYear / dd
}

// StdDev calculates the annualized standard deviation of daily returns
func (perf *Performance) StdDev() float64 {
	rets := perf.DailyReturns()
	if len(rets) < 2 {
		return math.NaN()
	}
	return stat.StdDev(rets, nil) * math.Sqrt(TradingDaysPerYear)
}

// CAGR is the compound annual growth rate; periods shorter than a year are
// not annualized
func (perf *Performance) CAGR() float64 {
	last := perf.Last()
	if last == nil {
		return math.NaN()
	}
	rate := ratio(last.AccountValue, perf.InitialValue)
	years := toYears(last.Date.Sub(perf.Records[0].Date))
	if years > 1 {
		return math.Pow(rate, 1.0/years) - 1
	}
	return rate - 1
}

// AllDrawDowns computes all draw downs. A draw down is defined as the period
// in which the account falls from its previous peak. Draw downs include the
// time period of the loss, percent of loss, and when the account recovered.
func (perf *Performance) AllDrawDowns() []*DrawDown {
	allDrawDowns := []*DrawDown{}
	if len(perf.Records) < 2 {
		return allDrawDowns
	}

	peak := perf.InitialValue.InexactFloat64()
	var drawDown *DrawDown
	prev := perf.Records[0].Date
	for _, rec := range perf.Records {
		value := rec.AccountValue.InexactFloat64()
		peak = math.Max(peak, value)
		if value < peak {
			loss := value/peak - 1.0
			if drawDown == nil {
				drawDown = &DrawDown{
					Begin:       prev,
					End:         rec.Date,
					LossPercent: loss,
				}
			}
			if loss < drawDown.LossPercent {
				drawDown.End = rec.Date
				drawDown.LossPercent = loss
			}
		} else if drawDown != nil {
			drawDown.Recovery = rec.Date
			allDrawDowns = append(allDrawDowns, drawDown)
			drawDown = nil
		}
		prev = rec.Date
	}

	// an unrecovered draw down has a zero recovery date
	if drawDown != nil {
		allDrawDowns = append(allDrawDowns, drawDown)
	}
	return allDrawDowns
}

// MaxDrawDown returns the deepest draw down or nil
func (perf *Performance) MaxDrawDown() *DrawDown {
	all := perf.AllDrawDowns()
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].LossPercent < all[j].LossPercent
	})
	return all[0]
}

// Summary computes every metric of the series
func (perf *Performance) Summary() *Metrics {
	m := &Metrics{
		TotalReturn:  math.NaN(),
		CAGR:         perf.CAGR(),
		SharpeRatio:  perf.SharpeRatio(),
		SortinoRatio: perf.SortinoRatio(),
		StdDev:       perf.StdDev(),
		MaxDrawDown:  perf.MaxDrawDown(),
		TradingDays:  len(perf.Records),
	}
	if last := perf.Last(); last != nil {
		m.FinalValue = last.AccountValue.InexactFloat64()
		m.TotalReturn = last.CumulativeReturn
	}
	return m
}

func toYears(d time.Duration) float64 {
	return d.Hours() / (24 * 365.2425)
}
