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
	"github.com/rs/zerolog"
)

func (o *DrawDown) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Begin", o.Begin).Time("End", o.End).Time("RecoveryDate", o.Recovery).Float64("LossPercent", o.LossPercent)
}

func (metrics *Metrics) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("FinalValue", metrics.FinalValue)
	e.Float64("TotalReturn", metrics.TotalReturn)
	e.Float64("CAGR", metrics.CAGR)
	e.Float64("SharpeRatio", metrics.SharpeRatio)
	e.Float64("SortinoRatio", metrics.SortinoRatio)
	e.Float64("StdDev", metrics.StdDev)
	e.Int("TradingDays", metrics.TradingDays)
	if metrics.MaxDrawDown != nil {
		e.Object("MaxDrawDown", metrics.MaxDrawDown)
	}
}

func (o *TradeAction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("SourceID", o.SourceID).
		Time("Date", o.Date).
		Str("Stock", o.Stock).
		Str("Kind", o.Kind).
		Float64("Signal", o.Signal).
		Int64("Requested", o.Requested).
		Int64("Shares", o.Shares).
		Str("Price", o.Price.String()).
		Str("Value", o.Value.String()).
		Str("Fee", o.Fee.String()).
		Str("Fill", string(o.Fill))
}

func (o *PerformanceRecord) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Date", o.Date).
		Str("AccountValue", o.AccountValue.StringFixed(2)).
		Str("Cash", o.Cash.StringFixed(2)).
		Float64("DailyReturn", o.DailyReturn).
		Float64("CumulativeReturn", o.CumulativeReturn).
		Int("Trades", o.Trades).
		Bool("WarmUp", o.WarmUp)
}

func (o *Activity) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ID", o.ID.String()).
		Time("Date", o.Date).
		Str("Stock", o.Stock).
		Str("Msg", o.Msg).
		Strs("Tags", o.Tags)
}
