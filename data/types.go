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
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// IndicatorCount is the number of daily technical indicators per stock
const IndicatorCount = 117

// Stock is immutable reference data for an equity in the universe
type Stock struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// ReportSchema is the ordered list of statement columns that make up a
// FinancialReport feature vector. Its width must match the input width of
// the attention model.
var ReportSchema = []string{
	"CostOfGoodsSold",
	"EPS",
	"IncomeAfterTaxes",
	"IncomeFromContinuingOperations",
	"OtherComprehensiveIncome",
	"Revenue",
	"TAX",
	"TotalConsolidatedProfitForThePeriod",
	"CapitalStock",
	"CapitalSurplus",
	"CashAndCashEquivalents",
	"CurrentAssets",
	"Equity",
	"NoncurrentAssets",
	"NoncurrentLiabilities",
	"OrdinaryShare",
	"OtherCurrentLiabilities",
	"OtherEquityInterest",
	"RetainedEarnings",
	"TotalAssets",
	"CashBalancesBeginningOfPeriod",
	"CashBalancesEndOfPeriod",
	"Depreciation",
	"PayTheInterest",
	"PropertyAndPlantAndEquipment",
}

// FinancialReport holds one stock's statement features for a fiscal quarter.
// Reports are keyed by the date they become public (ReleaseDate).
type FinancialReport struct {
	Stock       string    `json:"stock"`
	Quarter     string    `json:"quarter"`
	PeriodEnd   time.Time `json:"periodEnd"`
	ReleaseDate time.Time `json:"releaseDate"`
	Features    []float64 `json:"features"`
}

// Bar is one day of trading for a stock. Close is kept as a decimal so that
// portfolio valuation is exact.
type Bar struct {
	Date   time.Time
	Close  decimal.Decimal
	Volume int64
}

// CorporateActionKind enumerates out-of-band adjustments to a holding
type CorporateActionKind string

const (
	CashDividend     CorporateActionKind = "DIVIDEND"
	StockDividend    CorporateActionKind = "STOCK_DIVIDEND"
	Split            CorporateActionKind = "SPLIT"
	CapitalReduction CorporateActionKind = "CAPITAL_REDUCTION"
)

// CorporateAction adjusts the cash and/or share count of a holding on its
// ex-date. CashPerShare is paid for every share held before the action;
// Ratio multiplies the share count (1.05 for a 5% stock dividend, 0.8 for a
// 20% capital reduction).
type CorporateAction struct {
	Stock        string
	ExDate       time.Time
	Kind         CorporateActionKind
	CashPerShare decimal.Decimal
	Ratio        decimal.Decimal
}

func (r *FinancialReport) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Stock", r.Stock).
		Str("Quarter", r.Quarter).
		Time("PeriodEnd", r.PeriodEnd).
		Time("ReleaseDate", r.ReleaseDate).
		Floats64("Features", r.Features)
}

func (a *CorporateAction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Stock", a.Stock).
		Time("ExDate", a.ExDate).
		Str("Kind", string(a.Kind)).
		Str("CashPerShare", a.CashPerShare.String()).
		Str("Ratio", a.Ratio.String())
}
