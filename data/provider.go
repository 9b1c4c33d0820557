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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/dataframe"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	ReportsFile          = "reports.csv"
	CorporateActionsFile = "corporate_actions.csv"
	PricesDir            = "prices"
	IndicatorsDir        = "indicators"
)

// Provider supplies the raw inputs of a simulation
type Provider interface {
	DataType() string
	Reports(ctx context.Context) ([]*FinancialReport, error)
	Bars(ctx context.Context, code string) ([]*Bar, error)
	Indicators(ctx context.Context, code string) (*dataframe.DataFrame, error)
	CorporateActions(ctx context.Context) ([]*CorporateAction, error)
}

// CSVProvider reads inputs from a directory laid out as:
//
//	reports.csv                stock_code,date,<statement columns...>
//	prices/<code>.csv          date,close,volume
//	indicators/<code>.csv      date,<indicator columns...>
//	corporate_actions.csv      date,stock_code,kind,cash_per_share,ratio
//
// Files that do not exist yield empty results; malformed files are errors.
type CSVProvider struct {
	Dir string
}

func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

func (p *CSVProvider) DataType() string {
	return "csv"
}

func openCSV(fn string) (*csv.Reader, io.Closer, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(fh)
	r.TrimLeadingSpace = true
	r.ReuseRecord = false
	return r, fh, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for ii, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = ii
	}
	return idx
}

// parseFloat treats blank cells and the literal NaN as missing
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Reports reads every financial report; release dates and quarter labels are
// derived from the fiscal period end in the date column
func (p *CSVProvider) Reports(ctx context.Context) ([]*FinancialReport, error) {
	fn := filepath.Join(p.Dir, ReportsFile)
	subLog := log.With().Str("FileName", fn).Logger()

	r, closer, err := openCSV(fn)
	if errors.Is(err, os.ErrNotExist) {
		subLog.Warn().Msg("no financial reports found")
		return []*FinancialReport{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	header, err := r.Read()
	if err != nil {
		subLog.Error().Err(err).Msg("could not read header")
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
	}
	cols := headerIndex(header)

	codeIdx, ok1 := cols[common.StockCodeIdx]
	dateIdx, ok2 := cols[common.DateIdx]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: %s: header must contain %s and %s", ErrMalformedInput, fn, common.StockCodeIdx, common.DateIdx)
	}

	featureIdx := make([]int, len(ReportSchema))
	for ii, name := range ReportSchema {
		idx, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing column %s", ErrMalformedInput, fn, name)
		}
		featureIdx[ii] = idx
	}

	reports := make([]*FinancialReport, 0, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		periodEnd, err := common.ParseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		report := &FinancialReport{
			Stock:       strings.TrimSpace(rec[codeIdx]),
			Quarter:     tradecron.FiscalQuarter(periodEnd),
			PeriodEnd:   periodEnd,
			ReleaseDate: tradecron.ReleaseDate(periodEnd),
			Features:    make([]float64, len(featureIdx)),
		}

		for ii, idx := range featureIdx {
			val, err := parseFloat(rec[idx])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: stock %s column %s: %v", ErrMalformedInput, fn, report.Stock, ReportSchema[ii], err)
			}
			report.Features[ii] = val
		}

		reports = append(reports, report)
	}

	return reports, nil
}

// Bars reads the daily close and volume of a stock
func (p *CSVProvider) Bars(ctx context.Context, code string) ([]*Bar, error) {
	fn := filepath.Join(p.Dir, PricesDir, code+".csv")

	r, closer, err := openCSV(fn)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("Stock", code).Str("FileName", fn).Msg("no price history")
		return []*Bar{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
	}
	cols := headerIndex(header)
	dateIdx, ok1 := cols[common.DateIdx]
	closeIdx, ok2 := cols["close"]
	volumeIdx, ok3 := cols["volume"]
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("%w: %s: header must contain date, close and volume", ErrMalformedInput, fn)
	}

	bars := make([]*Bar, 0, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		date, err := common.ParseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		price, err := decimal.NewFromString(strings.TrimSpace(rec[closeIdx]))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: close on %s: %v", ErrMalformedInput, fn, rec[dateIdx], err)
		}

		volume, err := strconv.ParseFloat(strings.TrimSpace(rec[volumeIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: volume on %s: %v", ErrMalformedInput, fn, rec[dateIdx], err)
		}

		bars = append(bars, &Bar{
			Date:   date,
			Close:  price,
			Volume: int64(volume),
		})
	}

	return bars, nil
}

// Indicators reads the daily technical indicators of a stock into a
// dataframe with one column per indicator
func (p *CSVProvider) Indicators(ctx context.Context, code string) (*dataframe.DataFrame, error) {
	fn := filepath.Join(p.Dir, IndicatorsDir, code+".csv")

	r, closer, err := openCSV(fn)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("Stock", code).Str("FileName", fn).Msg("no indicator history")
		return dataframe.New(), nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
	}

	dateIdx := -1
	colNames := make([]string, 0, len(header))
	valueIdx := make([]int, 0, len(header))
	for ii, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == common.DateIdx {
			dateIdx = ii
			continue
		}
		colNames = append(colNames, name)
		valueIdx = append(valueIdx, ii)
	}
	if dateIdx == -1 {
		return nil, fmt.Errorf("%w: %s: header must contain date", ErrMalformedInput, fn)
	}

	df := dataframe.New(colNames...)
	row := make([]float64, len(valueIdx))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		date, err := common.ParseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		for ii, idx := range valueIdx {
			if row[ii], err = parseFloat(rec[idx]); err != nil {
				return nil, fmt.Errorf("%w: %s: %s on %s: %v", ErrMalformedInput, fn, colNames[ii], rec[dateIdx], err)
			}
		}

		if err := df.InsertRow(date, row...); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}
	}

	return df, nil
}

// CorporateActions reads dividends, splits and capital reductions
func (p *CSVProvider) CorporateActions(ctx context.Context) ([]*CorporateAction, error) {
	fn := filepath.Join(p.Dir, CorporateActionsFile)

	r, closer, err := openCSV(fn)
	if errors.Is(err, os.ErrNotExist) {
		return []*CorporateAction{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
	}
	cols := headerIndex(header)
	for _, required := range []string{common.DateIdx, common.StockCodeIdx, "kind", "cash_per_share", "ratio"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s: missing column %s", ErrMalformedInput, fn, required)
		}
	}

	parseDecimal := func(s string, def decimal.Decimal) (decimal.Decimal, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return def, nil
		}
		return decimal.NewFromString(s)
	}

	actions := make([]*CorporateAction, 0, 128)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		exDate, err := common.ParseDate(rec[cols[common.DateIdx]])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		action := &CorporateAction{
			Stock:  strings.TrimSpace(rec[cols[common.StockCodeIdx]]),
			ExDate: exDate,
			Kind:   CorporateActionKind(strings.ToUpper(strings.TrimSpace(rec[cols["kind"]]))),
		}

		switch action.Kind {
		case CashDividend, StockDividend, Split, CapitalReduction:
		default:
			return nil, fmt.Errorf("%w: %s: unknown corporate action %q", ErrMalformedInput, fn, action.Kind)
		}

		if action.CashPerShare, err = parseDecimal(rec[cols["cash_per_share"]], decimal.Zero); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}
		if action.Ratio, err = parseDecimal(rec[cols["ratio"]], decimal.NewFromInt(1)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInput, fn, err)
		}

		actions = append(actions, action)
	}

	return actions, nil
}
