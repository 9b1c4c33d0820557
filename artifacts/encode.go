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

package artifacts

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/graph"
	"github.com/guan0612/Portfolio-Managment-System/portfolio"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
)

// Artifact kinds. Matrices are keyed by quarter-end date, run summaries by
// run id; every other kind has a single document.
const (
	KindMatrix      = "gat"
	KindLowRisk     = "low-risk-stocks"
	KindPredictions = "quarterly-predictions"
	KindSharpe      = "sharpe-ratios"
	KindPerformance = "trading-performance"
	KindStocks      = "stocks"
	KindRun         = "run"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrUnknownKind = errors.New("unknown artifact kind")
	ErrInvalidDate = errors.New("artifact dates must be YYYY-MM-DD")
)

// Document is one serialized artifact
type Document struct {
	Kind string
	Key  string
	Body []byte
}

// ContentType returns the MIME type a document of kind is served with
func ContentType(kind string) string {
	switch kind {
	case KindLowRisk, KindPredictions:
		return ContentTypeCSV
	default:
		return ContentTypeJSON
	}
}

func validKind(kind string) bool {
	switch kind {
	case KindMatrix, KindLowRisk, KindPredictions, KindSharpe, KindPerformance, KindStocks, KindRun:
		return true
	}
	return false
}

// Sanitize replaces NaN and infinities with 0 so documents stay valid JSON
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// MatrixDate is the quarter-end date a relationship matrix is published under
func MatrixDate(rm *graph.RelationshipMatrix) (string, error) {
	end, err := tradecron.QuarterEnd(rm.Quarter)
	if err != nil {
		return "", err
	}
	return end.Format(common.DateFormat), nil
}

// Encode serializes every artifact of a run. The output is a pure function
// of the result apart from the run summary, which carries the run id.
func Encode(result *simulation.Result) ([]*Document, error) {
	docs := make([]*Document, 0, len(result.Matrices)+6)

	for _, rm := range result.Matrices {
		date, err := MatrixDate(rm)
		if err != nil {
			log.Error().Err(err).Str("Quarter", rm.Quarter).Msg("relationship matrix has an unparsable quarter")
			return nil, err
		}
		body, err := json.Marshal(rm.Records())
		if err != nil {
			return nil, err
		}
		docs = append(docs, &Document{Kind: KindMatrix, Key: date, Body: body})
	}

	encoders := []struct {
		kind string
		fn   func(*simulation.Result) ([]byte, error)
	}{
		{KindLowRisk, encodeLowRisk},
		{KindPredictions, encodePredictions},
		{KindSharpe, encodeSharpe},
		{KindPerformance, encodePerformance},
		{KindStocks, encodeStocks},
	}
	for _, enc := range encoders {
		body, err := enc.fn(result)
		if err != nil {
			log.Error().Err(err).Str("Kind", enc.kind).Msg("could not encode artifact")
			return nil, err
		}
		docs = append(docs, &Document{Kind: enc.kind, Body: body})
	}

	body, err := encodeRun(result)
	if err != nil {
		return nil, err
	}
	docs = append(docs, &Document{Kind: KindRun, Key: result.ID.String(), Body: body})

	return docs, nil
}

func universeCodes(result *simulation.Result) []string {
	codes := make([]string, len(result.Universe))
	for idx, stock := range result.Universe {
		codes[idx] = stock.Code
	}
	return codes
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeLowRisk writes one row per quarterly selection: the date the
// selection took effect followed by a 0/1 column per stock
func encodeLowRisk(result *simulation.Result) ([]byte, error) {
	codes := universeCodes(result)
	records := make([][]string, 0, len(result.Selections)+1)
	records = append(records, append([]string{"date"}, codes...))

	for idx, sv := range result.Selections {
		row := make([]string, 1, len(codes)+1)
		row[0] = result.SelectedOn[idx].Format(common.DateFormat)
		for _, code := range codes {
			if sv.IsSelected(code) {
				row = append(row, "1")
			} else {
				row = append(row, "0")
			}
		}
		records = append(records, row)
	}
	return writeCSV(records)
}

// encodePredictions writes the selector's action value for every stock of
// every quarter; unselected stocks have an action value of 0
func encodePredictions(result *simulation.Result) ([]byte, error) {
	records := [][]string{{"quarter", "stock_code", "action_value"}}
	for _, sv := range result.Selections {
		vals := sv.ActionValues()
		for idx, code := range sv.Codes {
			records = append(records, []string{sv.Quarter, code, strconv.FormatFloat(Sanitize(vals[idx]), 'f', -1, 64)})
		}
	}
	return writeCSV(records)
}

type sharpeDoc struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

func encodeSharpe(result *simulation.Result) ([]byte, error) {
	doc := make(map[string]*sharpeDoc, len(result.Sharpe))
	for code, series := range result.Sharpe {
		sd := &sharpeDoc{
			Dates:  make([]string, len(series.Dates)),
			Values: make([]float64, len(series.Values)),
		}
		for idx, d := range series.Dates {
			sd.Dates[idx] = d.Format(common.DateFormat)
		}
		for idx, v := range series.Values {
			sd.Values[idx] = Sanitize(v)
		}
		doc[code] = sd
	}
	return json.Marshal(doc)
}

type accountValueDoc struct {
	Date             string  `json:"date"`
	AccountValue     float64 `json:"account_value"`
	Cash             float64 `json:"cash"`
	DailyReturn      float64 `json:"daily_return"`
	CumulativeReturn float64 `json:"cumulative_return"`
	WarmUp           bool    `json:"warm_up"`
}

type statusDoc struct {
	Halted    bool   `json:"halted"`
	HaltedAt  string `json:"halted_at"`
	Stage     string `json:"stage,omitempty"`
	Reason    string `json:"reason"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

type performanceDoc struct {
	AccountValue []*accountValueDoc       `json:"account_value"`
	Actions      []map[string]interface{} `json:"actions"`
	Stocks       []string                 `json:"stocks"`
	Status       statusDoc                `json:"status"`
}

func newStatusDoc(status simulation.Status) statusDoc {
	doc := statusDoc{
		Halted:    status.Halted,
		Stage:     status.Stage,
		Reason:    status.Reason,
		Cancelled: status.Cancelled,
	}
	if !status.HaltedAt.IsZero() {
		doc.HaltedAt = status.HaltedAt.Format(common.DateFormat)
	}
	return doc
}

// encodePerformance writes the account value series and, for every trading
// day, the signed number of shares traded per stock
func encodePerformance(result *simulation.Result) ([]byte, error) {
	doc := &performanceDoc{
		AccountValue: make([]*accountValueDoc, 0),
		Actions:      make([]map[string]interface{}, 0),
		Stocks:       make([]string, 0),
		Status:       newStatusDoc(result.Status),
	}

	deltas := make(map[time.Time]map[string]int64)
	traded := make(map[string]bool)
	for _, action := range result.Actions {
		if action.Shares == 0 {
			continue
		}
		day := common.DateOnly(action.Date)
		if deltas[day] == nil {
			deltas[day] = make(map[string]int64)
		}
		deltas[day][action.Stock] += action.Delta()
		traded[action.Stock] = true
	}
	for code := range traded {
		doc.Stocks = append(doc.Stocks, code)
	}
	sort.Strings(doc.Stocks)

	var records []*portfolio.PerformanceRecord
	if result.Performance != nil {
		records = result.Performance.Records
	}
	for _, rec := range records {
		date := rec.Date.Format(common.DateFormat)
		doc.AccountValue = append(doc.AccountValue, &accountValueDoc{
			Date:             date,
			AccountValue:     rec.AccountValue.InexactFloat64(),
			Cash:             rec.Cash.InexactFloat64(),
			DailyReturn:      Sanitize(rec.DailyReturn),
			CumulativeReturn: Sanitize(rec.CumulativeReturn),
			WarmUp:           rec.WarmUp,
		})

		row := map[string]interface{}{"date": date}
		day := deltas[common.DateOnly(rec.Date)]
		for _, code := range doc.Stocks {
			row[code] = day[code]
		}
		doc.Actions = append(doc.Actions, row)
	}

	return json.Marshal(doc)
}

func encodeStocks(result *simulation.Result) ([]byte, error) {
	stocks := result.Universe
	if stocks == nil {
		stocks = []data.Stock{}
	}
	return json.Marshal(stocks)
}

type evaluationDoc struct {
	Quarter       string  `json:"quarter"`
	Date          string  `json:"date"`
	Selected      int     `json:"selected"`
	AverageSharpe float64 `json:"averageSharpe"`
}

type runDoc struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Start       string                `json:"start"`
	End         string                `json:"end"`
	Status      statusDoc             `json:"status"`
	Metrics     *portfolio.Metrics    `json:"metrics"`
	Evaluations []*evaluationDoc      `json:"evaluations"`
	Activities  []*portfolio.Activity `json:"activities"`
}

func encodeRun(result *simulation.Result) ([]byte, error) {
	doc := &runDoc{
		ID:          result.ID.String(),
		Name:        result.Name,
		Start:       result.Start.Format(common.DateFormat),
		End:         result.End.Format(common.DateFormat),
		Status:      newStatusDoc(result.Status),
		Evaluations: make([]*evaluationDoc, 0, len(result.Evaluations)),
		Activities:  result.Activities,
	}
	if doc.Activities == nil {
		doc.Activities = []*portfolio.Activity{}
	}

	if result.Performance != nil {
		m := result.Performance.Summary()
		m.TotalReturn = Sanitize(m.TotalReturn)
		m.CAGR = Sanitize(m.CAGR)
		m.SharpeRatio = Sanitize(m.SharpeRatio)
		m.SortinoRatio = Sanitize(m.SortinoRatio)
		m.StdDev = Sanitize(m.StdDev)
		doc.Metrics = m
	}

	for _, e := range result.Evaluations {
		doc.Evaluations = append(doc.Evaluations, &evaluationDoc{
			Quarter:       e.Quarter,
			Date:          e.Date.Format(common.DateFormat),
			Selected:      e.Selected,
			AverageSharpe: Sanitize(e.AverageSharpe),
		})
	}

	return json.Marshal(doc)
}

// ParseDate validates an artifact date key
func ParseDate(s string) (string, error) {
	d, err := common.ParseDate(s)
	if err != nil {
		return "", ErrInvalidDate
	}
	return d.Format(common.DateFormat), nil
}
