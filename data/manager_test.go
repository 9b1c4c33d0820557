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

package data_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
)

func writeFile(dir, name, contents string) {
	fn := filepath.Join(dir, name)
	Expect(os.MkdirAll(filepath.Dir(fn), 0o755)).To(Succeed())
	Expect(os.WriteFile(fn, []byte(contents), 0o644)).To(Succeed())
}

func reportRow(code, date string, base float64) string {
	vals := make([]string, len(data.ReportSchema))
	for idx := range vals {
		vals[idx] = fmt.Sprintf("%.2f", base+float64(idx))
	}
	return code + "," + date + "," + strings.Join(vals, ",")
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, common.GetTimezone())
}

var _ = Describe("Manager", func() {
	var (
		dir      string
		manager  *data.Manager
		universe *data.Universe
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		universe = data.NewUniverse([]data.Stock{
			{Code: "2330", Industry: data.IndustrySemiconductor},
			{Code: "1101", Industry: data.IndustryCement},
		})

		reports := "stock_code,date," + strings.Join(data.ReportSchema, ",") + "\n" +
			reportRow("1101", "2023-03-31", 1) + "\n" +
			reportRow("2330", "2023-03-31", 2) + "\n" +
			reportRow("9999", "2023-03-31", 3) + "\n"
		writeFile(dir, data.ReportsFile, reports)

		writeFile(dir, "prices/1101.csv", "date,close,volume\n"+
			"2023-05-16,40.00,1000\n"+
			"2023-05-17,44.00,1000\n"+
			"2023-05-18,44.00,0\n"+
			"2023-05-19,39.60,1000\n"+
			"2023-05-22,43.56,1000\n")
		writeFile(dir, "prices/2330.csv", "date,close,volume\n"+
			"2023-05-16,500,1000\n"+
			"2023-05-17,505,1000\n"+
			"2023-05-19,510,1000\n")

		writeFile(dir, "indicators/2330.csv", "date,rsi,macd\n"+
			"2023-05-16,55.1,0.5\n"+
			"2023-05-17,,0.6\n")

		writeFile(dir, data.CorporateActionsFile, "date,stock_code,kind,cash_per_share,ratio\n"+
			"2023-05-17,2330,dividend,2.75,\n"+
			"2023-05-17,1101,capital_reduction,1.5,0.9\n")

		manager = data.NewManager(universe, data.NewCSVProvider(dir))
		Expect(manager.Load(context.Background(), 2)).To(Succeed())
	})

	It("groups reports by the quarter they are released in", func() {
		Expect(manager.Quarters()).To(Equal([]string{"2023Q1"}))
		reports := manager.Reports("2023Q1")
		// stocks outside of the universe are dropped
		Expect(reports).To(HaveLen(2))
		Expect(reports[0].ReleaseDate).To(Equal(day(2023, 5, 16)))
		Expect(reports[0].Features).To(HaveLen(len(data.ReportSchema)))
	})

	It("derives the trading calendar from prices", func() {
		cal := manager.Calendar()
		Expect(cal.Len()).To(Equal(5))
		Expect(cal.IsTradeDay(day(2023, 5, 18))).To(BeTrue())
	})

	It("looks up closing prices", func() {
		price, ok := manager.Close("2330", day(2023, 5, 17))
		Expect(ok).To(BeTrue())
		Expect(price.Equal(decimal.NewFromInt(505))).To(BeTrue())

		_, ok = manager.Close("2330", day(2023, 5, 18))
		Expect(ok).To(BeFalse())

		prices := manager.Prices(day(2023, 5, 18), []string{"2330", "1101"})
		Expect(prices["2330"].Equal(decimal.NewFromInt(505))).To(BeTrue())
		Expect(prices["1101"].Equal(decimal.NewFromInt(44))).To(BeTrue())
	})

	It("reads indicators and keeps missing cells as NaN", func() {
		vals, ok := manager.Indicators("2330", day(2023, 5, 17))
		Expect(ok).To(BeTrue())
		Expect(math.IsNaN(vals[0])).To(BeTrue())
		Expect(vals[1]).To(Equal(0.6))

		_, ok = manager.Indicators("1101", day(2023, 5, 17))
		Expect(ok).To(BeFalse())
	})

	It("indexes corporate actions by ex-date", func() {
		actions := manager.CorporateActions(day(2023, 5, 17))
		Expect(actions).To(HaveLen(2))
		Expect(actions[0].Stock).To(Equal("1101"))
		Expect(actions[0].Kind).To(Equal(data.CapitalReduction))
		Expect(actions[0].Ratio.Equal(decimal.RequireFromString("0.9"))).To(BeTrue())
		Expect(actions[1].Ratio.Equal(decimal.NewFromInt(1))).To(BeTrue())
	})

	It("computes the sharpe ratio skipping zero volume days", func() {
		dates, values := manager.SharpeSeries("1101", []time.Time{day(2023, 5, 16), day(2023, 5, 23)})
		Expect(dates).To(Equal([]time.Time{day(2023, 5, 16)}))
		// returns are +10%, -10%, +10%
		mean := 0.1 / 3.0
		std := math.Sqrt((2*math.Pow(0.1-mean, 2) + math.Pow(-0.1-mean, 2)) / 2.0)
		Expect(values[0]).To(BeNumerically("~", mean/std, 1e-9))
	})

	It("returns NaN when a period has too little data", func() {
		_, values := manager.SharpeSeries("2330", []time.Time{day(2023, 5, 16), day(2023, 5, 17)})
		Expect(math.IsNaN(values[0])).To(BeTrue())
	})

	It("rejects a reports file missing statement columns", func() {
		writeFile(dir, data.ReportsFile, "stock_code,date,EPS\n1101,2023-03-31,1.0\n")
		_, err := data.NewCSVProvider(dir).Reports(context.Background())
		Expect(err).To(MatchError(data.ErrMalformedInput))
	})
})

var _ = Describe("Universe", func() {
	It("contains the 74 default stocks in code order", func() {
		u := data.DefaultUniverse()
		Expect(u.Len()).To(Equal(74))
		codes := u.Codes()
		Expect(codes[0]).To(Equal("1101"))
		Expect(codes[len(codes)-1]).To(Equal("9945"))
		Expect(u.Index("2330")).To(BeNumerically(">", 0))
		Expect(u.Index("0000")).To(Equal(-1))

		stock, err := u.Stock("2330")
		Expect(err).To(BeNil())
		Expect(stock.Industry).To(Equal(data.IndustrySemiconductor))
	})
})

var _ = Describe("Errors", func() {
	DescribeTable("match their sentinel",
		func(err error, sentinel error) {
			Expect(errors.Is(err, sentinel)).To(BeTrue())
			Expect(data.IsPipelineError(err)).To(BeTrue())
		},
		Entry("incomplete report", &data.IncompleteReportError{Quarter: "2023Q1", Missing: []string{"2330"}}, data.ErrIncompleteReport),
		Entry("feature validation", &data.FeatureValidationError{Stock: "2330", Reason: "NaN"}, data.ErrFeatureValidation),
		Entry("degenerate selection", &data.DegenerateSelectionError{Quarter: "2023Q1"}, data.ErrDegenerateSelection),
		Entry("insufficient history", &data.InsufficientHistoryError{Stocks: []string{"2330"}, Have: 3, Need: 20}, data.ErrInsufficientHistory),
		Entry("invalid target", &data.InvalidTargetError{Stock: "2330", Signal: 0.4}, data.ErrInvalidTarget),
	)

	It("names the missing stocks", func() {
		err := fmt.Errorf("build: %w", &data.IncompleteReportError{Quarter: "2023Q1", Missing: []string{"1101", "2330"}})
		var incomplete *data.IncompleteReportError
		Expect(errors.As(err, &incomplete)).To(BeTrue())
		Expect(incomplete.Missing).To(Equal([]string{"1101", "2330"}))
		Expect(err.Error()).To(ContainSubstring("1101,2330"))
	})

	It("does not treat other errors as pipeline errors", func() {
		Expect(data.IsPipelineError(data.ErrNotFound)).To(BeFalse())
	})
})
