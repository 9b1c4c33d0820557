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

package dataframe_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/guan0612/Portfolio-Managment-System/dataframe"
)

var _ = Describe("DataFrame", func() {
	Context("with no values", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = dataframe.New()
		})

		It("has zero length", func() {
			Expect(df.Len()).To(Equal(0))
		})

		It("has zero columns", func() {
			Expect(df.ColCount()).To(Equal(0))
		})

		It("does not error on trim", func() {
			df = df.Trim(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
			Expect(df.Len()).To(Equal(0))
		})

		It("does not error on pct change", func() {
			Expect(df.PctChange().Len()).To(Equal(0))
		})

		It("renders a placeholder table", func() {
			Expect(df.Table()).To(Equal("<NO DATA>"))
		})
	})

	Context("with a week of closing prices and volume", func() {
		var (
			df *dataframe.DataFrame
		)

		BeforeEach(func() {
			df = dataframe.New("close", "volume")
			dt := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
			closes := []float64{100, 110, 99, 99, 108.9}
			volumes := []float64{10, 12, 0, 8, 9}
			for idx := range closes {
				Expect(df.InsertRow(dt.AddDate(0, 0, idx), closes[idx], volumes[idx])).To(Succeed())
			}
		})

		It("has 5 rows", func() {
			Expect(df.Len()).To(Equal(5))
			Expect(df.Start()).To(Equal(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)))
			Expect(df.End()).To(Equal(time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)))
		})

		It("rejects rows out of order", func() {
			err := df.InsertRow(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 1, 1)
			Expect(err).To(MatchError(dataframe.ErrDateOutOfOrder))
		})

		It("rejects rows with the wrong width", func() {
			err := df.InsertRow(time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), 1)
			Expect(err).To(MatchError(dataframe.ErrColumnCount))
		})

		It("computes percent change", func() {
			pct := df.PctChange()
			Expect(pct.Len()).To(Equal(4))
			closes := pct.Column("close")
			Expect(closes[0]).To(BeNumerically("~", 0.1, 1e-12))
			Expect(closes[1]).To(BeNumerically("~", -0.1, 1e-12))
			Expect(closes[2]).To(BeNumerically("~", 0.0, 1e-12))
			Expect(closes[3]).To(BeNumerically("~", 0.1, 1e-12))

			// volume goes to zero and back
			Expect(math.IsNaN(pct.Column("volume")[2])).To(BeTrue())
		})

		It("filters rows", func() {
			volIdx := df.ColIndex("volume")
			traded := df.Filter(func(_ time.Time, row []float64) bool { return row[volIdx] > 0 })
			Expect(traded.Len()).To(Equal(4))
			Expect(traded.Column("close")).To(Equal([]float64{100, 110, 99, 108.9}))
		})

		It("trims to an inclusive range", func() {
			trimmed := df.Trim(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC))
			Expect(trimmed.Len()).To(Equal(3))
			Expect(trimmed.Column("close")).To(Equal([]float64{110, 99, 99}))
		})

		It("returns an empty frame for an inverted range", func() {
			trimmed := df.Trim(time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC))
			Expect(trimmed.Len()).To(Equal(0))
		})

		It("selects columns", func() {
			sel, err := df.Select("volume")
			Expect(err).To(BeNil())
			Expect(sel.ColNames).To(Equal([]string{"volume"}))

			_, err = df.Select("open")
			Expect(err).To(MatchError(dataframe.ErrColumnNotFound))
		})

		It("copies deeply", func() {
			cp := df.Copy()
			cp.Vals[0][0] = -1
			Expect(df.Vals[0][0]).To(Equal(100.0))
		})

		It("computes column statistics", func() {
			means := df.Mean()
			Expect(means[0]).To(BeNumerically("~", 103.38, 1e-9))
			Expect(df.StdDev()[1]).To(BeNumerically(">", 0))
		})

		It("keeps only the last row", func() {
			last := df.Last()
			Expect(last.Len()).To(Equal(1))
			Expect(last.Column("close")).To(Equal([]float64{108.9}))
		})

		It("renders a table", func() {
			Expect(df.Table()).To(ContainSubstring("2023-01-04"))
		})
	})
})
