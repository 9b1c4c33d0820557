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

package tradecron_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, common.GetTimezone())
}

// weekdays returns every Monday-Friday between begin and end
func weekdays(begin, end time.Time) []time.Time {
	days := []time.Time{}
	for d := begin; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

var _ = Describe("ReleaseSchedule", func() {
	var schedule *tradecron.ReleaseSchedule

	BeforeEach(func() {
		var err error
		schedule, err = tradecron.NewReleaseSchedule(tradecron.DefaultReleaseSpecs...)
		Expect(err).To(BeNil())
	})

	It("rejects an empty spec list", func() {
		_, err := tradecron.NewReleaseSchedule()
		Expect(err).To(MatchError(tradecron.ErrNoSpecs))
	})

	It("rejects malformed specs", func() {
		_, err := tradecron.NewReleaseSchedule("0 0 99 5 *")
		Expect(err).ToNot(BeNil())
	})

	DescribeTable("next release date",
		func(after time.Time, expected time.Time) {
			Expect(schedule.Next(after)).To(Equal(expected))
		},
		Entry("early january", date(2023, 1, 3), date(2023, 4, 1)),
		Entry("day of Q4 release", date(2023, 4, 1), date(2023, 5, 16)),
		Entry("between Q1 and Q2", date(2023, 6, 30), date(2023, 8, 15)),
		Entry("between Q2 and Q3", date(2023, 9, 1), date(2023, 11, 15)),
		Entry("after Q3", date(2023, 11, 20), date(2024, 4, 1)),
	)

	It("lists every release in a range", func() {
		dates := schedule.Between(date(2022, 5, 16), date(2023, 5, 16))
		Expect(dates).To(Equal([]time.Time{
			date(2022, 5, 16),
			date(2022, 8, 15),
			date(2022, 11, 15),
			date(2023, 4, 1),
			date(2023, 5, 16),
		}))
	})

	It("rolls release dates forward to the next trading day", func() {
		// 2023-04-01 is a Saturday
		cal := tradecron.NewCalendar(weekdays(date(2023, 3, 1), date(2023, 6, 30)))
		boundaries := schedule.Boundaries(cal, date(2023, 3, 1), date(2023, 6, 30))
		Expect(boundaries).To(Equal([]time.Time{date(2023, 4, 3), date(2023, 5, 16)}))
	})

	DescribeTable("release date of a fiscal quarter",
		func(periodEnd time.Time, expected time.Time) {
			Expect(tradecron.ReleaseDate(periodEnd)).To(Equal(expected))
		},
		Entry("Q1", date(2023, 3, 31), date(2023, 5, 16)),
		Entry("Q2", date(2023, 6, 30), date(2023, 8, 15)),
		Entry("Q3", date(2023, 9, 30), date(2023, 11, 15)),
		Entry("Q4", date(2023, 12, 31), date(2024, 4, 1)),
	)

	DescribeTable("quarter label",
		func(t time.Time, expected string) {
			Expect(tradecron.QuarterLabel(t)).To(Equal(expected))
		},
		Entry("january uses prior Q3", date(2024, 1, 15), "2023Q3"),
		Entry("Q4 release day", date(2024, 4, 1), "2023Q4"),
		Entry("day before Q1 release", date(2024, 5, 15), "2023Q4"),
		Entry("Q1 release day", date(2024, 5, 16), "2024Q1"),
		Entry("Q2 release day", date(2024, 8, 15), "2024Q2"),
		Entry("Q3 release day", date(2024, 11, 15), "2024Q3"),
	)

	It("maps quarter labels back to quarter end", func() {
		end, err := tradecron.QuarterEnd("2023Q4")
		Expect(err).To(BeNil())
		Expect(end).To(Equal(date(2023, 12, 31)))

		_, err = tradecron.QuarterEnd("2023Q5")
		Expect(err).To(MatchError(tradecron.ErrUnknownLabel))
	})

	It("labels fiscal quarters", func() {
		Expect(tradecron.FiscalQuarter(date(2023, 6, 30))).To(Equal("2023Q2"))
	})
})

var _ = Describe("Calendar", func() {
	var cal *tradecron.Calendar

	BeforeEach(func() {
		// duplicate and out of order days are normalized
		cal = tradecron.NewCalendar([]time.Time{
			date(2023, 1, 5),
			date(2023, 1, 3),
			date(2023, 1, 4),
			date(2023, 1, 4),
			date(2023, 1, 9),
		})
	})

	It("deduplicates and sorts days", func() {
		Expect(cal.Len()).To(Equal(4))
		Expect(cal.Start()).To(Equal(date(2023, 1, 3)))
		Expect(cal.End()).To(Equal(date(2023, 1, 9)))
	})

	It("answers trading day questions", func() {
		Expect(cal.IsTradeDay(date(2023, 1, 4))).To(BeTrue())
		Expect(cal.IsTradeDay(date(2023, 1, 6))).To(BeFalse())

		next, ok := cal.Next(date(2023, 1, 5))
		Expect(ok).To(BeTrue())
		Expect(next).To(Equal(date(2023, 1, 9)))

		on, ok := cal.OnOrAfter(date(2023, 1, 6))
		Expect(ok).To(BeTrue())
		Expect(on).To(Equal(date(2023, 1, 9)))

		prev, ok := cal.Prev(date(2023, 1, 9))
		Expect(ok).To(BeTrue())
		Expect(prev).To(Equal(date(2023, 1, 5)))

		_, ok = cal.Next(date(2023, 1, 9))
		Expect(ok).To(BeFalse())
	})

	It("treats weekends and holidays as contiguous", func() {
		Expect(cal.Consecutive(date(2023, 1, 5), date(2023, 1, 9))).To(BeTrue())
		Expect(cal.Consecutive(date(2023, 1, 3), date(2023, 1, 5))).To(BeFalse())
	})

	It("returns a lookback window", func() {
		Expect(cal.Lookback(date(2023, 1, 9), 2)).To(Equal([]time.Time{date(2023, 1, 5), date(2023, 1, 9)}))
		Expect(cal.Lookback(date(2023, 1, 4), 10)).To(HaveLen(2))
		Expect(cal.Between(date(2023, 1, 4), date(2023, 1, 6))).To(HaveLen(2))
	})
})
