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

package tradecron

import (
	"sort"
	"time"

	"github.com/guan0612/Portfolio-Managment-System/common"
)

// Calendar is the ordered set of days the exchange was open. It is derived
// from price history rather than a holiday table because TWSE closes for
// typhoons and lunar holidays that shift every year.
type Calendar struct {
	days  []time.Time
	index map[int64]int
}

func dayKey(t time.Time) int64 {
	return common.DateOnly(t).Unix()
}

// NewCalendar builds a calendar from trading days; duplicates are removed
// and the time portion is dropped
func NewCalendar(days []time.Time) *Calendar {
	cal := &Calendar{
		days:  make([]time.Time, 0, len(days)),
		index: make(map[int64]int, len(days)),
	}

	sorted := make([]time.Time, len(days))
	copy(sorted, days)
	SortDates(sorted)

	for _, d := range sorted {
		key := dayKey(d)
		if _, ok := cal.index[key]; ok {
			continue
		}
		cal.index[key] = len(cal.days)
		cal.days = append(cal.days, common.DateOnly(d))
	}

	return cal
}

// Len returns the number of trading days in the calendar
func (cal *Calendar) Len() int {
	return len(cal.days)
}

// Days returns a copy of every trading day
func (cal *Calendar) Days() []time.Time {
	out := make([]time.Time, len(cal.days))
	copy(out, cal.days)
	return out
}

// Start returns the first trading day of the calendar
func (cal *Calendar) Start() time.Time {
	if len(cal.days) == 0 {
		return time.Time{}
	}
	return cal.days[0]
}

// End returns the last trading day of the calendar
func (cal *Calendar) End() time.Time {
	if len(cal.days) == 0 {
		return time.Time{}
	}
	return cal.days[len(cal.days)-1]
}

// IsTradeDay returns true if the exchange was open on t
func (cal *Calendar) IsTradeDay(t time.Time) bool {
	_, ok := cal.index[dayKey(t)]
	return ok
}

// Index returns the position of t in the calendar or -1
func (cal *Calendar) Index(t time.Time) int {
	if idx, ok := cal.index[dayKey(t)]; ok {
		return idx
	}
	return -1
}

// OnOrAfter returns the first trading day on or after t
func (cal *Calendar) OnOrAfter(t time.Time) (time.Time, bool) {
	d := common.DateOnly(t)
	idx := sort.Search(len(cal.days), func(i int) bool {
		return !cal.days[i].Before(d)
	})
	if idx == len(cal.days) {
		return time.Time{}, false
	}
	return cal.days[idx], true
}

// Next returns the first trading day strictly after t
func (cal *Calendar) Next(t time.Time) (time.Time, bool) {
	d := common.DateOnly(t)
	idx := sort.Search(len(cal.days), func(i int) bool {
		return cal.days[i].After(d)
	})
	if idx == len(cal.days) {
		return time.Time{}, false
	}
	return cal.days[idx], true
}

// Prev returns the last trading day strictly before t
func (cal *Calendar) Prev(t time.Time) (time.Time, bool) {
	d := common.DateOnly(t)
	idx := sort.Search(len(cal.days), func(i int) bool {
		return !cal.days[i].Before(d)
	})
	if idx == 0 {
		return time.Time{}, false
	}
	return cal.days[idx-1], true
}

// Between returns the trading days in [begin, end]
func (cal *Calendar) Between(begin, end time.Time) []time.Time {
	b := common.DateOnly(begin)
	e := common.DateOnly(end)
	if e.Before(b) {
		return []time.Time{}
	}

	lo := sort.Search(len(cal.days), func(i int) bool { return !cal.days[i].Before(b) })
	hi := sort.Search(len(cal.days), func(i int) bool { return cal.days[i].After(e) })

	out := make([]time.Time, hi-lo)
	copy(out, cal.days[lo:hi])
	return out
}

// Consecutive reports whether b is the trading day immediately following a
func (cal *Calendar) Consecutive(a, b time.Time) bool {
	ia := cal.Index(a)
	ib := cal.Index(b)
	return ia >= 0 && ib == ia+1
}

// Lookback returns the n trading days ending on (and including) t. Fewer
// days are returned when the calendar starts later.
func (cal *Calendar) Lookback(t time.Time, n int) []time.Time {
	idx := cal.Index(t)
	if idx < 0 || n <= 0 {
		return []time.Time{}
	}
	lo := idx - n + 1
	if lo < 0 {
		lo = 0
	}
	out := make([]time.Time, idx-lo+1)
	copy(out, cal.days[lo:idx+1])
	return out
}
