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
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSpecs      = errors.New("release schedule requires at least one cron spec")
	ErrUnknownLabel = errors.New("could not parse quarter label")
)

// DefaultReleaseSpecs are the dates TWSE listed companies publish their
// quarterly statements (Minute Hour DayOfMonth Month DayOfWeek):
//
//	Q1 -> May 16
//	Q2 -> Aug 15
//	Q3 -> Nov 15
//	Q4 -> Apr 1 of the following year
var DefaultReleaseSpecs = []string{
	"0 0 16 5 *",
	"0 0 15 8 *",
	"0 0 15 11 *",
	"0 0 1 4 *",
}

// ReleaseSchedule enumerates financial report release dates
type ReleaseSchedule struct {
	Specs     []string
	schedules []cron.Schedule
}

// NewReleaseSchedule parses each cron spec in the standard 5 field format
func NewReleaseSchedule(specs ...string) (*ReleaseSchedule, error) {
	if len(specs) == 0 {
		return nil, ErrNoSpecs
	}

	specParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	rs := &ReleaseSchedule{
		Specs:     make([]string, 0, len(specs)),
		schedules: make([]cron.Schedule, 0, len(specs)),
	}

	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		schedule, err := specParser.Parse(spec)
		if err != nil {
			log.Error().Err(err).Str("Spec", spec).Msg("robfig/cron could not parse release spec")
			return nil, err
		}
		rs.Specs = append(rs.Specs, spec)
		rs.schedules = append(rs.schedules, schedule)
	}

	return rs, nil
}

// Next returns the first release date strictly after t (in the exchange time zone)
func (rs *ReleaseSchedule) Next(t time.Time) time.Time {
	t = t.In(common.GetTimezone())
	var next time.Time
	for _, schedule := range rs.schedules {
		candidate := schedule.Next(t)
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}

// Between returns every release date in [begin, end]
func (rs *ReleaseSchedule) Between(begin, end time.Time) []time.Time {
	dates := make([]time.Time, 0, 4)
	if end.Before(begin) {
		return dates
	}

	cursor := begin.Add(-time.Second)
	for {
		next := rs.Next(cursor)
		if next.After(end) {
			break
		}
		dates = append(dates, next)
		cursor = next
	}
	return dates
}

// Boundaries maps every release date in [begin, end] to the first trading
// day on or after it. Releases that fall after the calendar ends are dropped;
// two releases that map to the same trading day collapse into one boundary.
func (rs *ReleaseSchedule) Boundaries(cal *Calendar, begin, end time.Time) []time.Time {
	boundaries := make([]time.Time, 0, 4)
	for _, release := range rs.Between(begin, end) {
		day, ok := cal.OnOrAfter(release)
		if !ok || day.After(end) {
			continue
		}
		if n := len(boundaries); n > 0 && boundaries[n-1].Equal(day) {
			continue
		}
		boundaries = append(boundaries, day)
	}
	return boundaries
}

// ReleaseDate returns the publication date of the statement for the fiscal
// quarter ending on periodEnd
func ReleaseDate(periodEnd time.Time) time.Time {
	tz := common.GetTimezone()
	periodEnd = periodEnd.In(tz)
	year := periodEnd.Year()
	switch (int(periodEnd.Month()) - 1) / 3 {
	case 0:
		return time.Date(year, time.May, 16, 0, 0, 0, 0, tz)
	case 1:
		return time.Date(year, time.August, 15, 0, 0, 0, 0, tz)
	case 2:
		return time.Date(year, time.November, 15, 0, 0, 0, 0, tz)
	default:
		return time.Date(year+1, time.April, 1, 0, 0, 0, 0, tz)
	}
}

// FiscalQuarter returns the YYYYQn label of the fiscal quarter containing t
func FiscalQuarter(t time.Time) string {
	t = t.In(common.GetTimezone())
	return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
}

// QuarterLabel returns the fiscal quarter whose statements are the most
// recent ones public on date t
func QuarterLabel(t time.Time) string {
	t = common.DateOnly(t)
	tz := common.GetTimezone()
	year := t.Year()

	switch {
	case t.Before(time.Date(year, time.April, 1, 0, 0, 0, 0, tz)):
		return fmt.Sprintf("%dQ3", year-1)
	case t.Before(time.Date(year, time.May, 16, 0, 0, 0, 0, tz)):
		return fmt.Sprintf("%dQ4", year-1)
	case t.Before(time.Date(year, time.August, 15, 0, 0, 0, 0, tz)):
		return fmt.Sprintf("%dQ1", year)
	case t.Before(time.Date(year, time.November, 15, 0, 0, 0, 0, tz)):
		return fmt.Sprintf("%dQ2", year)
	default:
		return fmt.Sprintf("%dQ3", year)
	}
}

// QuarterEnd returns the last calendar day of a YYYYQn label
func QuarterEnd(label string) (time.Time, error) {
	var year, quarter int
	if _, err := fmt.Sscanf(label, "%dQ%d", &year, &quarter); err != nil || quarter < 1 || quarter > 4 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	firstOfNext := time.Date(year, time.Month(quarter*3+1), 1, 0, 0, 0, 0, common.GetTimezone())
	return firstOfNext.AddDate(0, 0, -1), nil
}

// SortDates sorts a slice of dates in place
func SortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
