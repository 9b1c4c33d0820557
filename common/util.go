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

package common

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"
)

const (
	StockCodeIdx = "stock_code"
	DateIdx      = "date"
	DateFormat   = "2006-01-02"
)

// Pair is used for sorting stock codes by a float64 value (i.e. selector score)
type Pair struct {
	Key   string
	Value float64
}

type PairList []Pair

func (p PairList) Len() int      { return len(p) }
func (p PairList) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

// Less orders by value descending and breaks ties by key ascending
func (p PairList) Less(i, j int) bool {
	if p[i].Value == p[j].Value {
		return p[i].Key < p[j].Key
	}
	return p[i].Value > p[j].Value
}

// Keys returns the keys of the pair list in order
func (p PairList) Keys() []string {
	keys := make([]string, len(p))
	for idx, pair := range p {
		keys[idx] = pair.Key
	}
	return keys
}

// logLevel maps log.level to a zerolog level; unknown names log warnings
func logLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.WarnLevel
	}
	return level
}

// logWriter opens log.output: stdout, stderr or a file appended to for the
// rest of the process
func logWriter(output string, pretty bool) io.Writer {
	var w io.Writer
	switch output {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		fh, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			panic(err)
		}
		if pretty {
			return zerolog.ConsoleWriter{Out: fh, NoColor: true}
		}
		return fh
	}
	if pretty {
		return zerolog.ConsoleWriter{Out: w}
	}
	return w
}

// SetupLogging configures the global logger from the log.* keys
func SetupLogging() {
	level := logLevel(viper.GetString("log.level"))
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(logWriter(viper.GetString("log.output"), viper.GetBool("log.pretty")))
	if viper.GetBool("log.report_caller") {
		log.Logger = log.With().Caller().Logger()
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	log.Info().Str("Level", level.String()).Msg("logging configured")
}

var (
	tzOnce sync.Once
	tz     *time.Location
)

// GetTimezone returns the exchange's reference time zone (Taipei)
func GetTimezone() *time.Location {
	tzOnce.Do(func() {
		var err error
		tz, err = time.LoadLocation("Asia/Taipei")
		if err != nil {
			log.Panic().Err(err).Msg("could not load timezone")
		}
	})
	return tz
}

// ParseDate parses an ISO date in the exchange time zone
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, strings.TrimSpace(s), GetTimezone())
}

// DateOnly truncates t to midnight in the exchange time zone
func DateOnly(t time.Time) time.Time {
	t = t.In(GetTimezone())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, GetTimezone())
}
