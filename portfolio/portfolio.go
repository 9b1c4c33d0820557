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
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeCash   = errors.New("cash would become negative")
	ErrNegativeShares = errors.New("share count would become negative")
	ErrGenerateHash   = errors.New("could not create a new hash")
	ErrInvalidConfig  = errors.New("invalid trading configuration")
	ErrDateOutOfOrder = errors.New("performance record is not after the previous record")
	ErrNoInitialValue = errors.New("initial account value must be positive")
)

// State is the authoritative portfolio at the close of Date. It is passed
// by value into and out of every step; callers never share the Shares map.
type State struct {
	Date   time.Time
	Cash   decimal.Decimal
	Shares map[string]int64
}

// NewState creates an all-cash portfolio
func NewState(date time.Time, cash decimal.Decimal) State {
	return State{
		Date:   date,
		Cash:   cash,
		Shares: make(map[string]int64),
	}
}

// Clone returns a deep copy of the state
func (s State) Clone() State {
	shares := make(map[string]int64, len(s.Shares))
	for code, qty := range s.Shares {
		if qty != 0 {
			shares[code] = qty
		}
	}
	return State{
		Date:   s.Date,
		Cash:   s.Cash,
		Shares: shares,
	}
}

// Held reports whether the portfolio owns any shares of code
func (s State) Held(code string) bool {
	return s.Shares[code] > 0
}

// Holdings returns the codes with a positive share count in code order
func (s State) Holdings() []string {
	codes := make([]string, 0, len(s.Shares))
	for code, qty := range s.Shares {
		if qty > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Value returns cash plus the market value of every holding at prices.
// Holdings without a price are reported in missing and valued at zero.
func (s State) Value(prices map[string]decimal.Decimal) (value decimal.Decimal, missing []string) {
	value = s.Cash
	for _, code := range s.Holdings() {
		price, ok := prices[code]
		if !ok {
			missing = append(missing, code)
			continue
		}
		value = value.Add(price.Mul(decimal.NewFromInt(s.Shares[code])))
	}
	return value, missing
}

func (s State) MarshalZerologObject(e *zerolog.Event) {
	holdings := zerolog.Dict()
	for _, code := range s.Holdings() {
		holdings.Int64(code, s.Shares[code])
	}
	e.Time("Date", s.Date).
		Str("Cash", s.Cash.StringFixed(2)).
		Dict("Shares", holdings)
}
