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
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("stock not found")
	ErrNoPrice          = errors.New("no price available")
	ErrMalformedInput   = errors.New("malformed input file")
	ErrInvalidTimeRange = errors.New("start must be before end")
	ErrNoTradingDays    = errors.New("no trading days available")
)

// Pipeline failures. Every one of these is fatal to the simulation step that
// produced it; callers match them with errors.Is and read details with errors.As.
var (
	ErrIncompleteReport    = errors.New("incomplete financial reports")
	ErrFeatureValidation   = errors.New("feature validation failed")
	ErrDegenerateSelection = errors.New("degenerate selection")
	ErrInsufficientHistory = errors.New("insufficient indicator history")
	ErrInvalidTarget       = errors.New("invalid trade target")
)

// IncompleteReportError is returned when one or more stocks in the universe
// have no financial report for the quarter being built
type IncompleteReportError struct {
	Quarter string
	Missing []string
}

func (e *IncompleteReportError) Error() string {
	return fmt.Sprintf("%s: quarter %s missing reports for %s", ErrIncompleteReport, e.Quarter, strings.Join(e.Missing, ","))
}

func (e *IncompleteReportError) Unwrap() error { return ErrIncompleteReport }

// FeatureValidationError is returned for values that cannot be fed to (or were
// produced by) a model: NaN, infinities, wrong widths, out of range signals
type FeatureValidationError struct {
	Stock   string
	Feature string
	Date    time.Time
	Reason  string
}

func (e *FeatureValidationError) Error() string {
	msg := ErrFeatureValidation.Error()
	if e.Stock != "" {
		msg += ": stock " + e.Stock
	}
	if e.Feature != "" {
		msg += " feature " + e.Feature
	}
	if !e.Date.IsZero() {
		msg += " on " + e.Date.Format("2006-01-02")
	}
	return msg + ": " + e.Reason
}

func (e *FeatureValidationError) Unwrap() error { return ErrFeatureValidation }

// DegenerateSelectionError is returned when the selection policy selects no stocks
type DegenerateSelectionError struct {
	Quarter   string
	Threshold float64
	MaxScore  float64
}

func (e *DegenerateSelectionError) Error() string {
	return fmt.Sprintf("%s: quarter %s selected no stocks (threshold %.6f, best score %.6f)", ErrDegenerateSelection, e.Quarter, e.Threshold, e.MaxScore)
}

func (e *DegenerateSelectionError) Unwrap() error { return ErrDegenerateSelection }

// InsufficientHistoryError is returned when an indicator window holds fewer
// trading days than the encoder requires
type InsufficientHistoryError struct {
	Stocks []string
	Have   int
	Need   int
	Date   time.Time
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: %s have %d of %d trading days on %s", ErrInsufficientHistory, strings.Join(e.Stocks, ","), e.Have, e.Need, e.Date.Format("2006-01-02"))
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// InvalidTargetError is returned for a trading signal on a stock that the
// current selection does not allow the agent to trade
type InvalidTargetError struct {
	Stock  string
	Signal float64
	Date   time.Time
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("%s: stock %s signal %.4f on %s is neither held nor selected", ErrInvalidTarget, e.Stock, e.Signal, e.Date.Format("2006-01-02"))
}

func (e *InvalidTargetError) Unwrap() error { return ErrInvalidTarget }

// IsPipelineError reports whether err is one of the five fatal pipeline errors
func IsPipelineError(err error) bool {
	return errors.Is(err, ErrIncompleteReport) ||
		errors.Is(err, ErrFeatureValidation) ||
		errors.Is(err, ErrDegenerateSelection) ||
		errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrInvalidTarget)
}
