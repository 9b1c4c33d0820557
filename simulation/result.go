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

package simulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/graph"
	"github.com/guan0612/Portfolio-Managment-System/portfolio"
	"github.com/guan0612/Portfolio-Managment-System/selector"
)

// Phase is the state of the simulation clock
type Phase string

const (
	AwaitingReport Phase = "AWAITING_REPORT"
	Selecting      Phase = "SELECTING"
	TradingDay     Phase = "TRADING_DAY"
	Finished       Phase = "FINISHED"
	Halted         Phase = "HALTED"
)

// Status tells consumers whether the performance series ends because the
// horizon was reached or because a step failed
type Status struct {
	Halted    bool      `json:"halted"`
	HaltedAt  time.Time `json:"halted_at"`
	Stage     string    `json:"stage,omitempty"`
	Reason    string    `json:"reason"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

func (s Status) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("Halted", s.Halted).
		Str("Stage", s.Stage).
		Str("Reason", s.Reason).
		Bool("Cancelled", s.Cancelled)
	if !s.HaltedAt.IsZero() {
		e.Str("HaltedAt", s.HaltedAt.Format(common.DateFormat))
	}
}

// SharpeSeries is the realized Sharpe ratio of one stock per report period
type SharpeSeries struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Evaluation scores a quarterly selection by the realized Sharpe ratio of
// the stocks it picked over the following period
type Evaluation struct {
	Quarter       string    `json:"quarter"`
	Date          time.Time `json:"date"`
	Selected      int       `json:"selected"`
	AverageSharpe float64   `json:"averageSharpe"`
}

// Result is everything a run produces
type Result struct {
	ID          uuid.UUID
	Name        string
	Start       time.Time
	End         time.Time
	Universe    []data.Stock
	Boundaries  []time.Time
	Matrices    []*graph.RelationshipMatrix
	Selections  []*selector.SelectionVector
	SelectedOn  []time.Time
	Evaluations []*Evaluation
	Performance *portfolio.Performance
	Actions     []*portfolio.TradeAction
	Activities  []*portfolio.Activity
	Sharpe      map[string]*SharpeSeries
	Final       portfolio.State
	Status      Status
}

func (r *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ID", r.ID.String()).
		Str("Name", r.Name).
		Str("Start", r.Start.Format(common.DateFormat)).
		Str("End", r.End.Format(common.DateFormat)).
		Int("Quarters", len(r.Selections)).
		Int("Trades", len(r.Actions)).
		Object("Status", r.Status)
	if r.Performance != nil {
		e.Int("TradingDays", len(r.Performance.Records))
		if last := r.Performance.Last(); last != nil {
			e.Str("AccountValue", last.AccountValue.String())
		}
	}
}

// Snapshot is a read-only copy of the clock taken between trading days
type Snapshot struct {
	ID        uuid.UUID
	Phase     Phase
	Date      time.Time
	State     portfolio.State
	Selection *selector.SelectionVector
	Records   []portfolio.PerformanceRecord
	Trades    int
	Status    Status
}

// Sink persists the artifacts of a finished or halted run
type Sink interface {
	Save(ctx context.Context, result *Result) error
}
