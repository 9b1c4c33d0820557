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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/compressor"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/graph"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/guan0612/Portfolio-Managment-System/model"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
	"github.com/guan0612/Portfolio-Managment-System/portfolio"
	"github.com/guan0612/Portfolio-Managment-System/selector"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
)

// Clock advances a simulation one trading day at a time. It reselects the
// portfolio universe on every report release boundary and holds that
// selection fixed until the next one. Only the goroutine calling Run
// mutates the clock; Snapshot may be called concurrently.
type Clock struct {
	ID     uuid.UUID
	Config Config
	Sink   Sink

	manager    *data.Manager
	schedule   *tradecron.ReleaseSchedule
	builder    *graph.Builder
	selector   *selector.Selector
	compressor *compressor.Compressor
	trader     *portfolio.Trader
	agent      *portfolio.Agent
	logger     zerolog.Logger

	locker     sync.RWMutex
	ran        bool
	phase      Phase
	day        time.Time
	state      portfolio.State
	current    *selector.SelectionVector
	perf       *portfolio.Performance
	matrices   []*graph.RelationshipMatrix
	selections []*selector.SelectionVector
	selectedOn []time.Time
	actions    []*portfolio.TradeAction
	activities []*portfolio.Activity
	status     Status
	warmup     int
}

// New creates a clock over the data in manager using models for every stage
func New(cfg Config, manager *data.Manager, models *model.Bundle) (*Clock, error) {
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Str("Name", cfg.Name).Msg("invalid simulation config")
		return nil, err
	}
	if models == nil || models.Attention == nil || models.Selector == nil || models.Encoder == nil || models.Trader == nil {
		return nil, ErrMissingModel
	}

	schedule, err := tradecron.NewReleaseSchedule(cfg.ReleaseSpecs...)
	if err != nil {
		return nil, err
	}

	agent, err := portfolio.NewAgent(cfg.Trading)
	if err != nil {
		return nil, err
	}

	perf, err := portfolio.NewPerformance(cfg.InitialCash)
	if err != nil {
		return nil, err
	}

	sel := selector.New(manager.Universe, models.Selector, cfg.Workers)
	sel.MaxSelected = cfg.MaxSelected

	cfg.Start = common.DateOnly(cfg.Start)
	cfg.End = common.DateOnly(cfg.End)

	id := uuid.New()
	clock := &Clock{
		ID:         id,
		Config:     cfg,
		manager:    manager,
		schedule:   schedule,
		builder:    graph.NewBuilder(manager.Universe, models.Attention, cfg.Workers),
		selector:   sel,
		compressor: compressor.New(models.Encoder, manager.Calendar(), cfg.Workers),
		trader:     portfolio.NewTrader(models.Trader, models.Encoder.WindowSize()),
		agent:      agent,
		logger:     log.With().Str("RunID", id.String()).Str("Name", cfg.Name).Logger(),
		phase:      AwaitingReport,
		state:      portfolio.NewState(cfg.Start, cfg.InitialCash),
		perf:       perf,
	}
	return clock, nil
}

// Run simulates every trading day between the configured start and end. Any
// step error halts the run; the result up to the last settled day is still
// returned (and saved to the sink) together with the error. The context is
// only checked between trading days.
func (clock *Clock) Run(ctx context.Context) (result *Result, err error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "simulation.Run")
	defer span.End()

	span.SetAttributes(
		attribute.String("RunID", clock.ID.String()),
		attribute.String("Start", clock.Config.Start.Format(common.DateFormat)),
		attribute.String("End", clock.Config.End.Format(common.DateFormat)),
	)

	clock.locker.Lock()
	if clock.ran {
		clock.locker.Unlock()
		return nil, ErrAlreadyRun
	}
	clock.ran = true
	clock.locker.Unlock()

	cal := clock.manager.Calendar()
	days := cal.Between(clock.Config.Start, clock.Config.End)
	if len(days) == 0 {
		clock.logger.Error().Time("Start", clock.Config.Start).Time("End", clock.Config.End).Msg("no trading days in simulation period")
		span.RecordError(data.ErrNoTradingDays)
		span.SetStatus(codes.Error, "no trading days")
		return nil, data.ErrNoTradingDays
	}

	boundaries := clock.schedule.Boundaries(cal, clock.Config.Start, clock.Config.End)
	isBoundary := make(map[int64]bool, len(boundaries))
	for _, b := range boundaries {
		isBoundary[b.Unix()] = true
	}

	clock.logger.Info().
		Time("Start", days[0]).
		Time("End", days[len(days)-1]).
		Int("TradingDays", len(days)).
		Int("Boundaries", len(boundaries)).
		Msg("simulation started")

	start := time.Now()
	for _, day := range days {
		if ctxErr := ctx.Err(); ctxErr != nil {
			clock.cancel(day, ctxErr)
			err = ctxErr
			break
		}

		if stage, stepErr := clock.step(ctx, day, isBoundary[common.DateOnly(day).Unix()]); stepErr != nil {
			clock.halt(day, stage, stepErr)
			err = stepErr
			break
		}
	}

	if err == nil {
		clock.setPhase(Finished)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, "simulation halted")
	}

	result = clock.result()
	clock.logger.Info().Object("Result", result).Dur("Elapsed", time.Since(start)).Msg("simulation finished")

	if clock.Sink != nil {
		if saveErr := clock.Sink.Save(context.WithoutCancel(ctx), result); saveErr != nil {
			clock.logger.Error().Stack().Err(saveErr).Msg("could not save simulation artifacts")
			if err == nil {
				err = saveErr
			}
		}
	}

	return result, err
}

// step advances the clock by one trading day. Work happens on a copy of the
// portfolio state that replaces the clock's state only once the day settles.
// The returned stage names the step that failed.
func (clock *Clock) step(ctx context.Context, day time.Time, boundary bool) (string, error) {
	for _, code := range clock.manager.Universe.Codes() {
		vals, ok := clock.manager.Indicators(code, day)
		if !ok {
			continue
		}
		if err := clock.compressor.Push(code, day, vals); err != nil {
			return "compress", err
		}
	}

	if boundary {
		clock.setPhase(Selecting)
		if err := clock.reselect(ctx, day); err != nil {
			return "select", err
		}
	}

	selection := clock.current
	if selection == nil {
		clock.setPhase(AwaitingReport)
		return "", nil
	}
	clock.setPhase(TradingDay)

	state, activities := portfolio.ApplyCorporateActions(ctx, clock.state, clock.manager.CorporateActions(day))
	state.Date = day

	selected := selection.SelectedCodes()
	prices := clock.manager.Prices(day, union(selected, state.Holdings()))

	if short := clock.notReady(selected, day); len(short) > 0 {
		clock.warmup++
		if clock.warmup > clock.Config.WarmupDays {
			return "warmup", &data.InsufficientHistoryError{
				Stocks: short,
				Have:   clock.minHistory(short),
				Need:   clock.trader.Window,
				Date:   day,
			}
		}
		clock.logger.Debug().Time("Date", day).Strs("Stocks", short).Int("WarmupDay", clock.warmup).Msg("warming up indicator windows")
		return clock.settle(state, nil, activities, prices, true)
	}
	clock.warmup = 0

	features, err := clock.compressor.EncodeAll(ctx, day, selected)
	if err != nil {
		return "compress", err
	}

	signals, err := clock.trader.Signals(ctx, features, selection, state)
	if err != nil {
		return "signal", err
	}

	next, trades, err := clock.agent.Step(ctx, day, signals, selection, state, prices)
	if err != nil {
		return "trade", err
	}

	return clock.settle(next, trades, activities, prices, false)
}

// reselect builds the relationship matrix and selection for the quarter
// whose reports became public on day and freezes it until the next boundary
func (clock *Clock) reselect(ctx context.Context, day time.Time) error {
	quarter := tradecron.QuarterLabel(day)
	reports := clock.manager.Reports(quarter)

	matrix, err := clock.builder.Build(ctx, quarter, reports)
	if err != nil {
		return err
	}

	clock.locker.Lock()
	clock.matrices = append(clock.matrices, matrix)
	clock.locker.Unlock()

	sv, err := clock.selector.Select(ctx, matrix, reports)
	if err != nil {
		return err
	}

	clock.locker.Lock()
	clock.current = sv
	clock.selections = append(clock.selections, sv)
	clock.selectedOn = append(clock.selectedOn, day)
	clock.warmup = 0
	clock.locker.Unlock()

	clock.logger.Info().Time("Date", day).Object("Selection", sv).Msg("froze quarterly selection")
	return nil
}

// settle commits one trading day
func (clock *Clock) settle(state portfolio.State, trades []*portfolio.TradeAction, activities []*portfolio.Activity, prices map[string]decimal.Decimal, warmUp bool) (string, error) {
	clock.locker.Lock()
	defer clock.locker.Unlock()

	rec, err := clock.perf.Append(state, prices, len(trades), warmUp)
	if err != nil {
		return "settle", err
	}

	clock.state = state
	clock.day = state.Date
	clock.actions = append(clock.actions, trades...)
	clock.activities = append(clock.activities, activities...)

	metrics.Default().TradingDays.Inc()
	metrics.Default().AccountValue.Set(rec.AccountValue.InexactFloat64())

	clock.logger.Debug().Object("Record", rec).Msg("settled trading day")
	return "", nil
}

func (clock *Clock) notReady(stocks []string, day time.Time) []string {
	short := make([]string, 0)
	for _, code := range stocks {
		if !clock.compressor.Ready(code, day) {
			short = append(short, code)
		}
	}
	sort.Strings(short)
	return short
}

func (clock *Clock) minHistory(stocks []string) int {
	have := clock.trader.Window
	for _, code := range stocks {
		if n := clock.compressor.History(code); n < have {
			have = n
		}
	}
	return have
}

func (clock *Clock) setPhase(phase Phase) {
	clock.locker.Lock()
	clock.phase = phase
	clock.locker.Unlock()
}

// halt stops the run. The performance series keeps the last settled day so
// the halt shows up as a gap that carries a reason.
func (clock *Clock) halt(day time.Time, stage string, err error) {
	clock.locker.Lock()
	clock.phase = Halted
	clock.status = Status{
		Halted:   true,
		HaltedAt: day,
		Stage:    stage,
		Reason:   err.Error(),
	}
	state := clock.state.Clone()
	selection := clock.current
	clock.locker.Unlock()

	metrics.Default().Halts.WithLabelValues(haltReason(err)).Inc()

	evt := clock.logger.Error().Stack().Err(err).
		Str("Stage", stage).
		Time("Date", day).
		Object("State", state).
		Bool("PipelineError", data.IsPipelineError(err))
	if selection != nil {
		evt = evt.Object("Selection", selection)
	}
	evt.Msg("simulation halted")
}

func (clock *Clock) cancel(day time.Time, err error) {
	clock.locker.Lock()
	clock.phase = Halted
	clock.status = Status{
		Halted:    true,
		HaltedAt:  day,
		Stage:     "cancel",
		Reason:    err.Error(),
		Cancelled: true,
	}
	clock.locker.Unlock()

	metrics.Default().Halts.WithLabelValues(haltReason(err)).Inc()
	clock.logger.Warn().Err(err).Time("Date", day).Msg("simulation cancelled")
}

// Snapshot returns a copy of the clock's state as of the last settled day
func (clock *Clock) Snapshot() *Snapshot {
	clock.locker.RLock()
	defer clock.locker.RUnlock()

	records := make([]portfolio.PerformanceRecord, len(clock.perf.Records))
	for idx, rec := range clock.perf.Records {
		records[idx] = *rec
	}

	return &Snapshot{
		ID:        clock.ID,
		Phase:     clock.phase,
		Date:      clock.day,
		State:     clock.state.Clone(),
		Selection: clock.current,
		Records:   records,
		Trades:    len(clock.actions),
		Status:    clock.status,
	}
}

// result collects the artifacts of the run along with the realized Sharpe
// ratio series of every stock over the whole data calendar
func (clock *Clock) result() *Result {
	cal := clock.manager.Calendar()
	periods := clock.schedule.Boundaries(cal, cal.Start(), cal.End())
	if len(periods) > 0 {
		periods = append(periods, cal.End().AddDate(0, 0, 1))
	}

	sharpe := make(map[string]*SharpeSeries, clock.manager.Universe.Len())
	for _, code := range clock.manager.Universe.Codes() {
		dates, values := clock.manager.SharpeSeries(code, periods)
		sharpe[code] = &SharpeSeries{Dates: dates, Values: values}
	}

	clock.locker.RLock()
	defer clock.locker.RUnlock()

	evaluations := make([]*Evaluation, 0, len(clock.selections))
	for idx, sv := range clock.selections {
		on := clock.selectedOn[idx]
		period := make(map[string]float64, len(sharpe))
		for code, series := range sharpe {
			for ii, d := range series.Dates {
				if d.Equal(on) {
					period[code] = series.Values[ii]
					break
				}
			}
		}
		evaluations = append(evaluations, &Evaluation{
			Quarter:       sv.Quarter,
			Date:          on,
			Selected:      sv.Count(),
			AverageSharpe: selector.AverageSharpe(sv, period),
		})
	}

	perf := &portfolio.Performance{
		InitialValue: clock.perf.InitialValue,
		Records:      append([]*portfolio.PerformanceRecord{}, clock.perf.Records...),
	}

	return &Result{
		ID:          clock.ID,
		Name:        clock.Config.Name,
		Start:       clock.Config.Start,
		End:         clock.Config.End,
		Universe:    clock.manager.Universe.Stocks(),
		Boundaries:  periods,
		Matrices:    append([]*graph.RelationshipMatrix{}, clock.matrices...),
		Selections:  append([]*selector.SelectionVector{}, clock.selections...),
		SelectedOn:  append([]time.Time{}, clock.selectedOn...),
		Evaluations: evaluations,
		Performance: perf,
		Actions:     append([]*portfolio.TradeAction{}, clock.actions...),
		Activities:  append([]*portfolio.Activity{}, clock.activities...),
		Sharpe:      sharpe,
		Final:       clock.state.Clone(),
		Status:      clock.status,
	}
}

func haltReason(err error) string {
	switch {
	case errors.Is(err, data.ErrIncompleteReport):
		return "incomplete_report"
	case errors.Is(err, data.ErrFeatureValidation):
		return "feature_validation"
	case errors.Is(err, data.ErrDegenerateSelection):
		return "degenerate_selection"
	case errors.Is(err, data.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, data.ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, model.ErrBreakerOpen):
		return "model_unavailable"
	default:
		return "error"
	}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, code := range list {
			if !seen[code] {
				seen[code] = true
				out = append(out, code)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (clock *Clock) String() string {
	return fmt.Sprintf("simulation %s (%s) %s..%s", clock.Config.Name, clock.ID, clock.Config.Start.Format(common.DateFormat), clock.Config.End.Format(common.DateFormat))
}
