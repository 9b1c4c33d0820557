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
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
)

// OrderState tracks a stock through one trading day
type OrderState string

const (
	Holding      OrderState = "HOLDING"
	OrderPending OrderState = "ORDER_PENDING"
	Settled      OrderState = "SETTLED"
)

// Config holds the execution rules of the trading agent
type Config struct {
	LotSize         int64
	MaxLotsPerTrade int64
	BuyCostPct      decimal.Decimal
	SellCostPct     decimal.Decimal

	// FeePrecision is the number of decimal places fees are rounded up to
	FeePrecision int32
}

// DefaultConfig uses board lots of 1000 shares and Taiwan's brokerage fee
// plus transaction tax on sells
func DefaultConfig() Config {
	return Config{
		LotSize:         1000,
		MaxLotsPerTrade: 10,
		BuyCostPct:      decimal.RequireFromString("0.001425"),
		SellCostPct:     decimal.RequireFromString("0.004425"),
		FeePrecision:    0,
	}
}

func (c Config) Validate() error {
	if c.LotSize < 1 || c.MaxLotsPerTrade < 1 {
		return fmt.Errorf("%w: lot size %d, max lots %d", ErrInvalidConfig, c.LotSize, c.MaxLotsPerTrade)
	}
	one := decimal.NewFromInt(1)
	if c.BuyCostPct.IsNegative() || c.SellCostPct.IsNegative() || c.BuyCostPct.GreaterThanOrEqual(one) || c.SellCostPct.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: cost pct must be in [0,1)", ErrInvalidConfig)
	}
	return nil
}

// Selection is the subset of the universe the agent may open positions in
type Selection interface {
	IsSelected(code string) bool
}

// Agent executes daily trading signals against a portfolio state
type Agent struct {
	Config Config

	locker sync.RWMutex
	orders map[string]OrderState
}

func NewAgent(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		Config: cfg,
		orders: make(map[string]OrderState),
	}, nil
}

// Orders returns the order state of every stock traded on the most recent day
func (agent *Agent) Orders() map[string]OrderState {
	agent.locker.RLock()
	defer agent.locker.RUnlock()
	out := make(map[string]OrderState, len(agent.orders))
	for code, state := range agent.orders {
		out[code] = state
	}
	return out
}

func (agent *Agent) setOrder(code string, state OrderState) {
	agent.locker.Lock()
	agent.orders[code] = state
	agent.locker.Unlock()
}

// beginDay moves every settled order back to holding
func (agent *Agent) beginDay() {
	agent.locker.Lock()
	for code := range agent.orders {
		agent.orders[code] = Holding
	}
	agent.locker.Unlock()
}

func (agent *Agent) fee(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).RoundCeil(agent.Config.FeePrecision)
}

type order struct {
	code   string
	signal float64
	lots   int64
	price  decimal.Decimal
}

// sortOrders orders by |signal| descending then code ascending
func sortOrders(orders []*order) {
	sort.Slice(orders, func(i, j int) bool {
		ai := math.Abs(orders[i].signal)
		aj := math.Abs(orders[j].signal)
		if ai != aj {
			return ai > aj
		}
		return orders[i].code < orders[j].code
	})
}

// validate checks every signal before anything executes so a rejected day
// leaves the state untouched
func (agent *Agent) validate(date time.Time, signals map[string]float64, selection Selection, state State, prices map[string]decimal.Decimal) (sells, buys []*order, err error) {
	codes := make([]string, 0, len(signals))
	for code := range signals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		signal := signals[code]
		if math.IsNaN(signal) || signal < -1 || signal > 1 {
			return nil, nil, &data.FeatureValidationError{
				Stock:   code,
				Feature: "signal",
				Date:    date,
				Reason:  fmt.Sprintf("signal %v outside [-1,1]", signal),
			}
		}

		held := state.Held(code)
		selected := selection != nil && selection.IsSelected(code)
		if signal != 0 && !held && !selected {
			return nil, nil, &data.InvalidTargetError{Stock: code, Signal: signal, Date: date}
		}
		if signal > 0 && !selected {
			return nil, nil, &data.InvalidTargetError{Stock: code, Signal: signal, Date: date}
		}

		lots := int64(math.Floor(math.Abs(signal) * float64(agent.Config.MaxLotsPerTrade)))
		if lots == 0 || (signal < 0 && !held) {
			continue
		}

		price, ok := prices[code]
		if !ok || !price.IsPositive() {
			return nil, nil, &data.FeatureValidationError{
				Stock:   code,
				Feature: "price",
				Date:    date,
				Reason:  "no positive price for a non-zero signal",
			}
		}

		o := &order{code: code, signal: signal, lots: lots, price: price}
		if signal < 0 {
			sells = append(sells, o)
		} else {
			buys = append(buys, o)
		}
	}

	sortOrders(sells)
	sortOrders(buys)
	return sells, buys, nil
}

// Step executes one trading day. All sells run first; buys then run by
// descending |signal|. A buy that cannot be filled completely is filled with
// as many whole lots as cash allows and ends the buy phase; a buy that
// cannot afford a single lot is skipped. On error the input state is
// returned unchanged.
func (agent *Agent) Step(ctx context.Context, date time.Time, signals map[string]float64, selection Selection, state State, prices map[string]decimal.Decimal) (next State, actions []*TradeAction, err error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Step")
	defer span.End()

	span.SetAttributes(attribute.String("date", date.Format(common.DateFormat)))

	start := time.Now()
	defer func() {
		metrics.Default().ObserveStep("trade", start, err)
	}()

	agent.beginDay()

	sells, buys, err := agent.validate(date, signals, selection, state, prices)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signal rejected")
		log.Error().Err(err).Time("Date", date).Interface("Signals", signals).Object("State", state).Msg("trading signals rejected")
		return state, nil, err
	}

	next = state.Clone()
	next.Date = date
	lot := decimal.NewFromInt(agent.Config.LotSize)

	for _, o := range append(append([]*order{}, sells...), buys...) {
		agent.setOrder(o.code, OrderPending)
	}

	for _, o := range sells {
		requested := o.lots * agent.Config.LotSize
		qty := requested
		if held := next.Shares[o.code]; qty > held {
			qty = held
		}

		value := o.price.Mul(decimal.NewFromInt(qty))
		fee := agent.fee(value, agent.Config.SellCostPct)
		next.Cash = next.Cash.Add(value).Sub(fee)
		next.Shares[o.code] -= qty
		if next.Shares[o.code] == 0 {
			delete(next.Shares, o.code)
		}

		fill := Filled
		if qty < requested {
			fill = Partial
		}
		action, err := newAction(date, o, SellTransaction, requested, qty, value, fee, fill)
		if err != nil {
			return state, nil, err
		}
		actions = append(actions, action)
		agent.setOrder(o.code, Settled)
		metrics.Default().Trades.WithLabelValues(SellTransaction, string(fill)).Inc()
	}

	buyPhase := true
	for _, o := range buys {
		requested := o.lots * agent.Config.LotSize
		var (
			qty   int64
			value decimal.Decimal
			fee   decimal.Decimal
			fill  = Skipped
		)

		if buyPhase {
			value = o.price.Mul(decimal.NewFromInt(requested))
			fee = agent.fee(value, agent.Config.BuyCostPct)
			if value.Add(fee).LessThanOrEqual(next.Cash) {
				qty = requested
				fill = Filled
			} else {
				// largest whole number of lots the remaining cash covers
				lots := o.lots - 1
				for ; lots > 0; lots-- {
					value = o.price.Mul(lot.Mul(decimal.NewFromInt(lots)))
					fee = agent.fee(value, agent.Config.BuyCostPct)
					if value.Add(fee).LessThanOrEqual(next.Cash) {
						break
					}
				}
				if lots > 0 {
					qty = lots * agent.Config.LotSize
					fill = Partial
					buyPhase = false
				}
			}
		}

		if qty == 0 {
			value = decimal.Zero
			fee = decimal.Zero
		} else {
			next.Cash = next.Cash.Sub(value).Sub(fee)
			next.Shares[o.code] += qty
		}

		if next.Cash.IsNegative() {
			log.Error().Str("Stock", o.code).Str("Cash", next.Cash.String()).Msg("buy overdrew cash")
			return state, nil, ErrNegativeCash
		}

		action, err := newAction(date, o, BuyTransaction, requested, qty, value, fee, fill)
		if err != nil {
			return state, nil, err
		}
		actions = append(actions, action)
		agent.setOrder(o.code, Settled)
		metrics.Default().Trades.WithLabelValues(BuyTransaction, string(fill)).Inc()
	}

	return next, actions, nil
}

func newAction(date time.Time, o *order, kind string, requested, qty int64, value, fee decimal.Decimal, fill Fill) (*TradeAction, error) {
	action := &TradeAction{
		Date:      date,
		Stock:     o.code,
		Kind:      kind,
		Signal:    o.signal,
		Requested: requested,
		Shares:    qty,
		Price:     o.price,
		Value:     value,
		Fee:       fee,
		Fill:      fill,
	}
	if err := computeSourceID(action); err != nil {
		log.Error().Err(err).Str("Stock", o.code).Msg("could not compute trade source id")
		return nil, err
	}
	log.Debug().Object("Trade", action).Msg("executed order")
	return action, nil
}
