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
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
)

// Activity is a non-trade event that changed the portfolio
type Activity struct {
	ID    uuid.UUID `json:"id"`
	Date  time.Time `json:"date"`
	Stock string    `json:"stock"`
	Msg   string    `json:"msg"`
	Tags  []string  `json:"tags"`
}

func newActivity(date time.Time, stock, msg string, tags ...string) *Activity {
	return &Activity{
		ID:    uuid.New(),
		Date:  date,
		Stock: stock,
		Msg:   msg,
		Tags:  tags,
	}
}

// ApplyCorporateActions adjusts cash and share counts for actions on stocks
// the state holds. No trade actions are produced; every adjustment is
// reported as an Activity instead.
func ApplyCorporateActions(ctx context.Context, state State, actions []*data.CorporateAction) (State, []*Activity) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.ApplyCorporateActions")
	defer span.End()

	if len(actions) == 0 {
		return state, nil
	}

	sorted := make([]*data.CorporateAction, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ExDate.Equal(sorted[j].ExDate) {
			return sorted[i].ExDate.Before(sorted[j].ExDate)
		}
		return sorted[i].Stock < sorted[j].Stock
	})

	next := state.Clone()
	activities := make([]*Activity, 0, len(sorted))

	for _, action := range sorted {
		held := next.Shares[action.Stock]
		if held <= 0 {
			continue
		}
		shares := decimal.NewFromInt(held)

		switch action.Kind {
		case data.CashDividend:
			cash := shares.Mul(action.CashPerShare)
			next.Cash = next.Cash.Add(cash)
			activities = append(activities, newActivity(action.ExDate, action.Stock,
				fmt.Sprintf("%s paid a $%s/share dividend on %d shares", action.Stock, action.CashPerShare.String(), held), "dividend"))

		case data.StockDividend, data.Split:
			adjusted := shares.Mul(action.Ratio).Floor().IntPart()
			next.Shares[action.Stock] = adjusted
			tag := "split"
			if action.Kind == data.StockDividend {
				tag = "stock dividend"
			}
			activities = append(activities, newActivity(action.ExDate, action.Stock,
				fmt.Sprintf("shares of %s adjusted by a factor of %s from %d to %d", action.Stock, action.Ratio.String(), held, adjusted), tag))

		case data.CapitalReduction:
			refund := shares.Mul(action.CashPerShare)
			adjusted := shares.Mul(action.Ratio).Floor().IntPart()
			next.Cash = next.Cash.Add(refund)
			next.Shares[action.Stock] = adjusted
			activities = append(activities, newActivity(action.ExDate, action.Stock,
				fmt.Sprintf("%s reduced capital: shares %d to %d with $%s refunded", action.Stock, held, adjusted, refund.String()), "capital reduction"))

		default:
			log.Warn().Object("Action", action).Msg("ignoring unknown corporate action")
			continue
		}

		if next.Shares[action.Stock] <= 0 {
			delete(next.Shares, action.Stock)
		}
		log.Info().Object("Action", action).Int64("SharesBefore", held).Int64("SharesAfter", next.Shares[action.Stock]).Msg("applied corporate action")
	}

	return next, activities
}
