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

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/guan0612/Portfolio-Managment-System/compressor"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/model"
	"github.com/guan0612/Portfolio-Managment-System/selector"
)

// LiquidationSignal is issued for holdings that dropped out of the selection
const LiquidationSignal = -1.0

// Trader turns compressed features into daily trading signals
type Trader struct {
	Policy model.PolicyModel
	Window int
}

func NewTrader(policy model.PolicyModel, window int) *Trader {
	return &Trader{
		Policy: policy,
		Window: window,
	}
}

// Signals scores every selected stock with the trading policy. Each row of
// the policy input is the stock's latent vector followed by 1 when the
// stock is held. Holdings that are no longer selected are liquidated.
func (trader *Trader) Signals(ctx context.Context, features map[string]*compressor.CompressedFeature, selection *selector.SelectionVector, state State) (map[string]float64, error) {
	signals := make(map[string]float64)

	selected := selection.SelectedCodes()
	missing := make([]string, 0)
	for _, code := range selected {
		if _, ok := features[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &data.InsufficientHistoryError{Stocks: missing, Have: 0, Need: trader.Window, Date: state.Date}
	}

	for _, code := range state.Holdings() {
		if !selection.IsSelected(code) {
			signals[code] = LiquidationSignal
		}
	}

	if len(selected) == 0 {
		return signals, nil
	}

	width := trader.Policy.InputWidth()
	input := mat.NewDense(len(selected), width, nil)
	for idx, code := range selected {
		latent := features[code].Latent
		if len(latent)+1 != width {
			return nil, &data.FeatureValidationError{
				Stock:   code,
				Feature: "latent",
				Date:    state.Date,
				Reason:  fmt.Sprintf("latent width %d does not fit policy input %d", len(latent), width),
			}
		}
		row := input.RawRowView(idx)
		copy(row, latent)
		if state.Held(code) {
			row[width-1] = 1
		}
	}

	out, err := trader.Policy.Infer(ctx, input)
	if err != nil {
		log.Error().Stack().Err(err).Time("Date", state.Date).Str("PolicyVersion", trader.Policy.Version()).Msg("trading policy failed")
		return nil, err
	}
	if len(out.Actions) != len(selected) {
		return nil, &data.FeatureValidationError{
			Feature: "signal",
			Date:    state.Date,
			Reason:  fmt.Sprintf("policy returned %d signals for %d stocks", len(out.Actions), len(selected)),
		}
	}

	for idx, code := range selected {
		signal := out.Actions[idx]
		if math.IsNaN(signal) || math.IsInf(signal, 0) {
			return nil, &data.FeatureValidationError{Stock: code, Feature: "signal", Date: state.Date, Reason: "policy output rejected"}
		}
		signals[code] = signal
	}
	return signals, nil
}
