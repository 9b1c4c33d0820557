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

package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PolicyWeights parameterize a one hidden layer actor network with a
// second head that produces the selection threshold from the mean hidden
// activation across all rows
type PolicyWeights struct {
	Input         int       `json:"input"`
	Hidden        int       `json:"hidden"`
	W1            []float64 `json:"w1"`
	B1            []float64 `json:"b1"`
	W2            []float64 `json:"w2"`
	B2            float64   `json:"b2"`
	ThresholdW    []float64 `json:"threshold_w"`
	ThresholdBias float64   `json:"threshold_b"`
}

type Policy struct {
	version string
	weights *PolicyWeights
	w1      *mat.Dense
}

func NewPolicy(version string, weights *PolicyWeights) (*Policy, error) {
	if weights.Input < 1 || weights.Hidden < 1 {
		return nil, fmt.Errorf("%w: policy dimensions %d/%d", ErrWeightShape, weights.Input, weights.Hidden)
	}
	if len(weights.W1) != weights.Input*weights.Hidden ||
		len(weights.B1) != weights.Hidden ||
		len(weights.W2) != weights.Hidden ||
		len(weights.ThresholdW) != weights.Hidden {
		return nil, fmt.Errorf("%w: policy layer widths", ErrWeightShape)
	}
	return &Policy{
		version: version,
		weights: weights,
		w1:      mat.NewDense(weights.Input, weights.Hidden, weights.W1),
	}, nil
}

// NewRandomPolicy initializes a policy with seeded normal weights
func NewRandomPolicy(seed uint64, input, hidden int) *Policy {
	src := newSource(seed)
	weights := &PolicyWeights{
		Input:      input,
		Hidden:     hidden,
		W1:         gaussian(src, input*hidden, input),
		B1:         make([]float64, hidden),
		W2:         gaussian(src, hidden, hidden),
		ThresholdW: gaussian(src, hidden, hidden),
	}
	policy, err := NewPolicy(randomVersion("policy", seed), weights)
	if err != nil {
		panic(err)
	}
	return policy
}

func (policy *Policy) Version() string {
	return policy.version
}

func (policy *Policy) InputWidth() int {
	return policy.weights.Input
}

func (policy *Policy) Weights() *PolicyWeights {
	return policy.weights
}

// Infer scores every row of state. Scores and threshold are squashed with
// tanh so both lie in [-1,1].
func (policy *Policy) Infer(ctx context.Context, state *mat.Dense) (*PolicyOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, cols := state.Dims()
	if rows == 0 {
		return nil, ErrEmptyInput
	}
	if cols != policy.weights.Input {
		return nil, fmt.Errorf("%w: got %d columns, expected %d", ErrInputWidth, cols, policy.weights.Input)
	}

	hidden := mat.NewDense(rows, policy.weights.Hidden, nil)
	hidden.Mul(state, policy.w1)

	meanHidden := make([]float64, policy.weights.Hidden)
	actions := make([]float64, rows)
	for ii := 0; ii < rows; ii++ {
		row := hidden.RawRowView(ii)
		floats.Add(row, policy.weights.B1)
		for jj := range row {
			row[jj] = math.Tanh(row[jj])
		}
		floats.Add(meanHidden, row)
		actions[ii] = math.Tanh(floats.Dot(row, policy.weights.W2) + policy.weights.B2)
	}
	floats.Scale(1.0/float64(rows), meanHidden)

	out := &PolicyOutput{
		Actions:   actions,
		Threshold: math.Tanh(floats.Dot(meanHidden, policy.weights.ThresholdW) + policy.weights.ThresholdBias),
	}

	for idx, v := range out.Actions {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: action %d is %v", ErrNonFinite, idx, v)
		}
	}
	if math.IsNaN(out.Threshold) {
		return nil, fmt.Errorf("%w: threshold is NaN", ErrNonFinite)
	}
	return out, nil
}
