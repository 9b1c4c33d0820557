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
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInputWidth     = errors.New("input width does not match model")
	ErrEmptyInput     = errors.New("model input has no rows")
	ErrWeightShape    = errors.New("weights have an unexpected shape")
	ErrNonFinite      = errors.New("model produced a non-finite value")
	ErrBreakerOpen    = errors.New("inference circuit breaker is open")
	ErrUnknownModel   = errors.New("unknown model kind")
	ErrManifestFormat = errors.New("malformed model manifest")
)

// AttentionModel maps an N×F matrix of per-stock features to an N×N matrix
// of non-negative attention weights. Row i is stock i's attention over every
// stock in the universe.
type AttentionModel interface {
	Version() string
	InputWidth() int
	Infer(ctx context.Context, features *mat.Dense) (*mat.Dense, error)
}

// PolicyOutput is the result of one policy evaluation. Actions holds one
// value in [-1,1] per input row; Threshold is the policy's own cut-off.
type PolicyOutput struct {
	Actions   []float64
	Threshold float64
}

// PolicyModel scores every row of an N×D state matrix
type PolicyModel interface {
	Version() string
	InputWidth() int
	Infer(ctx context.Context, state *mat.Dense) (*PolicyOutput, error)
}

// Encoder compresses a T×F window of daily features into a latent vector
type Encoder interface {
	Version() string
	WindowSize() int
	InputWidth() int
	LatentWidth() int
	Infer(ctx context.Context, window *mat.Dense) ([]float64, error)
}

// AutoEncoder is an Encoder that can also reconstruct its input
type AutoEncoder interface {
	Encoder
	Reconstruct(ctx context.Context, window *mat.Dense) (*mat.Dense, error)
}

// CheckFinite returns ErrNonFinite when any element of m is NaN or ±Inf
func CheckFinite(m mat.Matrix) error {
	r, c := m.Dims()
	for ii := 0; ii < r; ii++ {
		for jj := 0; jj < c; jj++ {
			v := m.At(ii, jj)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: element (%d,%d) is %v", ErrNonFinite, ii, jj, v)
			}
		}
	}
	return nil
}

func leakyReLU(x, slope float64) float64 {
	if x < 0 {
		return x * slope
	}
	return x
}

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// softmax overwrites vals with exp(v - max) / Σ exp(v - max)
func softmax(vals []float64) {
	max := math.Inf(-1)
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	for idx, v := range vals {
		vals[idx] = math.Exp(v - max)
		sum += vals[idx]
	}
	for idx := range vals {
		vals[idx] /= sum
	}
}
