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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const attentionSlope = 0.2

// GATWeights are the parameters of a single graph attention layer with
// multiple heads over a fully connected graph. W holds one Input×Hidden
// projection per head (row-major); Src and Dst are the per-head attention
// vectors applied to the source and destination node embeddings.
type GATWeights struct {
	Heads  int         `json:"heads"`
	Input  int         `json:"input"`
	Hidden int         `json:"hidden"`
	W      [][]float64 `json:"w"`
	Src    [][]float64 `json:"a_src"`
	Dst    [][]float64 `json:"a_dst"`
}

// GAT is a multi-head graph attention model. The attention matrix it
// returns is the mean of the per-head row-softmax attention, so every row
// is non-negative and sums to 1.
type GAT struct {
	version string
	weights *GATWeights
	proj    []*mat.Dense
}

func NewGAT(version string, weights *GATWeights) (*GAT, error) {
	if weights.Heads < 1 || weights.Input < 1 || weights.Hidden < 1 {
		return nil, fmt.Errorf("%w: gat dimensions %d/%d/%d", ErrWeightShape, weights.Heads, weights.Input, weights.Hidden)
	}
	if len(weights.W) != weights.Heads || len(weights.Src) != weights.Heads || len(weights.Dst) != weights.Heads {
		return nil, fmt.Errorf("%w: gat expects %d heads", ErrWeightShape, weights.Heads)
	}

	proj := make([]*mat.Dense, weights.Heads)
	for head := 0; head < weights.Heads; head++ {
		if len(weights.W[head]) != weights.Input*weights.Hidden {
			return nil, fmt.Errorf("%w: gat head %d projection has %d values", ErrWeightShape, head, len(weights.W[head]))
		}
		if len(weights.Src[head]) != weights.Hidden || len(weights.Dst[head]) != weights.Hidden {
			return nil, fmt.Errorf("%w: gat head %d attention vector width", ErrWeightShape, head)
		}
		proj[head] = mat.NewDense(weights.Input, weights.Hidden, weights.W[head])
	}

	return &GAT{
		version: version,
		weights: weights,
		proj:    proj,
	}, nil
}

// NewRandomGAT initializes a GAT with seeded normal weights
func NewRandomGAT(seed uint64, input, hidden, heads int) *GAT {
	src := newSource(seed)
	weights := &GATWeights{
		Heads:  heads,
		Input:  input,
		Hidden: hidden,
		W:      make([][]float64, heads),
		Src:    make([][]float64, heads),
		Dst:    make([][]float64, heads),
	}
	for head := 0; head < heads; head++ {
		weights.W[head] = gaussian(src, input*hidden, input)
		weights.Src[head] = gaussian(src, hidden, hidden)
		weights.Dst[head] = gaussian(src, hidden, hidden)
	}
	gat, err := NewGAT(randomVersion("gat", seed), weights)
	if err != nil {
		panic(err)
	}
	return gat
}

func (gat *GAT) Version() string {
	return gat.version
}

func (gat *GAT) InputWidth() int {
	return gat.weights.Input
}

func (gat *GAT) Weights() *GATWeights {
	return gat.weights
}

// Infer computes the N×N attention matrix for the N×Input feature matrix
func (gat *GAT) Infer(ctx context.Context, features *mat.Dense) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, cols := features.Dims()
	if rows == 0 {
		return nil, ErrEmptyInput
	}
	if cols != gat.weights.Input {
		return nil, fmt.Errorf("%w: got %d columns, expected %d", ErrInputWidth, cols, gat.weights.Input)
	}

	out := mat.NewDense(rows, rows, nil)
	embed := mat.NewDense(rows, gat.weights.Hidden, nil)
	srcScore := make([]float64, rows)
	dstScore := make([]float64, rows)
	attn := make([]float64, rows)
	scale := 1.0 / float64(gat.weights.Heads)

	for head := 0; head < gat.weights.Heads; head++ {
		embed.Mul(features, gat.proj[head])
		for ii := 0; ii < rows; ii++ {
			row := embed.RawRowView(ii)
			srcScore[ii] = floats.Dot(row, gat.weights.Src[head])
			dstScore[ii] = floats.Dot(row, gat.weights.Dst[head])
		}

		for ii := 0; ii < rows; ii++ {
			for jj := 0; jj < rows; jj++ {
				attn[jj] = leakyReLU(srcScore[ii]+dstScore[jj], attentionSlope)
			}
			softmax(attn)
			outRow := out.RawRowView(ii)
			floats.AddScaled(outRow, scale, attn)
		}
	}

	if err := CheckFinite(out); err != nil {
		return nil, err
	}
	return out, nil
}
