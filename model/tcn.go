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

// TCNLayer is a causal convolution with kernel size two. Current is applied
// to timestep t and Lagged to timestep t-Dilation (zero before the window
// starts). Both are In×Out row-major.
type TCNLayer struct {
	Dilation int       `json:"dilation"`
	In       int       `json:"in"`
	Out      int       `json:"out"`
	Current  []float64 `json:"current"`
	Lagged   []float64 `json:"lagged"`
	Bias     []float64 `json:"bias"`
}

// TCNWeights parameterize a temporal convolution autoencoder. The encoder
// stack runs over the window and the final timestep is projected to the
// latent vector; the decoder maps the latent vector back to a full window.
type TCNWeights struct {
	Window  int        `json:"window"`
	Input   int        `json:"input"`
	Latent  int        `json:"latent"`
	Layers  []TCNLayer `json:"layers"`
	Z       []float64  `json:"z"`
	ZBias   []float64  `json:"z_bias"`
	Dec     []float64  `json:"dec"`
	DecBias []float64  `json:"dec_bias"`
}

type TCN struct {
	version string
	weights *TCNWeights
	current []*mat.Dense
	lagged  []*mat.Dense
	z       *mat.Dense
	dec     *mat.Dense
}

func NewTCN(version string, weights *TCNWeights) (*TCN, error) {
	if weights.Window < 1 || weights.Input < 1 || weights.Latent < 1 || len(weights.Layers) == 0 {
		return nil, fmt.Errorf("%w: tcn dimensions %d/%d/%d", ErrWeightShape, weights.Window, weights.Input, weights.Latent)
	}

	tcn := &TCN{
		version: version,
		weights: weights,
		current: make([]*mat.Dense, len(weights.Layers)),
		lagged:  make([]*mat.Dense, len(weights.Layers)),
	}

	width := weights.Input
	for idx, layer := range weights.Layers {
		if layer.In != width || layer.Out < 1 || layer.Dilation < 1 {
			return nil, fmt.Errorf("%w: tcn layer %d is %d→%d dilation %d", ErrWeightShape, idx, layer.In, layer.Out, layer.Dilation)
		}
		if len(layer.Current) != layer.In*layer.Out || len(layer.Lagged) != layer.In*layer.Out || len(layer.Bias) != layer.Out {
			return nil, fmt.Errorf("%w: tcn layer %d kernel size", ErrWeightShape, idx)
		}
		tcn.current[idx] = mat.NewDense(layer.In, layer.Out, layer.Current)
		tcn.lagged[idx] = mat.NewDense(layer.In, layer.Out, layer.Lagged)
		width = layer.Out
	}

	if len(weights.Z) != width*weights.Latent || len(weights.ZBias) != weights.Latent {
		return nil, fmt.Errorf("%w: tcn latent projection", ErrWeightShape)
	}
	size := weights.Window * weights.Input
	if len(weights.Dec) != weights.Latent*size || len(weights.DecBias) != size {
		return nil, fmt.Errorf("%w: tcn decoder", ErrWeightShape)
	}
	tcn.z = mat.NewDense(width, weights.Latent, weights.Z)
	tcn.dec = mat.NewDense(weights.Latent, size, weights.Dec)

	return tcn, nil
}

// NewRandomTCN initializes an encoder with dilations 1, 2, 4 and seeded
// normal weights
func NewRandomTCN(seed uint64, window, input, channels, latent int) *TCN {
	src := newSource(seed)
	weights := &TCNWeights{
		Window: window,
		Input:  input,
		Latent: latent,
	}
	width := input
	for _, dilation := range []int{1, 2, 4} {
		weights.Layers = append(weights.Layers, TCNLayer{
			Dilation: dilation,
			In:       width,
			Out:      channels,
			Current:  gaussian(src, width*channels, 2*width),
			Lagged:   gaussian(src, width*channels, 2*width),
			Bias:     make([]float64, channels),
		})
		width = channels
	}
	weights.Z = gaussian(src, channels*latent, channels)
	weights.ZBias = make([]float64, latent)
	weights.Dec = gaussian(src, latent*window*input, latent)
	weights.DecBias = make([]float64, window*input)

	tcn, err := NewTCN(randomVersion("tcn", seed), weights)
	if err != nil {
		panic(err)
	}
	return tcn
}

func (tcn *TCN) Version() string {
	return tcn.version
}

func (tcn *TCN) WindowSize() int {
	return tcn.weights.Window
}

func (tcn *TCN) InputWidth() int {
	return tcn.weights.Input
}

func (tcn *TCN) LatentWidth() int {
	return tcn.weights.Latent
}

func (tcn *TCN) Weights() *TCNWeights {
	return tcn.weights
}

func (tcn *TCN) checkWindow(window *mat.Dense) error {
	rows, cols := window.Dims()
	if rows != tcn.weights.Window || cols != tcn.weights.Input {
		return fmt.Errorf("%w: window is %d×%d, expected %d×%d", ErrInputWidth, rows, cols, tcn.weights.Window, tcn.weights.Input)
	}
	return nil
}

// Infer returns the latent vector for a Window×Input matrix
func (tcn *TCN) Infer(ctx context.Context, window *mat.Dense) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tcn.checkWindow(window); err != nil {
		return nil, err
	}

	hidden := window
	for idx, layer := range tcn.weights.Layers {
		hidden = tcn.conv(hidden, idx, layer)
	}

	last := hidden.RawRowView(tcn.weights.Window - 1)
	latent := make([]float64, tcn.weights.Latent)
	latentVec := mat.NewVecDense(tcn.weights.Latent, latent)
	latentVec.MulVec(tcn.z.T(), mat.NewVecDense(len(last), last))
	floats.Add(latent, tcn.weights.ZBias)
	for idx := range latent {
		latent[idx] = math.Tanh(latent[idx])
		if math.IsNaN(latent[idx]) {
			return nil, fmt.Errorf("%w: latent %d", ErrNonFinite, idx)
		}
	}
	return latent, nil
}

// Reconstruct decodes the latent vector of window back to a Window×Input matrix
func (tcn *TCN) Reconstruct(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
	latent, err := tcn.Infer(ctx, window)
	if err != nil {
		return nil, err
	}

	size := tcn.weights.Window * tcn.weights.Input
	flat := make([]float64, size)
	out := mat.NewVecDense(size, flat)
	out.MulVec(tcn.dec.T(), mat.NewVecDense(len(latent), latent))
	floats.Add(flat, tcn.weights.DecBias)

	return mat.NewDense(tcn.weights.Window, tcn.weights.Input, flat), nil
}

func (tcn *TCN) conv(in *mat.Dense, idx int, layer TCNLayer) *mat.Dense {
	steps, _ := in.Dims()
	out := mat.NewDense(steps, layer.Out, nil)
	out.Mul(in, tcn.current[idx])

	if layer.Dilation < steps {
		shifted := mat.NewDense(steps-layer.Dilation, layer.Out, nil)
		shifted.Mul(in.Slice(0, steps-layer.Dilation, 0, layer.In), tcn.lagged[idx])
		lagged := out.Slice(layer.Dilation, steps, 0, layer.Out).(*mat.Dense)
		lagged.Add(lagged, shifted)
	}

	for tt := 0; tt < steps; tt++ {
		row := out.RawRowView(tt)
		floats.Add(row, layer.Bias)
		for jj := range row {
			row[jj] = relu(row[jj])
		}
	}
	return out
}
