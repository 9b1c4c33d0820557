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

package dataframe

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MulScalar multiplies every value by scalar and returns a new dataframe
func (df *DataFrame) MulScalar(scalar float64) *DataFrame {
	df = df.Copy()
	for idx := range df.Vals {
		floats.Scale(scalar, df.Vals[idx])
	}
	return df
}

// PctChange computes the fractional change from the previous row for every
// column. The first row is dropped. A zero previous value yields NaN.
func (df *DataFrame) PctChange() *DataFrame {
	if df.Len() < 2 {
		return New(df.ColNames...)
	}

	res := &DataFrame{
		Dates:    make([]time.Time, df.Len()-1),
		ColNames: df.ColNames,
		Vals:     make([][]float64, len(df.Vals)),
	}
	copy(res.Dates, df.Dates[1:])

	for colIdx, col := range df.Vals {
		out := make([]float64, len(col)-1)
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			prev := col[rowIdx-1]
			if prev == 0 {
				out[rowIdx-1] = math.NaN()
				continue
			}
			out[rowIdx-1] = col[rowIdx]/prev - 1.0
		}
		res.Vals[colIdx] = out
	}

	return res
}

// Mean returns the mean of each column, ignoring NaN values
func (df *DataFrame) Mean() []float64 {
	res := make([]float64, len(df.Vals))
	for idx, col := range df.Vals {
		res[idx] = stat.Mean(dropNaN(col), nil)
	}
	return res
}

// StdDev returns the sample standard deviation of each column, ignoring NaN values
func (df *DataFrame) StdDev() []float64 {
	res := make([]float64, len(df.Vals))
	for idx, col := range df.Vals {
		res[idx] = stat.StdDev(dropNaN(col), nil)
	}
	return res
}

func dropNaN(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
