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

package graph

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Edge is a directed relationship: From attends to To with Weight
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// RelationshipMatrix holds one quarter's attention between every pair of
// stocks in the universe. Row i is stock i's attention over all stocks; the
// matrix is not symmetric. The diagonal is self-attention and is ignored by
// every thresholding operation.
type RelationshipMatrix struct {
	Quarter      string
	ModelVersion string
	Codes        []string

	// Features is the z-scored report matrix the attention was computed from
	Features *mat.Dense

	weights *mat.Dense
	index   map[string]int
}

// NewRelationshipMatrix wraps an N×N weight matrix. codes must be in row order.
func NewRelationshipMatrix(quarter, version string, codes []string, weights, features *mat.Dense) *RelationshipMatrix {
	index := make(map[string]int, len(codes))
	for idx, code := range codes {
		index[code] = idx
	}
	return &RelationshipMatrix{
		Quarter:      quarter,
		ModelVersion: version,
		Codes:        codes,
		Features:     features,
		weights:      weights,
		index:        index,
	}
}

func (rm *RelationshipMatrix) Len() int {
	return len(rm.Codes)
}

func (rm *RelationshipMatrix) At(i, j int) float64 {
	return rm.weights.At(i, j)
}

// Index returns the row of code or -1
func (rm *RelationshipMatrix) Index(code string) int {
	if idx, ok := rm.index[code]; ok {
		return idx
	}
	return -1
}

// Row returns a copy of the attention row for code
func (rm *RelationshipMatrix) Row(code string) ([]float64, bool) {
	idx, ok := rm.index[code]
	if !ok {
		return nil, false
	}
	row := make([]float64, rm.Len())
	mat.Row(row, idx, rm.weights)
	return row, true
}

// Dense returns a copy of the weights
func (rm *RelationshipMatrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(rm.weights)
}

// OffDiagonal returns a copy of the weights with the diagonal zeroed
func (rm *RelationshipMatrix) OffDiagonal() *mat.Dense {
	out := mat.DenseCopyOf(rm.weights)
	for ii := 0; ii < rm.Len(); ii++ {
		out.Set(ii, ii, 0)
	}
	return out
}

// Edges returns every off-diagonal entry with weight >= threshold ordered by
// weight descending, then From and To ascending
func (rm *RelationshipMatrix) Edges(threshold float64) []Edge {
	edges := make([]Edge, 0)
	n := rm.Len()
	for ii := 0; ii < n; ii++ {
		for jj := 0; jj < n; jj++ {
			if ii == jj {
				continue
			}
			if w := rm.weights.At(ii, jj); w >= threshold {
				edges = append(edges, Edge{From: rm.Codes[ii], To: rm.Codes[jj], Weight: w})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Above returns the adjacency of the matrix at threshold: entry (i,j) is
// true when the off-diagonal weight is >= threshold. The diagonal is always
// false.
func (rm *RelationshipMatrix) Above(threshold float64) [][]bool {
	n := rm.Len()
	adj := make([][]bool, n)
	for ii := 0; ii < n; ii++ {
		adj[ii] = make([]bool, n)
		for jj := 0; jj < n; jj++ {
			adj[ii][jj] = ii != jj && rm.weights.At(ii, jj) >= threshold
		}
	}
	return adj
}

// Normalized returns a copy whose off-diagonal entries are min-max scaled to
// [0,1] and whose diagonal is 0. A matrix with constant off-diagonal weights
// normalizes to all zeros.
func (rm *RelationshipMatrix) Normalized() *RelationshipMatrix {
	n := rm.Len()
	min, max := 0.0, 0.0
	first := true
	for ii := 0; ii < n; ii++ {
		for jj := 0; jj < n; jj++ {
			if ii == jj {
				continue
			}
			w := rm.weights.At(ii, jj)
			if first || w < min {
				min = w
			}
			if first || w > max {
				max = w
			}
			first = false
		}
	}

	out := mat.NewDense(n, n, nil)
	if span := max - min; span > 0 {
		for ii := 0; ii < n; ii++ {
			for jj := 0; jj < n; jj++ {
				if ii != jj {
					out.Set(ii, jj, (rm.weights.At(ii, jj)-min)/span)
				}
			}
		}
	}
	return NewRelationshipMatrix(rm.Quarter, rm.ModelVersion, rm.Codes, out, rm.Features)
}

// Records returns one map per row keyed by column stock code plus the empty
// key holding the row's stock code
func (rm *RelationshipMatrix) Records() []map[string]interface{} {
	n := rm.Len()
	records := make([]map[string]interface{}, n)
	for ii := 0; ii < n; ii++ {
		rec := make(map[string]interface{}, n+1)
		rec[""] = rm.Codes[ii]
		for jj := 0; jj < n; jj++ {
			rec[rm.Codes[jj]] = rm.weights.At(ii, jj)
		}
		records[ii] = rec
	}
	return records
}

func (rm *RelationshipMatrix) String() string {
	return fmt.Sprintf("RelationshipMatrix{%s %s %dx%d}", rm.Quarter, rm.ModelVersion, rm.Len(), rm.Len())
}

func (rm *RelationshipMatrix) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Quarter", rm.Quarter).
		Str("ModelVersion", rm.ModelVersion).
		Int("Stocks", rm.Len())
}
