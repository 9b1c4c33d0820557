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

package selector

import (
	"github.com/rs/zerolog"
)

// SelectionVector is the frozen result of one quarterly selection. Entries
// are in universe order.
type SelectionVector struct {
	Quarter          string    `json:"quarter"`
	Codes            []string  `json:"codes"`
	Selected         []bool    `json:"selected"`
	Scores           []float64 `json:"scores"`
	Threshold        float64   `json:"threshold"`
	AttentionVersion string    `json:"attentionVersion"`
	PolicyVersion    string    `json:"policyVersion"`

	// Order lists the selected codes by score descending, code ascending
	Order []string `json:"order"`

	index map[string]int
}

// NewSelectionVector builds a vector over codes with the stocks in order
// selected. order must be sorted by score descending then code ascending.
func NewSelectionVector(quarter string, codes []string, scores []float64, threshold float64, order []string) *SelectionVector {
	sv := &SelectionVector{
		Quarter:   quarter,
		Codes:     codes,
		Selected:  make([]bool, len(codes)),
		Scores:    scores,
		Threshold: threshold,
		Order:     order,
		index:     make(map[string]int, len(codes)),
	}
	for idx, code := range codes {
		sv.index[code] = idx
	}
	for _, code := range order {
		if idx, ok := sv.index[code]; ok {
			sv.Selected[idx] = true
		}
	}
	return sv
}

// IsSelected reports whether code is part of the selection
func (sv *SelectionVector) IsSelected(code string) bool {
	if sv.index == nil {
		for idx, c := range sv.Codes {
			if c == code {
				return sv.Selected[idx]
			}
		}
		return false
	}
	idx, ok := sv.index[code]
	return ok && sv.Selected[idx]
}

// Count returns the number of selected stocks
func (sv *SelectionVector) Count() int {
	return len(sv.Order)
}

// SelectedCodes returns the selected codes in universe order
func (sv *SelectionVector) SelectedCodes() []string {
	codes := make([]string, 0, len(sv.Order))
	for idx, code := range sv.Codes {
		if sv.Selected[idx] {
			codes = append(codes, code)
		}
	}
	return codes
}

// Mask returns the selection as 0/1 values in universe order
func (sv *SelectionVector) Mask() []int {
	mask := make([]int, len(sv.Selected))
	for idx, selected := range sv.Selected {
		if selected {
			mask[idx] = 1
		}
	}
	return mask
}

// ActionValues returns the score of each selected stock and 0 for every
// unselected stock
func (sv *SelectionVector) ActionValues() []float64 {
	vals := make([]float64, len(sv.Scores))
	for idx, selected := range sv.Selected {
		if selected {
			vals[idx] = sv.Scores[idx]
		}
	}
	return vals
}

func (sv *SelectionVector) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Quarter", sv.Quarter).
		Float64("Threshold", sv.Threshold).
		Strs("Selected", sv.Order).
		Str("AttentionVersion", sv.AttentionVersion).
		Str("PolicyVersion", sv.PolicyVersion)
}
