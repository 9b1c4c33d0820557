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
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/mat"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/graph"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/guan0612/Portfolio-Managment-System/model"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
)

// Epsilon is the band around the policy threshold inside which a score is
// considered borderline
const Epsilon = 1e-9

// Selector chooses the quarter's tradable subset of the universe
type Selector struct {
	Universe *data.Universe
	Policy   model.PolicyModel
	Schema   []string
	Workers  int

	// MaxSelected caps the selection size; 0 means uncapped
	MaxSelected int
}

func New(universe *data.Universe, policy model.PolicyModel, workers int) *Selector {
	return &Selector{
		Universe: universe,
		Policy:   policy,
		Schema:   data.ReportSchema,
		Workers:  workers,
	}
}

// State builds the policy input: for every stock its z-scored report
// features followed by the attention weighted features of the other stocks
func State(matrix *graph.RelationshipMatrix, features *mat.Dense) *mat.Dense {
	rows, cols := features.Dims()
	neighbors := mat.NewDense(rows, cols, nil)
	neighbors.Mul(matrix.OffDiagonal(), features)

	state := mat.NewDense(rows, 2*cols, nil)
	state.Slice(0, rows, 0, cols).(*mat.Dense).Copy(features)
	state.Slice(0, rows, cols, 2*cols).(*mat.Dense).Copy(neighbors)
	return state
}

// Select evaluates the policy over the quarter's graph and reports and
// returns the frozen selection
func (s *Selector) Select(ctx context.Context, matrix *graph.RelationshipMatrix, reports []*data.FinancialReport) (sv *SelectionVector, err error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "selector.Select")
	defer span.End()

	span.SetAttributes(attribute.String("quarter", matrix.Quarter))

	start := time.Now()
	defer func() {
		metrics.Default().ObserveStep("select", start, err)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.Default().Selections.WithLabelValues(result).Inc()
	}()

	stockCodes := s.Universe.Codes()
	if matrix.Len() != len(stockCodes) {
		err = &data.FeatureValidationError{
			Feature: "attention",
			Reason:  fmt.Sprintf("matrix has %d stocks, universe has %d", matrix.Len(), len(stockCodes)),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "matrix does not match universe")
		return nil, err
	}

	features, err := graph.FeatureMatrix(ctx, s.Universe, s.Schema, matrix.Quarter, reports, s.Workers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report validation failed")
		return nil, err
	}

	out, err := s.Policy.Infer(ctx, State(matrix, features))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy inference failed")
		log.Error().Stack().Err(err).Str("Quarter", matrix.Quarter).Str("PolicyVersion", s.Policy.Version()).Msg("selection policy failed")
		return nil, err
	}

	if err = validateOutput(stockCodes, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy output rejected")
		return nil, err
	}

	sv = NewSelectionVector(matrix.Quarter, stockCodes, out.Actions, out.Threshold, s.choose(stockCodes, out))
	sv.AttentionVersion = matrix.ModelVersion
	sv.PolicyVersion = s.Policy.Version()

	if sv.Count() == 0 {
		maxScore := math.Inf(-1)
		for _, score := range out.Actions {
			maxScore = math.Max(maxScore, score)
		}
		err = &data.DegenerateSelectionError{Quarter: matrix.Quarter, Threshold: out.Threshold, MaxScore: maxScore}
		log.Error().Err(err).Str("Quarter", matrix.Quarter).Float64("Threshold", out.Threshold).Floats64("Scores", out.Actions).Msg("selection policy collapsed to the empty set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "degenerate selection")
		return nil, err
	}

	log.Info().Object("Selection", sv).Msg("selected stocks for quarter")
	return sv, nil
}

// choose returns the selected codes ordered by score descending then code.
// Scores above the threshold band are always eligible; borderline scores
// fill any remaining room under MaxSelected in code order.
func (s *Selector) choose(codes []string, out *model.PolicyOutput) []string {
	strict := make(common.PairList, 0, len(codes))
	borderline := make([]string, 0)
	for idx, score := range out.Actions {
		switch {
		case score > out.Threshold+Epsilon:
			strict = append(strict, common.Pair{Key: codes[idx], Value: score})
		case math.Abs(score-out.Threshold) <= Epsilon:
			borderline = append(borderline, codes[idx])
		}
	}
	sort.Sort(strict)

	selected := strict.Keys()
	if s.MaxSelected > 0 {
		if len(selected) > s.MaxSelected {
			return selected[:s.MaxSelected]
		}
		sort.Strings(borderline)
		for _, code := range borderline {
			if len(selected) >= s.MaxSelected {
				break
			}
			selected = append(selected, code)
		}
	}
	return selected
}

func validateOutput(codes []string, out *model.PolicyOutput) error {
	if len(out.Actions) != len(codes) {
		return &data.FeatureValidationError{
			Feature: "score",
			Reason:  fmt.Sprintf("policy returned %d scores for %d stocks", len(out.Actions), len(codes)),
		}
	}
	for idx, score := range out.Actions {
		if math.IsNaN(score) || score < -1 || score > 1 {
			return &data.FeatureValidationError{
				Stock:   codes[idx],
				Feature: "score",
				Reason:  fmt.Sprintf("policy score %v outside [-1,1]", score),
			}
		}
	}
	if math.IsNaN(out.Threshold) || out.Threshold < -1 || out.Threshold > 1 {
		return &data.FeatureValidationError{
			Feature: "threshold",
			Reason:  fmt.Sprintf("policy threshold %v outside [-1,1]", out.Threshold),
		}
	}
	return nil
}

// AverageSharpe is the mean Sharpe ratio of the selected stocks that have a
// finite ratio. It returns NaN when none do.
func AverageSharpe(sv *SelectionVector, sharpe map[string]float64) float64 {
	sum := 0.0
	cnt := 0
	for _, code := range sv.SelectedCodes() {
		v, ok := sharpe[code]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		cnt++
	}
	if cnt == 0 {
		return math.NaN()
	}
	return sum / float64(cnt)
}
