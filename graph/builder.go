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
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/guan0612/Portfolio-Managment-System/model"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
)

// Builder computes quarterly relationship matrices for a fixed universe
type Builder struct {
	Universe *data.Universe
	Model    model.AttentionModel
	Schema   []string
	Workers  int
}

func NewBuilder(universe *data.Universe, attention model.AttentionModel, workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		Universe: universe,
		Model:    attention,
		Schema:   data.ReportSchema,
		Workers:  workers,
	}
}

// Build validates the quarter's reports, normalizes them and runs the
// attention model over the whole universe
func (b *Builder) Build(ctx context.Context, quarter string, reports []*data.FinancialReport) (rm *RelationshipMatrix, err error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "graph.Build")
	defer span.End()

	span.SetAttributes(attribute.String("quarter", quarter))

	start := time.Now()
	defer func() {
		metrics.Default().ObserveStep("graph", start, err)
	}()

	features, err := FeatureMatrix(ctx, b.Universe, b.Schema, quarter, reports, b.Workers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report validation failed")
		return nil, err
	}

	weights, err := b.Model.Infer(ctx, features)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attention inference failed")
		log.Error().Stack().Err(err).Str("Quarter", quarter).Str("ModelVersion", b.Model.Version()).Msg("attention inference failed")
		return nil, err
	}

	if err := validateAttention(quarter, b.Universe.Codes(), weights); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attention output rejected")
		return nil, err
	}

	rm = NewRelationshipMatrix(quarter, b.Model.Version(), b.Universe.Codes(), weights, features)
	log.Info().Object("Matrix", rm).Msg("built relationship matrix")
	return rm, nil
}

// FeatureMatrix validates that reports hold exactly one finite report per
// universe stock for quarter and returns the column z-scored N×F matrix in
// universe order
func FeatureMatrix(ctx context.Context, universe *data.Universe, schema []string, quarter string, reports []*data.FinancialReport, workers int) (*mat.Dense, error) {
	codes := universe.Codes()
	byStock := make([]*data.FinancialReport, len(codes))

	for _, report := range reports {
		idx := universe.Index(report.Stock)
		if idx < 0 {
			return nil, &data.FeatureValidationError{Stock: report.Stock, Reason: "stock is not in the universe"}
		}
		if report.Quarter != quarter {
			return nil, &data.FeatureValidationError{Stock: report.Stock, Reason: fmt.Sprintf("report is for quarter %s, expected %s", report.Quarter, quarter)}
		}
		if byStock[idx] != nil {
			return nil, &data.FeatureValidationError{Stock: report.Stock, Reason: "duplicate report for quarter " + quarter}
		}
		byStock[idx] = report
	}

	missing := make([]string, 0)
	for idx, report := range byStock {
		if report == nil {
			missing = append(missing, codes[idx])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		log.Error().Str("Quarter", quarter).Strs("Missing", missing).Msg("quarter is missing financial reports")
		return nil, &data.IncompleteReportError{Quarter: quarter, Missing: missing}
	}

	width := len(schema)
	features := mat.NewDense(len(codes), width, nil)
	rowErrs := make([]error, len(codes))

	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx := range byStock {
		idx := idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// rows are disjoint so workers never write the same memory
			rowErrs[idx] = extractRow(byStock[idx], schema, features.RawRowView(idx))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// report the first invalid stock in universe order so the error is deterministic
	for idx, err := range rowErrs {
		if err != nil {
			log.Error().Err(err).Object("Report", byStock[idx]).Msg("invalid financial report")
			return nil, err
		}
	}

	ZScore(features)
	return features, nil
}

func extractRow(report *data.FinancialReport, schema []string, row []float64) error {
	if len(report.Features) != len(schema) {
		return &data.FeatureValidationError{
			Stock:  report.Stock,
			Date:   report.ReleaseDate,
			Reason: fmt.Sprintf("report has %d features, expected %d", len(report.Features), len(schema)),
		}
	}
	for idx, v := range report.Features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &data.FeatureValidationError{
				Stock:   report.Stock,
				Feature: schema[idx],
				Date:    report.ReleaseDate,
				Reason:  fmt.Sprintf("value %v is not finite", v),
			}
		}
	}
	copy(row, report.Features)
	return nil
}

// ZScore normalizes each column in place using the sample standard
// deviation. Columns with zero (or undefined) spread become 0.
func ZScore(m *mat.Dense) {
	rows, cols := m.Dims()
	col := make([]float64, rows)
	for jj := 0; jj < cols; jj++ {
		mat.Col(col, jj, m)
		mean, std := stat.MeanStdDev(col, nil)
		for ii := 0; ii < rows; ii++ {
			if std == 0 || math.IsNaN(std) {
				m.Set(ii, jj, 0)
			} else {
				m.Set(ii, jj, (col[ii]-mean)/std)
			}
		}
	}
}

func validateAttention(quarter string, codes []string, weights *mat.Dense) error {
	rows, cols := weights.Dims()
	if rows != len(codes) || cols != len(codes) {
		return &data.FeatureValidationError{
			Feature: "attention",
			Reason:  fmt.Sprintf("quarter %s: model returned %dx%d, expected %dx%d", quarter, rows, cols, len(codes), len(codes)),
		}
	}
	for ii := 0; ii < rows; ii++ {
		for jj := 0; jj < cols; jj++ {
			v := weights.At(ii, jj)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return &data.FeatureValidationError{
					Stock:   codes[ii],
					Feature: "attention[" + codes[jj] + "]",
					Reason:  fmt.Sprintf("quarter %s: model output %v rejected", quarter, v),
				}
			}
		}
	}
	return nil
}
