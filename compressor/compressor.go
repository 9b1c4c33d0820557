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

package compressor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/guan0612/Portfolio-Managment-System/model"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
)

// Window is a snapshot of one stock's buffered indicator rows, oldest first
type Window struct {
	Stock  string
	Days   []time.Time
	Values *mat.Dense
}

// CompressedFeature is the encoder's latent vector for one stock on one day
type CompressedFeature struct {
	Stock   string    `json:"stock"`
	Date    time.Time `json:"date"`
	Latent  []float64 `json:"latent"`
	Version string    `json:"version"`
}

func (cf *CompressedFeature) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Stock", cf.Stock).
		Time("Date", cf.Date).
		Floats64("Latent", cf.Latent).
		Str("Version", cf.Version)
}

// Compressor owns one ring buffer per stock and encodes full windows
type Compressor struct {
	Encoder  model.AutoEncoder
	Calendar *tradecron.Calendar
	Workers  int

	locker  sync.RWMutex
	buffers map[string]*RingBuffer
}

func New(encoder model.AutoEncoder, calendar *tradecron.Calendar, workers int) *Compressor {
	if workers < 1 {
		workers = 1
	}
	return &Compressor{
		Encoder:  encoder,
		Calendar: calendar,
		Workers:  workers,
		buffers:  make(map[string]*RingBuffer),
	}
}

// Push appends one trading day of indicators for stock
func (c *Compressor) Push(stock string, day time.Time, values []float64) error {
	if len(values) != c.Encoder.InputWidth() {
		return &data.FeatureValidationError{
			Stock:  stock,
			Date:   day,
			Reason: fmt.Sprintf("%d indicators, expected %d", len(values), c.Encoder.InputWidth()),
		}
	}
	if c.Calendar != nil && !c.Calendar.IsTradeDay(day) {
		return &data.FeatureValidationError{Stock: stock, Date: day, Reason: "not a trading day"}
	}

	c.locker.Lock()
	defer c.locker.Unlock()

	buf, ok := c.buffers[stock]
	if !ok {
		buf = NewRingBuffer(c.Encoder.WindowSize())
		c.buffers[stock] = buf
	}
	if err := buf.Push(day, values); err != nil {
		newest, _ := buf.Newest()
		return &data.FeatureValidationError{
			Stock:  stock,
			Date:   day,
			Reason: fmt.Sprintf("%s (newest %s)", err, newest.Format(common.DateFormat)),
		}
	}
	return nil
}

// contiguous counts the buffered days of buf that form an unbroken run of
// trading days ending at the newest day. Callers hold c.locker.
func (c *Compressor) contiguous(buf *RingBuffer) int {
	days := buf.Days()
	if len(days) == 0 || c.Calendar == nil {
		return len(days)
	}
	run := 1
	for idx := len(days) - 1; idx > 0; idx-- {
		if !c.Calendar.Consecutive(days[idx-1], days[idx]) {
			break
		}
		run++
	}
	return run
}

// History returns the number of consecutive trading days buffered for stock
// up to its newest day. A missed day restarts the count.
func (c *Compressor) History(stock string) int {
	c.locker.RLock()
	defer c.locker.RUnlock()
	if buf, ok := c.buffers[stock]; ok {
		return c.contiguous(buf)
	}
	return 0
}

// Ready reports whether stock has a full window of consecutive trading days
// ending on day
func (c *Compressor) Ready(stock string, day time.Time) bool {
	c.locker.RLock()
	defer c.locker.RUnlock()
	buf, ok := c.buffers[stock]
	if !ok || buf.Len() < buf.Cap() {
		return false
	}
	newest, _ := buf.Newest()
	return newest.Equal(day) && c.contiguous(buf) == buf.Cap()
}

// Window returns a copy of stock's buffered rows
func (c *Compressor) Window(stock string) Window {
	c.locker.RLock()
	defer c.locker.RUnlock()

	w := Window{Stock: stock}
	buf, ok := c.buffers[stock]
	if !ok || buf.Len() == 0 {
		return w
	}

	w.Days = buf.Days()
	rows := buf.Rows()
	w.Values = mat.NewDense(len(rows), len(rows[0]), nil)
	for idx, row := range rows {
		w.Values.SetRow(idx, row)
	}
	return w
}

// Validate checks that window is a full run of consecutive trading days with
// finite values
func (c *Compressor) Validate(window Window) error {
	need := c.Encoder.WindowSize()
	if len(window.Days) < need {
		var last time.Time
		if len(window.Days) > 0 {
			last = window.Days[len(window.Days)-1]
		}
		return &data.InsufficientHistoryError{Stocks: []string{window.Stock}, Have: len(window.Days), Need: need, Date: last}
	}

	if c.Calendar != nil {
		for idx := 1; idx < len(window.Days); idx++ {
			if !c.Calendar.Consecutive(window.Days[idx-1], window.Days[idx]) {
				return &data.FeatureValidationError{
					Stock:  window.Stock,
					Date:   window.Days[idx],
					Reason: fmt.Sprintf("window has a gap after %s", window.Days[idx-1].Format(common.DateFormat)),
				}
			}
		}
	}

	rows, cols := window.Values.Dims()
	if rows != need || cols != c.Encoder.InputWidth() {
		return &data.FeatureValidationError{
			Stock:  window.Stock,
			Reason: fmt.Sprintf("window is %dx%d, expected %dx%d", rows, cols, need, c.Encoder.InputWidth()),
		}
	}
	for ii := 0; ii < rows; ii++ {
		for jj := 0; jj < cols; jj++ {
			v := window.Values.At(ii, jj)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &data.FeatureValidationError{
					Stock:   window.Stock,
					Feature: fmt.Sprintf("indicator[%d]", jj),
					Date:    window.Days[ii],
					Reason:  fmt.Sprintf("value %v is not finite", v),
				}
			}
		}
	}
	return nil
}

// Encode compresses a single window. The result depends only on the window
// and the encoder weights.
func (c *Compressor) Encode(ctx context.Context, window Window) (*CompressedFeature, error) {
	if err := c.Validate(window); err != nil {
		return nil, err
	}

	latent, err := c.Encoder.Infer(ctx, window.Values)
	if err != nil {
		log.Error().Stack().Err(err).Str("Stock", window.Stock).Msg("encoder inference failed")
		return nil, err
	}
	for idx, v := range latent {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &data.FeatureValidationError{
				Stock:   window.Stock,
				Feature: fmt.Sprintf("latent[%d]", idx),
				Date:    window.Days[len(window.Days)-1],
				Reason:  "encoder output rejected",
			}
		}
	}

	return &CompressedFeature{
		Stock:   window.Stock,
		Date:    window.Days[len(window.Days)-1],
		Latent:  latent,
		Version: c.Encoder.Version(),
	}, nil
}

// EncodeAll encodes the windows of stocks ending on day. Every stock with a
// short history is reported in a single InsufficientHistoryError; any other
// failure is reported for the first failing stock in code order.
func (c *Compressor) EncodeAll(ctx context.Context, day time.Time, stocks []string) (features map[string]*CompressedFeature, err error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "compressor.EncodeAll")
	defer span.End()

	span.SetAttributes(
		attribute.String("date", day.Format(common.DateFormat)),
		attribute.Int("stocks", len(stocks)),
	)

	start := time.Now()
	defer func() {
		metrics.Default().ObserveStep("encode", start, err)
	}()

	sorted := make([]string, len(stocks))
	copy(sorted, stocks)
	sort.Strings(sorted)

	results := make([]*CompressedFeature, len(sorted))
	errs := make([]error, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Workers)
	for idx, stock := range sorted {
		idx, stock := idx, stock
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			window := c.Window(stock)
			if len(window.Days) >= c.Encoder.WindowSize() && !window.Days[len(window.Days)-1].Equal(day) {
				errs[idx] = &data.FeatureValidationError{
					Stock:  stock,
					Date:   day,
					Reason: "no indicators for day; newest is " + window.Days[len(window.Days)-1].Format(common.DateFormat),
				}
				return nil
			}
			results[idx], errs[idx] = c.Encode(gctx, window)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	short := &data.InsufficientHistoryError{Need: c.Encoder.WindowSize(), Have: c.Encoder.WindowSize(), Date: day}
	for idx, e := range errs {
		if e == nil {
			continue
		}
		if insufficient, ok := e.(*data.InsufficientHistoryError); ok {
			short.Stocks = append(short.Stocks, sorted[idx])
			if insufficient.Have < short.Have {
				short.Have = insufficient.Have
			}
			continue
		}
		err = e
		break
	}
	if err == nil && len(short.Stocks) > 0 {
		err = short
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encoding failed")
		return nil, err
	}

	features = make(map[string]*CompressedFeature, len(sorted))
	for idx, stock := range sorted {
		features[stock] = results[idx]
	}
	return features, nil
}

// Evaluate returns the mean squared reconstruction error of stock's window
func (c *Compressor) Evaluate(ctx context.Context, stock string) (float64, error) {
	window := c.Window(stock)
	if err := c.Validate(window); err != nil {
		return 0, err
	}

	recon, err := c.Encoder.Reconstruct(ctx, window.Values)
	if err != nil {
		return 0, err
	}

	var diff mat.Dense
	diff.Sub(recon, window.Values)
	rows, cols := diff.Dims()
	norm := mat.Norm(&diff, 2)
	return norm * norm / float64(rows*cols), nil
}
