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

package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus collectors exported by the simulator and
// the artifact server
type Registry struct {
	registry *prometheus.Registry

	StepDuration      *prometheus.HistogramVec
	InferenceDuration *prometheus.HistogramVec
	TradingDays       prometheus.Counter
	Trades            *prometheus.CounterVec
	Selections        *prometheus.CounterVec
	Halts             *prometheus.CounterVec
	AccountValue      prometheus.Gauge
	CacheLookups      *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process wide registry
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every collector registered
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"step", "result"},
		),

		InferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_inference_duration_seconds",
				Help:    "Duration of model inference calls in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"model", "result"},
		),

		TradingDays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portfolio_trading_days_total",
				Help: "Number of trading days settled",
			},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_trades_total",
				Help: "Executed trades by side and fill",
			},
			[]string{"side", "fill"},
		),

		Selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_selections_total",
				Help: "Quarterly selections by outcome",
			},
			[]string{"result"},
		),

		Halts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_halts_total",
				Help: "Simulations halted by error kind",
			},
			[]string{"reason"},
		),

		AccountValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portfolio_account_value",
				Help: "Account value after the last settled trading day",
			},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_artifact_cache_lookups_total",
				Help: "Artifact cache lookups by result",
			},
			[]string{"result"},
		),
	}

	r.registry.MustRegister(
		r.StepDuration,
		r.InferenceDuration,
		r.TradingDays,
		r.Trades,
		r.Selections,
		r.Halts,
		r.AccountValue,
		r.CacheLookups,
		collectors.NewGoCollector(),
	)

	return r
}

// ObserveStep records the duration of a pipeline step since start
func (r *Registry) ObserveStep(step string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.StepDuration.WithLabelValues(step, result).Observe(time.Since(start).Seconds())
}

// ObserveInference records the duration of a model call since start
func (r *Registry) ObserveInference(model string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.InferenceDuration.WithLabelValues(model, result).Observe(time.Since(start).Seconds())
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
