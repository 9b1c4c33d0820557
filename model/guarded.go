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
	"time"

	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"gonum.org/v1/gonum/mat"
)

const breakerTrips = 3

// Guard bounds every inference call with a deadline and a circuit breaker
// and records its latency
type Guard struct {
	name    string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewGuard(name string, timeout time.Duration) *Guard {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("Model", name).Str("From", from.String()).Str("To", to.String()).Msg("inference breaker changed state")
		},
	}
	return &Guard{
		name:    name,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type outcome struct {
	val interface{}
	err error
}

func (guard *Guard) run(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()
	if guard.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, guard.timeout)
		defer cancel()
	}

	val, err := guard.breaker.Execute(func() (interface{}, error) {
		ch := make(chan outcome, 1)
		go func() {
			v, e := fn(ctx)
			ch <- outcome{val: v, err: e}
		}()
		select {
		case res := <-ch:
			return res.val, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s", ErrBreakerOpen, guard.name)
	}
	metrics.Default().ObserveInference(guard.name, start, err)
	return val, err
}

// GuardedAttention wraps an AttentionModel with a Guard
type GuardedAttention struct {
	AttentionModel
	guard *Guard
}

func (g *GuardedAttention) Infer(ctx context.Context, features *mat.Dense) (*mat.Dense, error) {
	val, err := g.guard.run(ctx, func(ctx context.Context) (interface{}, error) {
		return g.AttentionModel.Infer(ctx, features)
	})
	if err != nil {
		return nil, err
	}
	return val.(*mat.Dense), nil
}

// GuardedPolicy wraps a PolicyModel with a Guard
type GuardedPolicy struct {
	PolicyModel
	guard *Guard
}

func (g *GuardedPolicy) Infer(ctx context.Context, state *mat.Dense) (*PolicyOutput, error) {
	val, err := g.guard.run(ctx, func(ctx context.Context) (interface{}, error) {
		return g.PolicyModel.Infer(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	return val.(*PolicyOutput), nil
}

// GuardedEncoder wraps an AutoEncoder with a Guard
type GuardedEncoder struct {
	AutoEncoder
	guard *Guard
}

func (g *GuardedEncoder) Infer(ctx context.Context, window *mat.Dense) ([]float64, error) {
	val, err := g.guard.run(ctx, func(ctx context.Context) (interface{}, error) {
		return g.AutoEncoder.Infer(ctx, window)
	})
	if err != nil {
		return nil, err
	}
	return val.([]float64), nil
}

func (g *GuardedEncoder) Reconstruct(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
	val, err := g.guard.run(ctx, func(ctx context.Context) (interface{}, error) {
		return g.AutoEncoder.Reconstruct(ctx, window)
	})
	if err != nil {
		return nil, err
	}
	return val.(*mat.Dense), nil
}

// Guarded returns a bundle whose models are each wrapped in their own Guard
func (bundle *Bundle) Guarded(timeout time.Duration) *Bundle {
	return &Bundle{
		Attention: &GuardedAttention{AttentionModel: bundle.Attention, guard: NewGuard("attention", timeout)},
		Selector:  &GuardedPolicy{PolicyModel: bundle.Selector, guard: NewGuard("selector", timeout)},
		Encoder:   &GuardedEncoder{AutoEncoder: bundle.Encoder, guard: NewGuard("encoder", timeout)},
		Trader:    &GuardedPolicy{PolicyModel: bundle.Trader, guard: NewGuard("trader", timeout)},
	}
}

// Isolated returns a copy of bundle in which every guarded model gets a
// fresh Guard with the same deadline. The wrapped models are shared, so
// failures seen by one copy never trip the breakers of another.
func (bundle *Bundle) Isolated() *Bundle {
	if bundle == nil {
		return nil
	}
	out := *bundle
	if g, ok := bundle.Attention.(*GuardedAttention); ok {
		out.Attention = &GuardedAttention{AttentionModel: g.AttentionModel, guard: g.guard.fresh()}
	}
	if g, ok := bundle.Selector.(*GuardedPolicy); ok {
		out.Selector = &GuardedPolicy{PolicyModel: g.PolicyModel, guard: g.guard.fresh()}
	}
	if g, ok := bundle.Encoder.(*GuardedEncoder); ok {
		out.Encoder = &GuardedEncoder{AutoEncoder: g.AutoEncoder, guard: g.guard.fresh()}
	}
	if g, ok := bundle.Trader.(*GuardedPolicy); ok {
		out.Trader = &GuardedPolicy{PolicyModel: g.PolicyModel, guard: g.guard.fresh()}
	}
	return &out
}

func (guard *Guard) fresh() *Guard {
	return NewGuard(guard.name, guard.timeout)
}
