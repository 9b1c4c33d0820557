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

package model_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/guan0612/Portfolio-Managment-System/model"
)

func sequence(rows, cols int, scale float64) *mat.Dense {
	vals := make([]float64, rows*cols)
	for idx := range vals {
		vals[idx] = math.Sin(float64(idx)*0.37) * scale
	}
	return mat.NewDense(rows, cols, vals)
}

type slowPolicy struct {
	delay time.Duration
	err   error
}

func (s *slowPolicy) Version() string { return "slow" }
func (s *slowPolicy) InputWidth() int { return 2 }
func (s *slowPolicy) Infer(ctx context.Context, state *mat.Dense) (*model.PolicyOutput, error) {
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	rows, _ := state.Dims()
	return &model.PolicyOutput{Actions: make([]float64, rows)}, nil
}

var _ = Describe("Models", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("GAT", func() {
		It("produces a non-negative row-stochastic matrix", func() {
			gat := model.NewRandomGAT(7, 5, 8, 4)
			out, err := gat.Infer(ctx, sequence(6, 5, 1.5))
			Expect(err).To(BeNil())

			rows, cols := out.Dims()
			Expect(rows).To(Equal(6))
			Expect(cols).To(Equal(6))
			for ii := 0; ii < rows; ii++ {
				sum := 0.0
				for jj := 0; jj < cols; jj++ {
					Expect(out.At(ii, jj)).To(BeNumerically(">=", 0))
					sum += out.At(ii, jj)
				}
				Expect(sum).To(BeNumerically("~", 1.0, 1e-9))
			}
		})

		It("is deterministic for a seed", func() {
			x := sequence(4, 3, 2)
			a, err := model.NewRandomGAT(11, 3, 4, 2).Infer(ctx, x)
			Expect(err).To(BeNil())
			b, err := model.NewRandomGAT(11, 3, 4, 2).Infer(ctx, x)
			Expect(err).To(BeNil())
			Expect(a.RawMatrix().Data).To(Equal(b.RawMatrix().Data))

			c, err := model.NewRandomGAT(12, 3, 4, 2).Infer(ctx, x)
			Expect(err).To(BeNil())
			Expect(c.RawMatrix().Data).ToNot(Equal(a.RawMatrix().Data))
		})

		It("rejects the wrong input width", func() {
			_, err := model.NewRandomGAT(1, 3, 4, 2).Infer(ctx, sequence(4, 5, 1))
			Expect(errors.Is(err, model.ErrInputWidth)).To(BeTrue())
		})

		It("rejects malformed weights", func() {
			_, err := model.NewGAT("bad", &model.GATWeights{Heads: 2, Input: 3, Hidden: 4, W: [][]float64{{1}}})
			Expect(errors.Is(err, model.ErrWeightShape)).To(BeTrue())
		})
	})

	Describe("Policy", func() {
		It("scores every row within [-1,1]", func() {
			policy := model.NewRandomPolicy(3, 4, 8)
			out, err := policy.Infer(ctx, sequence(10, 4, 3))
			Expect(err).To(BeNil())
			Expect(out.Actions).To(HaveLen(10))
			for _, v := range out.Actions {
				Expect(v).To(BeNumerically(">=", -1))
				Expect(v).To(BeNumerically("<=", 1))
			}
			Expect(out.Threshold).To(BeNumerically(">=", -1))
			Expect(out.Threshold).To(BeNumerically("<=", 1))
		})

		It("rejects an empty state", func() {
			_, err := model.NewRandomPolicy(3, 4, 8).Infer(ctx, &mat.Dense{})
			Expect(err).ToNot(BeNil())
		})
	})

	Describe("TCN", func() {
		It("encodes a window to the latent width", func() {
			tcn := model.NewRandomTCN(5, 20, 6, 4, 2)
			latent, err := tcn.Infer(ctx, sequence(20, 6, 1))
			Expect(err).To(BeNil())
			Expect(latent).To(HaveLen(2))
			for _, v := range latent {
				Expect(math.Abs(v)).To(BeNumerically("<=", 1))
			}
		})

		It("reconstructs a full window", func() {
			tcn := model.NewRandomTCN(5, 20, 6, 4, 1)
			recon, err := tcn.Reconstruct(ctx, sequence(20, 6, 1))
			Expect(err).To(BeNil())
			rows, cols := recon.Dims()
			Expect(rows).To(Equal(20))
			Expect(cols).To(Equal(6))
		})

		It("rejects short windows", func() {
			_, err := model.NewRandomTCN(5, 20, 6, 4, 1).Infer(ctx, sequence(19, 6, 1))
			Expect(errors.Is(err, model.ErrInputWidth)).To(BeTrue())
		})
	})

	Describe("Load", func() {
		dims := model.Dims{ReportFeatures: 5, Indicators: 7}

		It("falls back to the embedded manifest", func() {
			bundle, err := model.Load("", dims)
			Expect(err).To(BeNil())
			Expect(bundle.Attention.Version()).To(Equal("gat-seed-1"))
			Expect(bundle.Attention.InputWidth()).To(Equal(5))
			Expect(bundle.Selector.InputWidth()).To(Equal(model.SelectorWidth(5)))
			Expect(bundle.Encoder.WindowSize()).To(Equal(20))
			Expect(bundle.Trader.InputWidth()).To(Equal(model.TraderWidth(bundle.Encoder.LatentWidth())))
		})

		It("reads weight files named in a manifest", func() {
			dir := GinkgoT().TempDir()
			gat := model.NewRandomGAT(9, 5, 3, 2)
			Expect(model.WriteWeights(filepath.Join(dir, "gat.json"), gat.Weights())).To(Succeed())
			manifest := `
[attention]
version = "gat-2024"
file = "gat.json"

[selector]
seed = 2
hidden = 4

[encoder]
seed = 3
window = 20
channels = 4
latent = 1

[trader]
seed = 4
hidden = 4
`
			Expect(os.WriteFile(filepath.Join(dir, model.ManifestFile), []byte(manifest), 0644)).To(Succeed())

			bundle, err := model.Load(dir, dims)
			Expect(err).To(BeNil())
			Expect(bundle.Attention.Version()).To(Equal("gat-2024"))

			x := sequence(4, 5, 1)
			a, err := bundle.Attention.Infer(ctx, x)
			Expect(err).To(BeNil())
			b, err := gat.Infer(ctx, x)
			Expect(err).To(BeNil())
			Expect(a.RawMatrix().Data).To(Equal(b.RawMatrix().Data))
		})

		It("rejects a weight file with the wrong width", func() {
			dir := GinkgoT().TempDir()
			Expect(model.WriteWeights(filepath.Join(dir, "gat.json"), model.NewRandomGAT(9, 3, 3, 2).Weights())).To(Succeed())
			manifest := "[attention]\nfile = \"gat.json\"\n[selector]\nhidden = 2\n[encoder]\nwindow = 20\nchannels = 2\nlatent = 1\n[trader]\nhidden = 2\n"
			Expect(os.WriteFile(filepath.Join(dir, model.ManifestFile), []byte(manifest), 0644)).To(Succeed())

			_, err := model.Load(dir, dims)
			Expect(errors.Is(err, model.ErrInputWidth)).To(BeTrue())
		})

		It("rejects a malformed manifest", func() {
			_, err := model.ParseManifest([]byte("[attention\n"))
			Expect(errors.Is(err, model.ErrManifestFormat)).To(BeTrue())
		})
	})

	Describe("Guard", func() {
		It("passes results through", func() {
			bundle, err := model.Load("", model.Dims{ReportFeatures: 3, Indicators: 4})
			Expect(err).To(BeNil())
			guarded := bundle.Guarded(time.Second)
			out, err := guarded.Selector.Infer(ctx, sequence(5, 6, 1))
			Expect(err).To(BeNil())
			Expect(out.Actions).To(HaveLen(5))
		})

		It("times out slow inference", func() {
			guarded := &model.Bundle{Selector: &slowPolicy{delay: 200 * time.Millisecond}}
			policy := guarded.Guarded(10 * time.Millisecond).Selector
			_, err := policy.Infer(ctx, sequence(2, 2, 1))
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})

		It("opens after repeated failures", func() {
			guarded := (&model.Bundle{Selector: &slowPolicy{err: errors.New("boom")}}).Guarded(time.Second)
			for ii := 0; ii < 3; ii++ {
				_, err := guarded.Selector.Infer(ctx, sequence(2, 2, 1))
				Expect(err).To(MatchError("boom"))
			}
			_, err := guarded.Selector.Infer(ctx, sequence(2, 2, 1))
			Expect(errors.Is(err, model.ErrBreakerOpen)).To(BeTrue())
		})

		It("gives isolated copies breakers of their own", func() {
			guarded := (&model.Bundle{Selector: &slowPolicy{err: errors.New("boom")}}).Guarded(time.Second)
			other := guarded.Isolated()
			for ii := 0; ii < 3; ii++ {
				_, err := guarded.Selector.Infer(ctx, sequence(2, 2, 1))
				Expect(err).To(MatchError("boom"))
			}
			_, err := guarded.Selector.Infer(ctx, sequence(2, 2, 1))
			Expect(errors.Is(err, model.ErrBreakerOpen)).To(BeTrue())

			_, err = other.Selector.Infer(ctx, sequence(2, 2, 1))
			Expect(err).To(MatchError("boom"))
		})

		It("leaves unguarded models untouched", func() {
			policy := &slowPolicy{}
			bundle := &model.Bundle{Selector: policy}
			Expect(bundle.Isolated().Selector).To(BeIdenticalTo(policy))
		})
	})
})
