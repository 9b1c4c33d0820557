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
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const ManifestFile = "manifest.toml"

//go:embed manifest.toml
var defaultManifest []byte

// Entry describes one model in a manifest. When File is empty the model is
// initialized from Seed with the listed dimensions.
type Entry struct {
	Version  string `toml:"version"`
	File     string `toml:"file"`
	Seed     uint64 `toml:"seed"`
	Hidden   int    `toml:"hidden"`
	Heads    int    `toml:"heads"`
	Window   int    `toml:"window"`
	Channels int    `toml:"channels"`
	Latent   int    `toml:"latent"`
}

type Manifest struct {
	Attention Entry `toml:"attention"`
	Selector  Entry `toml:"selector"`
	Encoder   Entry `toml:"encoder"`
	Trader    Entry `toml:"trader"`
}

// Dims are the input widths dictated by the data set
type Dims struct {
	ReportFeatures int
	Indicators     int
}

// Bundle is the full set of models a simulation needs
type Bundle struct {
	Attention AttentionModel
	Selector  PolicyModel
	Encoder   AutoEncoder
	Trader    PolicyModel
}

// SelectorWidth is the width of a selector state row: a stock's own
// features followed by its attention-weighted neighbor features
func SelectorWidth(reportFeatures int) int {
	return 2 * reportFeatures
}

// TraderWidth is the width of a trader state row: the compressed features
// followed by a held flag
func TraderWidth(latent int) int {
	return latent + 1
}

// ParseManifest decodes a TOML manifest
func ParseManifest(doc []byte) (*Manifest, error) {
	var manifest Manifest
	if err := toml.Unmarshal(doc, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestFormat, err)
	}
	return &manifest, nil
}

// Load reads dir/manifest.toml and builds every model it lists. An empty
// dir, or one without a manifest, yields the embedded default model set.
func Load(dir string, dims Dims) (*Bundle, error) {
	doc := defaultManifest
	if dir != "" {
		fn := filepath.Join(dir, ManifestFile)
		contents, err := os.ReadFile(fn)
		switch {
		case err == nil:
			doc = contents
		case errors.Is(err, os.ErrNotExist):
			log.Warn().Str("Dir", dir).Msg("no model manifest found; using seeded default models")
		default:
			log.Error().Err(err).Str("FileName", fn).Msg("could not read model manifest")
			return nil, err
		}
	}

	manifest, err := ParseManifest(doc)
	if err != nil {
		return nil, err
	}
	return manifest.Build(dir, dims)
}

// Build constructs the models of the manifest, loading weight files relative to dir
func (manifest *Manifest) Build(dir string, dims Dims) (*Bundle, error) {
	bundle := &Bundle{}

	entry := manifest.Attention
	if entry.File != "" {
		var weights GATWeights
		if err := readWeights(dir, entry.File, &weights); err != nil {
			return nil, err
		}
		gat, err := NewGAT(entry.Version, &weights)
		if err != nil {
			return nil, err
		}
		bundle.Attention = gat
	} else {
		gat := NewRandomGAT(entry.Seed, dims.ReportFeatures, entry.Hidden, entry.Heads)
		if entry.Version != "" {
			gat.version = entry.Version
		}
		bundle.Attention = gat
	}
	if bundle.Attention.InputWidth() != dims.ReportFeatures {
		return nil, fmt.Errorf("%w: attention model takes %d features, reports have %d", ErrInputWidth, bundle.Attention.InputWidth(), dims.ReportFeatures)
	}

	selector, err := buildPolicy(dir, manifest.Selector, SelectorWidth(dims.ReportFeatures))
	if err != nil {
		return nil, err
	}
	bundle.Selector = selector

	entry = manifest.Encoder
	if entry.File != "" {
		var weights TCNWeights
		if err := readWeights(dir, entry.File, &weights); err != nil {
			return nil, err
		}
		tcn, err := NewTCN(entry.Version, &weights)
		if err != nil {
			return nil, err
		}
		bundle.Encoder = tcn
	} else {
		tcn := NewRandomTCN(entry.Seed, entry.Window, dims.Indicators, entry.Channels, entry.Latent)
		if entry.Version != "" {
			tcn.version = entry.Version
		}
		bundle.Encoder = tcn
	}
	if bundle.Encoder.InputWidth() != dims.Indicators {
		return nil, fmt.Errorf("%w: encoder takes %d indicators, data has %d", ErrInputWidth, bundle.Encoder.InputWidth(), dims.Indicators)
	}

	trader, err := buildPolicy(dir, manifest.Trader, TraderWidth(bundle.Encoder.LatentWidth()))
	if err != nil {
		return nil, err
	}
	bundle.Trader = trader

	return bundle, nil
}

func buildPolicy(dir string, entry Entry, width int) (*Policy, error) {
	if entry.File == "" {
		policy := NewRandomPolicy(entry.Seed, width, entry.Hidden)
		if entry.Version != "" {
			policy.version = entry.Version
		}
		return policy, nil
	}

	var weights PolicyWeights
	if err := readWeights(dir, entry.File, &weights); err != nil {
		return nil, err
	}
	policy, err := NewPolicy(entry.Version, &weights)
	if err != nil {
		return nil, err
	}
	if policy.InputWidth() != width {
		return nil, fmt.Errorf("%w: policy %s takes %d inputs, expected %d", ErrInputWidth, entry.Version, policy.InputWidth(), width)
	}
	return policy, nil
}

func readWeights(dir, name string, target interface{}) error {
	fn := filepath.Join(dir, name)
	contents, err := os.ReadFile(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("could not read model weights")
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(contents))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("could not decode model weights")
		return fmt.Errorf("%w: %s: %s", ErrWeightShape, name, err)
	}
	return nil
}

// WriteWeights serializes model weights as JSON
func WriteWeights(fn string, weights interface{}) error {
	contents, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fn, contents, 0644)
}

func newSource(seed uint64) rand.Source {
	return rand.NewSource(seed)
}

// gaussian draws n weights from N(0, 1/fanIn)
func gaussian(src rand.Source, n, fanIn int) []float64 {
	if fanIn < 1 {
		fanIn = 1
	}
	dist := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(1.0 / float64(fanIn)),
		Src:   src,
	}
	vals := make([]float64, n)
	for idx := range vals {
		vals[idx] = dist.Rand()
	}
	return vals
}

func randomVersion(kind string, seed uint64) string {
	return fmt.Sprintf("%s-seed-%d", kind, seed)
}
