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

package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guan0612/Portfolio-Managment-System/portfolio"
	"github.com/guan0612/Portfolio-Managment-System/tradecron"
)

var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrMissingModel  = errors.New("model bundle is incomplete")
	ErrAlreadyRun    = errors.New("simulation has already run")
)

// Config parameterizes one simulation run
type Config struct {
	Name         string
	Start        time.Time
	End          time.Time
	InitialCash  decimal.Decimal
	WarmupDays   int
	MaxSelected  int
	Workers      int
	Trading      portfolio.Config
	ReleaseSpecs []string
}

// DefaultConfig returns a run over the last full year of a typical data set
// with ten million TWD of starting cash
func DefaultConfig() Config {
	return Config{
		Name:         "default",
		InitialCash:  decimal.NewFromInt(10_000_000),
		WarmupDays:   60,
		Workers:      4,
		Trading:      portfolio.DefaultConfig(),
		ReleaseSpecs: tradecron.DefaultReleaseSpecs,
	}
}

func (cfg Config) Validate() error {
	switch {
	case cfg.Start.IsZero() || cfg.End.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidConfig)
	case cfg.End.Before(cfg.Start):
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidConfig, cfg.End.Format("2006-01-02"), cfg.Start.Format("2006-01-02"))
	case !cfg.InitialCash.IsPositive():
		return fmt.Errorf("%w: initial cash must be positive", ErrInvalidConfig)
	case cfg.WarmupDays < 0:
		return fmt.Errorf("%w: warmup days must not be negative", ErrInvalidConfig)
	case cfg.MaxSelected < 0:
		return fmt.Errorf("%w: max selected must not be negative", ErrInvalidConfig)
	case len(cfg.ReleaseSpecs) == 0:
		return fmt.Errorf("%w: at least one release spec is required", ErrInvalidConfig)
	}
	return cfg.Trading.Validate()
}
