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
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/guan0612/Portfolio-Managment-System/data"
	"github.com/guan0612/Portfolio-Managment-System/model"
)

// Sweep runs one independent simulation per config on a bounded pool of
// workers. Runs share the read-only data and the wrapped models, but each
// run gets its own inference breakers. A halted run does not stop the
// others. Once every run is done the results are saved to sink one at a
// time in config order, so a store that keeps a single latest document
// ends up holding the last config's. Results are returned in config order
// together with the first error in that order.
func Sweep(ctx context.Context, manager *data.Manager, models *model.Bundle, sink Sink, configs []Config, workers int) ([]*Result, error) {
	clocks := make([]*Clock, len(configs))
	for idx, cfg := range configs {
		clock, err := New(cfg, manager, models.Isolated())
		if err != nil {
			return nil, err
		}
		clocks[idx] = clock
	}

	if workers < 1 {
		workers = 1
	}

	results := make([]*Result, len(clocks))
	errs := make([]error, len(clocks))

	grp := new(errgroup.Group)
	grp.SetLimit(workers)
	for idx, clock := range clocks {
		idx, clock := idx, clock
		grp.Go(func() error {
			results[idx], errs[idx] = clock.Run(ctx)
			return nil
		})
	}
	_ = grp.Wait()

	if sink != nil {
		saveCtx := context.WithoutCancel(ctx)
		for idx, result := range results {
			if result == nil {
				continue
			}
			if err := sink.Save(saveCtx, result); err != nil {
				log.Error().Stack().Err(err).Str("Name", configs[idx].Name).Msg("could not save simulation artifacts")
				if errs[idx] == nil {
					errs[idx] = err
				}
			}
		}
	}

	for idx, err := range errs {
		if err != nil {
			log.Error().Err(err).Str("Name", configs[idx].Name).Msg("simulation in sweep did not finish")
			return results, err
		}
	}
	return results, nil
}
