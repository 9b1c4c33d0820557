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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/artifacts"
)

func init() {
	rootCmd.AddCommand(purgeCmd)
}

// purgeArtifacts deletes artifacts older than artifacts.retention days
func purgeArtifacts(ctx context.Context, store artifacts.Store) (int, error) {
	retention := viper.GetInt("artifacts.retention")
	if retention <= 0 {
		log.Warn().Int("Retention", retention).Msg("artifact retention disabled; nothing purged")
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retention)
	removed, err := store.Purge(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Time("Cutoff", cutoff).Msg("artifact purge failed")
		return removed, err
	}
	return removed, nil
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete artifacts older than artifacts.retention days",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		removed, err := purgeArtifacts(ctx, openStore(ctx))
		if err != nil {
			log.Fatal().Err(err).Msg("could not purge artifacts")
		}
		fmt.Printf("removed %d artifacts\n", removed)
	},
}
