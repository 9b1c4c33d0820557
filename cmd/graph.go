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
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/graph"
)

var (
	graphQuarter   string
	graphTop       int
	graphThreshold float64
)

func init() {
	graphCmd.Flags().StringVarP(&graphQuarter, "quarter", "q", "", "Quarter to build (YYYYQn); defaults to the latest quarter with reports")
	graphCmd.Flags().IntVarP(&graphTop, "top", "n", 20, "Number of edges to print")
	graphCmd.Flags().Float64Var(&graphThreshold, "threshold", 0, "Minimum normalized edge weight")

	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the strongest relationships of a quarter",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		manager := loadManager(ctx)
		models := loadModels()

		quarter := graphQuarter
		if quarter == "" {
			quarters := manager.Quarters()
			if len(quarters) == 0 {
				log.Fatal().Str("Dir", viper.GetString("data.dir")).Msg("no financial reports found")
			}
			quarter = quarters[len(quarters)-1]
		}

		builder := graph.NewBuilder(manager.Universe, models.Attention, viper.GetInt("workers"))
		rm, err := builder.Build(ctx, quarter, manager.Reports(quarter))
		if err != nil {
			log.Fatal().Err(err).Str("Quarter", quarter).Msg("could not build relationship matrix")
		}

		edges := rm.Normalized().Edges(graphThreshold)
		if graphTop > 0 && len(edges) > graphTop {
			edges = edges[:graphTop]
		}

		fmt.Printf("%s (%s)\n", rm.Quarter, rm.ModelVersion)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"From", "Name", "To", "Name", "Industry", "Weight"})
		for _, edge := range edges {
			from, _ := manager.Universe.Stock(edge.From)
			to, _ := manager.Universe.Stock(edge.To)
			industry := from.Industry
			if to.Industry != from.Industry {
				industry = from.Industry + " / " + to.Industry
			}
			table.Append([]string{edge.From, from.Name, edge.To, to.Name, industry, strconv.FormatFloat(edge.Weight, 'f', 4, 64)})
		}
		table.Render()
	},
}
