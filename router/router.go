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

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/guan0612/Portfolio-Managment-System/artifacts"
	"github.com/guan0612/Portfolio-Managment-System/handler"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
)

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App, store artifacts.Store) {
	h := handler.New(store)

	app.Get("/ping", handler.Ping)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Default().Handler()))

	// Matrices
	app.Get("/dates", h.Dates)
	gat := app.Group("/gat")
	gat.Get("/dates", h.Dates)
	gat.Get("/:date", h.Matrix)

	// Run artifacts
	app.Get("/low-risk-stocks", h.Document(artifacts.KindLowRisk))
	app.Get("/quarterly-predictions", h.Document(artifacts.KindPredictions))
	app.Get("/sharpe-ratios", h.Document(artifacts.KindSharpe))
	app.Get("/trading-performance", h.Document(artifacts.KindPerformance))
	app.Get("/stocks", h.Document(artifacts.KindStocks))
	app.Get("/runs/:id", h.Run)

	// bare dates resolve to a matrix; registered last so named routes win
	app.Get("/:date", h.Matrix)
}
