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

package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/guan0612/Portfolio-Managment-System/artifacts"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
)

type PingResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message" example:"API is alive"`
	Time    string `json:"time" example:"2021-06-19T08:09:10.115924-05:00"`
}

func Ping(c *fiber.Ctx) error {
	var response PingResponse
	now, err := time.Now().MarshalText()
	if err != nil {
		log.Error().Err(err).Msg("error while getting time in ping")
		response = PingResponse{
			Status:  "error",
			Message: err.Error(),
			Time:    string(now),
		}
	} else {
		response = PingResponse{
			Status:  "success",
			Message: "API is alive",
			Time:    string(now),
		}
	}
	return c.JSON(response)
}

// Artifacts serves documents of the configured store. Every endpoint is
// read-only.
type Artifacts struct {
	Store artifacts.Store
}

func New(store artifacts.Store) *Artifacts {
	return &Artifacts{Store: store}
}

// Dates lists the quarter-end dates that have a relationship matrix
func (h *Artifacts) Dates(c *fiber.Ctx) error {
	dates, err := h.Store.Dates(c.Context())
	if err != nil {
		log.Error().Stack().Err(err).Str("Endpoint", "Dates").Msg("could not list matrix dates")
		return fiber.ErrInternalServerError
	}
	return c.JSON(dates)
}

// Matrix returns the relationship matrix published for the date parameter
func (h *Artifacts) Matrix(c *fiber.Ctx) error {
	return h.send(c, artifacts.KindMatrix, c.Params("date"))
}

// Document returns a handler serving the single document of kind
func (h *Artifacts) Document(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h.send(c, kind, "")
	}
}

// Run returns the summary of one simulation run
func (h *Artifacts) Run(c *fiber.Ctx) error {
	return h.send(c, artifacts.KindRun, c.Params("id"))
}

func (h *Artifacts) send(c *fiber.Ctx, kind, key string) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(c.Context(), "handler.Artifact",
		trace.WithAttributes(opentelemetry.SpanAttributesFromFiber(c)...),
		trace.WithAttributes(attribute.String("Kind", kind), attribute.String("Key", key)))
	defer span.End()

	subLog := log.With().Str("Kind", kind).Str("Key", key).Logger()

	doc, err := h.Store.Get(ctx, kind, key)
	if err != nil && !errors.Is(err, artifacts.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "artifact lookup failed")
	}

	switch {
	case errors.Is(err, artifacts.ErrInvalidDate):
		subLog.Warn().Err(err).Msg("invalid artifact date")
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, artifacts.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		subLog.Error().Stack().Err(err).Msg("could not load artifact")
		return fiber.ErrInternalServerError
	}

	c.Set(fiber.HeaderContentType, artifacts.ContentType(kind))
	return c.Send(doc.Body)
}
