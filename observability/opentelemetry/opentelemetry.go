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

package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/guan0612/Portfolio-Managment-System/common"
)

// Name is the instrumentation name every package starts its spans under
const Name = "github.com/guan0612/Portfolio-Managment-System"

// Shutdown flushes pending spans and stops the exporter
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// newClient picks the OTLP transport; gRPC unless otlp.http is set
func newClient(endpoint string) otlptrace.Client {
	headers := viper.GetStringMapString("otlp.headers")
	if viper.GetBool("otlp.http") {
		log.Info().Str("Endpoint", endpoint).Msg("exporting traces over OTLP/HTTP")
		return otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithHeaders(headers),
		)
	}
	log.Info().Str("Endpoint", endpoint).Msg("exporting traces over OTLP/gRPC")
	return otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithHeaders(headers),
	)
}

// sampler samples otlp.sample_ratio of root spans; unset or >= 1 samples all
func sampler() sdktrace.Sampler {
	ratio := viper.GetFloat64("otlp.sample_ratio")
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Setup installs the global tracer provider. Without otlp.endpoint spans are
// still started by every stage but go nowhere.
func Setup() (Shutdown, error) {
	endpoint := viper.GetString("otlp.endpoint")
	if endpoint == "" {
		log.Debug().Msg("otlp.endpoint not set; traces will not be exported")
		return noop, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("portfolio-rl"),
			semconv.ServiceVersionKey.String(common.CurrentVersion.String()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptrace.New(ctx, newClient(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider.Shutdown, nil
}

// SpanAttributesFromFiber describes the client of an artifact request
func SpanAttributesFromFiber(c *fiber.Ctx) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.HTTPClientIPKey.String(c.IP()),
		semconv.HTTPMethodKey.String(c.Method()),
		semconv.HTTPUserAgentKey.String(string(c.Context().UserAgent())),
	}
}
