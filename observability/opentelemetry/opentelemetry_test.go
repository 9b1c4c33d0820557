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

package opentelemetry_test

import (
	"context"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"

	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
)

var _ = Describe("Opentelemetry", func() {
	It("is a no-op without an endpoint", func() {
		viper.Set("otlp.endpoint", "")
		shutdown, err := opentelemetry.Setup()
		Expect(err).To(BeNil())
		Expect(shutdown(context.Background())).To(Succeed())
	})

	It("describes a fiber request", func() {
		app := fiber.New()
		fctx := &fasthttp.RequestCtx{}
		fctx.Request.Header.SetMethod("GET")
		fctx.Request.Header.SetUserAgent("ginkgo")
		c := app.AcquireCtx(fctx)
		defer app.ReleaseCtx(c)

		attrs := opentelemetry.SpanAttributesFromFiber(c)
		Expect(attrs).To(HaveLen(3))
		Expect(attrs[1].Value.AsString()).To(Equal("GET"))
		Expect(attrs[2].Value.AsString()).To(Equal("ginkgo"))
	})
})
