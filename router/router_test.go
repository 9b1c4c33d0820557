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

package router_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/guan0612/Portfolio-Managment-System/artifacts"
	"github.com/guan0612/Portfolio-Managment-System/middleware"
	"github.com/guan0612/Portfolio-Managment-System/router"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

type mapStore struct {
	docs  map[string][]byte
	dates []string
	err   error
}

func (ms *mapStore) Save(ctx context.Context, result *simulation.Result) error {
	return nil
}

func (ms *mapStore) Get(ctx context.Context, kind, key string) (*artifacts.Document, error) {
	if ms.err != nil {
		return nil, ms.err
	}
	if kind == artifacts.KindMatrix {
		var err error
		if key, err = artifacts.ParseDate(key); err != nil {
			return nil, err
		}
	}
	body, ok := ms.docs[kind+"/"+key]
	if !ok {
		return nil, artifacts.ErrNotFound
	}
	return &artifacts.Document{Kind: kind, Key: key, Body: body}, nil
}

func (ms *mapStore) Dates(ctx context.Context) ([]string, error) {
	return ms.dates, ms.err
}

func (ms *mapStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

var _ = Describe("Router", func() {
	var (
		app   *fiber.App
		store *mapStore
	)

	get := func(path string) (int, string, string) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		Expect(err).To(BeNil())
		body, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		return resp.StatusCode, resp.Header.Get(fiber.HeaderContentType), string(body)
	}

	BeforeEach(func() {
		store = &mapStore{
			docs: map[string][]byte{
				"gat/2023-03-31":              []byte(`[{"":"1101","1101":1}]`),
				"low-risk-stocks/":            []byte("date,1101\n2023-05-16,1\n"),
				"quarterly-predictions/":      []byte("quarter,stock_code,action_value\n2023Q1,1101,0.5\n"),
				"sharpe-ratios/":              []byte(`{"1101":{"dates":["2023-05-16"],"values":[0]}}`),
				"trading-performance/":        []byte(`{"account_value":[],"actions":[],"stocks":[],"status":{"halted":false,"halted_at":"","reason":""}}`),
				"stocks/":                     []byte(`[{"code":"1101","name":"Taiwan Cement","industry":"Cement"}]`),
				"run/7f0c2c4e-3d5b-4bb4-9b8e": []byte(`{"id":"7f0c2c4e-3d5b-4bb4-9b8e"}`),
			},
			dates: []string{"2023-03-31"},
		}
		app = fiber.New()
		app.Use(middleware.NewLogger())
		router.SetupRoutes(app, store)
	})

	It("answers ping", func() {
		code, _, body := get("/ping")
		Expect(code).To(Equal(fiber.StatusOK))
		Expect(body).To(ContainSubstring(`"status":"success"`))
	})

	DescribeTable("lists matrix dates",
		func(path string) {
			code, contentType, body := get(path)
			Expect(code).To(Equal(fiber.StatusOK))
			Expect(contentType).To(HavePrefix(fiber.MIMEApplicationJSON))
			Expect(body).To(Equal(`["2023-03-31"]`))
		},
		Entry("at the root", "/dates"),
		Entry("under gat", "/gat/dates"),
	)

	DescribeTable("serves a matrix by date",
		func(path string) {
			code, _, body := get(path)
			Expect(code).To(Equal(fiber.StatusOK))
			Expect(body).To(Equal(`[{"":"1101","1101":1}]`))
		},
		Entry("under gat", "/gat/2023-03-31"),
		Entry("at the root", "/2023-03-31"),
	)

	It("rejects malformed dates", func() {
		code, _, _ := get("/gat/yesterday")
		Expect(code).To(Equal(fiber.StatusBadRequest))
	})

	It("returns not found for unpublished dates", func() {
		code, _, _ := get("/2022-12-31")
		Expect(code).To(Equal(fiber.StatusNotFound))
	})

	DescribeTable("serves run artifacts with their content type",
		func(path, contentType, prefix string) {
			code, ct, body := get(path)
			Expect(code).To(Equal(fiber.StatusOK))
			Expect(ct).To(Equal(contentType))
			Expect(body).To(HavePrefix(prefix))
		},
		Entry("low risk stocks", "/low-risk-stocks", artifacts.ContentTypeCSV, "date,1101"),
		Entry("quarterly predictions", "/quarterly-predictions", artifacts.ContentTypeCSV, "quarter,stock_code,action_value"),
		Entry("sharpe ratios", "/sharpe-ratios", artifacts.ContentTypeJSON, `{"1101"`),
		Entry("trading performance", "/trading-performance", artifacts.ContentTypeJSON, `{"account_value"`),
		Entry("stocks", "/stocks", artifacts.ContentTypeJSON, `[{"code":"1101"`),
		Entry("run summary", "/runs/7f0c2c4e-3d5b-4bb4-9b8e", artifacts.ContentTypeJSON, `{"id"`),
	)

	It("hides store failures behind a server error", func() {
		store.err = errors.New("disk on fire")
		code, _, _ := get("/sharpe-ratios")
		Expect(code).To(Equal(fiber.StatusInternalServerError))
		code, _, _ = get("/dates")
		Expect(code).To(Equal(fiber.StatusInternalServerError))
	})

	It("exports prometheus metrics", func() {
		code, _, body := get("/metrics")
		Expect(code).To(Equal(fiber.StatusOK))
		Expect(body).To(ContainSubstring("go_goroutines"))
	})

	It("is read-only", func() {
		resp, err := app.Test(httptest.NewRequest("POST", "/low-risk-stocks", nil), -1)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(fiber.StatusMethodNotAllowed))
	})
})
