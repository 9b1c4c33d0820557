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

package common_test

import (
	"context"
	"sort"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/guan0612/Portfolio-Managment-System/common"
)

var _ = Describe("Common", func() {
	Describe("PairList", func() {
		It("orders by value descending then key ascending", func() {
			pairs := common.PairList{
				{Key: "2330", Value: 0.2},
				{Key: "2317", Value: 0.5},
				{Key: "1101", Value: 0.2},
				{Key: "2454", Value: -0.1},
			}
			sort.Sort(pairs)
			Expect(pairs.Keys()).To(Equal([]string{"2317", "1101", "2330", "2454"}))
		})
	})

	Describe("dates", func() {
		It("parses dates in exchange time", func() {
			d, err := common.ParseDate(" 2023-05-16 ")
			Expect(err).To(BeNil())
			Expect(d.Location()).To(Equal(common.GetTimezone()))
			Expect(d.Format(common.DateFormat)).To(Equal("2023-05-16"))

			_, err = common.ParseDate("16/05/2023")
			Expect(err).ToNot(BeNil())
		})

		It("truncates instants to the exchange day", func() {
			// 2023-05-16 17:30 UTC is already May 17 in Taipei
			d := common.DateOnly(time.Date(2023, time.May, 16, 17, 30, 0, 0, time.UTC))
			Expect(d.Format(common.DateFormat)).To(Equal("2023-05-17"))
			Expect(d.Hour()).To(Equal(0))
		})
	})

	DescribeTable("log levels",
		func(name string, level zerolog.Level) {
			Expect(common.LogLevel(name)).To(Equal(level))
		},
		Entry("debug", "debug", zerolog.DebugLevel),
		Entry("upper case", "ERROR", zerolog.ErrorLevel),
		Entry("warning alias", "warning", zerolog.WarnLevel),
		Entry("trace", "trace", zerolog.TraceLevel),
		Entry("empty", "", zerolog.WarnLevel),
		Entry("unknown", "loud", zerolog.WarnLevel),
	)

	Describe("cache", func() {
		var ctx context.Context

		BeforeEach(func() {
			ctx = context.Background()
			viper.Set("cache.redis", false)
			viper.Set("cache.local_size", 2)
			Expect(common.SetupCache()).To(Succeed())
		})

		It("returns what was stored", func() {
			Expect(common.CacheSet(ctx, "gat:2023-03-31", []byte(`[{"":"1101"}]`))).To(Succeed())
			val, ok, err := common.CacheGet(ctx, "gat:2023-03-31")
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())
			Expect(string(val)).To(Equal(`[{"":"1101"}]`))
		})

		It("evicts the least recently used entry", func() {
			Expect(common.CacheSet(ctx, "a", []byte("1"))).To(Succeed())
			Expect(common.CacheSet(ctx, "b", []byte("2"))).To(Succeed())
			Expect(common.CacheSet(ctx, "c", []byte("3"))).To(Succeed())
			_, ok, err := common.CacheGet(ctx, "a")
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())
		})

		It("forgets everything on clear", func() {
			Expect(common.CacheSet(ctx, "stocks:", []byte("[]"))).To(Succeed())
			Expect(common.CacheClear(ctx)).To(Succeed())
			_, ok, err := common.CacheGet(ctx, "stocks:")
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())
		})
	})
})
