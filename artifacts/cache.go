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

package artifacts

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guan0612/Portfolio-Managment-System/common"
	"github.com/guan0612/Portfolio-Managment-System/metrics"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

// CachedStore serves documents from the shared artifact cache and falls
// back to the wrapped store on a miss. Writes and purges clear the cache.
type CachedStore struct {
	Store
}

func NewCachedStore(store Store) *CachedStore {
	return &CachedStore{Store: store}
}

func cacheKey(kind, key string) string {
	return kind + ":" + key
}

func (cs *CachedStore) Get(ctx context.Context, kind, key string) (*Document, error) {
	body, ok, err := common.CacheGet(ctx, cacheKey(kind, key))
	switch {
	case err != nil && !errors.Is(err, common.ErrCacheNotConfigured):
		log.Warn().Err(err).Str("Kind", kind).Str("Key", key).Msg("artifact cache lookup failed")
	case ok:
		metrics.Default().CacheLookups.WithLabelValues("hit").Inc()
		return &Document{Kind: kind, Key: key, Body: body}, nil
	}
	metrics.Default().CacheLookups.WithLabelValues("miss").Inc()

	doc, err := cs.Store.Get(ctx, kind, key)
	if err != nil {
		return nil, err
	}

	if err := common.CacheSet(ctx, cacheKey(kind, key), doc.Body); err != nil && !errors.Is(err, common.ErrCacheNotConfigured) {
		log.Warn().Err(err).Str("Kind", kind).Str("Key", key).Msg("could not cache artifact")
	}
	return doc, nil
}

func (cs *CachedStore) Save(ctx context.Context, result *simulation.Result) error {
	if err := cs.Store.Save(ctx, result); err != nil {
		return err
	}
	return cs.Invalidate(ctx)
}

func (cs *CachedStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := cs.Store.Purge(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	return removed, cs.Invalidate(ctx)
}

// Invalidate drops every cached document
func (cs *CachedStore) Invalidate(ctx context.Context) error {
	if err := common.CacheClear(ctx); err != nil {
		log.Error().Err(err).Msg("could not clear artifact cache")
		return err
	}
	return nil
}
