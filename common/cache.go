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

package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const cacheKeyPrefix = "portfolio-rl:"

var (
	ErrCacheNotConfigured = errors.New("cache has not been configured")
)

var rdb *redis.Client
var cache *lru.Cache

// SetupCache creates the in-process LRU and, when cache.redis is set, the
// shared redis client. Values are stored lz4 compressed in both tiers.
func SetupCache() error {
	var err error
	if viper.GetBool("cache.redis") {
		opt, err := redis.ParseURL(viper.GetString("cache.redis_url"))
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return err
		}

		rdb = redis.NewClient(opt)
	}

	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 128
	}

	cache, err = lru.New(size)
	if err != nil {
		log.Error().Err(err).Msg("could not create LRU cache")
		return err
	}

	return nil
}

func cacheTTL() time.Duration {
	return time.Duration(viper.GetInt("cache.ttl")) * time.Second
}

func CacheSet(ctx context.Context, key string, bytes []byte) error {
	if cache == nil {
		return ErrCacheNotConfigured
	}

	b2, err := Compress(bytes)
	if err != nil {
		return err
	}
	cache.Add(key, b2)

	if rdb != nil {
		return rdb.Set(ctx, cacheKeyPrefix+key, b2, cacheTTL()).Err()
	}
	return nil
}

// CacheGet returns the cached value for key and whether it was found
func CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	if cache == nil {
		return nil, false, ErrCacheNotConfigured
	}

	if v2, ok := cache.Get(key); ok {
		val, err := Decompress(v2.([]byte))
		return val, err == nil, err
	}

	if rdb == nil {
		return nil, false, nil
	}

	val, err := rdb.GetEx(ctx, cacheKeyPrefix+key, cacheTTL()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// promote to the local tier
	cache.Add(key, val)

	out, err := Decompress(val)
	return out, err == nil, err
}

// CacheClear drops every cached artifact, called whenever the artifact
// directory changes underneath the server
func CacheClear(ctx context.Context) error {
	if cache != nil {
		cache.Purge()
	}

	if rdb == nil {
		return nil
	}

	iter := rdb.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}
