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

package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// types

type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	ErrNotConnected = errors.New("database pool has not been configured")
	ErrNoURL        = errors.New("database.url is not set")
)

// Schema creates the artifact table. Each row is one serialized artifact of
// one simulation run; the newest row per (kind, key) is the one served.
const Schema = `CREATE TABLE IF NOT EXISTS artifacts (
	run_id     UUID        NOT NULL,
	kind       TEXT        NOT NULL,
	key        TEXT        NOT NULL DEFAULT '',
	body       BYTEA       NOT NULL,
	created_on TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, kind, key)
);
CREATE INDEX IF NOT EXISTS artifacts_kind_key_idx ON artifacts (kind, key, created_on DESC);`

// Private

var (
	pool             PgxIface
	openTransactions map[string]string
	trxLocker        sync.Mutex
)

// Public

func SetPool(myPool PgxIface) {
	trxLocker.Lock()
	openTransactions = make(map[string]string)
	trxLocker.Unlock()
	pool = myPool
}

// Connected reports whether a pool has been configured
func Connected() bool {
	return pool != nil
}

func Connect(ctx context.Context) error {
	url := viper.GetString("database.url")
	if url == "" {
		return ErrNoURL
	}

	myPool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}
	SetPool(myPool)
	return nil
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	trxLocker.Lock()
	defer trxLocker.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// OpenTransactions returns the number of transactions that have been begun
// but neither committed nor rolled back
func OpenTransactions() int {
	trxLocker.Lock()
	defer trxLocker.Unlock()
	return len(openTransactions)
}

// Trx begins a transaction that is tracked until it is committed or rolled back
func Trx(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, ErrNotConnected
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin transaction")
		return nil, err
	}

	// record transactions in openTransaction log
	_, file, lineno, ok := runtime.Caller(1)
	caller := fmt.Sprintf("[%v] %s:%d", ok, file, lineno)
	trxID := uuid.New().String()

	trxLocker.Lock()
	openTransactions[trxID] = caller
	trxLocker.Unlock()

	return &TrackedTx{
		id: trxID,
		tx: trx,
	}, nil
}

// Migrate creates the artifact schema if it does not exist
func Migrate(ctx context.Context) error {
	trx, err := Trx(ctx)
	if err != nil {
		return err
	}

	if _, err := trx.Exec(ctx, Schema); err != nil {
		log.Error().Stack().Err(err).Msg("could not create artifact schema")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit artifact schema")
		return err
	}
	return nil
}
