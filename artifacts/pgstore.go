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

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/guan0612/Portfolio-Managment-System/database"
	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

const (
	insertSQL = `INSERT INTO artifacts (run_id, kind, key, body) VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id, kind, key) DO UPDATE SET body = EXCLUDED.body, created_on = now()`
	selectSQL = `SELECT body FROM artifacts WHERE kind = $1 AND key = $2 ORDER BY created_on DESC LIMIT 1`
	datesSQL  = `SELECT DISTINCT key FROM artifacts WHERE kind = $1 ORDER BY key`
	purgeSQL  = `DELETE FROM artifacts WHERE created_on < $1`
)

// PgStore keeps artifacts in the artifacts table of the configured database.
// Every run inserts its own rows; readers get the newest row per kind and key.
type PgStore struct{}

func NewPgStore() *PgStore {
	return &PgStore{}
}

func rollback(ctx context.Context, trx pgx.Tx) {
	if err := trx.Rollback(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not rollback transaction")
	}
}

func (store *PgStore) Save(ctx context.Context, result *simulation.Result) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "artifacts.PgStore.Save")
	defer span.End()

	docs, err := Encode(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}

	subLog := log.With().Str("RunID", result.ID.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not begin transaction")
		return err
	}

	for _, doc := range docs {
		if _, err := trx.Exec(ctx, insertSQL, result.ID, doc.Kind, doc.Key, doc.Body); err != nil {
			subLog.Error().Stack().Err(err).Str("Kind", doc.Kind).Str("Key", doc.Key).Str("Query", insertSQL).Msg("could not save artifact")
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			rollback(ctx, trx)
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit artifacts")
		rollback(ctx, trx)
		return err
	}

	subLog.Info().Int("Documents", len(docs)).Msg("saved simulation artifacts to database")
	return nil
}

func (store *PgStore) Get(ctx context.Context, kind, key string) (*Document, error) {
	if !validKind(kind) {
		return nil, ErrUnknownKind
	}
	if kind == KindMatrix {
		var err error
		if key, err = ParseDate(key); err != nil {
			return nil, err
		}
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = trx.QueryRow(ctx, selectSQL, kind, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		rollback(ctx, trx)
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Stack().Err(err).Str("Kind", kind).Str("Key", key).Str("Query", selectSQL).Msg("could not load artifact")
		rollback(ctx, trx)
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return &Document{Kind: kind, Key: key, Body: body}, nil
}

func (store *PgStore) Dates(ctx context.Context) ([]string, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx, datesSQL, KindMatrix)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", datesSQL).Msg("could not list matrix dates")
		rollback(ctx, trx)
		return nil, err
	}

	dates := make([]string, 0, 16)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			log.Warn().Stack().Err(err).Str("Query", datesSQL).Msg("matrix date scan failed")
			continue
		}
		dates = append(dates, date)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Str("Query", datesSQL).Msg("matrix date query read failed")
		rollback(ctx, trx)
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
	}
	return dates, nil
}

func (store *PgStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := trx.Exec(ctx, purgeSQL, cutoff)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", purgeSQL).Msg("could not purge artifacts")
		rollback(ctx, trx)
		return 0, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit artifact purge")
		rollback(ctx, trx)
		return 0, err
	}

	removed := int(tag.RowsAffected())
	log.Info().Int("Removed", removed).Time("Cutoff", cutoff).Msg("purged old artifacts from database")
	return removed, nil
}
