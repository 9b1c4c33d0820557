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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/guan0612/Portfolio-Managment-System/observability/opentelemetry"
	"github.com/guan0612/Portfolio-Managment-System/simulation"
)

// Store persists run artifacts and serves them back by kind and key
type Store interface {
	simulation.Sink
	Get(ctx context.Context, kind, key string) (*Document, error)
	Dates(ctx context.Context) ([]string, error)
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

// FileStore keeps artifacts in a directory:
//
//	gat/<quarter end>.json
//	low-risk-stocks.csv
//	quarterly-predictions.csv
//	sharpe-ratios.json
//	trading-performance.json
//	stocks.json
//	runs/<run id>.json
//
// Files are replaced atomically so readers never see a partial document.
type FileStore struct {
	Dir string

	locker sync.RWMutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (store *FileStore) path(kind, key string) (string, error) {
	switch kind {
	case KindMatrix:
		date, err := ParseDate(key)
		if err != nil {
			return "", err
		}
		return filepath.Join(store.Dir, KindMatrix, date+".json"), nil
	case KindRun:
		if key == "" || strings.ContainsAny(key, `/\.`) {
			return "", fmt.Errorf("%w: run id %q", ErrNotFound, key)
		}
		return filepath.Join(store.Dir, "runs", key+".json"), nil
	case KindLowRisk, KindPredictions:
		return filepath.Join(store.Dir, kind+".csv"), nil
	case KindSharpe, KindPerformance, KindStocks:
		return filepath.Join(store.Dir, kind+".json"), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// Save writes every artifact of result, replacing documents of the same
// kind and key. Matrices left over from earlier runs are removed first so
// gat/ only holds the quarters of result.
func (store *FileStore) Save(ctx context.Context, result *simulation.Result) error {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "artifacts.FileStore.Save")
	defer span.End()

	docs, err := Encode(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}
	span.SetAttributes(attribute.Int("Documents", len(docs)))

	store.locker.Lock()
	defer store.locker.Unlock()

	if err := store.clearMatrices(docs); err != nil {
		log.Error().Err(err).Str("Dir", store.Dir).Msg("could not clear stale matrices")
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear failed")
		return err
	}

	for _, doc := range docs {
		fn, err := store.path(doc.Kind, doc.Key)
		if err != nil {
			return err
		}
		if err := writeAtomic(fn, doc.Body); err != nil {
			log.Error().Err(err).Str("FileName", fn).Msg("could not write artifact")
			span.RecordError(err)
			span.SetStatus(codes.Error, "write failed")
			return err
		}
	}

	log.Info().Str("Dir", store.Dir).Str("RunID", result.ID.String()).Int("Documents", len(docs)).Msg("saved simulation artifacts")
	return nil
}

// clearMatrices removes every matrix file that docs does not rewrite.
// Callers hold the write lock.
func (store *FileStore) clearMatrices(docs []*Document) error {
	dir := filepath.Join(store.Dir, KindMatrix)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	keep := make(map[string]bool)
	for _, doc := range docs {
		if doc.Kind != KindMatrix {
			continue
		}
		fn, err := store.path(doc.Kind, doc.Key)
		if err != nil {
			return err
		}
		keep[filepath.Base(fn)] = true
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Debug().Str("FileName", name).Msg("removed stale matrix")
	}
	return nil
}

func writeAtomic(fn string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fn), ".artifact-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fn)
}

func (store *FileStore) Get(ctx context.Context, kind, key string) (*Document, error) {
	fn, err := store.path(kind, key)
	if err != nil {
		return nil, err
	}

	store.locker.RLock()
	defer store.locker.RUnlock()

	body, err := os.ReadFile(fn)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("could not read artifact")
		return nil, err
	}
	return &Document{Kind: kind, Key: key, Body: body}, nil
}

// Dates lists the quarter-end dates that have a relationship matrix, in order
func (store *FileStore) Dates(ctx context.Context) ([]string, error) {
	store.locker.RLock()
	defer store.locker.RUnlock()

	entries, err := os.ReadDir(filepath.Join(store.Dir, KindMatrix))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if date, err := ParseDate(strings.TrimSuffix(name, ".json")); err == nil {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// Purge deletes artifact files last written before cutoff and returns the
// number removed
func (store *FileStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	store.locker.Lock()
	defer store.locker.Unlock()

	removed := 0
	err := filepath.WalkDir(store.Dir, func(fn string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(fn); err != nil {
				return err
			}
			log.Debug().Str("FileName", fn).Time("ModTime", info.ModTime()).Msg("purged artifact")
			removed++
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("Dir", store.Dir).Msg("artifact purge failed")
		return removed, err
	}

	log.Info().Str("Dir", store.Dir).Int("Removed", removed).Time("Cutoff", cutoff).Msg("purged old artifacts")
	return removed, nil
}
