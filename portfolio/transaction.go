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

package portfolio

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"
)

const (
	SellTransaction = "SELL"
	BuyTransaction  = "BUY"
)

// Fill describes how much of an order executed
type Fill string

const (
	Filled  Fill = "FILLED"
	Partial Fill = "PARTIAL"
	Skipped Fill = "SKIPPED"
)

// TradeAction is one executed (or skipped) order of a trading day
type TradeAction struct {
	SourceID  string          `json:"sourceId"`
	Date      time.Time       `json:"date"`
	Stock     string          `json:"stock"`
	Kind      string          `json:"kind"`
	Signal    float64         `json:"signal"`
	Requested int64           `json:"requested"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	Fee       decimal.Decimal `json:"fee"`
	Fill      Fill            `json:"fill"`
}

// Delta is the signed change in share count
func (t *TradeAction) Delta() int64 {
	if t.Kind == SellTransaction {
		return -t.Shares
	}
	return t.Shares
}

// CashFlow is the signed change in cash including fees
func (t *TradeAction) CashFlow() decimal.Decimal {
	if t.Kind == SellTransaction {
		return t.Value.Sub(t.Fee)
	}
	return t.Value.Add(t.Fee).Neg()
}

// computeSourceID calculates a 16-byte blake3 hash using the date, stock,
// kind, shares and price per share
func computeSourceID(t *TradeAction) error {
	h := blake3.New()

	d, err := t.Date.UTC().MarshalText()
	if err != nil {
		return err
	}

	if _, err := h.Write(d); err != nil {
		log.Error().Stack().Err(err).Msg("could not write date to blake3 hasher")
		return err
	}

	if _, err := h.Write([]byte(t.Stock)); err != nil {
		log.Error().Stack().Err(err).Msg("could not write stock to blake3 hasher")
		return err
	}

	if _, err := h.Write([]byte(t.Kind)); err != nil {
		log.Error().Stack().Err(err).Msg("could not write kind to blake3 hasher")
		return err
	}

	if _, err := h.Write([]byte(fmt.Sprintf("%d", t.Shares))); err != nil {
		log.Error().Stack().Err(err).Msg("could not write shares to blake3 hasher")
		return err
	}

	if _, err := h.Write([]byte(t.Price.String())); err != nil {
		log.Error().Stack().Err(err).Msg("could not write price per share to blake3 hasher")
		return err
	}

	digest := h.Digest()
	buf := make([]byte, 16)
	n, err := digest.Read(buf)
	if err != nil {
		return err
	}
	if n != 16 {
		return ErrGenerateHash
	}

	t.SourceID = hex.EncodeToString(buf)
	return nil
}
