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

package database_test

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/guan0612/Portfolio-Managment-System/database"
)

var _ = Describe("Database", func() {
	var (
		ctx    context.Context
		dbPool pgxmock.PgxConnIface
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
	})

	AfterEach(func() {
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
	})

	It("tracks transactions until they are committed", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectCommit()

		trx, err := database.Trx(ctx)
		Expect(err).To(BeNil())
		Expect(database.OpenTransactions()).To(Equal(1))
		Expect(trx.Commit(ctx)).To(Succeed())
		Expect(database.OpenTransactions()).To(Equal(0))
	})

	It("stops tracking rolled back transactions", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectRollback()

		trx, err := database.Trx(ctx)
		Expect(err).To(BeNil())
		Expect(trx.Rollback(ctx)).To(Succeed())
		Expect(database.OpenTransactions()).To(Equal(0))
	})

	It("creates the artifact schema", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectExec("CREATE TABLE IF NOT EXISTS artifacts").WillReturnResult(pgconn.CommandTag("CREATE TABLE"))
		dbPool.ExpectCommit()

		Expect(database.Migrate(ctx)).To(Succeed())
	})

	It("rolls back a failed migration", func() {
		failure := errors.New("permission denied")
		dbPool.ExpectBegin()
		dbPool.ExpectExec("CREATE TABLE IF NOT EXISTS artifacts").WillReturnError(failure)
		dbPool.ExpectRollback()

		Expect(database.Migrate(ctx)).To(MatchError(failure))
		Expect(database.OpenTransactions()).To(Equal(0))
	})

	It("refuses nested transactions", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectRollback()

		trx, err := database.Trx(ctx)
		Expect(err).To(BeNil())
		_, err = trx.Begin(ctx)
		Expect(err).To(MatchError(database.ErrUnsupported))
		Expect(trx.Rollback(ctx)).To(Succeed())
	})
})
