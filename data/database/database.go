// Copyright 2021-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package database owns the connection pool and hands out transactions that
// run as a per-user postgres role
package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the part of a pool transactions are started from
type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	ErrEmptyUserID = errors.New("userID cannot be an empty string")
)

const (
	// AdminRole may create user roles and switch to them
	AdminRole = "pvholdings"

	// SharedRole owns reference data readable by every user
	SharedRole = "pvshared"
)

var (
	pool               PgxIface
	openTransactions   = make(map[string]string)
	openTransactionsMu sync.Mutex
)

func trackTransaction(id, caller string) {
	openTransactionsMu.Lock()
	defer openTransactionsMu.Unlock()
	openTransactions[id] = caller
}

func untrackTransaction(id string) {
	openTransactionsMu.Lock()
	defer openTransactionsMu.Unlock()
	delete(openTransactions, id)
}

func setRole(role string) string {
	return "SET ROLE " + pgx.Identifier{role}.Sanitize()
}

// createUser adds a login-less role for userID that inherits the shared role
// and can be assumed by the admin role
func createUser(ctx context.Context, userID string) error {
	if userID == "" {
		log.Error().Stack().Msg("userID cannot be an empty string")
		return ErrEmptyUserID
	}

	subLog := log.With().Str("UserID", userID).Logger()
	subLog.Info().Msg("creating new role")

	// identifiers cannot be bound as parameters so they are sanitized here
	user := pgx.Identifier{userID}.Sanitize()
	statements := []string{
		setRole(AdminRole),
		fmt.Sprintf("CREATE ROLE %s WITH nologin IN ROLE %s", user, pgx.Identifier{SharedRole}.Sanitize()),
		fmt.Sprintf("GRANT %s TO %s", user, pgx.Identifier{AdminRole}.Sanitize()),
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not create new transaction")
		return err
	}

	for _, sql := range statements {
		if _, err := trx.Exec(ctx, sql); err != nil {
			subLog.Error().Stack().Err(err).Str("Query", sql).Msg("could not create role")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("failed to commit new role")
		return err
	}
	return nil
}

// SetPool replaces the connection pool; tests install a pgxmock connection
func SetPool(myPool PgxIface) {
	openTransactionsMu.Lock()
	openTransactions = make(map[string]string)
	openTransactionsMu.Unlock()
	pool = myPool
}

// Connect opens the pool configured by database.url
func Connect(ctx context.Context) error {
	myPool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
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
	openTransactionsMu.Lock()
	defer openTransactionsMu.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

// OpenTransactions counts transactions that were neither committed nor rolled back
func OpenTransactions() int {
	openTransactionsMu.Lock()
	defer openTransactionsMu.Unlock()
	return len(openTransactions)
}

// TrxForUser creates a transaction running as the user's role. Row level
// security on the ledger tables limits the transaction to that user's rows.
// The role is created on first use.
func TrxForUser(ctx context.Context, userID string) (pgx.Tx, error) {
	return trxForUser(ctx, userID, true)
}

func trxForUser(ctx context.Context, userID string, create bool) (pgx.Tx, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	_, file, lineno, ok := runtime.Caller(2)
	wrapped := &trackedTx{
		Tx:     trx,
		id:     uuid.New().String(),
		userID: userID,
	}
	trackTransaction(wrapped.id, fmt.Sprintf("[%v] %s:%d", ok, file, lineno))

	if _, err := wrapped.Exec(ctx, setRole(userID)); err != nil {
		if rbErr := wrapped.Rollback(ctx); rbErr != nil {
			log.Error().Stack().Err(rbErr).Msg("could not rollback transaction")
			return nil, rbErr
		}
		if !create {
			return nil, err
		}

		log.Warn().Err(err).Str("UserID", userID).Msg("role does not exist")
		if err := createUser(ctx, userID); err != nil {
			return nil, err
		}
		return trxForUser(ctx, userID, false)
	}

	return wrapped, nil
}

const userRolesSQL = `WITH RECURSIVE cte AS (
	SELECT oid FROM pg_roles WHERE rolname = $1
	UNION ALL
		SELECT m.roleid
		FROM cte JOIN pg_auth_members m ON m.member = cte.oid
)
SELECT oid::regrole::text AS rolename FROM cte`

// GetUsers lists every user role granted to the admin role
func GetUsers(ctx context.Context) ([]string, error) {
	trx, err := pool.Begin(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not begin transaction")
		return nil, err
	}
	defer func() {
		if err := trx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
	}()

	rows, err := trx.Query(ctx, userRolesSQL, AdminRole)
	if err != nil {
		log.Warn().Stack().Err(err).Msg("get list of database roles failed")
		return nil, err
	}
	defer rows.Close()

	users := make([]string, 0, 16)
	for rows.Next() {
		var roleName string
		if err := rows.Scan(&roleName); err != nil {
			log.Warn().Stack().Err(err).Msg("could not scan role name")
			continue
		}

		roleName = strings.Trim(roleName, "\"")
		if roleName == AdminRole || roleName == SharedRole {
			continue
		}
		users = append(users, roleName)
	}

	if err := rows.Err(); err != nil {
		log.Warn().Stack().Err(err).Msg("could not read database roles")
		return nil, err
	}

	return users, nil
}
