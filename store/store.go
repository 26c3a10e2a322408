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

// Package store persists ledgers, cash flows and instrument reference data in
// PostgreSQL. Every user query runs in a transaction switched to the user's
// role so row level security scopes it to that user's rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyUserID         = errors.New("userID cannot be an empty string")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Store reads and writes through the shared database pool
type Store struct {
	loc *time.Location
}

// New creates a store that reports dates in the exchange timezone
func New() *Store {
	return &Store{
		loc: common.GetTimezone(),
	}
}

// NewInLocation creates a store that reports dates in loc
func NewInLocation(loc *time.Location) *Store {
	return &Store{loc: loc}
}

// dateIn moves a DATE column value to midnight in the store's location
func (s *Store) dateIn(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// inTrx runs f in a transaction owned by role, committing when f succeeds
func inTrx(ctx context.Context, role string, subLog zerolog.Logger, f func(pgx.Tx) error) error {
	if role == "" {
		return ErrEmptyUserID
	}

	trx, err := database.TrxForUser(ctx, role)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction for user")
		return err
	}

	if err := f(trx); err != nil {
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}
	return nil
}

func userLog(userID string) zerolog.Logger {
	return log.With().Str("UserID", userID).Logger()
}
