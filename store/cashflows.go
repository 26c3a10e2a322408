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

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/shopspring/decimal"
)

// CashFlows lists the user's external capital movements by date
func (s *Store) CashFlows(ctx context.Context, userID string) ([]portfolio.CashFlowEntry, error) {
	subLog := userLog(userID)

	entries := make([]portfolio.CashFlowEntry, 0)
	err := inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		rows, err := trx.Query(ctx, "SELECT event_date, amount::text FROM cash_flows ORDER BY event_date ASC")
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not query cash flows")
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				date   time.Time
				amount string
			)
			if err := rows.Scan(&date, &amount); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not scan cash flow")
				return err
			}

			d, err := decimal.NewFromString(amount)
			if err != nil {
				subLog.Warn().Err(err).Str("Amount", amount).Time("Date", date).Msg("skipping cash flow with invalid amount")
				continue
			}
			entries = append(entries, portfolio.CashFlowEntry{
				Date:   s.dateIn(date),
				Amount: d,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// SaveCashFlow records a contribution (positive) or withdrawal (negative)
func (s *Store) SaveCashFlow(ctx context.Context, userID string, entry portfolio.CashFlowEntry) error {
	subLog := userLog(userID)
	return inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		_, err := trx.Exec(ctx, "INSERT INTO cash_flows (user_id, event_date, amount) VALUES ($1, $2, $3::numeric)",
			userID, portfolio.DateOf(entry.Date), entry.Amount.String())
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not save cash flow")
		}
		return err
	})
}

// OtherIncome returns the user's income not attributable to any instrument;
// zero when none was recorded
func (s *Store) OtherIncome(ctx context.Context, userID string) (float64, error) {
	subLog := userLog(userID)

	var income decimal.Decimal
	err := inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		var amount string
		err := trx.QueryRow(ctx, "SELECT amount::text FROM other_income").Scan(&amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not query other income")
			return err
		}

		income, err = decimal.NewFromString(amount)
		if err != nil {
			subLog.Warn().Err(err).Str("Amount", amount).Msg("ignoring invalid other income")
			income = decimal.Zero
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return income.InexactFloat64(), nil
}

// SetOtherIncome replaces the user's other income
func (s *Store) SetOtherIncome(ctx context.Context, userID string, amount decimal.Decimal) error {
	subLog := userLog(userID)
	return inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		_, err := trx.Exec(ctx, `INSERT INTO other_income (user_id, amount) VALUES ($1, $2::numeric)
ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount`, userID, amount.String())
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not save other income")
		}
		return err
	})
}
