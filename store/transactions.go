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
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v4"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/rs/zerolog"
)

const transactionColumns = "id::text, code, event_date, kind, price, quantity, fee, cash_per_share, stock_ratio, rights_ratio, COALESCE(comment, ''), source_id"

// TransactionFilter narrows a ledger listing. Zero fields match everything.
type TransactionFilter struct {
	Code  string
	Kind  portfolio.Kind
	Since time.Time
	Until time.Time
}

func (f TransactionFilter) query() (string, []interface{}) {
	stmt := &pgsql.SelectStatement{}
	stmt.Select(transactionColumns)
	stmt.From("transactions")

	if f.Code != "" {
		stmt.Where("code = ?", f.Code)
	}
	if f.Kind != "" {
		stmt.Where("kind = ?", string(f.Kind))
	}
	if !f.Since.IsZero() {
		stmt.Where("event_date >= ?", portfolio.DateOf(f.Since))
	}
	if !f.Until.IsZero() {
		stmt.Where("event_date <= ?", portfolio.DateOf(f.Until))
	}

	stmt.Order("event_date ASC, seq ASC")
	return pgsql.Build(stmt)
}

// Transactions lists the user's ledger in recorded order. Rows that fail
// validation are logged and skipped.
func (s *Store) Transactions(ctx context.Context, userID string, filter TransactionFilter) ([]portfolio.Transaction, error) {
	subLog := userLog(userID)
	sql, args := filter.query()

	var trxs []portfolio.Transaction
	err := inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		rows, err := trx.Query(ctx, sql, args...)
		if err != nil {
			subLog.Error().Stack().Err(err).Str("Query", sql).Msg("could not query transactions")
			return err
		}
		defer rows.Close()

		trxs, err = s.scanTransactions(rows, subLog)
		return err
	})
	if err != nil {
		return nil, err
	}

	return trxs, nil
}

func (s *Store) scanTransactions(rows pgx.Rows, subLog zerolog.Logger) ([]portfolio.Transaction, error) {
	trxs := make([]portfolio.Transaction, 0)
	for rows.Next() {
		var (
			id   string
			kind string
			date time.Time
			t    portfolio.Transaction
		)

		if err := rows.Scan(&id, &t.Code, &date, &kind, &t.Price, &t.Quantity, &t.Fee,
			&t.CashPerShare, &t.StockRatio, &t.RightsRatio, &t.Comment, &t.SourceID); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan transaction")
			return nil, err
		}

		var err error
		if t.ID, err = uuid.Parse(id); err != nil {
			subLog.Warn().Err(err).Str("TransactionID", id).Msg("skipping transaction with invalid id")
			continue
		}
		if t.Kind, err = portfolio.ParseKind(kind); err != nil {
			subLog.Warn().Err(err).Str("TransactionID", id).Msg("skipping transaction with unknown kind")
			continue
		}
		t.Date = s.dateIn(date)

		if err := t.Validate(); err != nil {
			subLog.Warn().Err(err).Object("Transaction", &t).Msg("skipping invalid transaction")
			continue
		}
		trxs = append(trxs, t)
	}

	return trxs, rows.Err()
}

const insertTransactionSQL = `INSERT INTO transactions (
	id, user_id, code, event_date, kind, price, quantity, fee,
	cash_per_share, stock_ratio, rights_ratio, comment, source_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	code = EXCLUDED.code,
	event_date = EXCLUDED.event_date,
	kind = EXCLUDED.kind,
	price = EXCLUDED.price,
	quantity = EXCLUDED.quantity,
	fee = EXCLUDED.fee,
	cash_per_share = EXCLUDED.cash_per_share,
	stock_ratio = EXCLUDED.stock_ratio,
	rights_ratio = EXCLUDED.rights_ratio,
	comment = EXCLUDED.comment,
	source_id = EXCLUDED.source_id`

func saveTransaction(ctx context.Context, trx pgx.Tx, userID string, t portfolio.Transaction) error {
	_, err := trx.Exec(ctx, insertTransactionSQL,
		t.ID.String(), userID, t.Code, portfolio.DateOf(t.Date), string(t.Kind), t.Price, t.Quantity, t.Fee,
		t.CashPerShare, t.StockRatio, t.RightsRatio, t.Comment, t.SourceID)
	return err
}

// SaveTransaction inserts t or replaces the stored transaction with the same id
func (s *Store) SaveTransaction(ctx context.Context, userID string, t portfolio.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}

	subLog := userLog(userID).With().Str("TransactionID", t.ID.String()).Logger()
	return inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		if err := saveTransaction(ctx, trx, userID, t); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not save transaction")
			return err
		}
		return nil
	})
}

// DeleteTransaction removes a transaction from the user's ledger
func (s *Store) DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error {
	subLog := userLog(userID).With().Str("TransactionID", id.String()).Logger()
	return inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		tag, err := trx.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id.String())
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not delete transaction")
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrTransactionNotFound
		}
		return nil
	})
}

// ApplyReconcile persists the changes of a reconciliation run atomically
func (s *Store) ApplyReconcile(ctx context.Context, userID string, res *portfolio.ReconcileResult) error {
	if res == nil || !res.Changed() {
		return nil
	}

	subLog := userLog(userID).With().Str("Code", res.Code).Logger()
	return inTrx(ctx, userID, subLog, func(trx pgx.Tx) error {
		for _, t := range res.Inserted {
			if err := saveTransaction(ctx, trx, userID, t); err != nil {
				subLog.Error().Stack().Err(err).Object("Transaction", &t).Msg("could not insert dividend")
				return err
			}
		}

		for _, t := range res.Updated {
			if _, err := trx.Exec(ctx, "UPDATE transactions SET quantity = $1 WHERE id = $2", t.Quantity, t.ID.String()); err != nil {
				subLog.Error().Stack().Err(err).Object("Transaction", &t).Msg("could not update dividend quantity")
				return err
			}
		}

		if len(res.Deleted) > 0 {
			ids := make([]string, len(res.Deleted))
			for idx, id := range res.Deleted {
				ids[idx] = id.String()
			}
			if _, err := trx.Exec(ctx, "DELETE FROM transactions WHERE id = ANY($1)", ids); err != nil {
				subLog.Error().Stack().Err(err).Strs("TransactionIDs", ids).Msg("could not delete dividends")
				return err
			}
		}

		subLog.Info().Int("Inserted", len(res.Inserted)).Int("Updated", len(res.Updated)).Int("Deleted", len(res.Deleted)).Msg("applied corporate action reconciliation")
		return nil
	})
}
