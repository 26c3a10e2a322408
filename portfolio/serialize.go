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

package portfolio

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const wireDateLayout = "2006-01-02"

type transactionWire struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	Date         string  `json:"date"`
	Kind         string  `json:"kind"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Fee          float64 `json:"fee"`
	CashPerShare float64 `json:"cash,omitempty"`
	StockRatio   float64 `json:"stock,omitempty"`
	RightsRatio  float64 `json:"rights,omitempty"`
	Comment      string  `json:"comment,omitempty"`
	SourceID     []byte  `json:"sourceID,omitempty"`
}

type cashFlowWire struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

func (t Transaction) wire() transactionWire {
	return transactionWire{
		ID:           t.ID.String(),
		Code:         t.Code,
		Date:         t.Date.Format(wireDateLayout),
		Kind:         t.Kind.String(),
		Price:        t.Price,
		Quantity:     t.Quantity,
		Fee:          t.Fee,
		CashPerShare: t.CashPerShare,
		StockRatio:   t.StockRatio,
		RightsRatio:  t.RightsRatio,
		Comment:      t.Comment,
		SourceID:     t.SourceID,
	}
}

// MarshalTransactions encodes a ledger for caching. Dates are written as
// calendar days; the location is restored by UnmarshalTransactions.
func MarshalTransactions(trxs []Transaction) ([]byte, error) {
	wire := make([]transactionWire, len(trxs))
	for idx, t := range trxs {
		wire[idx] = t.wire()
	}
	return json.Marshal(wire)
}

// UnmarshalTransactions decodes a ledger written by MarshalTransactions.
// Dates are placed at midnight in loc.
func UnmarshalTransactions(data []byte, loc *time.Location) ([]Transaction, error) {
	var wire []transactionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	trxs := make([]Transaction, len(wire))
	for idx, w := range wire {
		id, err := uuid.Parse(w.ID)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", idx, err)
		}
		date, err := time.ParseInLocation(wireDateLayout, w.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", idx, err)
		}
		kind, err := ParseKind(w.Kind)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", idx, err)
		}
		trxs[idx] = Transaction{
			ID:           id,
			Code:         w.Code,
			Date:         date,
			Kind:         kind,
			Price:        w.Price,
			Quantity:     w.Quantity,
			Fee:          w.Fee,
			CashPerShare: w.CashPerShare,
			StockRatio:   w.StockRatio,
			RightsRatio:  w.RightsRatio,
			Comment:      w.Comment,
			SourceID:     w.SourceID,
		}
	}
	return trxs, nil
}

// MarshalCashFlows encodes external cash flows for caching
func MarshalCashFlows(entries []CashFlowEntry) ([]byte, error) {
	wire := make([]cashFlowWire, len(entries))
	for idx, entry := range entries {
		wire[idx] = cashFlowWire{
			Date:   entry.Date.Format(wireDateLayout),
			Amount: entry.Amount,
		}
	}
	return json.Marshal(wire)
}

// UnmarshalCashFlows decodes cash flows written by MarshalCashFlows
func UnmarshalCashFlows(data []byte, loc *time.Location) ([]CashFlowEntry, error) {
	var wire []cashFlowWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	entries := make([]CashFlowEntry, len(wire))
	for idx, w := range wire {
		date, err := time.ParseInLocation(wireDateLayout, w.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("cash flow %d: %w", idx, err)
		}
		entries[idx] = CashFlowEntry{Date: date, Amount: w.Amount}
	}
	return entries, nil
}

// MarshalJSON renders a cash flow the way API clients expect it
func (c CashFlowEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(cashFlowWire{Date: c.Date.Format(wireDateLayout), Amount: c.Amount})
}

// MarshalJSON renders a transaction with its dividend description
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		transactionWire
		Description string `json:"description,omitempty"`
	}{
		transactionWire: t.wire(),
		Description:     t.Describe(),
	})
}
