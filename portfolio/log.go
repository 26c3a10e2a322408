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
	"encoding/hex"

	"github.com/rs/zerolog"
)

func (t *Transaction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("TransactionID", t.ID.String()).
		Str("SourceID", hex.EncodeToString(t.SourceID)).
		Time("Date", t.Date).
		Str("Code", t.Code).
		Str("Kind", t.Kind.String()).
		Float64("Price", t.Price).
		Float64("Quantity", t.Quantity).
		Float64("Fee", t.Fee).
		Float64("CashPerShare", t.CashPerShare).
		Float64("StockRatio", t.StockRatio).
		Float64("RightsRatio", t.RightsRatio)
}

func (s *Snapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("HeldQuantity", s.HeldQuantity).
		Float64("YesterdayHeldQuantity", s.YesterdayHeldQuantity).
		Float64("CostBasis", s.CostBasis).
		Float64("DilutedCost", s.DilutedCost).
		Float64("TotalFees", s.TotalFees).
		Float64("TodayNetFlow", s.TodayNetFlow).
		Int("HoldingDays", s.HoldingDays)
}

func (q *Quote) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Code", q.Code).
		Str("Name", q.Name).
		Float64("PriceNow", q.PriceNow).
		Float64("PriceChange", q.PriceChange).
		Float64("ChangeRatio", q.ChangeRatio).
		Float64("PrevClose", q.PrevClose)
}

func (o *Overall) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("FloatingPnL", o.FloatingPnL)
	e.Float64("CumulativePnL", o.CumulativePnL)
	e.Float64("MarketValue", o.MarketValue)
	e.Float64("TodayPnL", o.TodayPnL)
	e.Float64("TotalFees", o.TotalFees)
	e.Float64("OtherIncome", o.OtherIncome)
	e.Float64("Principal", o.Principal)
	e.Float64("Cash", o.Cash)
	e.Float64("Assets", o.Assets)
	e.Float64("XIRR", o.XIRR)
}
