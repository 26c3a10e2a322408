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
	"math"
	"time"
)

const (
	// MinHoldCount is the smallest denominator magnitude used for per-share figures
	MinHoldCount = 0.001

	// a holding interval is open while at least one whole unit is held
	wholeUnit = 1.0
)

// Snapshot is the state of one instrument's position derived from its ledger.
// Snapshots are recomputed on every valuation and never stored.
type Snapshot struct {
	HeldQuantity          float64
	YesterdayHeldQuantity float64
	CostBasis             float64
	CostNumerator         float64
	CostDenominator       float64
	DilutedCost           float64
	TotalFees             float64
	TodayNetFlow          float64
	HoldingDays           int
}

// DilutedCostPerShare spreads the net cash invested across the shares held
func (s Snapshot) DilutedCostPerShare() float64 {
	if math.Abs(s.HeldQuantity) < MinHoldCount {
		return 0
	}
	return s.DilutedCost / s.HeldQuantity
}

// Accumulate derives the position of a single instrument in one forward pass
// over its transactions. trxs must be sorted ascending by date. today decides
// which transactions count towards today's net flow and which towards
// yesterday's holdings.
//
// Costs follow two tracks. The cost basis (numerator / denominator) restarts
// whenever the position is fully liquidated. The diluted cost is the net cash
// invested over the life of the instrument and is never reset.
func Accumulate(trxs []Transaction, today time.Time) Snapshot {
	var (
		snap         Snapshot
		held         float64
		numerator    float64
		denominator  float64
		intervalOpen bool
		intervalFrom time.Time
	)

	for _, t := range trxs {
		isToday := sameDay(t.Date, today)
		snap.TotalFees += t.Fee

		switch t.Kind {
		case BuyTransaction:
			previous := held
			held += t.Quantity

			paid := t.Quantity*t.Price + t.Fee
			numerator += paid
			denominator += t.Quantity
			snap.DilutedCost += paid

			if isToday {
				snap.TodayNetFlow += paid
			}

			if previous < wholeUnit && held >= wholeUnit {
				intervalOpen = true
				intervalFrom = t.Date
			}

		case SellTransaction:
			previous := held
			held -= t.Quantity

			// the fee reduces the proceeds credited against diluted cost
			snap.DilutedCost -= t.Quantity*t.Price - t.Fee

			if isToday {
				snap.TodayNetFlow -= t.Quantity*t.Price + t.Fee
			}

			if previous >= wholeUnit && held < wholeUnit && intervalOpen {
				snap.HoldingDays += daysBetween(intervalFrom, t.Date)
				intervalOpen = false
			}

			if held == 0 {
				numerator = 0
				denominator = 0
			}

		case DividendTransaction:
			m := t.Multiplier()
			denominator += denominator * m
			snap.DilutedCost -= held * t.CashPerShare
			held += held * m

		default:
			panic(fmt.Sprintf("portfolio: %v: %q", ErrUnknownKind, t.Kind))
		}

		if !isToday {
			snap.YesterdayHeldQuantity = held
		}
	}

	if held >= wholeUnit && intervalOpen {
		snap.HoldingDays += daysBetween(intervalFrom, today)
	}

	snap.HeldQuantity = held
	snap.CostNumerator = numerator
	snap.CostDenominator = denominator
	if math.Abs(denominator) >= MinHoldCount {
		snap.CostBasis = numerator / denominator
	}

	return snap
}
