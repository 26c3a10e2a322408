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
	"sort"
	"time"
)

// noHolding is the tolerance under which a replayed position counts as empty
const noHolding = 1e-9

// applyHolding replays the effect of t on a held quantity
func applyHolding(held float64, t Transaction) float64 {
	switch t.Kind {
	case BuyTransaction:
		return held + t.Quantity
	case SellTransaction:
		return held - t.Quantity
	case DividendTransaction:
		return held + held*t.Multiplier()
	default:
		return held
	}
}

// HeldQuantityAt replays trxs (sorted ascending by date) up to and including
// date and returns the quantity held at the end of that day.
func HeldQuantityAt(trxs []Transaction, date time.Time) float64 {
	cutoff := DateOf(date)
	var held float64
	for _, t := range trxs {
		if DateOf(t.Date).After(cutoff) {
			break
		}
		held = applyHolding(held, t)
	}
	return held
}

// HoldingCodes returns the sorted codes with a positive position at date
func HoldingCodes(trxsByCode map[string][]Transaction, date time.Time) []string {
	codes := make([]string, 0, len(trxsByCode))
	for code, trxs := range trxsByCode {
		if len(trxs) == 0 {
			continue
		}
		sorted := make([]Transaction, len(trxs))
		copy(sorted, trxs)
		SortTransactions(sorted)
		if HeldQuantityAt(sorted, date) > noHolding {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
