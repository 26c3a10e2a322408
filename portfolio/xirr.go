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
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

type cashflow struct {
	date  time.Time
	value float64
}

// rate brackets probed, in order, when searching for a sign change in the NPV
var xirrGrid = []float64{-0.9999, -0.99, -0.9, -0.5, 0, 0.5, 1, 2, 5, 10, 100, 1000}

// XIRR computes the annualised internal rate of return of the investor's
// external cash flows. Contributions (positive entries) are outflows from the
// investor's point of view and withdrawals are inflows; the portfolio's
// assets on today are treated as a final withdrawal. Day counts use ACT/365.
//
// The result is 0 when the series is empty, has no sign change, or the solver
// fails to converge.
func XIRR(entries []CashFlowEntry, today time.Time, assets float64) float64 {
	flows := make([]cashflow, 0, len(entries)+1)
	for _, entry := range entries {
		if entry.Amount.IsZero() {
			continue
		}
		amount, _ := entry.Amount.Float64()
		flows = append(flows, cashflow{date: entry.Date, value: -amount})
	}

	if len(flows) == 0 {
		return 0
	}

	flows = append(flows, cashflow{date: today, value: assets})
	return xirr(flows)
}

func xirr(flows []cashflow) float64 {
	var hasPositive, hasNegative bool
	start := flows[0].date
	for _, cf := range flows {
		if cf.value > 0 {
			hasPositive = true
		} else if cf.value < 0 {
			hasNegative = true
		}
		if cf.date.Before(start) {
			start = cf.date
		}
	}

	if !hasPositive || !hasNegative {
		log.Debug().Int("NumFlows", len(flows)).Msg("cash flows do not change sign; xirr is undefined")
		return 0
	}

	years := make([]float64, len(flows))
	for idx, cf := range flows {
		years[idx] = float64(daysBetween(start, cf.date)) / 365.0
	}

	npv := func(rate float64) float64 {
		var total float64
		for idx, cf := range flows {
			total += cf.value / math.Pow(1+rate, years[idx])
		}
		return total
	}

	lo, hi, ok := bracketRoot(npv)
	if !ok {
		log.Warn().Int("NumFlows", len(flows)).Msg("could not bracket xirr root; reporting 0")
		return 0
	}

	rate, err := fsolve(npv, lo, hi)
	if err != nil {
		if errors.Is(err, ErrDidNotConverge) {
			log.Warn().Err(err).Int("NumFlows", len(flows)).Msg("xirr solver did not converge; reporting 0")
		} else {
			log.Warn().Err(err).Int("NumFlows", len(flows)).Msg("xirr solver failed; reporting 0")
		}
		return 0
	}

	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		log.Warn().Float64("Rate", rate).Msg("xirr solver produced an invalid rate; reporting 0")
		return 0
	}

	return rate
}

func bracketRoot(f objectiveFunc) (lo, hi float64, ok bool) {
	prev := xirrGrid[0]
	fPrev := f(prev)
	for _, x := range xirrGrid[1:] {
		fx := f(x)
		if !math.IsNaN(fPrev) && !math.IsNaN(fx) && (fPrev == 0 || fx == 0 || fPrev*fx < 0) {
			return prev, x, true
		}
		prev, fPrev = x, fx
	}
	return 0, 0, false
}
