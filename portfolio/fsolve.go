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
)

var (
	ErrDidNotConverge = errors.New("did not converge")
	ErrNoSignChange   = errors.New("objective does not change sign over the interval")
)

type objectiveFunc func(float64) float64

// fsolve finds a root of f inside [lo, hi] by alternating false position
// steps (with the Anderson-Bjorck correction) and bisection. The interval must
// bracket a root; the bracket is kept for every step so the search cannot
// diverge the way Newton's method can.
func fsolve(f objectiveFunc, lo, hi float64) (float64, error) {
	const (
		maxIterations = 500
		bisectIter    = 4
		bisectWidth   = 2.0
		tol           = 1e-9
	)

	const (
		bisect = iota + 1
		falseP
	)

	x1, x2 := lo, hi
	f1, f2 := f(x1), f(x2)

	switch {
	case f1 == 0:
		return x1, nil
	case f2 == 0:
		return x2, nil
	case math.IsNaN(f1) || math.IsNaN(f2) || f1*f2 > 0:
		return 0, ErrNoSignChange
	}

	var state uint8 = falseP
	gamma := 1.0
	w := math.Abs(x2 - x1)
	lastBisectWidth := w

	var nFalseP int
	var x3, f3 float64
	for i := 0; i < maxIterations; i++ {
		switch state {
		case bisect:
			x3 = 0.5 * (x1 + x2)
			if x3 == x1 || x3 == x2 {
				// adjacent floats; cannot narrow further
				return x3, nil
			}

			f3 = f(x3)
			if f3 == 0 {
				return x3, nil
			}

			if f3*f2 < 0 {
				x1, f1 = x2, f2
			}
			x2, f2 = x3, f3
			w = math.Abs(x2 - x1)
			lastBisectWidth = w
			gamma = 1.0
			nFalseP = 0
			state = falseP
		case falseP:
			if math.IsInf(f1, 0) || math.IsInf(f2, 0) {
				state = bisect
				continue
			}

			s12 := (f2 - gamma*f1) / (x2 - x1)
			x3 = x2 - f2/s12
			f3 = f(x3)
			if f3 == 0 {
				return x3, nil
			}
			if math.IsNaN(f3) {
				state = bisect
				continue
			}

			nFalseP++
			if f3*f2 < 0 {
				gamma = 1.0
				x1, f1 = x2, f2
			} else {
				g := 1.0 - f3/f2
				if g <= 0 {
					g = 0.5
				}
				gamma *= g
			}
			x2, f2 = x3, f3
			w = math.Abs(x2 - x1)

			// every few false position steps make sure the interval at least
			// halved; otherwise bisect once
			if nFalseP > bisectIter {
				if w*bisectWidth > lastBisectWidth {
					state = bisect
				}
				nFalseP = 0
				lastBisectWidth = w
			}
		}

		if w <= tol {
			if math.Abs(f1) < math.Abs(f2) {
				return x1, nil
			}
			return x2, nil
		}
	}

	return 0, ErrDidNotConverge
}
