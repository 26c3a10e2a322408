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
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrUnknownPolicy = errors.New("unknown dividend dedup policy")
)

const (
	ExactDatePolicyName = "exact"
	WindowPolicyName    = "window"
)

// CorporateAction is a dividend, bonus issue or capitalisation issue announced
// for an instrument. Ratios are expressed per share held on the ex-date.
type CorporateAction struct {
	ExDate       time.Time
	CashPerShare float64
	StockRatio   float64
	RightsRatio  float64
}

// CorporateActionProvider looks up the corporate actions of an instrument for a calendar year
type CorporateActionProvider interface {
	CorporateActions(ctx context.Context, code string, year int) ([]CorporateAction, error)
}

// DedupPolicy decides whether a candidate ex-date is already represented in the ledger
type DedupPolicy interface {
	IsDuplicate(exDate time.Time, recorded []time.Time, today time.Time) bool
	String() string
}

// ExactDatePolicy treats a candidate as a duplicate only when a dividend is
// already recorded on the same ex-date.
type ExactDatePolicy struct{}

func (ExactDatePolicy) IsDuplicate(exDate time.Time, recorded []time.Time, _ time.Time) bool {
	for _, d := range recorded {
		if sameDay(d, exDate) {
			return true
		}
	}
	return false
}

func (ExactDatePolicy) String() string {
	return ExactDatePolicyName
}

// WindowPolicy treats a candidate as a duplicate when a dividend is recorded
// within Days calendar days of its ex-date. With RejectFuture set, ex-dates
// after today are never inserted.
type WindowPolicy struct {
	Days         int
	RejectFuture bool
}

func (p WindowPolicy) IsDuplicate(exDate time.Time, recorded []time.Time, today time.Time) bool {
	if p.RejectFuture && DateOf(exDate).After(DateOf(today)) {
		return true
	}
	for _, d := range recorded {
		diff := daysBetween(d, exDate)
		if diff < 0 {
			diff = -diff
		}
		if diff <= p.Days {
			return true
		}
	}
	return false
}

func (p WindowPolicy) String() string {
	return fmt.Sprintf("%s(%dd)", WindowPolicyName, p.Days)
}

// PolicyFromName builds the dedup policy selected in configuration
func PolicyFromName(name string, windowDays int) (DedupPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ExactDatePolicyName:
		return ExactDatePolicy{}, nil
	case WindowPolicyName:
		return WindowPolicy{Days: windowDays, RejectFuture: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// ReconcileResult is the change set produced by reconciling one instrument
type ReconcileResult struct {
	Code string

	// Inserted are new dividend records that survived the final rescan
	Inserted []Transaction

	// Updated are previously recorded dividends whose held quantity changed
	Updated []Transaction

	// Deleted are previously recorded dividends that fell on an empty position
	Deleted []uuid.UUID

	// Transactions is the reconciled ledger sorted by date
	Transactions []Transaction
}

// Changed reports whether the ledger needs to be written back
func (r *ReconcileResult) Changed() bool {
	return len(r.Inserted) > 0 || len(r.Updated) > 0 || len(r.Deleted) > 0
}

// UpdatedCode returns the instrument code when at least one new dividend was retained
func (r *ReconcileResult) UpdatedCode() (string, bool) {
	if len(r.Inserted) > 0 {
		return r.Code, true
	}
	return "", false
}

// Reconciler attaches corporate actions to an instrument's ledger
type Reconciler struct {
	provider CorporateActionProvider
	policy   DedupPolicy

	// Location is the zone today's date is taken in; nil keeps the clock's zone
	Location *time.Location

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewReconciler creates a reconciler; a nil policy selects ExactDatePolicy
func NewReconciler(provider CorporateActionProvider, policy DedupPolicy) *Reconciler {
	if policy == nil {
		policy = ExactDatePolicy{}
	}
	return &Reconciler{
		provider: provider,
		policy:   policy,
		Now:      time.Now,
	}
}

// Policy returns the dedup policy in use
func (rc *Reconciler) Policy() DedupPolicy {
	return rc.policy
}

func (rc *Reconciler) today() time.Time {
	now := rc.Now()
	if rc.Location != nil {
		return now.In(rc.Location)
	}
	return now
}

// Reconcile fetches candidate dividends for every year from the instrument's
// first transaction through the current year, inserts the ones not already
// recorded, and then replays the ledger so every dividend carries the quantity
// held on its ex-date. Dividends falling on an empty position are dropped.
//
// Lookup failures for a single year are logged and skipped. trxs is not
// modified.
func (rc *Reconciler) Reconcile(ctx context.Context, code string, trxs []Transaction) *ReconcileResult {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "Reconcile")
	defer span.End()

	result := &ReconcileResult{Code: code}
	if len(trxs) == 0 {
		return result
	}

	subLog := log.With().Str("Code", code).Str("Policy", rc.policy.String()).Logger()

	working := make([]Transaction, len(trxs))
	copy(working, trxs)
	SortTransactions(working)

	recorded := make([]time.Time, 0, 8)
	for _, t := range working {
		if t.Kind == DividendTransaction {
			recorded = append(recorded, t.Date)
		}
	}

	today := DateOf(rc.today())
	firstYear := working[0].Date.Year()
	inserted := make(map[uuid.UUID]bool)

	for year := firstYear; year <= today.Year(); year++ {
		if err := ctx.Err(); err != nil {
			subLog.Warn().Err(err).Int("Year", year).Msg("reconciliation interrupted")
			break
		}

		actions, err := rc.provider.CorporateActions(ctx, code, year)
		if err != nil {
			subLog.Warn().Stack().Err(err).Int("Year", year).Msg("corporate action lookup failed; skipping year")
			continue
		}

		for _, action := range actions {
			if action.ExDate.IsZero() {
				subLog.Warn().Int("Year", year).Msg("corporate action has no ex-date; skipping")
				continue
			}

			if rc.policy.IsDuplicate(action.ExDate, recorded, today) {
				continue
			}

			held := HeldQuantityAt(working, action.ExDate)
			if held <= noHolding {
				subLog.Debug().Time("ExDate", action.ExDate).Float64("Held", held).Msg("no position on ex-date; ignoring corporate action")
				continue
			}

			dividend := NewDividend(code, action, held)
			working = append(working, dividend)
			SortTransactions(working)
			recorded = append(recorded, dividend.Date)
			inserted[dividend.ID] = true

			subLog.Info().Time("ExDate", dividend.Date).Float64("Held", held).Float64("CashPerShare", action.CashPerShare).Msg("recording corporate action")
		}
	}

	// replay the ledger and attach held quantities to every dividend
	var held float64
	final := make([]Transaction, 0, len(working))
	for _, t := range working {
		if t.Kind == DividendTransaction {
			if held <= noHolding {
				if !inserted[t.ID] {
					result.Deleted = append(result.Deleted, t.ID)
				}
				delete(inserted, t.ID)
				subLog.Info().Time("ExDate", t.Date).Msg("dropping dividend recorded against an empty position")
				continue
			}

			if t.Quantity != held {
				t = t.WithQuantity(held)
				if !inserted[t.ID] {
					result.Updated = append(result.Updated, t)
				}
			}

			if inserted[t.ID] {
				result.Inserted = append(result.Inserted, t)
			}
		}

		held = applyHolding(held, t)
		final = append(final, t)
	}

	result.Transactions = final

	span.SetAttributes(
		attribute.String("Code", code),
		attribute.Int("Inserted", len(result.Inserted)),
		attribute.Int("Updated", len(result.Updated)),
		attribute.Int("Deleted", len(result.Deleted)),
	)

	return result
}
