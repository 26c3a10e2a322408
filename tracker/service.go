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

// Package tracker ties ledger storage, quotes and corporate actions together
// into the operations the API and CLI expose for a user's portfolio.
package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/penny-vault/pv-holdings/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Ledger is the persistent record of a user's portfolio
type Ledger interface {
	Transactions(ctx context.Context, userID string, filter store.TransactionFilter) ([]portfolio.Transaction, error)
	SaveTransaction(ctx context.Context, userID string, t portfolio.Transaction) error
	DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error
	ApplyReconcile(ctx context.Context, userID string, res *portfolio.ReconcileResult) error
	CashFlows(ctx context.Context, userID string) ([]portfolio.CashFlowEntry, error)
	SaveCashFlow(ctx context.Context, userID string, entry portfolio.CashFlowEntry) error
	OtherIncome(ctx context.Context, userID string) (float64, error)
	SetOtherIncome(ctx context.Context, userID string, amount decimal.Decimal) error
}

// QuoteCache is implemented by quote providers that can drop cached prices
type QuoteCache interface {
	Clear(ctx context.Context) error
}

// Service runs portfolio operations for individual users
type Service struct {
	ledger     Ledger
	cache      Cache
	quotes     portfolio.QuoteProvider
	valuer     *portfolio.Valuer
	reconciler *portfolio.Reconciler
	loc        *time.Location

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewService creates a service. meta may be nil, in which case every
// instrument is classified as OTHER.
func NewService(ledger Ledger, cache Cache, quotes portfolio.QuoteProvider, meta portfolio.MetadataLookup, reconciler *portfolio.Reconciler, loc *time.Location) *Service {
	s := &Service{
		ledger:     ledger,
		cache:      cache,
		quotes:     quotes,
		valuer:     portfolio.NewValuer(quotes, meta),
		reconciler: reconciler,
		loc:        loc,
		Now:        time.Now,
	}
	s.valuer.Now = func() time.Time { return s.Now().In(s.loc) }
	if reconciler != nil && reconciler.Location == nil {
		reconciler.Location = loc
	}
	return s
}

// Transactions returns the user's ledger. The full ledger is served from the
// cache when present; filtered listings always read the ledger.
func (s *Service) Transactions(ctx context.Context, userID string, filter store.TransactionFilter) ([]portfolio.Transaction, error) {
	if filter != (store.TransactionFilter{}) {
		return s.ledger.Transactions(ctx, userID, filter)
	}

	if raw, ok := s.cache.Get(ctx, userID, operationsKey); ok {
		trxs, err := portfolio.UnmarshalTransactions(raw, s.loc)
		if err == nil {
			return trxs, nil
		}
		log.Warn().Err(err).Str("UserID", userID).Msg("discarding undecodable cached ledger")
	}

	trxs, err := s.ledger.Transactions(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	if raw, err := portfolio.MarshalTransactions(trxs); err == nil {
		s.cache.Set(ctx, userID, operationsKey, raw)
	} else {
		log.Warn().Err(err).Str("UserID", userID).Msg("could not encode ledger for caching")
	}

	return trxs, nil
}

// CashFlows returns the user's external capital movements
func (s *Service) CashFlows(ctx context.Context, userID string) ([]portfolio.CashFlowEntry, error) {
	if raw, ok := s.cache.Get(ctx, userID, cashFlowsKey); ok {
		entries, err := portfolio.UnmarshalCashFlows(raw, s.loc)
		if err == nil {
			return entries, nil
		}
		log.Warn().Err(err).Str("UserID", userID).Msg("discarding undecodable cached cash flows")
	}

	entries, err := s.ledger.CashFlows(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, err := portfolio.MarshalCashFlows(entries); err == nil {
		s.cache.Set(ctx, userID, cashFlowsKey, raw)
	}

	return entries, nil
}

func (s *Service) otherIncome(ctx context.Context, userID string) (float64, error) {
	if raw, ok := s.cache.Get(ctx, userID, incomeKey); ok {
		if d, err := decimal.NewFromString(string(raw)); err == nil {
			return d.InexactFloat64(), nil
		}
	}

	income, err := s.ledger.OtherIncome(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, userID, incomeKey, []byte(decimal.NewFromFloat(income).String()))
	return income, nil
}

// Valuation values the user's portfolio at current prices
func (s *Service) Valuation(ctx context.Context, userID string) (*portfolio.Valuation, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tracker.Valuation")
	defer span.End()
	span.SetAttributes(attribute.String("UserID", userID))

	trxs, err := s.Transactions(ctx, userID, store.TransactionFilter{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not load ledger")
		return nil, err
	}

	flows, err := s.CashFlows(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not load cash flows")
		return nil, err
	}

	income, err := s.otherIncome(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not load other income")
		return nil, err
	}

	return s.valuer.Compute(ctx, portfolio.GroupByCode(trxs), income, flows), nil
}

// Reconcile brings the dividend records of every currently held instrument in
// line with the corporate action source. It returns the codes that gained new
// dividend records.
func (s *Service) Reconcile(ctx context.Context, userID string) ([]string, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tracker.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("UserID", userID))

	subLog := log.With().Str("UserID", userID).Str("Policy", s.reconciler.Policy().String()).Logger()

	trxs, err := s.ledger.Transactions(ctx, userID, store.TransactionFilter{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not load ledger")
		return nil, err
	}

	byCode := portfolio.GroupByCode(trxs)
	held := portfolio.HoldingCodes(byCode, s.Now().In(s.loc))

	updated := make([]string, 0)
	changed := false
	defer func() {
		if changed {
			s.cache.Invalidate(ctx, userID)
		}
	}()

	for _, code := range held {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		res := s.reconciler.Reconcile(ctx, code, byCode[code])
		if !res.Changed() {
			continue
		}

		if err := s.ledger.ApplyReconcile(ctx, userID, res); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "could not persist reconciliation")
			subLog.Error().Err(err).Str("Code", code).Msg("could not persist reconciliation")
			return updated, err
		}
		changed = true

		if c, ok := res.UpdatedCode(); ok {
			updated = append(updated, c)
		}
	}

	subLog.Info().Int("NumHeld", len(held)).Strs("Updated", updated).Msg("reconciled corporate actions")
	return updated, nil
}

// RecordTransaction stores a transaction in the user's ledger
func (s *Service) RecordTransaction(ctx context.Context, userID string, t portfolio.Transaction) error {
	if err := s.ledger.SaveTransaction(ctx, userID, t); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// DeleteTransaction removes a transaction from the user's ledger
func (s *Service) DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.ledger.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// RecordCashFlow stores a contribution or withdrawal
func (s *Service) RecordCashFlow(ctx context.Context, userID string, entry portfolio.CashFlowEntry) error {
	if err := s.ledger.SaveCashFlow(ctx, userID, entry); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// SetOtherIncome replaces the user's income not attributable to an instrument
func (s *Service) SetOtherIncome(ctx context.Context, userID string, amount decimal.Decimal) error {
	if err := s.ledger.SetOtherIncome(ctx, userID, amount); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// ClearQuotes drops cached prices so the next valuation fetches fresh quotes
func (s *Service) ClearQuotes(ctx context.Context) error {
	if qc, ok := s.quotes.(QuoteCache); ok {
		return qc.Clear(ctx)
	}
	return nil
}
