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
	"math"
	"sort"
	"time"

	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"
)

const (
	// MinPrice is the smallest price treated as a live quote
	MinPrice = 0.001

	// MinValue is the smallest market value treated as an existing position
	MinValue = 0.1

	unknownName = "unknown"
)

// Quote is the live price of an instrument
type Quote struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	PriceNow    float64 `json:"priceNow"`
	PriceChange float64 `json:"priceChange"`
	ChangeRatio float64 `json:"changeRatio"`
	PrevClose   float64 `json:"prevClose"`
}

// QuoteProvider fetches live quotes. Codes that cannot be priced are omitted
// from the result; a partial result is not an error.
type QuoteProvider interface {
	Quotes(ctx context.Context, codes []string) (map[string]Quote, error)
}

// InstrumentValuation is the valuation of one instrument in a portfolio
type InstrumentValuation struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	IsNewListing bool     `json:"isNewListing"`

	PriceNow    float64 `json:"priceNow"`
	PriceChange float64 `json:"priceChange"`
	ChangeRatio float64 `json:"changeRatio"`
	PrevClose   float64 `json:"prevClose"`

	HeldQuantity        float64 `json:"heldQuantity"`
	CostBasis           float64 `json:"costBasis"`
	DilutedCostPerShare float64 `json:"dilutedCostPerShare"`
	DilutedCost         float64 `json:"dilutedCost"`
	MarketValue         float64 `json:"marketValue"`
	YesterdayValue      float64 `json:"yesterdayValue"`
	FloatingPnL         float64 `json:"floatingPnL"`
	FloatingPnLRatio    float64 `json:"floatingPnLRatio"`
	CumulativePnL       float64 `json:"cumulativePnL"`
	TodayPnL            float64 `json:"todayPnL"`
	TotalFees           float64 `json:"totalFees"`
	HoldingDays         int     `json:"holdingDays"`

	// Transactions are ordered newest first
	Transactions []Transaction `json:"transactions"`
}

// Overall aggregates every instrument in the portfolio
type Overall struct {
	FloatingPnL   float64 `json:"floatingPnL"`
	CumulativePnL float64 `json:"cumulativePnL"`
	MarketValue   float64 `json:"marketValue"`
	TodayPnL      float64 `json:"todayPnL"`
	TotalFees     float64 `json:"totalFees"`
	OtherIncome   float64 `json:"otherIncome"`
	Principal     float64 `json:"principal"`
	Cash          float64 `json:"cash"`
	Assets        float64 `json:"assets"`
	XIRR          float64 `json:"xirr"`

	CashFlows []CashFlowEntry `json:"-"`
}

// Valuation is the result of valuing a portfolio
type Valuation struct {
	AsOf        time.Time              `json:"asOf"`
	Instruments []*InstrumentValuation `json:"instruments"`
	Overall     Overall                `json:"overall"`
}

// ValueInstrument combines a position snapshot with a quote
func ValueInstrument(snap Snapshot, quote Quote) InstrumentValuation {
	iv := InstrumentValuation{
		Code:                quote.Code,
		Name:                quote.Name,
		PriceNow:            quote.PriceNow,
		PriceChange:         quote.PriceChange,
		ChangeRatio:         quote.ChangeRatio,
		PrevClose:           quote.PrevClose,
		HeldQuantity:        snap.HeldQuantity,
		CostBasis:           snap.CostBasis,
		DilutedCost:         snap.DilutedCost,
		DilutedCostPerShare: snap.DilutedCostPerShare(),
		TotalFees:           snap.TotalFees,
		HoldingDays:         snap.HoldingDays,
	}

	// stale or delisted quotes carry no meaningful daily move
	if quote.PriceNow < MinPrice {
		iv.PriceChange = 0
		iv.ChangeRatio = 0
	}

	iv.MarketValue = quote.PriceNow * snap.HeldQuantity
	iv.FloatingPnL = (quote.PriceNow - snap.CostBasis) * snap.HeldQuantity

	invested := snap.CostBasis * snap.HeldQuantity
	if math.Abs(invested) >= MinPrice {
		iv.FloatingPnLRatio = iv.FloatingPnL / invested
	}

	iv.CumulativePnL = quote.PriceNow*snap.HeldQuantity - snap.DilutedCost

	iv.YesterdayValue = quote.PrevClose * snap.YesterdayHeldQuantity
	if iv.YesterdayValue < MinValue {
		// position opened today
		iv.TodayPnL = iv.FloatingPnL
	} else {
		iv.TodayPnL = iv.MarketValue - iv.YesterdayValue - snap.TodayNetFlow
	}

	return iv
}

// Value computes the valuation of every instrument in trxsByCode and the
// portfolio totals. Missing quotes fall back to a zero priced quote named
// "unknown". Instruments are returned sorted by code.
func Value(trxsByCode map[string][]Transaction, quotes map[string]Quote, meta MetadataLookup, otherIncome float64, cashFlows []CashFlowEntry, today time.Time) *Valuation {
	codes := make([]string, 0, len(trxsByCode))
	for code := range trxsByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	valuation := &Valuation{
		AsOf:        today,
		Instruments: make([]*InstrumentValuation, 0, len(codes)),
	}

	n := len(codes)
	floating := make([]float64, 0, n)
	cumulative := make([]float64, 0, n)
	marketValue := make([]float64, 0, n)
	todayPnL := make([]float64, 0, n)
	fees := make([]float64, 0, n)

	for _, code := range codes {
		trxs := make([]Transaction, len(trxsByCode[code]))
		copy(trxs, trxsByCode[code])
		SortTransactions(trxs)

		quote, ok := quotes[code]
		if !ok {
			log.Warn().Str("Code", code).Msg("no quote available; valuing at zero")
			quote = Quote{Name: unknownName}
		}
		quote.Code = code

		snap := Accumulate(trxs, today)
		iv := ValueInstrument(snap, quote)

		if meta != nil {
			if m, found := meta.Metadata(code); found {
				iv.Category = m.Category
				iv.IsNewListing = m.IsNewListing
			}
		}
		if iv.Category == "" {
			iv.Category = CategoryOther
		}

		// newest first for display
		for i, j := 0, len(trxs)-1; i < j; i, j = i+1, j-1 {
			trxs[i], trxs[j] = trxs[j], trxs[i]
		}
		iv.Transactions = trxs

		floating = append(floating, iv.FloatingPnL)
		cumulative = append(cumulative, iv.CumulativePnL)
		marketValue = append(marketValue, iv.MarketValue)
		todayPnL = append(todayPnL, iv.TodayPnL)
		fees = append(fees, iv.TotalFees)

		valuation.Instruments = append(valuation.Instruments, &iv)
	}

	principal, _ := Principal(cashFlows).Float64()

	overall := Overall{
		FloatingPnL:   floats.Sum(floating),
		CumulativePnL: floats.Sum(cumulative) + otherIncome,
		MarketValue:   floats.Sum(marketValue),
		TodayPnL:      floats.Sum(todayPnL),
		TotalFees:     floats.Sum(fees),
		OtherIncome:   otherIncome,
		Principal:     principal,
		CashFlows:     cashFlows,
	}

	// other income is already part of the cumulative figure
	overall.Assets = overall.Principal + overall.CumulativePnL
	overall.Cash = overall.Assets - overall.MarketValue
	overall.XIRR = XIRR(cashFlows, today, overall.Assets)

	valuation.Overall = overall
	return valuation
}

// Valuer values portfolios against a live quote source
type Valuer struct {
	quotes QuoteProvider
	meta   MetadataLookup

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// NewValuer creates a valuer. meta may be nil.
func NewValuer(quotes QuoteProvider, meta MetadataLookup) *Valuer {
	return &Valuer{
		quotes: quotes,
		meta:   meta,
		Now:    time.Now,
	}
}

// Compute fetches quotes for every instrument in the ledger and values the
// portfolio. A failed quote fetch degrades to valuing every instrument at zero.
func (v *Valuer) Compute(ctx context.Context, trxsByCode map[string][]Transaction, otherIncome float64, cashFlows []CashFlowEntry) *Valuation {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "ComputeValuation")
	defer span.End()

	codes := make([]string, 0, len(trxsByCode))
	for code := range trxsByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	quotes := make(map[string]Quote)
	if len(codes) > 0 {
		fetched, err := v.quotes.Quotes(ctx, codes)
		if err != nil {
			log.Warn().Stack().Err(err).Int("NumCodes", len(codes)).Msg("quote fetch failed; valuing without quotes")
		} else {
			quotes = fetched
		}
	}

	valuation := Value(trxsByCode, quotes, v.meta, otherIncome, cashFlows, v.Now())

	span.SetAttributes(
		attribute.Int("NumInstruments", len(valuation.Instruments)),
		attribute.Int("NumQuotes", len(quotes)),
	)

	return valuation
}
