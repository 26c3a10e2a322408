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

package portfolio_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/pv-holdings/portfolio"
)

type stubQuotes struct {
	quotes map[string]portfolio.Quote
	err    error
	codes  []string
}

func (s *stubQuotes) Quotes(_ context.Context, codes []string) (map[string]portfolio.Quote, error) {
	s.codes = codes
	if s.err != nil {
		return nil, s.err
	}
	return s.quotes, nil
}

func flow(date time.Time, amount int64) portfolio.CashFlowEntry {
	return portfolio.CashFlowEntry{Date: date, Amount: decimal.NewFromInt(amount)}
}

var _ = Describe("Valuation", func() {
	var (
		today    time.Time
		ledger   map[string][]portfolio.Transaction
		quotes   map[string]portfolio.Quote
		flows    []portfolio.CashFlowEntry
		metadata portfolio.MetadataMap
	)

	BeforeEach(func() {
		today = day(2023, time.March, 1)
		ledger = map[string][]portfolio.Transaction{
			"600000": {
				trade("600000", day(2023, time.January, 3), portfolio.BuyTransaction, 10, 100, 5),
			},
			"000001": {
				trade("000001", day(2023, time.February, 1), portfolio.SellTransaction, 6, 200, 0),
				trade("000001", day(2023, time.January, 5), portfolio.BuyTransaction, 5, 200, 0),
			},
		}
		quotes = map[string]portfolio.Quote{
			"600000": {Name: "PUFA", PriceNow: 12, PriceChange: 0.5, ChangeRatio: 0.0435, PrevClose: 11.5},
			"000001": {Name: "PAYH", PriceNow: 6.5, PriceChange: 0.1, ChangeRatio: 0.0156, PrevClose: 6.4},
		}
		flows = []portfolio.CashFlowEntry{
			flow(day(2022, time.March, 1), 10000),
			flow(day(2022, time.September, 1), -1000),
		}
		metadata = portfolio.MetadataMap{
			"600000": {Code: "600000", Category: portfolio.CategoryShanghaiMain},
		}
	})

	Context("per instrument", func() {
		var valuation *portfolio.Valuation

		BeforeEach(func() {
			valuation = portfolio.Value(ledger, quotes, metadata, 100, flows, today)
		})

		It("sorts instruments by code", func() {
			Expect(valuation.Instruments).To(HaveLen(2))
			Expect(valuation.Instruments[0].Code).To(Equal("000001"))
			Expect(valuation.Instruments[1].Code).To(Equal("600000"))
		})

		It("values an open position", func() {
			iv := valuation.Instruments[1]
			Expect(iv.Name).To(Equal("PUFA"))
			Expect(iv.Category).To(Equal(portfolio.CategoryShanghaiMain))
			Expect(iv.MarketValue).To(BeNumerically("~", 1200, 1e-9))
			Expect(iv.CostBasis).To(BeNumerically("~", 10.05, 1e-9))
			Expect(iv.FloatingPnL).To(BeNumerically("~", 195, 1e-9))
			Expect(iv.FloatingPnLRatio).To(BeNumerically("~", 195.0/1005.0, 1e-9))
			Expect(iv.CumulativePnL).To(BeNumerically("~", 195, 1e-9))
			Expect(iv.TodayPnL).To(BeNumerically("~", 50, 1e-9))
			Expect(iv.HoldingDays).To(Equal(57))
		})

		It("values a closed position by its realised gain", func() {
			iv := valuation.Instruments[0]
			Expect(iv.Category).To(Equal(portfolio.CategoryOther))
			Expect(iv.HeldQuantity).To(BeNumerically("==", 0))
			Expect(iv.MarketValue).To(BeNumerically("==", 0))
			Expect(iv.FloatingPnLRatio).To(BeNumerically("==", 0))
			Expect(iv.CumulativePnL).To(BeNumerically("~", 200, 1e-9))
			Expect(iv.TodayPnL).To(BeNumerically("==", 0))
		})

		It("lists transactions newest first", func() {
			trxs := valuation.Instruments[0].Transactions
			Expect(trxs).To(HaveLen(2))
			Expect(trxs[0].Kind).To(Equal(portfolio.SellTransaction))
			Expect(trxs[1].Kind).To(Equal(portfolio.BuyTransaction))
		})

		It("does not reorder the caller's ledger", func() {
			Expect(ledger["000001"][0].Kind).To(Equal(portfolio.SellTransaction))
		})
	})

	Context("overall", func() {
		var overall portfolio.Overall

		BeforeEach(func() {
			overall = portfolio.Value(ledger, quotes, metadata, 100, flows, today).Overall
		})

		It("sums the instruments", func() {
			Expect(overall.FloatingPnL).To(BeNumerically("~", 195, 1e-9))
			Expect(overall.MarketValue).To(BeNumerically("~", 1200, 1e-9))
			Expect(overall.TodayPnL).To(BeNumerically("~", 50, 1e-9))
			Expect(overall.TotalFees).To(BeNumerically("~", 5, 1e-9))
		})

		It("adds other income to the cumulative P&L once", func() {
			Expect(overall.OtherIncome).To(BeNumerically("~", 100, 1e-9))
			Expect(overall.CumulativePnL).To(BeNumerically("~", 495, 1e-9))
		})

		It("derives principal, assets and cash", func() {
			Expect(overall.Principal).To(BeNumerically("~", 9000, 1e-9))
			Expect(overall.Assets).To(BeNumerically("~", 9495, 1e-9))
			Expect(overall.Cash).To(BeNumerically("~", 8295, 1e-9))
		})

		It("computes a positive xirr", func() {
			Expect(overall.XIRR).To(BeNumerically(">", 0))
		})
	})

	It("falls back to a zero quote when the oracle omits an instrument", func() {
		delete(quotes, "600000")
		valuation := portfolio.Value(ledger, quotes, nil, 0, nil, today)

		iv := valuation.Instruments[1]
		Expect(iv.Name).To(Equal("unknown"))
		Expect(iv.PriceNow).To(BeNumerically("==", 0))
		Expect(iv.MarketValue).To(BeNumerically("==", 0))
		Expect(iv.CumulativePnL).To(BeNumerically("~", -1005, 1e-9))
		Expect(valuation.Overall.XIRR).To(BeNumerically("==", 0))
	})

	It("treats a position opened today as today's floating P&L", func() {
		iv := portfolio.ValueInstrument(
			portfolio.Accumulate([]portfolio.Transaction{
				trade("600000", today, portfolio.BuyTransaction, 11, 100, 0),
			}, today),
			portfolio.Quote{Code: "600000", PriceNow: 12, PrevClose: 11.5},
		)
		Expect(iv.TodayPnL).To(BeNumerically("~", iv.FloatingPnL, 1e-9))
		Expect(iv.TodayPnL).To(BeNumerically("~", 100, 1e-9))
	})

	It("ignores the daily move of a stale quote", func() {
		iv := portfolio.ValueInstrument(portfolio.Snapshot{HeldQuantity: 100}, portfolio.Quote{PriceNow: 0.0005, PriceChange: 3, ChangeRatio: 0.5})
		Expect(iv.PriceChange).To(BeNumerically("==", 0))
		Expect(iv.ChangeRatio).To(BeNumerically("==", 0))
	})

	Describe("Valuer", func() {
		It("values at zero when the quote fetch fails", func() {
			provider := &stubQuotes{err: errors.New("network down")}
			valuer := portfolio.NewValuer(provider, metadata)
			valuer.Now = func() time.Time { return today }

			valuation := valuer.Compute(context.Background(), ledger, 0, flows)
			Expect(provider.codes).To(Equal([]string{"000001", "600000"}))
			Expect(valuation.Instruments).To(HaveLen(2))
			Expect(valuation.Overall.MarketValue).To(BeNumerically("==", 0))
		})

		It("skips the quote fetch for an empty ledger", func() {
			provider := &stubQuotes{}
			valuation := portfolio.NewValuer(provider, nil).Compute(context.Background(), nil, 0, nil)
			Expect(provider.codes).To(BeNil())
			Expect(valuation.Instruments).To(BeEmpty())
		})
	})

	Describe("XIRR", func() {
		It("is 0 without cash flows", func() {
			Expect(portfolio.XIRR(nil, today, 1000)).To(BeNumerically("==", 0))
		})

		It("is 0 when every cash flow is zero", func() {
			Expect(portfolio.XIRR([]portfolio.CashFlowEntry{flow(day(2022, time.March, 1), 0)}, today, 1000)).To(BeNumerically("==", 0))
		})

		It("is 0 when the flows do not change sign", func() {
			Expect(portfolio.XIRR([]portfolio.CashFlowEntry{flow(day(2022, time.March, 1), -500)}, today, 0)).To(BeNumerically("==", 0))
		})

		It("annualises a one year gain", func() {
			rate := portfolio.XIRR([]portfolio.CashFlowEntry{flow(day(2022, time.March, 1), 10000)}, today, 11000)
			Expect(rate).To(BeNumerically("~", 0.1, 1e-6))
		})

		It("handles a loss", func() {
			rate := portfolio.XIRR([]portfolio.CashFlowEntry{flow(day(2022, time.March, 1), 10000)}, today, 8000)
			Expect(rate).To(BeNumerically("~", -0.2, 1e-6))
		})
	})
})
