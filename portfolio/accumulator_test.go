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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-holdings/portfolio"
)

func trade(code string, date time.Time, kind portfolio.Kind, price, quantity, fee float64) portfolio.Transaction {
	t, err := portfolio.NewTransaction(code, date, kind, price, quantity, fee)
	Expect(err).NotTo(HaveOccurred())
	return t
}

func dividend(code string, date time.Time, cash, stock, rights, held float64) portfolio.Transaction {
	return portfolio.NewDividend(code, portfolio.CorporateAction{
		ExDate:       date,
		CashPerShare: cash,
		StockRatio:   stock,
		RightsRatio:  rights,
	}, held)
}

// replay applies the textbook ledger rules without any of the cost tracking
func replay(trxs []portfolio.Transaction) float64 {
	var held float64
	for _, t := range trxs {
		switch t.Kind {
		case portfolio.BuyTransaction:
			held += t.Quantity
		case portfolio.SellTransaction:
			held -= t.Quantity
		case portfolio.DividendTransaction:
			held *= 1 + t.StockRatio + t.RightsRatio
		}
	}
	return held
}

var _ = Describe("Accumulator", func() {
	var today time.Time

	BeforeEach(func() {
		today = day(2023, time.March, 1)
	})

	Context("with no transactions", func() {
		It("returns an empty snapshot", func() {
			snap := portfolio.Accumulate(nil, today)
			Expect(snap).To(Equal(portfolio.Snapshot{}))
		})
	})

	Context("with a round trip that fully liquidates", func() {
		var snap portfolio.Snapshot

		BeforeEach(func() {
			snap = portfolio.Accumulate([]portfolio.Transaction{
				trade("600000", day(2023, time.January, 3), portfolio.BuyTransaction, 10, 100, 1),
				trade("600000", day(2023, time.January, 13), portfolio.SellTransaction, 12, 100, 1),
			}, today)
		})

		It("holds nothing", func() {
			Expect(snap.HeldQuantity).To(BeNumerically("==", 0))
		})

		It("resets the cost basis", func() {
			Expect(snap.CostBasis).To(BeNumerically("==", 0))
			Expect(snap.CostNumerator).To(BeNumerically("==", 0))
			Expect(snap.CostDenominator).To(BeNumerically("==", 0))
		})

		It("keeps the diluted cost", func() {
			Expect(snap.DilutedCost).To(BeNumerically("~", (100*10+1)-(100*12-1), 1e-9))
		})

		It("accumulates fees", func() {
			Expect(snap.TotalFees).To(BeNumerically("~", 2, 1e-9))
		})

		It("counts holding days while the position was open", func() {
			Expect(snap.HoldingDays).To(Equal(10))
		})
	})

	Context("with a bonus share issue", func() {
		var snap portfolio.Snapshot

		BeforeEach(func() {
			snap = portfolio.Accumulate([]portfolio.Transaction{
				trade("600000", day(2022, time.January, 3), portfolio.BuyTransaction, 10, 100, 0),
				dividend("600000", day(2022, time.June, 10), 0.5, 0.1, 0, 100),
			}, today)
		})

		It("grows the held quantity by the issue ratio", func() {
			Expect(snap.HeldQuantity).To(BeNumerically("~", 110, 1e-9))
		})

		It("grows the cost denominator but not the numerator", func() {
			Expect(snap.CostDenominator).To(BeNumerically("~", 110, 1e-9))
			Expect(snap.CostNumerator).To(BeNumerically("~", 1000, 1e-9))
			Expect(snap.CostBasis).To(BeNumerically("~", 1000.0/110.0, 1e-9))
		})

		It("reduces the diluted cost by the cash received", func() {
			Expect(snap.DilutedCost).To(BeNumerically("~", 1000-100*0.5, 1e-9))
			Expect(snap.DilutedCostPerShare()).To(BeNumerically("~", 950.0/110.0, 1e-9))
		})
	})

	Context("when re-buying after a liquidation", func() {
		It("starts a fresh cost basis but keeps the diluted cost", func() {
			snap := portfolio.Accumulate([]portfolio.Transaction{
				trade("000001", day(2022, time.January, 3), portfolio.BuyTransaction, 10, 100, 0),
				trade("000001", day(2022, time.February, 3), portfolio.SellTransaction, 12, 100, 0),
				trade("000001", day(2022, time.March, 3), portfolio.BuyTransaction, 20, 50, 0),
			}, today)

			Expect(snap.HeldQuantity).To(BeNumerically("~", 50, 1e-9))
			Expect(snap.CostBasis).To(BeNumerically("~", 20, 1e-9))
			Expect(snap.DilutedCost).To(BeNumerically("~", 1000-1200+1000, 1e-9))
		})

		It("adds the reopened interval to the closed one", func() {
			snap := portfolio.Accumulate([]portfolio.Transaction{
				trade("000001", day(2022, time.January, 3), portfolio.BuyTransaction, 10, 100, 0),
				trade("000001", day(2022, time.February, 3), portfolio.SellTransaction, 12, 100, 0),
				trade("000001", day(2022, time.March, 3), portfolio.BuyTransaction, 20, 50, 0),
			}, today)

			Expect(snap.HoldingDays).To(Equal(31 + 363))
		})
	})

	Context("with less than one unit held", func() {
		It("never opens a holding interval", func() {
			snap := portfolio.Accumulate([]portfolio.Transaction{
				trade("510300", day(2022, time.January, 3), portfolio.BuyTransaction, 4, 0.5, 0),
			}, today)

			Expect(snap.HeldQuantity).To(BeNumerically("~", 0.5, 1e-9))
			Expect(snap.HoldingDays).To(Equal(0))
		})
	})

	Context("with transactions dated today", func() {
		var snap portfolio.Snapshot

		BeforeEach(func() {
			snap = portfolio.Accumulate([]portfolio.Transaction{
				trade("000001", day(2023, time.February, 1), portfolio.BuyTransaction, 10, 200, 0),
				trade("000001", today, portfolio.BuyTransaction, 11, 100, 2),
				trade("000001", today, portfolio.SellTransaction, 12, 50, 1),
			}, today)
		})

		It("reports yesterday's holdings before today's trades", func() {
			Expect(snap.YesterdayHeldQuantity).To(BeNumerically("~", 200, 1e-9))
			Expect(snap.HeldQuantity).To(BeNumerically("~", 250, 1e-9))
		})

		It("nets today's cash flows including fees", func() {
			Expect(snap.TodayNetFlow).To(BeNumerically("~", (11*100+2)-(12*50+1), 1e-9))
		})

		It("counts an open position up to today", func() {
			Expect(snap.HoldingDays).To(Equal(28))
		})
	})

	DescribeTable("held quantity matches a manual ledger replay",
		func(trxs []portfolio.Transaction) {
			snap := portfolio.Accumulate(trxs, day(2024, time.January, 1))
			Expect(snap.HeldQuantity).To(BeNumerically("~", replay(trxs), 1e-9))
		},
		Entry("buys only", []portfolio.Transaction{
			trade("A", day(2022, time.January, 3), portfolio.BuyTransaction, 1, 100, 0),
			trade("A", day(2022, time.January, 4), portfolio.BuyTransaction, 2, 300, 0),
		}),
		Entry("partial sells", []portfolio.Transaction{
			trade("A", day(2022, time.January, 3), portfolio.BuyTransaction, 1, 1000, 5),
			trade("A", day(2022, time.February, 3), portfolio.SellTransaction, 2, 400, 5),
			trade("A", day(2022, time.March, 3), portfolio.SellTransaction, 3, 100, 5),
		}),
		Entry("compounding corporate actions", []portfolio.Transaction{
			trade("A", day(2022, time.January, 3), portfolio.BuyTransaction, 10, 100, 0),
			dividend("A", day(2022, time.May, 10), 0.2, 0.3, 0.1, 100),
			trade("A", day(2022, time.June, 3), portfolio.SellTransaction, 12, 40, 0),
			dividend("A", day(2022, time.July, 10), 0.1, 0, 0.5, 100),
		}),
		Entry("liquidate and rebuy", []portfolio.Transaction{
			trade("A", day(2022, time.January, 3), portfolio.BuyTransaction, 10, 100, 0),
			trade("A", day(2022, time.January, 5), portfolio.SellTransaction, 10, 100, 0),
			dividend("A", day(2022, time.January, 7), 0.5, 0.5, 0, 0),
			trade("A", day(2022, time.January, 9), portfolio.BuyTransaction, 10, 300, 0),
		}),
	)

	It("panics on an unknown transaction kind", func() {
		bad := trade("A", day(2022, time.January, 3), portfolio.BuyTransaction, 10, 100, 0)
		bad.Kind = portfolio.Kind("SPLIT")
		Expect(func() { portfolio.Accumulate([]portfolio.Transaction{bad}, today) }).To(Panic())
	})
})
