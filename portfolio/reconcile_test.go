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

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-holdings/portfolio"
)

var errLookup = errors.New("lookup failed")

type stubActions struct {
	actions map[int][]portfolio.CorporateAction
	errs    map[int]error
	years   []int
}

func (s *stubActions) CorporateActions(_ context.Context, _ string, year int) ([]portfolio.CorporateAction, error) {
	s.years = append(s.years, year)
	if err, ok := s.errs[year]; ok {
		return nil, err
	}
	return s.actions[year], nil
}

func newReconciler(provider portfolio.CorporateActionProvider, policy portfolio.DedupPolicy) *portfolio.Reconciler {
	rc := portfolio.NewReconciler(provider, policy)
	rc.Now = func() time.Time { return time.Date(2023, time.March, 1, 10, 0, 0, 0, tz) }
	return rc
}

var _ = Describe("Reconciler", func() {
	var (
		provider *stubActions
		buy      portfolio.Transaction
	)

	BeforeEach(func() {
		provider = &stubActions{
			actions: map[int][]portfolio.CorporateAction{},
			errs:    map[int]error{},
		}
		buy = trade("600000", day(2022, time.January, 5), portfolio.BuyTransaction, 10, 100, 0)
	})

	It("does nothing for an empty ledger", func() {
		result := newReconciler(provider, nil).Reconcile(context.Background(), "600000", nil)
		Expect(result.Changed()).To(BeFalse())
		Expect(provider.years).To(BeEmpty())
	})

	It("queries every year from the first transaction through today", func() {
		newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy})
		Expect(provider.years).To(Equal([]int{2022, 2023}))
	})

	Context("with a dividend while the position is open", func() {
		var result *portfolio.ReconcileResult

		BeforeEach(func() {
			provider.actions[2022] = []portfolio.CorporateAction{
				{ExDate: day(2022, time.June, 10), CashPerShare: 0.5, StockRatio: 0.2},
			}
			result = newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy})
		})

		It("inserts a dividend carrying the held quantity", func() {
			Expect(result.Inserted).To(HaveLen(1))
			Expect(result.Inserted[0].Kind).To(Equal(portfolio.DividendTransaction))
			Expect(result.Inserted[0].Quantity).To(BeNumerically("~", 100, 1e-9))
			Expect(result.Inserted[0].Date).To(Equal(day(2022, time.June, 10)))
		})

		It("returns the full ledger in date order", func() {
			Expect(result.Transactions).To(HaveLen(2))
			Expect(result.Transactions[0].ID).To(Equal(buy.ID))
			Expect(result.Transactions[1].Kind).To(Equal(portfolio.DividendTransaction))
		})

		It("reports the code as updated", func() {
			code, ok := result.UpdatedCode()
			Expect(ok).To(BeTrue())
			Expect(code).To(Equal("600000"))
		})

		It("is idempotent", func() {
			again := newReconciler(provider, nil).Reconcile(context.Background(), "600000", result.Transactions)
			Expect(again.Inserted).To(BeEmpty())
			Expect(again.Updated).To(BeEmpty())
			Expect(again.Deleted).To(BeEmpty())
			Expect(again.Changed()).To(BeFalse())
			Expect(again.Transactions).To(HaveLen(2))
		})
	})

	It("does not modify its input", func() {
		provider.actions[2022] = []portfolio.CorporateAction{{ExDate: day(2022, time.June, 10), CashPerShare: 0.5}}
		sell := trade("600000", day(2022, time.February, 5), portfolio.SellTransaction, 10, 10, 0)
		input := []portfolio.Transaction{sell, buy}

		newReconciler(provider, nil).Reconcile(context.Background(), "600000", input)

		Expect(input).To(HaveLen(2))
		Expect(input[0].ID).To(Equal(sell.ID))
	})

	It("compounds earlier bonus issues into later held quantities", func() {
		provider.actions[2022] = []portfolio.CorporateAction{
			{ExDate: day(2022, time.June, 10), StockRatio: 0.5},
			{ExDate: day(2022, time.September, 1), CashPerShare: 0.1},
		}
		result := newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy})

		Expect(result.Inserted).To(HaveLen(2))
		Expect(result.Inserted[0].Quantity).To(BeNumerically("~", 100, 1e-9))
		Expect(result.Inserted[1].Quantity).To(BeNumerically("~", 150, 1e-9))
	})

	Context("when the position is closed before the ex-date", func() {
		var sell portfolio.Transaction

		BeforeEach(func() {
			sell = trade("600000", day(2022, time.March, 1), portfolio.SellTransaction, 12, 100, 0)
			provider.actions[2022] = []portfolio.CorporateAction{
				{ExDate: day(2022, time.June, 10), CashPerShare: 0.5},
			}
		})

		It("does not insert the dividend", func() {
			result := newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, sell})
			Expect(result.Inserted).To(BeEmpty())
			Expect(result.Transactions).To(HaveLen(2))
			_, ok := result.UpdatedCode()
			Expect(ok).To(BeFalse())
		})

		It("deletes a previously recorded dividend", func() {
			stale := dividend("600000", day(2022, time.June, 10), 0.5, 0, 0, 100)
			result := newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, sell, stale})

			Expect(result.Deleted).To(Equal([]uuid.UUID{stale.ID}))
			Expect(result.Inserted).To(BeEmpty())
			Expect(result.Transactions).To(HaveLen(2))
			Expect(result.Changed()).To(BeTrue())
		})
	})

	It("corrects the quantity of a recorded dividend", func() {
		recorded := dividend("600000", day(2022, time.June, 10), 0.5, 0, 0, 50)
		provider.actions[2022] = []portfolio.CorporateAction{{ExDate: day(2022, time.June, 10), CashPerShare: 0.5}}

		result := newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, recorded})

		Expect(result.Inserted).To(BeEmpty())
		Expect(result.Updated).To(HaveLen(1))
		Expect(result.Updated[0].ID).To(Equal(recorded.ID))
		Expect(result.Updated[0].Quantity).To(BeNumerically("~", 100, 1e-9))
		_, ok := result.UpdatedCode()
		Expect(ok).To(BeFalse())
	})

	It("skips years whose lookup fails", func() {
		provider.errs[2022] = errLookup
		provider.actions[2023] = []portfolio.CorporateAction{{ExDate: day(2023, time.January, 20), CashPerShare: 0.3}}

		result := newReconciler(provider, nil).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy})

		Expect(provider.years).To(Equal([]int{2022, 2023}))
		Expect(result.Inserted).To(HaveLen(1))
		Expect(result.Inserted[0].Date).To(Equal(day(2023, time.January, 20)))
	})

	It("stops fetching once the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := newReconciler(provider, nil).Reconcile(ctx, "600000", []portfolio.Transaction{buy})
		Expect(provider.years).To(BeEmpty())
		Expect(result.Transactions).To(HaveLen(1))
	})

	Context("dedup policies", func() {
		var recorded portfolio.Transaction

		BeforeEach(func() {
			recorded = dividend("600000", day(2022, time.June, 8), 0.5, 0, 0, 100)
			provider.actions[2022] = []portfolio.CorporateAction{{ExDate: day(2022, time.June, 10), CashPerShare: 0.5}}
			provider.actions[2023] = []portfolio.CorporateAction{{ExDate: day(2023, time.June, 1), CashPerShare: 0.2}}
		})

		It("exact-date policy inserts candidates on other dates", func() {
			result := newReconciler(provider, portfolio.ExactDatePolicy{}).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, recorded})
			Expect(result.Inserted).To(HaveLen(2))
		})

		It("window policy treats nearby dates as duplicates and rejects future ex-dates", func() {
			result := newReconciler(provider, portfolio.WindowPolicy{Days: 5, RejectFuture: true}).Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, recorded})
			Expect(result.Inserted).To(BeEmpty())
		})

		It("decides future ex-dates by the reconciler's location", func() {
			provider.actions[2023] = []portfolio.CorporateAction{{ExDate: day(2023, time.March, 2), CashPerShare: 0.2}}

			rc := portfolio.NewReconciler(provider, portfolio.WindowPolicy{Days: 5, RejectFuture: true})
			// 01:00 on March 2nd in the exchange zone
			rc.Now = func() time.Time { return time.Date(2023, time.March, 1, 17, 0, 0, 0, time.UTC) }
			Expect(rc.Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, recorded}).Inserted).To(BeEmpty())

			rc.Location = tz
			result := rc.Reconcile(context.Background(), "600000", []portfolio.Transaction{buy, recorded})
			Expect(result.Inserted).To(HaveLen(1))
			Expect(result.Inserted[0].Date).To(Equal(day(2023, time.March, 2)))
		})

		DescribeTable("PolicyFromName",
			func(name string, expected portfolio.DedupPolicy, fails bool) {
				policy, err := portfolio.PolicyFromName(name, 5)
				if fails {
					Expect(err).To(MatchError(portfolio.ErrUnknownPolicy))
					return
				}
				Expect(err).NotTo(HaveOccurred())
				Expect(policy).To(Equal(expected))
			},
			Entry("default", "", portfolio.ExactDatePolicy{}, false),
			Entry("exact", "exact", portfolio.ExactDatePolicy{}, false),
			Entry("window", "Window", portfolio.WindowPolicy{Days: 5, RejectFuture: true}, false),
			Entry("unknown", "fuzzy", nil, true),
		)
	})
})
