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

package tradecron_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/penny-vault/pv-holdings/pgxmockhelper"
	"github.com/penny-vault/pv-holdings/tradecron"
)

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, common.GetTimezone())
}

func expectHolidays(dbPool pgxmock.PgxConnIface) {
	pgxmockhelper.ExpectCSVQuery(dbPool, "SELECT event_date FROM market_holidays", "testdata/market_holidays.csv", map[string]string{
		"event_date": "date",
	})
	dbPool.ExpectCommit()
}

var _ = Describe("Calendar", func() {
	var (
		dbPool   pgxmock.PgxConnIface
		calendar *tradecron.Calendar
	)

	BeforeEach(func() {
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)

		calendar, err = tradecron.NewCalendar(common.GetTimezone(), tradecron.ShanghaiSessions)
		Expect(err).To(BeNil())

		expectHolidays(dbPool)
		Expect(calendar.LoadHolidays(context.Background())).To(Succeed())
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())
	})

	It("requires at least one session", func() {
		_, err := tradecron.NewCalendar(common.GetTimezone(), nil)
		Expect(err).To(MatchError(tradecron.ErrNoSessions))
	})

	It("returns the error when holidays cannot be loaded", func() {
		dbPool.ExpectBegin()
		dbPool.ExpectExec("SET ROLE").WillReturnResult(pgconn.CommandTag("SET ROLE"))
		dbPool.ExpectQuery("SELECT event_date FROM market_holidays").WillReturnError(errors.New("relation does not exist"))
		dbPool.ExpectRollback()

		Expect(calendar.LoadHolidays(context.Background())).NotTo(Succeed())
		Expect(dbPool.ExpectationsWereMet()).To(Succeed())

		// previously loaded holidays survive a failed reload
		Expect(calendar.IsMarketHoliday(at(2023, time.October, 3, 0, 0))).To(BeTrue())
	})

	DescribeTable("IsMarketDay",
		func(t time.Time, expected bool) {
			Expect(calendar.IsMarketDay(t)).To(Equal(expected))
		},
		Entry("weekday", at(2023, time.July, 17, 0, 0), true),
		Entry("saturday", at(2023, time.July, 15, 10, 0), false),
		Entry("sunday", at(2023, time.July, 16, 10, 0), false),
		Entry("labour day", at(2023, time.May, 2, 10, 0), false),
		Entry("national day", at(2023, time.October, 6, 10, 0), false),
		Entry("UTC instant on a Shanghai market day", time.Date(2023, time.July, 16, 20, 0, 0, 0, time.UTC), true),
	)

	DescribeTable("IsTradingTime",
		func(t time.Time, expected bool) {
			Expect(calendar.IsTradingTime(t)).To(Equal(expected))
		},
		Entry("before the open", at(2023, time.July, 17, 9, 29), false),
		Entry("at the open", at(2023, time.July, 17, 9, 30), true),
		Entry("end of the morning", at(2023, time.July, 17, 11, 29), true),
		Entry("lunch break", at(2023, time.July, 17, 11, 30), false),
		Entry("afternoon open", at(2023, time.July, 17, 13, 0), true),
		Entry("last minute", at(2023, time.July, 17, 14, 59), true),
		Entry("at the close", at(2023, time.July, 17, 15, 0), false),
		Entry("saturday morning", at(2023, time.July, 15, 10, 0), false),
		Entry("holiday morning", at(2023, time.October, 3, 10, 0), false),
	)

	DescribeTable("SessionElapsedBetween",
		func(t0, t1 time.Time, expected bool) {
			Expect(calendar.SessionElapsedBetween(t0, t1)).To(Equal(expected))
		},
		Entry("inside the morning session", at(2023, time.July, 17, 11, 0), at(2023, time.July, 17, 11, 10), true),
		Entry("across the lunch break", at(2023, time.July, 17, 11, 35), at(2023, time.July, 17, 12, 55), false),
		Entry("overnight before the open", at(2023, time.July, 17, 15, 5), at(2023, time.July, 18, 9, 20), false),
		Entry("overnight past the open", at(2023, time.July, 17, 15, 5), at(2023, time.July, 18, 9, 31), true),
		Entry("over a weekend", at(2023, time.July, 21, 15, 30), at(2023, time.July, 24, 9, 0), false),
		Entry("over the national day holiday", at(2023, time.September, 28, 15, 1), at(2023, time.October, 8, 23, 0), false),
		Entry("arguments reversed", at(2023, time.July, 18, 9, 31), at(2023, time.July, 17, 15, 5), true),
		Entry("same instant inside a session", at(2023, time.July, 17, 10, 0), at(2023, time.July, 17, 10, 0), false),
		Entry("one minute inside a session", at(2023, time.July, 17, 10, 0), at(2023, time.July, 17, 10, 1), true),
	)

	It("finds neighbouring market days", func() {
		Expect(calendar.NextMarketDay(at(2023, time.September, 29, 12, 0))).To(Equal(at(2023, time.October, 9, 0, 0)))
		Expect(calendar.PreviousMarketDay(at(2023, time.October, 9, 12, 0))).To(Equal(at(2023, time.September, 28, 0, 0)))
	})

	It("finds the trading days at the edges of weeks and months", func() {
		Expect(calendar.LastTradingDayOfMonth(at(2023, time.September, 5, 0, 0))).To(Equal(at(2023, time.September, 28, 0, 0)))
		Expect(calendar.FirstTradingDayOfMonth(at(2023, time.May, 20, 0, 0))).To(Equal(at(2023, time.May, 4, 0, 0)))
		Expect(calendar.FirstTradingDayOfWeek(at(2023, time.July, 20, 0, 0))).To(Equal(at(2023, time.July, 17, 0, 0)))
		Expect(calendar.LastTradingDayOfWeek(at(2023, time.September, 26, 0, 0))).To(Equal(at(2023, time.September, 28, 0, 0)))
	})
})

var _ = Describe("Tradecron", func() {
	var (
		dbPool   pgxmock.PgxConnIface
		calendar *tradecron.Calendar
	)

	BeforeEach(func() {
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)

		calendar, err = tradecron.NewCalendar(common.GetTimezone(), tradecron.ShanghaiSessions)
		Expect(err).To(BeNil())

		expectHolidays(dbPool)
		Expect(calendar.LoadHolidays(context.Background())).To(Succeed())
	})

	DescribeTable("when parsing tradecron spec",
		func(spec string, expectedTimeSpec string, expectedTimeFlag string, expectedDateFlag string, expectedError error) {
			cron, err := tradecron.New(spec, calendar)
			if expectedError == nil {
				Expect(err).To(BeNil())
				Expect(cron.ScheduleString).To(Equal(spec))
				Expect(cron.TimeSpec).To(Equal(expectedTimeSpec))
				Expect(cron.TimeFlag).To(Equal(expectedTimeFlag))
				Expect(cron.DateFlag).To(Equal(expectedDateFlag))
			} else {
				Expect(err).To(MatchError(expectedError))
			}
		},
		Entry("every 5 minutes", "*/5 * * * *", "*/5 * * * *", "", "", nil),
		Entry("every 5 minutes brief form", "*/5", "*/5 * * * *", "", "", nil),
		Entry("every 5 minutes 3 of 5 fields specified", "*/5 * *", "*/5 * * * *", "", "", nil),
		Entry("trailing whitespace", "*/5 ", "*/5 * * * *", "", "", nil),
		Entry("leading whitespace", " */5", "*/5 * * * *", "", "", nil),
		Entry("at the open", "@open", "30 9 * * *", "@open", "", nil),
		Entry("5 minutes after the open brief form", "@open 5", "35 9 * * *", "@open", "", nil),
		Entry("5 minutes before the open", "@open -5 0 * * *", "25 9 * * *", "@open", "", nil),
		Entry("90 minutes after the open", "@open 90 0 * * *", "0 11 * * *", "@open", "", nil),
		Entry("30 minutes after the close", "@close 30", "30 15 * * *", "@close", "", nil),
		Entry("1 hour before the close", "@close 0 -1 * * *", "0 14 * * *", "@close", "", nil),
		Entry("9 hours after the close", "@close 0 9 * * *", "", "", "", tradecron.ErrFieldOutOfBounds),
		Entry("10 hours before the open", "@open 0 -10 * * *", "", "", "", tradecron.ErrFieldOutOfBounds),
		Entry("after the close at month end", "@close 30 0 @monthend", "30 15 * * *", "@close", "@monthend", nil),
		Entry("both @open @close specified", "@open @close", "", "", "", tradecron.ErrConflictingModifiers),
		Entry("both @weekend @monthend specified", "@weekend @monthend", "", "", "", tradecron.ErrConflictingModifiers),
		Entry("unknown modifier", "@modifier", "", "", "", tradecron.ErrUnknownModifier),
		Entry("empty spec", "  ", "", "", "", tradecron.ErrMalformedTimeSpec),
	)

	It("rejects malformed cron fields", func() {
		_, err := tradecron.New("$/5 * * * *", calendar)
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("when evaluating next trade time",
		func(spec string, given time.Time, expected time.Time) {
			cron, err := tradecron.New(spec, calendar)
			Expect(err).To(BeNil())
			Expect(cron.Next(given)).To(Equal(expected))
		},
		Entry("every 5 minutes starting on saturday", "*/5 * * * *", at(2023, time.July, 15, 0, 0), at(2023, time.July, 17, 9, 30)),
		Entry("every 5 minutes starting at the open", "*/5 * * * *", at(2023, time.July, 17, 9, 30), at(2023, time.July, 17, 9, 35)),
		Entry("every 5 minutes over lunch", "*/5 * * * *", at(2023, time.July, 17, 11, 30), at(2023, time.July, 17, 13, 0)),
		Entry("every 5 minutes starting at the close", "*/5 * * * *", at(2023, time.July, 17, 15, 0), at(2023, time.July, 18, 9, 30)),
		Entry("every 5 minutes over national day", "*/5 * * * *", at(2023, time.September, 28, 15, 0), at(2023, time.October, 9, 9, 30)),
		Entry("after the close", "@close 30", at(2023, time.July, 17, 16, 0), at(2023, time.July, 18, 15, 30)),
		Entry("at the open after labour day", "@open", at(2023, time.May, 1, 0, 0), at(2023, time.May, 4, 9, 30)),
		Entry("after the close at month end", "@close 30 0 @monthend", at(2023, time.September, 1, 0, 0), at(2023, time.September, 28, 15, 30)),
		Entry("at the open on the first trading day of the week", "@open @weekbegin", at(2023, time.October, 1, 0, 0), at(2023, time.October, 9, 9, 30)),
		Entry("at the open on the last trading day of the week", "@open @weekend", at(2023, time.July, 17, 0, 0), at(2023, time.July, 21, 9, 30)),
	)

	DescribeTable("when evaluating IsTradeDay",
		func(spec string, given time.Time, expected bool) {
			cron, err := tradecron.New(spec, calendar)
			Expect(err).To(BeNil())
			Expect(cron.IsTradeDay(given)).To(Equal(expected))
		},
		Entry("every 5 minutes on saturday", "*/5 * * * *", at(2023, time.July, 15, 0, 0), false),
		Entry("every 5 minutes on monday", "*/5 * * * *", at(2023, time.July, 17, 15, 30), true),
		Entry("every 5 minutes on a holiday", "*/5 * * * *", at(2023, time.October, 4, 10, 0), false),
		Entry("month end, date given not month end", "@monthend", at(2023, time.September, 27, 0, 0), false),
		Entry("month end, date given is month end", "@monthend", at(2023, time.September, 28, 0, 0), true),
		Entry("week end, date given is week end", "@weekend", at(2023, time.July, 21, 0, 0), true),
	)
})
