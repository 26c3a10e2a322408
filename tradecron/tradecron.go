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

package tradecron

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	AtOpen       = "@open"
	AtClose      = "@close"
	AtWeekBegin  = "@weekbegin"
	AtWeekEnd    = "@weekend"
	AtMonthBegin = "@monthbegin"
	AtMonthEnd   = "@monthend"
)

// maxIterations bounds the search for the next matching instant
const maxIterations = 100_000

type TradeCron struct {
	Schedule       cron.Schedule
	ScheduleString string
	TimeSpec       string
	TimeFlag       string
	DateFlag       string
	calendar       *Calendar
}

// New parses a market aware schedule. It supports schedules via the standard
// CRON format of: Minutes(Min) Hours(H) DayOfMonth(DoM) Month(M) DayOfWeek(DoW)
//
// Without a time modifier the schedule only fires inside a trading session.
//
// Additional market-aware modifiers are supported:
//
//	@open       - relative to the first session's open; replaces Minute and Hour field
//	@close      - relative to the last session's close; replaces Minute and Hour field
//	@weekbegin  - first trading day of the week
//	@weekend    - last trading day of the week
//	@monthbegin - first trading day of the month
//	@monthend   - last trading day of the month
//
// Examples:
//   - every 5 minutes while trading: */5 * * * *
//   - 30 minutes after the close on every market day: @close 30
//   - at the open on the last trading day of the month: @open @monthend
func New(cronSpec string, calendar *Calendar) (*TradeCron, error) {
	specParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	scheduleStr := strings.TrimSpace(cronSpec)
	if scheduleStr == "" {
		return nil, ErrMalformedTimeSpec
	}
	scheduleStr = expandBriefFormat(scheduleStr)

	// separate special tokens from timespec
	timeSpecTokens := make([]string, 0, 5)
	specialTokens := make([]string, 0, 2)
	for _, token := range strings.Fields(scheduleStr) {
		if token[0] == '@' {
			specialTokens = append(specialTokens, token)
		} else {
			timeSpecTokens = append(timeSpecTokens, token)
		}
	}

	var timeSpec, timeFlag, dateFlag string
	var err error
	for _, token := range specialTokens {
		switch token {
		case AtOpen, AtClose:
			if timeFlag != "" {
				return nil, ErrConflictingModifiers
			}
			anchor := calendar.Open()
			if token == AtClose {
				anchor = calendar.Close()
			}
			if timeSpec, err = parseTimeRelativeTo(timeSpecTokens, anchor/100, anchor%100); err != nil {
				return nil, err
			}
			timeFlag = token
		case AtWeekBegin, AtWeekEnd, AtMonthBegin, AtMonthEnd:
			if dateFlag != "" {
				return nil, ErrConflictingModifiers
			}
			dateFlag = token
		default:
			return nil, ErrUnknownModifier
		}
	}

	if timeSpec == "" {
		timeSpec = strings.Join(timeSpecTokens, " ")
	}

	schedule, err := specParser.Parse(timeSpec)
	if err != nil {
		log.Error().Err(err).Str("TimeSpec", timeSpec).Str("TradeCronSpec", cronSpec).Msg("robfig/cron could not parse timespec")
		return nil, err
	}

	return &TradeCron{
		Schedule:       schedule,
		ScheduleString: cronSpec,
		TimeSpec:       timeSpec,
		DateFlag:       dateFlag,
		TimeFlag:       timeFlag,
		calendar:       calendar,
	}, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (tc *TradeCron) matches(t time.Time) bool {
	cal := tc.calendar
	if !cal.IsMarketDay(t) {
		return false
	}

	local := t.In(cal.Location())
	switch tc.DateFlag {
	case AtWeekBegin:
		if !sameDate(local, cal.FirstTradingDayOfWeek(local)) {
			return false
		}
	case AtWeekEnd:
		if !sameDate(local, cal.LastTradingDayOfWeek(local)) {
			return false
		}
	case AtMonthBegin:
		if !sameDate(local, cal.FirstTradingDayOfMonth(local)) {
			return false
		}
	case AtMonthEnd:
		if !sameDate(local, cal.LastTradingDayOfMonth(local)) {
			return false
		}
	}

	if tc.TimeFlag == "" {
		return cal.IsTradingTime(local)
	}
	return true
}

// IsTradeDay returns true if the schedule fires at some point on forDate's date
func (tc *TradeCron) IsTradeDay(forDate time.Time) bool {
	tz := tc.calendar.Location()
	local := forDate.In(tz)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz).Add(-time.Nanosecond)
	next := tc.Next(start)
	return sameDate(next, local)
}

// Next returns the first instant after forDate at which the schedule fires
func (tc *TradeCron) Next(forDate time.Time) time.Time {
	checkDate := forDate.In(tc.calendar.Location())
	for i := 0; i < maxIterations; i++ {
		checkDate = tc.Schedule.Next(checkDate)
		if tc.matches(checkDate) {
			return checkDate
		}
	}

	log.Panic().Str("TimeSpec", tc.TimeSpec).Str("DateFlag", tc.DateFlag).Msg("tradecron schedule never fires")
	return time.Time{}
}
