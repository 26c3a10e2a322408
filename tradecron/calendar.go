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
	"context"
	"sort"
	"sync"
	"time"

	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/rs/zerolog/log"
)

// Session is a continuous trading window expressed as HHMM in exchange time.
// A session includes its open and excludes its close.
type Session struct {
	Open  int
	Close int
}

var (
	// ShanghaiSessions are the continuous auction windows of the Shanghai and Shenzhen exchanges
	ShanghaiSessions = []Session{
		{Open: 930, Close: 1130},
		{Open: 1300, Close: 1500},
	}
)

// Calendar knows when the exchange trades. Weekends are always closed;
// other closures come from the market_holidays table.
type Calendar struct {
	sessions []Session
	tz       *time.Location

	mu       sync.RWMutex
	holidays map[int64]struct{}
}

// NewCalendar creates a calendar for the given exchange timezone and sessions
func NewCalendar(tz *time.Location, sessions []Session) (*Calendar, error) {
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}

	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Open < sorted[j].Open })

	return &Calendar{
		sessions: sorted,
		tz:       tz,
		holidays: make(map[int64]struct{}),
	}, nil
}

// Location returns the exchange timezone
func (c *Calendar) Location() *time.Location {
	return c.tz
}

// Open returns the first session's open as HHMM
func (c *Calendar) Open() int {
	return c.sessions[0].Open
}

// Close returns the last session's close as HHMM
func (c *Calendar) Close() int {
	return c.sessions[len(c.sessions)-1].Close
}

func (c *Calendar) midnight(t time.Time) time.Time {
	t = t.In(c.tz)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.tz)
}

func (c *Calendar) at(d time.Time, hhmm int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hhmm/100, hhmm%100, 0, 0, c.tz)
}

// SetHolidays replaces the known market holidays
func (c *Calendar) SetHolidays(days []time.Time) {
	holidays := make(map[int64]struct{}, len(days))
	for _, d := range days {
		holidays[c.midnight(d).Unix()] = struct{}{}
	}

	c.mu.Lock()
	c.holidays = holidays
	c.mu.Unlock()
}

// LoadHolidays reads market holidays from the database
func (c *Calendar) LoadHolidays(ctx context.Context) error {
	trx, err := database.TrxForUser(ctx, database.SharedRole)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not get database transaction")
		return err
	}

	sql := "SELECT event_date FROM market_holidays ORDER BY event_date ASC"
	rows, err := trx.Query(ctx, sql)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not load market holidays")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	days := make([]time.Time, 0, 64)
	for rows.Next() {
		var dt time.Time
		if err := rows.Scan(&dt); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan market holiday")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
		// dates come back as UTC midnight; keep the calendar day
		days = append(days, time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, c.tz))
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
	}

	c.SetHolidays(days)
	log.Info().Int("NumHolidays", len(days)).Msg("loaded market holidays")
	return nil
}

// IsMarketHoliday returns true if the exchange is closed for a holiday on t's date
func (c *Calendar) IsMarketHoliday(t time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.holidays[c.midnight(t).Unix()]
	return ok
}

// IsMarketDay returns true if the exchange trades on t's date
func (c *Calendar) IsMarketDay(t time.Time) bool {
	local := t.In(c.tz)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	return !c.IsMarketHoliday(local)
}

// IsTradingTime returns true if t falls inside a trading session
func (c *Calendar) IsTradingTime(t time.Time) bool {
	if !c.IsMarketDay(t) {
		return false
	}

	local := t.In(c.tz)
	timeOfDay := local.Hour()*100 + local.Minute()
	for _, s := range c.sessions {
		if timeOfDay >= s.Open && timeOfDay < s.Close {
			return true
		}
	}
	return false
}

// SessionElapsedBetween reports whether any part of a trading session lies
// between t0 and t1. Argument order does not matter. An empty interval never
// spans a session.
func (c *Calendar) SessionElapsedBetween(t0, t1 time.Time) bool {
	if t1.Before(t0) {
		t0, t1 = t1, t0
	}
	if !t0.Before(t1) {
		return false
	}

	last := c.midnight(t1)
	for d := c.midnight(t0); !d.After(last); d = d.AddDate(0, 0, 1) {
		if !c.IsMarketDay(d) {
			continue
		}
		for _, s := range c.sessions {
			open := c.at(d, s.Open)
			close := c.at(d, s.Close)
			if t0.Before(close) && open.Before(t1) {
				return true
			}
		}
	}
	return false
}

// NextMarketDay returns midnight of the first market day on or after t
func (c *Calendar) NextMarketDay(t time.Time) time.Time {
	d := c.midnight(t)
	for !c.IsMarketDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PreviousMarketDay returns midnight of the last market day strictly before t
func (c *Calendar) PreviousMarketDay(t time.Time) time.Time {
	d := c.midnight(t).AddDate(0, 0, -1)
	for !c.IsMarketDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// FirstTradingDayOfMonth returns the first trading day of t's month
func (c *Calendar) FirstTradingDayOfMonth(t time.Time) time.Time {
	local := t.In(c.tz)
	return c.NextMarketDay(time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.tz))
}

// FirstTradingDayOfWeek returns the first trading day of t's week, weeks starting on Monday
func (c *Calendar) FirstTradingDayOfWeek(t time.Time) time.Time {
	d := c.midnight(t)
	daysSinceMonday := (int(d.Weekday()) + 6) % 7
	return c.NextMarketDay(d.AddDate(0, 0, -daysSinceMonday))
}

// LastTradingDayOfMonth returns the last trading day of t's month
func (c *Calendar) LastTradingDayOfMonth(t time.Time) time.Time {
	local := t.In(c.tz)
	firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.tz)
	d := firstOfMonth.AddDate(0, 1, -1)
	for !c.IsMarketDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastTradingDayOfWeek returns the last trading day of t's week, weeks starting on Monday
func (c *Calendar) LastTradingDayOfWeek(t time.Time) time.Time {
	d := c.midnight(t)
	daysSinceMonday := (int(d.Weekday()) + 6) % 7
	d = d.AddDate(0, 0, 4-daysSinceMonday)
	for !c.IsMarketDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
