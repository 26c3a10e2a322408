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

// Package handler implements the HTTP endpoints of the holdings API
package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/penny-vault/pv-holdings/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Tracker is the portfolio service the endpoints delegate to
type Tracker interface {
	Valuation(ctx context.Context, userID string) (*portfolio.Valuation, error)
	Transactions(ctx context.Context, userID string, filter store.TransactionFilter) ([]portfolio.Transaction, error)
	Reconcile(ctx context.Context, userID string) ([]string, error)
	RecordTransaction(ctx context.Context, userID string, t portfolio.Transaction) error
	DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error
	RecordCashFlow(ctx context.Context, userID string, entry portfolio.CashFlowEntry) error
	SetOtherIncome(ctx context.Context, userID string, amount decimal.Decimal) error
	ClearQuotes(ctx context.Context) error
}

// Calendar answers trading calendar queries
type Calendar interface {
	Location() *time.Location
	IsMarketDay(t time.Time) bool
	IsTradingTime(t time.Time) bool
	NextMarketDay(t time.Time) time.Time
	PreviousMarketDay(t time.Time) time.Time
}

// Handler serves the API routes
type Handler struct {
	tracker  Tracker
	calendar Calendar

	// Now reports the current time; replaced in tests
	Now func() time.Time
}

// New creates a handler
func New(tracker Tracker, calendar Calendar) *Handler {
	return &Handler{
		tracker:  tracker,
		calendar: calendar,
		Now:      time.Now,
	}
}

type PingResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message" example:"API is alive"`
	Time    string `json:"time" example:"2021-06-19T08:09:10.115924-05:00"`
}

// Ping reports that the server is alive
func (h *Handler) Ping(c *fiber.Ctx) error {
	now, err := h.Now().MarshalText()
	if err != nil {
		log.Error().Err(err).Msg("error while getting time in ping")
		return c.JSON(PingResponse{
			Status:  "error",
			Message: err.Error(),
		})
	}
	return c.JSON(PingResponse{
		Status:  "success",
		Message: "API is alive",
		Time:    string(now),
	})
}

// userID reads the user a request acts for
func userID(c *fiber.Ctx) (string, error) {
	user := c.Params("user")
	if user == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "user is required")
	}
	return user, nil
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, h.calendar.Location())
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "dates must be formatted as YYYY-MM-DD")
	}
	return d, nil
}
