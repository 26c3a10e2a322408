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

package handler

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/penny-vault/pv-holdings/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type transactionRequest struct {
	Code     string  `json:"code"`
	Date     string  `json:"date"`
	Kind     string  `json:"kind"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Fee      float64 `json:"fee"`
	Comment  string  `json:"comment"`
}

type cashFlowRequest struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type incomeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type reconcileResponse struct {
	Updated []string `json:"updated"`
}

// GetValuation values the user's portfolio at current prices
func (h *Handler) GetValuation(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	v, err := h.tracker.Valuation(c.UserContext(), user)
	if err != nil {
		log.Error().Err(err).Str("UserID", user).Msg("valuation failed")
		return fiber.ErrInternalServerError
	}
	return c.JSON(v)
}

// ListTransactions lists the user's ledger, optionally filtered by code,
// kind and date range
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	filter := store.TransactionFilter{Code: c.Query("code")}
	if kind := c.Query("kind"); kind != "" {
		if filter.Kind, err = portfolio.ParseKind(kind); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if since := c.Query("since"); since != "" {
		if filter.Since, err = h.parseDate(since); err != nil {
			return err
		}
	}
	if until := c.Query("until"); until != "" {
		if filter.Until, err = h.parseDate(until); err != nil {
			return err
		}
	}

	trxs, err := h.tracker.Transactions(c.UserContext(), user, filter)
	if err != nil {
		log.Error().Err(err).Str("UserID", user).Msg("list transactions failed")
		return fiber.ErrInternalServerError
	}
	return c.JSON(trxs)
}

// CreateTransaction records a BUY or SELL
func (h *Handler) CreateTransaction(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	req := transactionRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.Warn().Err(err).Str("UserID", user).Msg("bad transaction request")
		return fiber.ErrBadRequest
	}

	kind, err := portfolio.ParseKind(req.Kind)
	if err != nil || kind == portfolio.DividendTransaction {
		return fiber.NewError(fiber.StatusBadRequest, "kind must be BUY or SELL")
	}

	date, err := h.parseDate(req.Date)
	if err != nil {
		return err
	}

	t, err := portfolio.NewTransaction(strings.TrimSpace(req.Code), date, kind, req.Price, req.Quantity, req.Fee)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	t.Comment = req.Comment

	if err := h.tracker.RecordTransaction(c.UserContext(), user, t); err != nil {
		log.Error().Err(err).Str("UserID", user).Object("Transaction", &t).Msg("record transaction failed")
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(t)
}

// DeleteTransaction removes a transaction from the user's ledger
func (h *Handler) DeleteTransaction(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	err = h.tracker.DeleteTransaction(c.UserContext(), user, id)
	if errors.Is(err, store.ErrTransactionNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("UserID", user).Str("TransactionID", id.String()).Msg("delete transaction failed")
		return fiber.ErrInternalServerError
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Reconcile attaches missing corporate actions to the user's holdings
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	updated, err := h.tracker.Reconcile(c.UserContext(), user)
	if err != nil {
		log.Error().Err(err).Str("UserID", user).Msg("reconcile failed")
		return fiber.ErrInternalServerError
	}
	return c.JSON(reconcileResponse{Updated: updated})
}

// CreateCashFlow records a contribution or withdrawal
func (h *Handler) CreateCashFlow(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	req := cashFlowRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.Warn().Err(err).Str("UserID", user).Msg("bad cash flow request")
		return fiber.ErrBadRequest
	}

	date, err := h.parseDate(req.Date)
	if err != nil {
		return err
	}
	if req.Amount.IsZero() {
		return fiber.NewError(fiber.StatusBadRequest, "amount must not be zero")
	}

	entry := portfolio.CashFlowEntry{Date: date, Amount: req.Amount}
	if err := h.tracker.RecordCashFlow(c.UserContext(), user, entry); err != nil {
		log.Error().Err(err).Str("UserID", user).Msg("record cash flow failed")
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// SetIncome replaces the user's other income
func (h *Handler) SetIncome(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	req := incomeRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.Warn().Err(err).Str("UserID", user).Msg("bad income request")
		return fiber.ErrBadRequest
	}

	if err := h.tracker.SetOtherIncome(c.UserContext(), user, req.Amount); err != nil {
		log.Error().Err(err).Str("UserID", user).Msg("set other income failed")
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ClearQuotes forces the next valuation to fetch fresh prices
func (h *Handler) ClearQuotes(c *fiber.Ctx) error {
	if err := h.tracker.ClearQuotes(c.UserContext()); err != nil {
		log.Error().Err(err).Msg("clear quotes failed")
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}
