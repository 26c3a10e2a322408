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
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

var (
	ErrUnknownKind       = errors.New("unknown transaction kind")
	ErrNegativeQuantity  = errors.New("transaction quantity must not be negative")
	ErrMissingCode       = errors.New("transaction has no instrument code")
	ErrMissingDate       = errors.New("transaction has no date")
	ErrTransactionsEmpty = errors.New("no transactions")
)

// Kind is the type of ledger event
type Kind string

const (
	BuyTransaction      Kind = "BUY"
	SellTransaction     Kind = "SELL"
	DividendTransaction Kind = "DIVIDEND"
)

// legacyDividendKind is how older ledgers stored dividend rows
const legacyDividendKind = "DV"

// ParseKind converts a stored kind into a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(BuyTransaction):
		return BuyTransaction, nil
	case string(SellTransaction):
		return SellTransaction, nil
	case string(DividendTransaction), legacyDividendKind:
		return DividendTransaction, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) String() string {
	return string(k)
}

// Transaction is a single event in an instrument's ledger. For BUY and SELL the
// price, quantity and fee are the economic terms of the trade. For DIVIDEND the
// corporate action is encoded by CashPerShare, StockRatio and RightsRatio and
// Quantity is the number of shares held on the ex-date.
type Transaction struct {
	ID           uuid.UUID
	Code         string
	Date         time.Time
	Kind         Kind
	Price        float64
	Quantity     float64
	Fee          float64
	CashPerShare float64
	StockRatio   float64
	RightsRatio  float64
	Comment      string
	SourceID     []byte
}

// NewTransaction creates a BUY or SELL transaction with a fresh id
func NewTransaction(code string, date time.Time, kind Kind, price, quantity, fee float64) (Transaction, error) {
	t := Transaction{
		ID:       uuid.New(),
		Code:     code,
		Date:     DateOf(date),
		Kind:     kind,
		Price:    price,
		Quantity: quantity,
		Fee:      fee,
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	t.SourceID = computeSourceID(&t)
	return t, nil
}

// NewDividend creates a DIVIDEND transaction for the ex-date of a corporate action
func NewDividend(code string, action CorporateAction, held float64) Transaction {
	t := Transaction{
		ID:           uuid.New(),
		Code:         code,
		Date:         DateOf(action.ExDate),
		Kind:         DividendTransaction,
		Quantity:     held,
		CashPerShare: action.CashPerShare,
		StockRatio:   action.StockRatio,
		RightsRatio:  action.RightsRatio,
	}
	t.SourceID = computeSourceID(&t)
	return t
}

// Validate checks the invariants every stored transaction must satisfy
func (t Transaction) Validate() error {
	if t.Code == "" {
		return ErrMissingCode
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if t.Quantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

// Multiplier returns the share count growth factor of a corporate action
func (t Transaction) Multiplier() float64 {
	if t.Kind != DividendTransaction {
		return 0
	}
	return t.StockRatio + t.RightsRatio
}

// Amount is the cash value of the transaction excluding fees
func (t Transaction) Amount() float64 {
	switch t.Kind {
	case BuyTransaction, SellTransaction:
		return t.Price * t.Quantity
	case DividendTransaction:
		return t.CashPerShare * t.Quantity
	default:
		return 0
	}
}

// Describe renders a dividend as amounts per 10 shares, the way exchanges
// announce them. Trades return their comment.
func (t Transaction) Describe() string {
	if t.Kind != DividendTransaction {
		return t.Comment
	}

	parts := make([]string, 0, 3)
	if t.CashPerShare > 0 {
		parts = append(parts, fmt.Sprintf("cash %.2f per 10 shares", t.CashPerShare*10))
	}
	if t.RightsRatio > 0 {
		parts = append(parts, fmt.Sprintf("capitalisation %.2f per 10 shares", t.RightsRatio*10))
	}
	if t.StockRatio > 0 {
		parts = append(parts, fmt.Sprintf("bonus %.2f per 10 shares", t.StockRatio*10))
	}
	return strings.Join(parts, ", ")
}

// WithQuantity returns a copy of the transaction with the quantity replaced
func (t Transaction) WithQuantity(quantity float64) Transaction {
	t.Quantity = quantity
	return t
}

// SortTransactions orders transactions ascending by date. The sort is stable
// so same-day events keep their recorded order.
func SortTransactions(trxs []Transaction) {
	sort.SliceStable(trxs, func(i, j int) bool {
		return DateOf(trxs[i].Date).Before(DateOf(trxs[j].Date))
	})
}

// GroupByCode splits a flat ledger into per-instrument ledgers, each sorted by date
func GroupByCode(trxs []Transaction) map[string][]Transaction {
	res := make(map[string][]Transaction)
	for _, t := range trxs {
		res[t.Code] = append(res[t.Code], t)
	}
	for code := range res {
		SortTransactions(res[code])
	}
	return res
}

// DateOf truncates t to midnight of its calendar day, keeping its location
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween counts calendar days from a to b ignoring time of day and zone offsets
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(ub.Sub(ua).Hours() / 24))
}

func computeSourceID(t *Transaction) []byte {
	h := blake3.New()

	d, err := DateOf(t.Date).UTC().MarshalText()
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not marshal transaction date")
		return nil
	}

	fields := [][]byte{
		d,
		[]byte(t.Code),
		[]byte(t.Kind),
		[]byte(fmt.Sprintf("%.6f", t.Price)),
		[]byte(fmt.Sprintf("%.6f", t.CashPerShare)),
		[]byte(fmt.Sprintf("%.6f", t.StockRatio)),
		[]byte(fmt.Sprintf("%.6f", t.RightsRatio)),
	}

	// dividend quantities are derived so they are not part of the identity
	if t.Kind != DividendTransaction {
		fields = append(fields,
			[]byte(fmt.Sprintf("%.6f", t.Quantity)),
			[]byte(fmt.Sprintf("%.6f", t.Fee)))
	}

	for _, f := range fields {
		if _, err := h.Write(f); err != nil {
			log.Error().Stack().Err(err).Msg("could not write to blake3 hasher")
			return nil
		}
	}

	return h.Sum(nil)
}
