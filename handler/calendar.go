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
	"time"

	"github.com/gofiber/fiber/v2"
)

type calendarResponse struct {
	At                time.Time `json:"at"`
	IsMarketDay       bool      `json:"isMarketDay"`
	IsTradingTime     bool      `json:"isTradingTime"`
	NextMarketDay     string    `json:"nextMarketDay"`
	PreviousMarketDay string    `json:"previousMarketDay"`
}

// GetCalendar reports the trading status of an instant. The at query
// parameter takes RFC 3339 and defaults to now.
func (h *Handler) GetCalendar(c *fiber.Ctx) error {
	at := h.Now()
	if s := c.Query("at"); s != "" {
		var err error
		if at, err = time.Parse(time.RFC3339, s); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "at must be formatted as RFC 3339")
		}
	}
	at = at.In(h.calendar.Location())

	return c.JSON(calendarResponse{
		At:                at,
		IsMarketDay:       h.calendar.IsMarketDay(at),
		IsTradingTime:     h.calendar.IsTradingTime(at),
		NextMarketDay:     h.calendar.NextMarketDay(at).Format(dateLayout),
		PreviousMarketDay: h.calendar.PreviousMarketDay(at).Format(dateLayout),
	})
}
