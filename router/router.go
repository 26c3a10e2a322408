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

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-holdings/handler"
)

// SetupRoutes registers every API endpoint on app
func SetupRoutes(app *fiber.App, h *handler.Handler) {
	app.Get("/", h.Ping)

	api := app.Group("/v1")
	api.Get("/", h.Ping)

	// Calendar
	api.Get("/calendar", h.GetCalendar)

	// Quotes
	api.Delete("/quotes", h.ClearQuotes)

	// Users
	user := api.Group("/users/:user")
	user.Get("/valuation", h.GetValuation)
	user.Post("/reconcile", h.Reconcile)
	user.Put("/income", h.SetIncome)
	user.Post("/cashflows", h.CreateCashFlow)

	transactions := user.Group("/transactions")
	transactions.Get("/", h.ListTransactions)
	transactions.Post("/", h.CreateTransaction)
	transactions.Delete("/:id", h.DeleteTransaction)
}
