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

package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	reconcileUser string
	reconcileAll  bool
)

func init() {
	reconcileCmd.Flags().StringVarP(&reconcileUser, "user", "u", "", "user whose ledger is reconciled")
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "reconcile every user's ledger")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Record missing dividends and splits in users' ledgers",
	Long: `Compare each held instrument's ledger with its corporate actions and insert,
update or remove dividend entries so that share counts match`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconcileUser == "" && !reconcileAll {
			return ErrNoUser
		}

		ctx := context.Background()
		env, err := setup(ctx)
		if err != nil {
			return err
		}

		users := []string{reconcileUser}
		if reconcileAll {
			users = getUsers(ctx)
		}

		for _, userID := range users {
			codes, err := env.service.Reconcile(ctx, userID)
			if err != nil {
				log.Error().Err(err).Str("UserID", userID).Msg("reconcile failed")
				return err
			}
			for _, code := range codes {
				fmt.Printf("%s\t%s\n", userID, code)
			}
		}
		return nil
	},
}
