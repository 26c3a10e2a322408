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

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var valuationUser string

func init() {
	valuationCmd.Flags().StringVarP(&valuationUser, "user", "u", "", "user whose portfolio is valued")
	rootCmd.AddCommand(valuationCmd)
}

var valuationCmd = &cobra.Command{
	Use:   "valuation",
	Short: "Print the valuation of a user's portfolio",
	Long:  `Value every instrument in the user's ledger at the latest quote and print the result as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if valuationUser == "" {
			return ErrNoUser
		}

		ctx := context.Background()
		env, err := setup(ctx)
		if err != nil {
			return err
		}

		v, err := env.service.Valuation(ctx, valuationUser)
		if err != nil {
			log.Error().Err(err).Str("UserID", valuationUser).Msg("valuation failed")
			return err
		}

		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
