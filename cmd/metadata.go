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
	"os"

	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/data/database"
	"github.com/penny-vault/pv-holdings/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	metadataCmd.AddCommand(metadataImportCmd)
	rootCmd.AddCommand(metadataCmd)
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Manage instrument reference data",
}

var metadataImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Load instrument categories from a TOML file",
	Long: `Upsert the category and new listing flag of each [[instrument]] table in
the file into the shared instrument list`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		common.SetupLogging()

		doc, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		instruments, err := store.ParseMetadataTOML(doc)
		if err != nil {
			log.Error().Err(err).Str("FileName", args[0]).Msg("could not parse instrument file")
			return err
		}

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			return err
		}

		if err := store.New().SaveMetadata(ctx, instruments); err != nil {
			return err
		}

		fmt.Printf("imported %d instruments\n", len(instruments))
		return nil
	},
}
