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
	"fmt"
	"strings"
)

// Category classifies an instrument by listing board or product type
type Category string

const (
	CategoryShanghaiMain Category = "SH60"
	CategoryShenzhenMain Category = "SZ00"
	CategoryChiNext      Category = "SZ300"
	CategorySTAR         Category = "SH688"
	CategoryBeijing      Category = "BJ"
	CategoryConvertible  Category = "CONV"
	CategoryListedFund   Category = "FUNDIN"
	CategoryTieredFund   Category = "FUNDAB"
	CategoryOther        Category = "OTHER"
)

// ParseCategory validates a stored category value
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryShanghaiMain, CategoryShenzhenMain, CategoryChiNext, CategorySTAR, CategoryBeijing,
		CategoryConvertible, CategoryListedFund, CategoryTieredFund, CategoryOther:
		return c, nil
	case "":
		return CategoryOther, nil
	default:
		return "", fmt.Errorf("unknown instrument category %q", s)
	}
}

// InstrumentMetadata is read-only reference data shared by every portfolio
type InstrumentMetadata struct {
	Code         string
	Category     Category
	IsNewListing bool
}

// MetadataLookup resolves reference data for an instrument code
type MetadataLookup interface {
	Metadata(code string) (InstrumentMetadata, bool)
}

// MetadataMap is a MetadataLookup backed by a plain map
type MetadataMap map[string]InstrumentMetadata

func (m MetadataMap) Metadata(code string) (InstrumentMetadata, bool) {
	meta, ok := m[code]
	return meta, ok
}
