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

// Package pgxmockhelper loads CSV fixtures as pgxmock result sets
package pgxmockhelper

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgconn"
	"github.com/pashagolub/pgxmock"
	"github.com/rs/zerolog/log"
)

// converters turn a raw CSV field into the value a pgx scan would produce
var converters = map[string]func(string) (any, error){
	"date": func(s string) (any, error) {
		return time.Parse("2006-01-02", s)
	},
	"bool": func(s string) (any, error) {
		return s == "t" || s == "true", nil
	},
	"bytes": func(s string) (any, error) {
		return []byte(s), nil
	},
	"float64": func(s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	},
}

// CSVRows is a fixture whose first record is the column header. Columns named
// in the type map are converted with one of: date, bool, bytes, float64; all
// others stay strings.
type CSVRows struct {
	header []string
	rows   [][]any
}

// NewCSVRows reads the fixture fn and panics if it cannot be parsed
func NewCSVRows(fn string, typeMap map[string]string) *CSVRows {
	subLog := log.With().Str("FileName", fn).Logger()

	fh, err := os.Open(fn)
	if err != nil {
		subLog.Panic().Err(err).Msg("could not open fixture")
	}
	defer fh.Close()

	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		subLog.Panic().Err(err).Msg("could not parse fixture")
	}
	if len(records) == 0 {
		subLog.Panic().Msg("fixture has no header")
	}

	res := &CSVRows{
		header: records[0],
		rows:   make([][]any, 0, len(records)-1),
	}
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for idx, val := range record {
			convert, ok := converters[typeMap[res.header[idx]]]
			if !ok {
				row[idx] = val
				continue
			}
			if row[idx], err = convert(val); err != nil {
				subLog.Panic().Err(err).Str("Column", res.header[idx]).Str("Val", val).Msg("could not convert fixture value")
			}
		}
		res.rows = append(res.rows, row)
	}

	return res
}

// Rows returns the fixture as a pgxmock result set
func (c *CSVRows) Rows() *pgxmock.Rows {
	r := pgxmock.NewRows(c.header)
	for _, row := range c.rows {
		r.AddRow(row...)
	}
	return r
}

// ExpectUserTrx expects a transaction to be opened and switched to a role
func ExpectUserTrx(db pgxmock.PgxConnIface) {
	db.ExpectBegin()
	db.ExpectExec("SET ROLE").WillReturnResult(pgconn.CommandTag("SET ROLE"))
}

// ExpectCSVQuery expects query to run inside a role transaction and answers it
// with the rows of the fixture fn
func ExpectCSVQuery(db pgxmock.PgxConnIface, query string, fn string, typeMap map[string]string) {
	ExpectUserTrx(db)
	db.ExpectQuery(query).WillReturnRows(NewCSVRows(fn, typeMap).Rows())
}
