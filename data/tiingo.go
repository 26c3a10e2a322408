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

package data

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-holdings/common"
	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Tiingo reports dividends and splits from the tiingo end-of-day price feed
type Tiingo struct {
	apikey string
	url    string
	client *http.Client
}

type tiingoJSONResponse struct {
	Date        string  `json:"date"`
	Close       float64 `json:"close"`
	AdjClose    float64 `json:"adjClose"`
	DivCash     float64 `json:"divCash"`
	SplitFactor float64 `json:"splitFactor"`
}

var tiingoAPI = "https://api.tiingo.com"

// NewTiingo creates a corporate action provider. An empty url selects the public API.
func NewTiingo(key, url string, timeout time.Duration) *Tiingo {
	if url == "" {
		url = tiingoAPI
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tiingo{
		apikey: key,
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// CorporateActions returns the ex-dates in year on which code paid cash or
// changed its share count
func (t *Tiingo) CorporateActions(ctx context.Context, code string, year int) ([]portfolio.CorporateAction, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.CorporateActions")
	defer span.End()

	ticker := tiingoTicker(code)
	subLog := log.With().Str("Code", code).Str("Ticker", ticker).Int("Year", year).Logger()

	tz := common.GetTimezone()
	begin := time.Date(year, time.January, 1, 0, 0, 0, 0, tz)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, tz)

	path := fmt.Sprintf("%s/tiingo/daily/%s/prices?startDate=%s&endDate=%s", t.url, ticker, begin.Format("2006-01-02"), end.Format("2006-01-02"))
	span.SetAttributes(
		attribute.KeyValue{
			Key:   "Url",
			Value: attribute.StringValue(path),
		},
		attribute.KeyValue{
			Key:   "Symbol",
			Value: attribute.StringValue(ticker),
		},
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path+"&token="+t.apikey, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build request")
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "tiingo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.KeyValue{
			Key:   "StatusCode",
			Value: attribute.IntValue(resp.StatusCode),
		})
		msg := "tiingo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatusCode, resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read tiingo body"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	rows := []tiingoJSONResponse{}
	if err := json.Unmarshal(body, &rows); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	actions := make([]portfolio.CorporateAction, 0)
	for _, row := range rows {
		split := row.SplitFactor
		if split == 0 {
			split = 1
		}
		if row.DivCash == 0 && split == 1 {
			continue
		}

		dtParts := strings.Split(row.Date, "T")
		exDate, err := time.ParseInLocation("2006-01-02", dtParts[0], tz)
		if err != nil {
			subLog.Warn().Err(err).Str("DateStr", row.Date).Msg("skipping corporate action with unparseable date")
			continue
		}

		actions = append(actions, portfolio.CorporateAction{
			ExDate:       exDate,
			CashPerShare: row.DivCash,
			StockRatio:   split - 1,
		})
	}

	span.SetAttributes(attribute.Int("Actions", len(actions)))
	return actions, nil
}

// tiingoTicker strips the exchange prefix from a code such as sh600000
func tiingoTicker(code string) string {
	code = strings.ToLower(code)
	for _, prefix := range []string{"sh", "sz", "bj"} {
		if strings.HasPrefix(code, prefix) {
			return strings.ToUpper(code[len(prefix):])
		}
	}
	return strings.ToUpper(code)
}
