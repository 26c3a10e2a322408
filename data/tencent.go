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

	"github.com/penny-vault/pv-holdings/observability/opentelemetry"
	"github.com/penny-vault/pv-holdings/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	tencentNameField      = 1
	tencentPriceField     = 3
	tencentPrevCloseField = 4
	tencentMinFields      = 5
	tencentBatchSize      = 60

	// records shorter than this are separators or keep-alive noise
	tencentMinRecordLen = 10
)

var tencentAPI = "http://qt.gtimg.cn/q="

// Tencent fetches real-time quotes from the qt.gtimg.cn endpoint
type Tencent struct {
	url    string
	client *http.Client
}

// NewTencent creates a quote provider. An empty url selects the public endpoint.
func NewTencent(url string, timeout time.Duration) *Tencent {
	if url == "" {
		url = tencentAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tencent{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Quotes fetches the latest quote of each code. Records that cannot be parsed
// are logged and left out of the result. Large requests are split into
// batches; an error is returned only when every batch fails.
func (t *Tencent) Quotes(ctx context.Context, symbols []string) (map[string]portfolio.Quote, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tencent.Quotes")
	defer span.End()

	res := make(map[string]portfolio.Quote, len(symbols))
	if len(symbols) == 0 {
		return res, nil
	}

	var lastErr error
	failed := 0
	requests := batches(symbols, tencentBatchSize)
	for _, batch := range requests {
		quotes, err := t.fetch(ctx, batch)
		if err != nil {
			span.RecordError(err)
			lastErr = err
			failed++
			continue
		}
		for code, q := range quotes {
			res[code] = q
		}
	}

	if failed == len(requests) {
		span.SetStatus(codes.Error, "all quote requests failed")
		return nil, lastErr
	}
	return res, nil
}

func (t *Tencent) fetch(ctx context.Context, batch []string) (map[string]portfolio.Quote, error) {
	subLog := log.With().Strs("Codes", batch).Logger()

	url := t.url + strings.Join(batch, ",") + ","
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		subLog.Error().Err(err).Str("Url", url).Msg("quote http request failed")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Msg("quote endpoint returned invalid response code")
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatusCode, resp.StatusCode)
	}

	body, err := ioutil.ReadAll(simplifiedchinese.GB18030.NewDecoder().Reader(resp.Body))
	if err != nil {
		subLog.Error().Err(err).Msg("could not read quote body")
		return nil, err
	}

	return parseTencentQuotes(string(body), batch), nil
}

// parseTencentQuotes splits a response of the form
//
//	v_sh600000="1~NAME~600000~7.50~7.45~...";
//
// into quotes keyed by the requested code. Records are matched by their
// variable name and fall back to request order when it is missing.
func parseTencentQuotes(body string, requested []string) map[string]portfolio.Quote {
	res := make(map[string]portfolio.Quote, len(requested))

	for idx, record := range strings.Split(body, ";") {
		record = strings.TrimSpace(record)
		if len(record) <= tencentMinRecordLen {
			continue
		}

		code := recordCode(record)
		if code == "" && idx < len(requested) {
			code = requested[idx]
		}

		q, err := parseTencentRecord(record)
		if err != nil || code == "" {
			log.Warn().Err(err).Str("Record", record).Msg("skipping malformed quote record")
			continue
		}
		q.Code = code
		res[code] = q
	}

	return res
}

func recordCode(record string) string {
	eq := strings.IndexByte(record, '=')
	if eq < 0 {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSpace(record[:eq]), "v_")
}

func parseTencentRecord(record string) (portfolio.Quote, error) {
	start := strings.IndexByte(record, '"')
	end := strings.LastIndexByte(record, '"')
	if start < 0 || end <= start {
		return portfolio.Quote{}, ErrMalformedQuote
	}

	fields := strings.Split(record[start+1:end], "~")
	if len(fields) < tencentMinFields {
		return portfolio.Quote{}, fmt.Errorf("%w: %d fields", ErrMalformedQuote, len(fields))
	}

	price := parseDecimal(fields[tencentPriceField])
	prevClose := parseDecimal(fields[tencentPrevCloseField])
	change := price.Sub(prevClose)

	ratio := decimal.Zero
	if !prevClose.IsZero() {
		ratio = change.Div(prevClose)
	}

	return portfolio.Quote{
		Name:        fields[tencentNameField],
		PriceNow:    price.InexactFloat64(),
		PriceChange: change.InexactFloat64(),
		ChangeRatio: ratio.Round(6).InexactFloat64(),
		PrevClose:   prevClose.InexactFloat64(),
	}, nil
}

// parseDecimal treats unparseable numbers as zero
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
