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

package tradecron

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const minutesPerDay = 24 * 60

// expandBriefFormat pads a spec with trailing "*" fields until it has the five
// cron fields plus its @ modifiers
func expandBriefFormat(spec string) string {
	tokens := strings.Fields(spec)

	want := 5
	for _, token := range tokens {
		if strings.HasPrefix(token, "@") {
			want++
		}
	}

	for len(tokens) < want {
		tokens = append(tokens, "*")
	}

	return strings.Join(tokens, " ")
}

// offsetToken parses a minute or hour offset; "*" means no offset
func offsetToken(token, field string) (int, error) {
	if token == "*" {
		return 0, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		log.Error().Str(field, token).Msg("could not parse offset token")
		return 0, ErrMalformedTimeSpec
	}
	return n, nil
}

// parseTimeRelativeTo treats the minute and hour fields of tokens as an offset
// from hours:minutes and returns the equivalent absolute cron spec
func parseTimeRelativeTo(tokens []string, hours int, minutes int) (string, error) {
	offMinutes, err := offsetToken(tokens[0], "MinutesToken")
	if err != nil {
		return "", err
	}
	offHours, err := offsetToken(tokens[1], "HoursToken")
	if err != nil {
		return "", err
	}

	at := (hours+offHours)*60 + minutes + offMinutes
	if at < 0 || at >= minutesPerDay {
		return "", ErrFieldOutOfBounds
	}

	return fmt.Sprintf("%d %d %s %s %s", at%60, at/60, tokens[2], tokens[3], tokens[4]), nil
}
