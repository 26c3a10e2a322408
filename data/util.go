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

// batches splits codes into consecutive slices of at most size elements
func batches(codes []string, size int) [][]string {
	res := make([][]string, 0, (len(codes)+size-1)/size)
	for len(codes) > size {
		res = append(res, codes[:size])
		codes = codes[size:]
	}
	if len(codes) > 0 {
		res = append(res, codes)
	}
	return res
}
