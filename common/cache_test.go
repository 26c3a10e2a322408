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

package common_test

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/pv-holdings/common"
)

var _ = Describe("Cache", func() {
	var (
		cache *common.Cache
		now   time.Time
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		cache, err = common.NewCache(16, nil)
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)
		cache.Now = func() time.Time { return now }
		ctx = context.Background()
	})

	It("returns stored values", func() {
		Expect(cache.Set(ctx, "user:1:operations", []byte(`[{"code":"600000"}]`), time.Hour)).To(Succeed())

		val, err := cache.Get(ctx, "user:1:operations")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(val)).To(Equal(`[{"code":"600000"}]`))
	})

	It("reports a miss for unknown keys", func() {
		_, err := cache.Get(ctx, "missing")
		Expect(err).To(MatchError(common.ErrCacheMiss))
	})

	It("expires entries after their ttl", func() {
		Expect(cache.Set(ctx, "k", []byte("v"), time.Minute)).To(Succeed())
		now = now.Add(2 * time.Minute)

		_, err := cache.Get(ctx, "k")
		Expect(err).To(MatchError(common.ErrCacheMiss))
	})

	It("keeps entries without a ttl", func() {
		Expect(cache.Set(ctx, "k", []byte("v"), 0)).To(Succeed())
		now = now.Add(1000 * time.Hour)

		_, err := cache.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
	})

	It("deletes keys", func() {
		Expect(cache.Set(ctx, "a", []byte("1"), 0)).To(Succeed())
		Expect(cache.Set(ctx, "b", []byte("2"), 0)).To(Succeed())
		Expect(cache.Delete(ctx, "a", "b")).To(Succeed())

		_, err := cache.Get(ctx, "a")
		Expect(err).To(MatchError(common.ErrCacheMiss))
		_, err = cache.Get(ctx, "b")
		Expect(err).To(MatchError(common.ErrCacheMiss))
	})
})

var _ = Describe("LZ4", func() {
	It("decompresses what it compresses", func() {
		in := bytes.Repeat([]byte("600000,BUY,10.00,100;"), 200)
		compressed, err := common.Compress(in)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(compressed)).To(BeNumerically("<", len(in)))

		out, err := common.Decompress(compressed)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(in))
	})
})

var _ = Describe("Keys", func() {
	It("namespaces user keys", func() {
		Expect(common.UserCacheKey("42", "operations")).To(Equal("user:42:operations"))
		Expect(common.QuoteCacheKey("600000")).To(Equal("stock:price:600000"))
	})
})
