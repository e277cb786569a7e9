/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package alloc

import "math/bits"

const (
	// NumBuckets is N, the number of segregated free lists.
	NumBuckets = 32

	// FirstBucketCeiling is C: bucket 0 holds payload sizes in [1, C].
	FirstBucketCeiling = 16
)

// classify maps a payload-byte count (already rounded up to Alignment) to
// one of [0, NumBuckets) bucket indices, using a log-scale bucketing
// scheme similar in spirit to the size-class math in buddy.go's
// getOrderForSize and mempool's poolIndex/bits2idx, but with its own
// bucket boundaries.
//
// Bucket 0 covers (0, C]; bucket k>=1 covers (C*2^(k-1), C*2^k]; the last
// bucket covers everything above C*2^(N-2).
func classify(s uintptr) int {
	lastCeiling := uintptr(FirstBucketCeiling) << (NumBuckets - 2)
	if s > lastCeiling {
		return NumBuckets - 1
	}
	p := 2 * (s - 1) / FirstBucketCeiling
	if p == 0 {
		return 0
	}
	return bits.Len(uint(p)) - 1
}

// alignUp rounds n up to the next multiple of Alignment.
func alignUp(n uintptr) uintptr {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
