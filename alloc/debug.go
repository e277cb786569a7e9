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

import "github.com/brkheap/brkheap/alloc/internal/heapcheck"

// Verify walks h and checks its structural invariants. It is a diagnostic
// aid for tests, not part of the allocator's public contract, and is not
// called on any allocation/free path.
func (h *Heap) Verify() error {
	return heapcheck.Verify(heapAccessor{h})
}

type heapAccessor struct{ h *Heap }

func (a heapAccessor) NumBuckets() int { return NumBuckets }

func (a heapAccessor) Alignment() uintptr { return Alignment }

func (a heapAccessor) Classify(size uintptr) int { return classify(size) }

func (a heapAccessor) BucketBlocks(i int) []uintptr {
	var sizes []uintptr
	anchor := a.h.bucketAnchor(i)
	for cur := anchor.NextFree(); cur.Valid(); cur = cur.NextFree() {
		sizes = append(sizes, cur.MaskedSize())
	}
	return sizes
}

func (a heapAccessor) Chunks() [][]heapcheck.ChunkBlock {
	var out [][]heapcheck.ChunkBlock
	for c := a.h.latest; c != nil; c = c.older {
		var blocks []heapcheck.ChunkBlock
		start := c.payloadStart()
		b := c.firstBlock()
		for {
			total := uintptr(HeaderSize) + b.MaskedSize() + uintptr(FooterSize)
			blocks = append(blocks, heapcheck.ChunkBlock{
				Offset:    b.addr() - start,
				TotalSize: total,
				Allocated: b.Allocated(),
				HasPrev:   b.HasPhysicalPrev(),
				HasNext:   b.HasPhysicalNext(),
			})
			if !b.HasPhysicalNext() {
				break
			}
			b = b.PhysicalNext()
		}
		out = append(out, blocks)
	}
	return out
}
