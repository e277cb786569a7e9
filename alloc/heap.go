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

import (
	"errors"
	"unsafe"

	"github.com/brkheap/brkheap/alloc/internal/brk"
)

// ErrOutOfMemory reports that the program-break primitive refused to grant
// more memory, even at the minimum chunk size.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// Heap is a segregated free-list allocator instance. The zero value is not
// usable; construct one with NewHeap. Heap is not safe for concurrent use
// from multiple goroutines — callers that need concurrent allocation should
// give each goroutine its own Heap.
type Heap struct {
	buckets [NumBuckets]blockHeader
	latest  *chunkHeader
	src     brk.Source
	lastErr error
}

// NewHeap constructs an empty Heap drawing memory from src. Bucket
// sentinels are zero-initialized by construction: an all-zero blockHeader
// is a valid, empty anchor.
func NewHeap(src brk.Source) *Heap {
	return &Heap{src: src}
}

// New constructs a Heap that draws memory from the real OS via mmap. This
// is what callers outside this module want; NewHeap is exported mainly so
// tests can inject a fake Source.
func New() *Heap {
	return NewHeap(brk.OSBreak{})
}

// defaultHeap is the process-wide instance backing the package-level
// Allocate/Free/Reallocate/ClearedAllocate functions.
var defaultHeap = New()

// Allocate returns a pointer to at least n usable payload bytes aligned to
// Alignment, or nil with LastError() reporting ErrOutOfMemory. n == 0
// returns nil without error.
func Allocate(n int) []byte { return defaultHeap.Allocate(n) }

// ClearedAllocate is Allocate(count*unit) followed by a zero-fill. It
// returns nil if count or unit is zero, or if count*unit would overflow.
func ClearedAllocate(count, unit int) []byte { return defaultHeap.ClearedAllocate(count, unit) }

// Reallocate resizes p to newN bytes, preserving the leading
// min(len(p), newN) bytes. A nil p behaves like Allocate(newN); newN == 0
// frees p and returns nil.
func Reallocate(p []byte, newN int) []byte { return defaultHeap.Reallocate(p, newN) }

// Free releases a buffer previously returned by Allocate/ClearedAllocate/
// Reallocate. Freeing nil is a no-op.
func Free(p []byte) { defaultHeap.Free(p) }

// LastError reports, errno-style, whether the most recent allocating call
// on the default heap ran out of memory; see (*Heap).LastError.
func LastError() error { return defaultHeap.LastError() }

// LastError returns ErrOutOfMemory if the most recent Allocate,
// ClearedAllocate or allocating Reallocate on h ran out of memory, and nil
// otherwise. Free (including Reallocate to zero) leaves it unchanged.
func (h *Heap) LastError() error { return h.lastErr }

func (h *Heap) bucketAnchor(i int) Block {
	return Block{h: &h.buckets[i]}
}

// Allocate is the Heap method backing the package-level Allocate.
func (h *Heap) Allocate(n int) []byte {
	h.lastErr = nil
	if n <= 0 {
		return nil
	}
	size := alignUp(uintptr(n))

	b, ok := h.findFree(size)
	if !ok {
		grown, err := h.growChunk(size)
		if err != nil {
			h.lastErr = ErrOutOfMemory
			return nil
		}
		b = grown
	}

	split(h, b, size)
	b.SetAllocated(true)
	return unsafe.Slice((*byte)(b.Payload()), int(b.MaskedSize()))[:n]
}

// findFree performs first-fit search within the smallest sufficient
// bucket: the outer loop over buckets stops at the first bucket that
// yields a hit, and within that bucket the first block big enough wins.
func (h *Heap) findFree(size uintptr) (Block, bool) {
	start := classify(size)
	for i := start; i < NumBuckets; i++ {
		anchor := h.bucketAnchor(i)
		for cur := anchor.NextFree(); cur.Valid(); cur = cur.NextFree() {
			if cur.MaskedSize() >= size {
				unlink(cur)
				return cur, true
			}
		}
	}
	return Block{}, false
}

// ClearedAllocate is the Heap method backing the package-level
// ClearedAllocate.
func (h *Heap) ClearedAllocate(count, unit int) []byte {
	if count == 0 || unit == 0 {
		h.lastErr = nil
		return nil
	}
	if count < 0 || unit < 0 || count > (1<<62)/unit {
		h.lastErr = nil
		return nil
	}
	buf := h.Allocate(count * unit)
	if buf == nil {
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Reallocate is the Heap method backing the package-level Reallocate.
func (h *Heap) Reallocate(p []byte, newN int) []byte {
	if p == nil {
		return h.Allocate(newN)
	}
	if newN == 0 {
		// Resizing to zero frees p and returns nil (see DESIGN.md).
		h.Free(p)
		return nil
	}

	old := blockFromPayload(unsafe.Pointer(&p[0]))
	old.CheckGuard()

	next := h.Allocate(newN)
	if next == nil {
		return nil
	}
	copy(next, p)
	h.Free(p)
	return next
}

// Free is the Heap method backing the package-level Free.
func (h *Heap) Free(p []byte) {
	if len(p) == 0 {
		return
	}
	b := blockFromPayload(unsafe.Pointer(&p[0]))
	b.CheckGuard()
	b.SetAllocated(false)
	freed := coalesce(b)
	insert(h, freed)
}
